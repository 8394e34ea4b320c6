// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package offertag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Record field limits. Lengths are counted in characters, not bytes.
const (
	DefaultVersion    = "DT001"
	VersionLength     = 5
	MaxIdentifierLen  = 62
	OfferLength       = 64
	LegacyOfferLength = 5
	MaxOfferLength    = 64
)

// OfferPolicy selects how offer code lengths are checked.
type OfferPolicy struct {
	// Legacy selects the 5 character offer code instead of the 64 character one.
	Legacy bool
	// Strict requires the exact target length; otherwise only MaxOfferLength applies.
	Strict bool
}

// DefaultOfferPolicy requires current-length offer codes.
func DefaultOfferPolicy() OfferPolicy {
	return OfferPolicy{Strict: true}
}

func (p OfferPolicy) targetLength() int {
	if p.Legacy {
		return LegacyOfferLength
	}
	return OfferLength
}

// Record is the application payload stored on a tag. Build one with
// NewRecord so the fields are validated before any tag I/O.
type Record struct {
	Version    string
	Identifier string
	Offer      string
}

// NewRecord validates the fields and returns the record. An empty version
// is replaced with DefaultVersion.
func NewRecord(version, identifier, offer string, policy OfferPolicy) (Record, error) {
	rec := Record{
		Version:    strings.TrimSpace(version),
		Identifier: strings.TrimSpace(identifier),
		Offer:      strings.TrimSpace(offer),
	}
	if rec.Version == "" {
		rec.Version = DefaultVersion
	}
	if err := rec.Validate(policy); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Validate checks every field against its contract.
func (r Record) Validate(policy OfferPolicy) error {
	if n := utf8.RuneCountInString(r.Version); n != VersionLength {
		return &ValidationError{
			Field:  "version",
			Reason: fmt.Sprintf("must be exactly %d characters, got %d", VersionLength, n),
		}
	}

	if strings.TrimSpace(r.Identifier) == "" {
		return &ValidationError{Field: "identifier", Reason: "is required"}
	}
	// Decoding strips the padding spaces
	if strings.TrimSpace(r.Identifier) != r.Identifier {
		return &ValidationError{Field: "identifier", Reason: "must not have leading or trailing spaces"}
	}
	if n := utf8.RuneCountInString(r.Identifier); n > MaxIdentifierLen {
		return &ValidationError{
			Field:  "identifier",
			Reason: fmt.Sprintf("too long (max %d characters expected, got %d)", MaxIdentifierLen, n),
		}
	}

	if r.Offer == "" {
		return &ValidationError{Field: "offer", Reason: "is required"}
	}
	n := utf8.RuneCountInString(r.Offer)
	if policy.Strict {
		if target := policy.targetLength(); n != target {
			return &ValidationError{
				Field:  "offer",
				Reason: fmt.Sprintf("must be exactly %d characters, got %d", target, n),
			}
		}
		return nil
	}
	if n > MaxOfferLength {
		return &ValidationError{
			Field:  "offer",
			Reason: fmt.Sprintf("too long (max %d characters expected, got %d)", MaxOfferLength, n),
		}
	}
	return nil
}

// text returns the payload text stored in the NDEF record. The identifier
// is padded to its fixed width so the offer always starts at the same
// character offset.
func (r Record) text() string {
	pad := MaxIdentifierLen - utf8.RuneCountInString(r.Identifier)
	if pad < 0 {
		pad = 0
	}
	return r.Version + r.Identifier + strings.Repeat(" ", pad) + r.Offer
}

// parseRecordText splits payload text into its fields. No length checks
// are applied here; the result should be validated by the caller.
func parseRecordText(text string) Record {
	runes := []rune(text)
	cut := func(from, to int) string {
		if from > len(runes) {
			return ""
		}
		if to > len(runes) {
			to = len(runes)
		}
		return string(runes[from:to])
	}
	idEnd := VersionLength + MaxIdentifierLen
	return Record{
		Version:    cut(0, VersionLength),
		Identifier: strings.TrimRight(cut(VersionLength, idEnd), " "),
		Offer:      cut(idEnd, len(runes)),
	}
}
