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

// Package idcodec converts identifiers between their bech32m text form
// ("nft1...") and the 32 byte hash they encode, and packs records into the
// fixed binary layout used by the encode and decode commands.
package idcodec

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcutil/bech32"

	offertag "github.com/ZaparooProject/go-offertag"
)

const (
	// Prefix is the human readable part of every identifier
	Prefix = "nft"
	// HashLength is the size of the hash an identifier encodes
	HashLength = 32
	// BinaryLength is the size of an encoded record with a legacy offer
	BinaryLength = offertag.VersionLength + HashLength + offertag.LegacyOfferLength
)

var (
	ErrInvalidID     = errors.New("invalid identifier")
	ErrInvalidBinary = errors.New("invalid binary record")
)

// HashToID encodes a hash as a bech32m identifier.
func HashToID(hash [HashLength]byte) (string, error) {
	data, err := bech32.ConvertBits(hash[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to regroup hash: %w", err)
	}
	id, err := bech32.EncodeM(Prefix, data)
	if err != nil {
		return "", fmt.Errorf("failed to encode identifier: %w", err)
	}
	return id, nil
}

// IDToHash decodes a bech32m identifier. Plain bech32 checksums, foreign
// prefixes and payloads that are not exactly HashLength bytes are rejected.
func IDToHash(id string) ([HashLength]byte, error) {
	var hash [HashLength]byte

	hrp, data, version, err := bech32.DecodeGeneric(strings.TrimSpace(id))
	if err != nil {
		return hash, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	if version != bech32.VersionM {
		return hash, fmt.Errorf("%w: not a bech32m checksum", ErrInvalidID)
	}
	if hrp != Prefix {
		return hash, fmt.Errorf("%w: prefix %q, expected %q", ErrInvalidID, hrp, Prefix)
	}

	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return hash, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	if len(raw) != HashLength {
		return hash, fmt.Errorf("%w: encodes %d bytes, expected %d", ErrInvalidID, len(raw), HashLength)
	}
	copy(hash[:], raw)
	return hash, nil
}

// Binary is a record unpacked from its binary form.
type Binary struct {
	Record offertag.Record
	Hash   [HashLength]byte
}

// EncodeBinary packs rec as version bytes, identifier hash and offer bytes.
func EncodeBinary(rec offertag.Record) ([]byte, error) {
	if len(rec.Version) != offertag.VersionLength {
		return nil, fmt.Errorf("%w: version must be %d bytes, got %d",
			ErrInvalidBinary, offertag.VersionLength, len(rec.Version))
	}
	if rec.Offer == "" {
		return nil, fmt.Errorf("%w: offer is required", ErrInvalidBinary)
	}
	hash, err := IDToHash(rec.Identifier)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, offertag.VersionLength+HashLength+len(rec.Offer))
	out = append(out, rec.Version...)
	out = append(out, hash[:]...)
	out = append(out, rec.Offer...)
	return out, nil
}

// DecodeBinary unpacks a record produced by EncodeBinary. Only the legacy
// layout with a 5 byte offer is accepted.
func DecodeBinary(data []byte) (Binary, error) {
	if len(data) != BinaryLength {
		return Binary{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidBinary, BinaryLength, len(data))
	}

	version := data[:offertag.VersionLength]
	hashEnd := offertag.VersionLength + HashLength
	offer := data[hashEnd:]
	if !utf8.Valid(version) || !utf8.Valid(offer) {
		return Binary{}, fmt.Errorf("%w: version or offer is not valid text", ErrInvalidBinary)
	}

	var b Binary
	copy(b.Hash[:], data[offertag.VersionLength:hashEnd])
	id, err := HashToID(b.Hash)
	if err != nil {
		return Binary{}, err
	}
	b.Record = offertag.Record{
		Version:    string(version),
		Identifier: id,
		Offer:      string(offer),
	}
	return b, nil
}
