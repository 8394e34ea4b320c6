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
	"context"
	"fmt"
	"unicode/utf8"
)

// TLV and NDEF record constants for the single short text record stored on
// the tag.
const (
	tlvNDEF       byte = 0x03
	tlvTerminator byte = 0xFE

	// MB=1 ME=1 CF=0 SR=1 IL=0 TNF=well-known
	recordHeader     byte = 0xD1
	recordTypeLength byte = 0x01
	recordTypeText   byte = 'T'

	langLength byte = 0x02
	langCode        = "en"

	tlvHeaderLen    = 2
	recordHeaderLen = 4
	langPrefixLen   = 3
	payloadOffset   = tlvHeaderLen + recordHeaderLen + langPrefixLen
	maxShortLength  = 0xFE
)

// EncodeMessage builds the TLV-wrapped NDEF text record carrying rec.
func EncodeMessage(rec Record) ([]byte, error) {
	text := rec.text()

	payload := make([]byte, 0, langPrefixLen+len(text))
	payload = append(payload, langLength)
	payload = append(payload, langCode...)
	payload = append(payload, text...)

	recordLen := recordHeaderLen + len(payload)
	if recordLen > maxShortLength {
		return nil, fmt.Errorf("%w: record is %d bytes, short record limit is %d",
			ErrDataTooLarge, recordLen, maxShortLength)
	}

	tlv := make([]byte, 0, tlvHeaderLen+recordLen+1)
	tlv = append(tlv, tlvNDEF, byte(recordLen))
	tlv = append(tlv, recordHeader, recordTypeLength, byte(len(payload)), recordTypeText)
	tlv = append(tlv, payload...)
	tlv = append(tlv, tlvTerminator)
	return tlv, nil
}

// CheckCapacity rejects a TLV larger than the variant's data area.
func CheckCapacity(tlv []byte, variant TagVariant) error {
	geo, err := geometryFor(variant)
	if err != nil {
		return err
	}
	if len(tlv) > geo.MaxPayload {
		return fmt.Errorf("%w: NDEF message too large for %s, max size %d got %d",
			ErrDataTooLarge, variant, geo.MaxPayload, len(tlv))
	}
	return nil
}

// messagePages returns how many pages hold the TLV header and a message of
// msgLen bytes.
func messagePages(msgLen int) int {
	return (msgLen + tlvHeaderLen + PageSize - 1) / PageSize
}

// DecodeMessage parses raw tag memory starting at the first data page. Only
// the fixed header bytes are checked; field lengths are left to
// Record.Validate.
func DecodeMessage(raw []byte) (Record, error) {
	if len(raw) < tlvHeaderLen {
		return Record{}, &DecodeError{Reason: "data shorter than TLV header", Offset: -1}
	}
	if raw[0] != tlvNDEF {
		return Record{}, &DecodeError{Reason: fmt.Sprintf("invalid NDEF TLV tag 0x%02X", raw[0]), Offset: 0}
	}

	msgLen := int(raw[1])
	end := tlvHeaderLen + msgLen
	if msgLen < recordHeaderLen+langPrefixLen {
		return Record{}, &DecodeError{Reason: fmt.Sprintf("message length %d too short", msgLen), Offset: 1}
	}
	if len(raw) < end {
		return Record{}, &DecodeError{
			Reason: fmt.Sprintf("message length %d exceeds %d bytes read", msgLen, len(raw)-tlvHeaderLen),
			Offset: 1,
		}
	}

	checks := []struct {
		reason string
		offset int
		want   byte
	}{
		{"record header", 2, recordHeader},
		{"record type length", 3, recordTypeLength},
		{"payload length", 4, byte(msgLen - recordHeaderLen)},
		{"record type", 5, recordTypeText},
		{"language code length", 6, langLength},
		{"language code", 7, langCode[0]},
		{"language code", 8, langCode[1]},
	}
	for _, c := range checks {
		if raw[c.offset] != c.want {
			return Record{}, &DecodeError{
				Reason: fmt.Sprintf("unexpected %s 0x%02X, want 0x%02X", c.reason, raw[c.offset], c.want),
				Offset: c.offset,
			}
		}
	}

	payload := raw[payloadOffset:end]
	if !utf8.Valid(payload) {
		return Record{}, &DecodeError{Reason: "payload is not valid UTF-8", Offset: payloadOffset}
	}
	return parseRecordText(string(payload)), nil
}

// WriteMessage writes tlv in 4 byte chunks from the first data page,
// zero-padding the last chunk and pausing after every page.
func (d *Device) WriteMessage(ctx context.Context, variant TagVariant, tlv []byte) error {
	geo, err := geometryFor(variant)
	if err != nil {
		return err
	}
	if err := CheckCapacity(tlv, variant); err != nil {
		return err
	}

	page := geo.DataStart
	for off := 0; off < len(tlv); off += PageSize {
		chunk := make([]byte, PageSize)
		copy(chunk, tlv[off:min(off+PageSize, len(tlv))])
		if err := d.WritePage(ctx, page, chunk); err != nil {
			return fmt.Errorf("failed to write NDEF data at page %02x: %w", page, err)
		}
		page++
		if err := sleepWithContext(ctx, d.timing.PageSettle); err != nil {
			return err
		}
	}
	Debugf("NDEF message written (%d bytes, %d pages)", len(tlv), messagePages(len(tlv)-tlvHeaderLen))
	return nil
}

// ReadRecord identifies the tag and decodes the record stored on it.
func (d *Device) ReadRecord(ctx context.Context) (Record, error) {
	variant, err := d.IdentifyTag(ctx)
	if err != nil {
		return Record{}, err
	}
	return d.ReadRecordFrom(ctx, variant)
}

// ReadRecordFrom decodes the record from a tag of a known variant.
func (d *Device) ReadRecordFrom(ctx context.Context, variant TagVariant) (Record, error) {
	geo, err := geometryFor(variant)
	if err != nil {
		return Record{}, err
	}

	first, err := d.ReadPage(ctx, geo.DataStart)
	if err != nil {
		return Record{}, err
	}
	Debugf("Initial data page: % X", first)
	if first[0] != tlvNDEF {
		return Record{}, &DecodeError{Reason: fmt.Sprintf("invalid NDEF TLV tag 0x%02X", first[0]), Offset: 0}
	}

	msgLen := int(first[1])
	pages := messagePages(msgLen)
	if pages > geo.Pages() {
		return Record{}, &DecodeError{
			Reason: fmt.Sprintf("message length %d exceeds %s data area", msgLen, variant),
			Offset: 1,
		}
	}

	raw := make([]byte, 0, pages*PageSize)
	raw = append(raw, first...)
	if pages > 1 {
		rest, err := d.readPages(ctx, geo.DataStart+1, pages-1)
		if err != nil {
			return Record{}, err
		}
		raw = append(raw, rest...)
	}
	Debugf("Full message data: % X", raw)

	return DecodeMessage(raw)
}
