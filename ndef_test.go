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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-offertag/internal/testing"
)

func TestEncodeMessageLayout(t *testing.T) {
	t.Parallel()

	rec := Record{Version: "DT001", Identifier: "nft1", Offer: "ABCDE"}
	tlv, err := EncodeMessage(rec)
	require.NoError(t, err)

	textLen := VersionLength + MaxIdentifierLen + 5
	msgLen := 4 + 3 + textLen
	require.Len(t, tlv, 2+msgLen+1)
	assert.Equal(t, []byte{0x03, byte(msgLen), 0xD1, 0x01, byte(msgLen - 4), 'T', 0x02, 'e', 'n'}, tlv[:9])
	assert.Equal(t, "DT001nft1", string(tlv[9:18]))
	assert.Equal(t, byte(0xFE), tlv[len(tlv)-1])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  Record
	}{
		{name: "current offer", rec: Record{Version: "DT001", Identifier: "nft1qqqz", Offer: testOffer()}},
		{name: "legacy offer", rec: Record{Version: "DT001", Identifier: "id", Offer: "ABCDE"}},
		{name: "full identifier", rec: Record{Version: "XY999", Identifier: strings.Repeat("z", 62), Offer: "o"}},
		{name: "multibyte text", rec: Record{Version: "DT001", Identifier: "naïve", Offer: "café"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tlv, err := EncodeMessage(tt.rec)
			require.NoError(t, err)
			got, err := DecodeMessage(tlv)
			require.NoError(t, err)
			assert.Equal(t, tt.rec, got)
		})
	}
}

func TestEncodeMessageTooLarge(t *testing.T) {
	t.Parallel()

	rec := Record{Version: "DT001", Identifier: "id", Offer: strings.Repeat("é", 100)}
	_, err := EncodeMessage(rec)
	require.ErrorIs(t, err, ErrDataTooLarge)
}

func TestCheckCapacity(t *testing.T) {
	t.Parallel()

	tlv, err := EncodeMessage(Record{Version: "DT001", Identifier: "id", Offer: testOffer()})
	require.NoError(t, err)
	require.Len(t, tlv, 141)

	require.NoError(t, CheckCapacity(tlv, VariantNTAG213))
	require.NoError(t, CheckCapacity(tlv, VariantNTAG215))
	require.ErrorIs(t, CheckCapacity(tlv, VariantUltralight), ErrDataTooLarge)
	require.ErrorIs(t, CheckCapacity(tlv, VariantUnknown), ErrUnsupportedTag)
}

func TestDecodeMessageErrors(t *testing.T) {
	t.Parallel()

	valid, err := EncodeMessage(Record{Version: "DT001", Identifier: "id", Offer: "ABCDE"})
	require.NoError(t, err)
	corrupt := func(offset int, b byte) []byte {
		out := append([]byte(nil), valid...)
		out[offset] = b
		return out
	}

	tests := []struct {
		name       string
		raw        []byte
		wantOffset int
	}{
		{name: "empty", raw: nil, wantOffset: -1},
		{name: "not NDEF TLV", raw: corrupt(0, 0x01), wantOffset: 0},
		{name: "length too short", raw: []byte{0x03, 0x02, 0xD1, 0x01}, wantOffset: 1},
		{name: "truncated", raw: valid[:20], wantOffset: 1},
		{name: "record header", raw: corrupt(2, 0x91), wantOffset: 2},
		{name: "type length", raw: corrupt(3, 0x02), wantOffset: 3},
		{name: "payload length", raw: corrupt(4, 0x00), wantOffset: 4},
		{name: "record type", raw: corrupt(5, 'U'), wantOffset: 5},
		{name: "language length", raw: corrupt(6, 0x05), wantOffset: 6},
		{name: "language code", raw: corrupt(8, 'r'), wantOffset: 8},
		{name: "invalid UTF-8", raw: corrupt(12, 0xFF), wantOffset: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeMessage(tt.raw)
			require.ErrorIs(t, err, ErrDecode)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.wantOffset, de.Offset)
		})
	}
}

func TestWriteAndReadMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualNTAG215(nil)
	tag.SetMemory(4, bytes.Repeat([]byte{0xFF}, 36*PageSize))
	device, _ := newVirtualDevice(t, tag)
	rec := testRecord(t)

	tlv, err := EncodeMessage(rec)
	require.NoError(t, err)
	require.NoError(t, device.WriteMessage(ctx, VariantNTAG215, tlv))

	// Last chunk is zero padded
	mem := tag.Memory(4, 36)
	assert.Equal(t, tlv, mem[:len(tlv)])
	assert.Equal(t, []byte{0, 0, 0}, mem[len(tlv):len(tlv)+3])

	got, err := device.ReadRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestWriteMessageRejectsOversized(t *testing.T) {
	t.Parallel()

	device, reader := newVirtualDevice(t, testutil.NewVirtualUltralight(nil))
	tlv, err := EncodeMessage(testRecord(t))
	require.NoError(t, err)

	require.ErrorIs(t, device.WriteMessage(context.Background(), VariantUltralight, tlv), ErrDataTooLarge)
	assert.Empty(t, reader.WriteCommands())
}

func TestReadRecordBlankTag(t *testing.T) {
	t.Parallel()

	device, _ := newVirtualDevice(t, testutil.NewVirtualNTAG213(nil))
	_, err := device.ReadRecord(context.Background())
	require.ErrorIs(t, err, ErrDecode)
}

func TestReadRecordLengthBeyondDataArea(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	tag.SetPage(4, [4]byte{0x03, 0xF0, 0xD1, 0x01})
	device, reader := newVirtualDevice(t, tag)

	_, err := device.ReadRecordFrom(context.Background(), VariantUltralight)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, de.Offset)
	assert.Equal(t, 1, reader.GetCommandCount(InsReadBinary))
}
