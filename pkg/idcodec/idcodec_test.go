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

package idcodec

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	offertag "github.com/ZaparooProject/go-offertag"
)

func mustHash(t *testing.T, s string) [HashLength]byte {
	t.Helper()
	raw, err := hex.DecodeString(s)
	require.NoError(t, err)
	require.Len(t, raw, HashLength)
	var h [HashLength]byte
	copy(h[:], raw)
	return h
}

var idVectors = []struct {
	name string
	hash string
	id   string
}{
	{
		name: "zero hash",
		hash: "0000000000000000000000000000000000000000000000000000000000000000",
		id:   "nft1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqvypg2p",
	},
	{
		name: "counting bytes",
		hash: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		id:   "nft1qqqsyqcyq5rqwzqfpg9scrgwpugpzysnzs23v9ccrydpk8qarc0s9s222c",
	},
	{
		name: "mixed bytes",
		hash: "7a2b1ff1d6e4b4b8a5f31c2f1d60c63b48e6a7c7f3e36c1e2b79ad7a2f2f0b12",
		id:   "nft10g43luwkuj6t3f0nrsh36cxx8dywdf78703kc83t0xkh5te0pvfqmq782h",
	},
}

func TestHashToID(t *testing.T) {
	t.Parallel()

	for _, tt := range idVectors {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, err := HashToID(mustHash(t, tt.hash))
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Len(t, id, offertag.MaxIdentifierLen)
		})
	}
}

func TestIDToHash(t *testing.T) {
	t.Parallel()

	for _, tt := range idVectors {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hash, err := IDToHash(tt.id)
			require.NoError(t, err)
			assert.Equal(t, mustHash(t, tt.hash), hash)
		})
	}
}

func TestIDToHash_Rejects(t *testing.T) {
	t.Parallel()

	valid := idVectors[1].id
	tests := []struct {
		name string
		id   string
	}{
		{name: "empty", id: ""},
		{name: "no separator", id: "nftqqqq"},
		{name: "bad checksum", id: valid[:len(valid)-1] + "q"},
		{name: "truncated", id: valid[:30]},
		{name: "plain text", id: "not an identifier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := IDToHash(tt.id)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidID)
		})
	}
}

func TestIDToHash_TrimsSpace(t *testing.T) {
	t.Parallel()

	hash, err := IDToHash("  " + idVectors[2].id + "\n")
	require.NoError(t, err)
	assert.Equal(t, mustHash(t, idVectors[2].hash), hash)
}

func TestEncodeBinary(t *testing.T) {
	t.Parallel()

	rec := offertag.Record{Version: "DT001", Identifier: idVectors[1].id, Offer: "abcde"}
	data, err := EncodeBinary(rec)
	require.NoError(t, err)
	require.Len(t, data, BinaryLength)

	assert.Equal(t, []byte("DT001"), data[:5])
	assert.Equal(t, mustHash(t, idVectors[1].hash), [HashLength]byte(data[5:37]))
	assert.Equal(t, []byte("abcde"), data[37:])
}

func TestEncodeBinary_LongOffer(t *testing.T) {
	t.Parallel()

	offer := "0123456789012345678901234567890123456789012345678901234567890123"
	data, err := EncodeBinary(offertag.Record{Version: "DT001", Identifier: idVectors[0].id, Offer: offer})
	require.NoError(t, err)
	assert.Len(t, data, offertag.VersionLength+HashLength+len(offer))
}

func TestEncodeBinary_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  offertag.Record
		want error
	}{
		{
			name: "short version",
			rec:  offertag.Record{Version: "DT1", Identifier: idVectors[0].id, Offer: "abcde"},
			want: ErrInvalidBinary,
		},
		{
			name: "missing offer",
			rec:  offertag.Record{Version: "DT001", Identifier: idVectors[0].id},
			want: ErrInvalidBinary,
		},
		{
			name: "identifier not bech32m",
			rec:  offertag.Record{Version: "DT001", Identifier: "nft-123", Offer: "abcde"},
			want: ErrInvalidID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := EncodeBinary(tt.rec)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeBinary(t *testing.T) {
	t.Parallel()

	rec := offertag.Record{Version: "DT002", Identifier: idVectors[2].id, Offer: "xy7z9"}
	data, err := EncodeBinary(rec)
	require.NoError(t, err)

	got, err := DecodeBinary(data)
	require.NoError(t, err)
	assert.Equal(t, rec, got.Record)
	assert.Equal(t, mustHash(t, idVectors[2].hash), got.Hash)
}

func TestDecodeBinary_Rejects(t *testing.T) {
	t.Parallel()

	_, err := DecodeBinary(make([]byte, BinaryLength-1))
	require.ErrorIs(t, err, ErrInvalidBinary)

	bad := make([]byte, BinaryLength)
	copy(bad, "DT001")
	bad[BinaryLength-1] = 0xFF
	_, err = DecodeBinary(bad)
	require.ErrorIs(t, err, ErrInvalidBinary)
}
