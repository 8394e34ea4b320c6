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

package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGetFirmwareVersion(t *testing.T) {
	t.Parallel()

	got, err := Build(HostToPn532, []byte{0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}, got)
}

func TestBuildParseRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{name: "single byte", size: 1},
		{name: "page read response", size: 19},
		{name: "normal maximum", size: 254},
		{name: "extended", size: 260},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := bytes.Repeat([]byte{0xA5}, tt.size)
			raw, err := Build(Pn532ToHost, data)
			require.NoError(t, err)

			f, consumed, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, len(raw), consumed)
			assert.Equal(t, byte(Pn532ToHost), f.TFI)
			assert.Equal(t, data, f.Data)
		})
	}
}

func TestBuildRejectsOversizedData(t *testing.T) {
	t.Parallel()

	_, err := Build(HostToPn532, make([]byte, MaxFrameDataLength+1))
	require.ErrorIs(t, err, ErrTooLong)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	valid, err := Build(Pn532ToHost, []byte{0x41, 0x00})
	require.NoError(t, err)

	badLength := append([]byte(nil), valid...)
	badLength[4] ^= 0x01

	badData := append([]byte(nil), valid...)
	badData[len(badData)-2] ^= 0xFF

	tests := []struct {
		wantErr error
		name    string
		buf     []byte
	}{
		{name: "no start code", buf: []byte{0x01, 0x02, 0x03}, wantErr: ErrNoStartCode},
		{name: "truncated header", buf: []byte{0x00, 0x00, 0xFF}, wantErr: ErrIncomplete},
		{name: "truncated body", buf: valid[:6], wantErr: ErrIncomplete},
		{name: "length checksum", buf: badLength, wantErr: ErrLengthChecksum},
		{name: "data checksum", buf: badData, wantErr: ErrDataChecksum},
		{name: "error frame", buf: ErrorFrame, wantErr: ErrApplicationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Parse(tt.buf)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseSkipsLeadingBytes(t *testing.T) {
	t.Parallel()

	raw, err := Build(Pn532ToHost, []byte{0x15})
	require.NoError(t, err)
	buf := append([]byte{0x55, 0x01}, raw...)

	f, consumed, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.Equal(t, []byte{0x15}, f.Data)
}

func TestAckNack(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAck(AckFrame))
	assert.False(t, IsAck(NackFrame))
	assert.True(t, IsNack(NackFrame))
	assert.False(t, IsNack(AckFrame[:3]))
}
