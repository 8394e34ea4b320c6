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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "empty data", data: []byte{}, want: 0},
		{name: "single byte", data: []byte{0x42}, want: 0x42},
		{name: "overflow handling", data: []byte{0xFF, 0x01}, want: 0x00},
		{name: "read command", data: []byte{0xD4, 0x40, 0x01, 0x30, 0x04}, want: 0x49},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CalculateChecksum(tt.data))
		})
	}
}

func TestChecksumsZeroTheSum(t *testing.T) {
	t.Parallel()

	for _, n := range []byte{0x00, 0x02, 0x09, 0xFF} {
		assert.Equal(t, byte(0), n+LengthChecksum(n))
	}

	data := []byte{0x40, 0x01, 0xA2, 0x04, 0x03, 0x4E, 0xD1, 0x01}
	assert.Equal(t, byte(0), HostToPn532+CalculateChecksum(data)+DataChecksum(HostToPn532, data))
}
