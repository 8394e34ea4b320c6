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
)

// FuzzParse feeds arbitrary bytes to the frame decoder. Clone chips and
// damaged devices send malformed frames, so Parse must never panic and
// never report more bytes consumed than it was given.
//
// Run with: go test -fuzz=FuzzParse -fuzztime=30s ./internal/frame/
func FuzzParse(f *testing.F) {
	f.Add([]byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD5, 0x03, 0x28, 0x00}) // GetFirmwareVersion response
	f.Add([]byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00})                   // ACK frame
	f.Add([]byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00})                   // NACK frame
	f.Add([]byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0xFF})       // Extended header
	f.Add([]byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00})       // Error frame
	f.Add([]byte{})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, buf []byte) {
		frame, consumed, err := Parse(buf)
		if consumed > len(buf) {
			t.Fatalf("consumed %d of %d bytes", consumed, len(buf))
		}
		if err == nil && len(frame.Data) > len(buf) {
			t.Fatalf("frame data longer than input")
		}
	})
}

// FuzzBuildParse checks that every buildable payload decodes unchanged.
func FuzzBuildParse(f *testing.F) {
	f.Add([]byte{0x40, 0x01, 0x30, 0x04})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		raw, err := Build(HostToPn532, data)
		if err != nil {
			return
		}
		frame, _, err := Parse(raw)
		if err != nil {
			t.Fatalf("parse of built frame: %v", err)
		}
		if string(frame.Data) != string(data) {
			t.Fatalf("round trip mismatch")
		}
	})
}
