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

import "fmt"

// Pseudo-APDU class and instruction bytes understood by PC/SC readers.
const (
	ClassPseudo byte = 0xFF

	InsGetData    byte = 0xCA
	InsReadBinary byte = 0xB0
	InsReadAlt    byte = 0x30
	InsUpdateBin  byte = 0xD6
	InsWriteAlt   byte = 0xA2
)

const (
	statusOK       byte = 0x90
	statusWarning  byte = 0x63
	statusNotFound byte = 0x6A
)

// Status words returned by the backends that synthesize responses.
var (
	SWSuccess    = [2]byte{0x90, 0x00}
	SWFailed     = [2]byte{statusWarning, 0x00}
	SWNoCard     = [2]byte{statusNotFound, 0x82}
	SWNotAllowed = [2]byte{0x69, 0x86}
	SWBadINS     = [2]byte{0x6D, 0x00}
)

// commandEncoding is one of the two on-wire shapes a page command can take.
type commandEncoding struct {
	name string
	ins  byte
}

var (
	readEncodings = [2]commandEncoding{
		{name: "READ BINARY", ins: InsReadBinary},
		{name: "READ", ins: InsReadAlt},
	}
	writeEncodings = [2]commandEncoding{
		{name: "UPDATE BINARY", ins: InsUpdateBin},
		{name: "WRITE", ins: InsWriteAlt},
	}
)

// GetUIDCommand builds the GET DATA command that returns the card UID.
func GetUIDCommand() []byte {
	return []byte{ClassPseudo, InsGetData, 0x00, 0x00, 0x00}
}

// ReadPageCommand builds a 4 byte page read using the given instruction.
func ReadPageCommand(ins, page byte) []byte {
	return []byte{ClassPseudo, ins, 0x00, page, PageSize}
}

// WritePageCommand builds a 4 byte page write using the given instruction.
func WritePageCommand(ins, page byte, data []byte) []byte {
	cmd := make([]byte, 0, 5+PageSize)
	cmd = append(cmd, ClassPseudo, ins, 0x00, page, PageSize)
	return append(cmd, data...)
}

// Response is a parsed reader response.
type Response struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// OK reports whether the status word signals success.
func (r Response) OK() bool {
	return r.SW1 == statusOK
}

// ParseResponse splits raw response bytes into data and the trailing
// status word.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, fmt.Errorf("%w: response too short (%d bytes)", ErrInvalidResponse, len(raw))
	}
	n := len(raw) - 2
	data := make([]byte, n)
	copy(data, raw[:n])
	return Response{Data: data, SW1: raw[n], SW2: raw[n+1]}, nil
}

// WithStatus appends a status word to response data.
func WithStatus(data []byte, sw [2]byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, sw[0], sw[1])
}
