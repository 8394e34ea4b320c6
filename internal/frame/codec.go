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
	"errors"
	"fmt"
)

// Frame errors. ErrIncomplete means more bytes are needed; the checksum
// errors mean the host should ask for a retransmit with a NACK.
var (
	ErrIncomplete       = errors.New("incomplete frame")
	ErrLengthChecksum   = errors.New("length checksum mismatch")
	ErrDataChecksum     = errors.New("data checksum mismatch")
	ErrNoStartCode      = errors.New("no start code")
	ErrApplicationError = errors.New("PN532 error frame")
	ErrTooLong          = errors.New("frame data too long")
)

// Frame is one decoded information frame
type Frame struct {
	Data []byte
	TFI  byte
}

// Build encodes data behind tfi as an information frame, switching to the
// extended form when the payload does not fit a normal frame.
func Build(tfi byte, data []byte) ([]byte, error) {
	n := len(data) + 1
	if n > MaxFrameDataLength+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(data))
	}

	out := make([]byte, 0, n+10)
	out = append(out, Preamble, StartCode1, StartCode2)
	if n > maxNormalLength {
		lenM, lenL := byte(n>>8), byte(n)
		out = append(out, ExtendedMarker, ExtendedMarker, lenM, lenL, -(lenM + lenL))
	} else {
		out = append(out, byte(n), LengthChecksum(byte(n)))
	}
	out = append(out, tfi)
	out = append(out, data...)
	out = append(out, DataChecksum(tfi, data), Postamble)
	return out, nil
}

// FindStart returns the index of the first 00 FF start code, or -1
func FindStart(buf []byte) int {
	return bytes.Index(buf, []byte{StartCode1, StartCode2})
}

// IsAck reports whether buf begins with an ACK frame
func IsAck(buf []byte) bool {
	return bytes.HasPrefix(buf, AckFrame)
}

// IsNack reports whether buf begins with a NACK frame
func IsNack(buf []byte) bool {
	return bytes.HasPrefix(buf, NackFrame)
}

// Parse decodes the first information frame in buf. It returns the frame
// and the number of bytes consumed including anything before the start
// code. ACK and NACK frames are not information frames; callers check for
// them first.
func Parse(buf []byte) (Frame, int, error) {
	start := FindStart(buf)
	if start < 0 {
		return Frame{}, 0, ErrNoStartCode
	}
	off := start + 2
	if len(buf) < off+2 {
		return Frame{}, 0, ErrIncomplete
	}

	var n int
	if buf[off] == ExtendedMarker && buf[off+1] == ExtendedMarker {
		if len(buf) < off+5 {
			return Frame{}, 0, ErrIncomplete
		}
		lenM, lenL, lcs := buf[off+2], buf[off+3], buf[off+4]
		if lenM+lenL+lcs != 0 {
			return Frame{}, off + 5, ErrLengthChecksum
		}
		n = int(lenM)<<8 | int(lenL)
		off += 5
	} else {
		if buf[off]+buf[off+1] != 0 {
			return Frame{}, off + 2, ErrLengthChecksum
		}
		n = int(buf[off])
		off += 2
	}
	if n == 0 {
		return Frame{}, off, fmt.Errorf("%w: zero length", ErrLengthChecksum)
	}

	// TFI and data, then DCS and postamble
	if len(buf) < off+n+1 {
		return Frame{}, 0, ErrIncomplete
	}
	body := buf[off : off+n]
	dcs := buf[off+n]
	consumed := off + n + 1
	if consumed < len(buf) && buf[consumed] == Postamble {
		consumed++
	}

	if CalculateChecksum(body)+dcs != 0 {
		return Frame{}, consumed, ErrDataChecksum
	}
	if body[0] == ErrorTFI {
		return Frame{TFI: ErrorTFI}, consumed, ErrApplicationError
	}

	data := make([]byte, n-1)
	copy(data, body[1:])
	return Frame{TFI: body[0], Data: data}, consumed, nil
}
