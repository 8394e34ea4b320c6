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

package testing

import (
	"bytes"
	"errors"

	"github.com/ZaparooProject/go-offertag/internal/frame"
	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// PN532 command codes served by the simulator
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdInListPassiveTarget = 0x4A
	cmdInDataExchange      = 0x40
	cmdInRelease           = 0x52
)

// Status bytes returned in InDataExchange responses
const (
	statusOK       = 0x00
	statusTimeout  = 0x01
	statusNoTarget = 0x27
)

// Tag commands carried by InDataExchange
const (
	tagRead  = 0x30
	tagWrite = 0xA2
)

// VirtualPN532 simulates a PN532 at the frame level. It implements
// io.ReadWriter so link tests can place it behind a serial or I2C port.
type VirtualPN532 struct {
	tag                 *VirtualTag
	lastResponse        []byte
	rxBuffer            bytes.Buffer
	txBuffer            bytes.Buffer
	commands            []byte
	mu                  syncutil.Mutex
	samConfigured       bool
	targetSelected      bool
	injectChecksumError bool
	dropNextACK         bool
}

// NewVirtualPN532 creates a new wire-level PN532 simulator with no tag.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{}
}

// Write receives bytes from the host and queues ACK and response frames.
func (v *VirtualPN532) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read returns queued bytes. It returns 0 bytes and no error when nothing
// is pending, like a serial port read that timed out.
func (v *VirtualPN532) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, _ := v.txBuffer.Read(buf)
	return n, nil
}

// SetTag places a tag in the field, replacing any previous one
func (v *VirtualPN532) SetTag(tag *VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tag = tag
	v.targetSelected = false
}

// RemoveTag empties the field
func (v *VirtualPN532) RemoveTag() {
	v.SetTag(nil)
}

// InjectChecksumError corrupts the data checksum of the next response.
// The host is expected to NACK and receive a clean copy.
func (v *VirtualPN532) InjectChecksumError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injectChecksumError = true
}

// DropNextACK makes the simulator skip the ACK for the next command.
func (v *VirtualPN532) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNextACK = true
}

// SAMConfigured reports whether SAMConfiguration was received
func (v *VirtualPN532) SAMConfigured() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.samConfigured
}

// HasPendingResponse reports whether bytes are waiting to be read. I2C
// links use it for the ready status byte.
func (v *VirtualPN532) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// CommandCount returns how many times cmd was received
func (v *VirtualPN532) CommandCount(cmd byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return bytes.Count(v.commands, []byte{cmd})
}

func (v *VirtualPN532) processReceivedData() {
	for v.rxBuffer.Len() >= len(frame.AckFrame) {
		data := v.rxBuffer.Bytes()
		if frame.IsAck(data) {
			v.rxBuffer.Next(len(frame.AckFrame))
			continue
		}
		if frame.IsNack(data) {
			v.rxBuffer.Next(len(frame.NackFrame))
			if v.lastResponse != nil {
				v.txBuffer.Write(v.lastResponse)
			}
			continue
		}

		f, consumed, err := frame.Parse(data)
		switch {
		case errors.Is(err, frame.ErrIncomplete):
			return
		case errors.Is(err, frame.ErrNoStartCode):
			v.rxBuffer.Reset()
			return
		case err != nil:
			v.rxBuffer.Next(max(consumed, 1))
			continue
		}
		v.rxBuffer.Next(consumed)
		if f.TFI != frame.HostToPn532 || len(f.Data) == 0 {
			v.queue(frame.ErrorFrame)
			continue
		}
		v.processCommand(f.Data[0], f.Data[1:])
	}
}

func (v *VirtualPN532) processCommand(cmd byte, params []byte) {
	if !v.dropNextACK {
		v.txBuffer.Write(frame.AckFrame)
	}
	v.dropNextACK = false
	v.commands = append(v.commands, cmd)

	var response []byte
	switch cmd {
	case cmdGetFirmwareVersion:
		response = []byte{0x32, 0x01, 0x06, 0x07}
	case cmdSAMConfiguration:
		v.samConfigured = true
	case cmdInListPassiveTarget:
		response = v.handleInListPassiveTarget()
	case cmdInDataExchange:
		response = v.handleInDataExchange(params)
	case cmdInRelease:
		v.targetSelected = false
		response = []byte{statusOK}
	default:
		v.queue(frame.ErrorFrame)
		return
	}

	raw, err := frame.Build(frame.Pn532ToHost, append([]byte{cmd + 1}, response...))
	if err != nil {
		v.queue(frame.ErrorFrame)
		return
	}
	v.lastResponse = append([]byte(nil), raw...)
	if v.injectChecksumError {
		v.injectChecksumError = false
		raw[len(raw)-2] ^= 0xFF
	}
	v.txBuffer.Write(raw)
}

func (v *VirtualPN532) queue(raw []byte) {
	v.lastResponse = raw
	v.txBuffer.Write(raw)
}

// handleInListPassiveTarget reports the tag as a single ISO14443A target:
// Tg, ATQA, SAK, UID length and UID.
func (v *VirtualPN532) handleInListPassiveTarget() []byte {
	if v.tag == nil {
		return []byte{0x00}
	}
	v.targetSelected = true
	out := []byte{0x01, 0x01, 0x00, 0x44, 0x00, byte(len(v.tag.UID))}
	return append(out, v.tag.UID...)
}

func (v *VirtualPN532) handleInDataExchange(params []byte) []byte {
	if v.tag == nil || !v.targetSelected || len(params) < 3 {
		return []byte{statusNoTarget}
	}
	tagCmd, page := params[1], int(params[2])
	switch tagCmd {
	case tagRead:
		data, err := v.tag.ReadPages(page, 4)
		if err != nil {
			return []byte{statusTimeout}
		}
		return append([]byte{statusOK}, data...)
	case tagWrite:
		if len(params) < 7 {
			return []byte{statusTimeout}
		}
		if err := v.tag.WritePage(page, params[3:7]); err != nil {
			return []byte{statusTimeout}
		}
		return []byte{statusOK}
	default:
		return []byte{statusTimeout}
	}
}
