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

// Package pn532 drives NXP PN532 controllers and presents them as
// pseudo-APDU readers.
//
// Serial and I2C links move PN532 frames; the Bridge turns GET DATA, READ
// and WRITE pseudo-APDUs into InListPassiveTarget and InDataExchange so
// the tag layer does not care which kind of reader is attached.
package pn532

import (
	"context"
	"fmt"
)

// PN532 command codes
const (
	CmdGetFirmwareVersion  byte = 0x02
	CmdSAMConfiguration    byte = 0x14
	CmdInDataExchange      byte = 0x40
	CmdInListPassiveTarget byte = 0x4A
	CmdInRelease           byte = 0x52
)

// Tag commands carried inside InDataExchange
const (
	tagRead  byte = 0x30
	tagWrite byte = 0xA2
)

// Link moves one command and its response over a physical connection.
// The response starts with the response code (command + 1).
type Link interface {
	SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error)
	Close() error
}

// StatusError is a non-zero status byte from InDataExchange or InRelease.
type StatusError struct {
	Command string
	Code    byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error 0x%02X (%s)", e.Command, e.Code, statusMeaning(e.Code))
}

// TargetGone reports whether the status means the card left the field.
func (e *StatusError) TargetGone() bool {
	switch e.Code {
	case 0x27, 0x29, 0x2B:
		return true
	default:
		return false
	}
}

// statusMeaning returns a human-readable meaning for PN532 status codes
// from the PN532 User Manual section 7.1
func statusMeaning(code byte) string {
	meanings := map[byte]string{
		0x00: "success",
		0x01: "timeout",
		0x02: "CRC error",
		0x03: "parity error",
		0x04: "erroneous bit count during anti-collision",
		0x05: "framing error during mifare operation",
		0x06: "abnormal bit collision",
		0x07: "communication buffer size insufficient",
		0x09: "RF buffer overflow",
		0x0A: "RF field not activated in time",
		0x0B: "RF protocol error",
		0x0D: "overheating",
		0x0E: "internal buffer overflow",
		0x10: "invalid parameter",
		0x13: "dataformat does not match",
		0x14: "authentication error",
		0x23: "UID check byte is wrong",
		0x26: "operation not allowed",
		0x27: "wrong context for command",
		0x29: "target released by initiator",
		0x2A: "card ID mismatch",
		0x2B: "card disappeared",
		0x2D: "over-current event",
		0x81: "command not supported",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown error"
}

// FirmwareVersion is the answer to GetFirmwareVersion
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", f.IC, f.Version, f.Revision)
}
