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

package pn532

import (
	"context"
	"errors"
	"fmt"
	"time"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// ErrUnexpectedResponse means the response code did not match the command
var ErrUnexpectedResponse = errors.New("unexpected PN532 response")

// releaseTimeout bounds the InRelease sent on Close
const releaseTimeout = 500 * time.Millisecond

// Bridge serves pseudo-APDUs through a PN532. It implements
// offertag.Transport and offertag.NamedTransport.
type Bridge struct {
	link     Link
	name     string
	mu       syncutil.Mutex
	samReady bool
	selected bool
}

// NewBridge wraps an open link. name is reported as the reader name.
func NewBridge(link Link, name string) *Bridge {
	return &Bridge{link: link, name: name}
}

// ReaderName returns the name given to NewBridge
func (b *Bridge) ReaderName() string {
	return b.name
}

// Firmware asks the chip for its firmware version. Backends use it to
// check that a PN532 answers before handing the link out.
func (b *Bridge) Firmware(ctx context.Context) (FirmwareVersion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.call(ctx, CmdGetFirmwareVersion, nil)
	if err != nil {
		return FirmwareVersion{}, err
	}
	if len(res) < 4 {
		return FirmwareVersion{}, fmt.Errorf("%w: firmware version % X", ErrUnexpectedResponse, res)
	}
	return FirmwareVersion{IC: res[0], Version: res[1], Revision: res[2], Support: res[3]}, nil
}

// Transmit implements offertag.Transport
func (b *Bridge) Transmit(ctx context.Context, apdu []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(apdu) < 5 {
		return offertag.WithStatus(nil, offertag.SWBadINS), nil
	}
	if apdu[0] != offertag.ClassPseudo {
		return offertag.WithStatus(nil, [2]byte{0x6E, 0x00}), nil
	}
	if err := b.ensureSAM(ctx); err != nil {
		return nil, err
	}

	page := apdu[3]
	switch apdu[1] {
	case offertag.InsGetData:
		uid, err := b.selectTarget(ctx)
		if err != nil {
			return nil, err
		}
		return offertag.WithStatus(uid, offertag.SWSuccess), nil
	case offertag.InsReadBinary, offertag.InsReadAlt:
		data, err := b.exchange(ctx, []byte{tagRead, page})
		if err != nil {
			return b.statusResponse(err)
		}
		if len(data) < offertag.PageSize {
			return nil, fmt.Errorf("%w: read returned %d bytes", ErrUnexpectedResponse, len(data))
		}
		return offertag.WithStatus(data[:offertag.PageSize], offertag.SWSuccess), nil
	case offertag.InsUpdateBin, offertag.InsWriteAlt:
		if len(apdu) < 5+offertag.PageSize {
			return offertag.WithStatus(nil, offertag.SWFailed), nil
		}
		cmd := append([]byte{tagWrite, page}, apdu[5:5+offertag.PageSize]...)
		if _, err := b.exchange(ctx, cmd); err != nil {
			return b.statusResponse(err)
		}
		return offertag.WithStatus(nil, offertag.SWSuccess), nil
	default:
		return offertag.WithStatus(nil, offertag.SWBadINS), nil
	}
}

// Close releases the selected target and closes the link
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selected {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		if _, err := b.call(ctx, CmdInRelease, []byte{0x00}); err != nil {
			offertag.Debugf("InRelease on close: %v", err)
		}
		cancel()
		b.selected = false
	}
	if err := b.link.Close(); err != nil {
		return fmt.Errorf("close %s: %w", b.name, err)
	}
	return nil
}

// statusResponse turns a tag-level failure into a failed status word and
// passes everything else through as an exchange error.
func (b *Bridge) statusResponse(err error) ([]byte, error) {
	var se *StatusError
	if !errors.As(err, &se) {
		return nil, err
	}
	if se.TargetGone() {
		b.selected = false
		return nil, fmt.Errorf("%w: %w", offertag.ErrNoCard, err)
	}
	offertag.Debugf("PN532 %v", se)
	return offertag.WithStatus(nil, offertag.SWFailed), nil
}

// ensureSAM puts the SAM in normal mode once per bridge
func (b *Bridge) ensureSAM(ctx context.Context) error {
	if b.samReady {
		return nil
	}
	// Normal mode, 1 second virtual card timeout, IRQ enabled
	if _, err := b.call(ctx, CmdSAMConfiguration, []byte{0x01, 0x14, 0x01}); err != nil {
		return fmt.Errorf("SAM configuration: %w", err)
	}
	b.samReady = true
	return nil
}

// selectTarget activates one ISO14443A target at 106 kbps and returns its
// UID. An empty field is reported as offertag.ErrNoCard.
func (b *Bridge) selectTarget(ctx context.Context) ([]byte, error) {
	b.selected = false
	res, err := b.call(ctx, CmdInListPassiveTarget, []byte{0x01, 0x00})
	if err != nil {
		return nil, err
	}
	if len(res) < 1 || res[0] == 0 {
		return nil, offertag.ErrNoCard
	}
	// Tg, SENS_RES (2), SEL_RES, NFCIDLength, NFCID
	if len(res) < 6 {
		return nil, fmt.Errorf("%w: target data % X", ErrUnexpectedResponse, res)
	}
	uidLen := int(res[5])
	if len(res) < 6+uidLen {
		return nil, fmt.Errorf("%w: UID length %d in % X", ErrUnexpectedResponse, uidLen, res)
	}
	b.selected = true
	return append([]byte(nil), res[6:6+uidLen]...), nil
}

// exchange sends a tag command to target 1, selecting it first if needed
func (b *Bridge) exchange(ctx context.Context, tagCmd []byte) ([]byte, error) {
	if !b.selected {
		if _, err := b.selectTarget(ctx); err != nil {
			return nil, err
		}
	}
	res, err := b.call(ctx, CmdInDataExchange, append([]byte{0x01}, tagCmd...))
	if err != nil {
		return nil, err
	}
	if len(res) < 1 {
		return nil, fmt.Errorf("%w: empty InDataExchange response", ErrUnexpectedResponse)
	}
	if res[0]&0x3F != 0 {
		return nil, &StatusError{Command: "InDataExchange", Code: res[0] & 0x3F}
	}
	return res[1:], nil
}

// call sends cmd and strips the response code
func (b *Bridge) call(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	res, err := b.link.SendCommand(ctx, cmd, args)
	if err != nil {
		return nil, err
	}
	if len(res) < 1 || res[0] != cmd+1 {
		return nil, fmt.Errorf("%w: 0x%02X to command 0x%02X", ErrUnexpectedResponse, firstByte(res), cmd)
	}
	return res[1:], nil
}

func firstByte(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

var (
	_ offertag.Transport      = (*Bridge)(nil)
	_ offertag.NamedTransport = (*Bridge)(nil)
)
