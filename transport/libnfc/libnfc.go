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

// Package libnfc drives readers supported by libnfc and registers the
// "libnfc" reader backend. Pseudo-APDUs are translated to native tag
// commands, so the tag layer works the same as with a PC/SC reader.
package libnfc

import (
	"context"
	"errors"
	"fmt"

	"github.com/clausecker/nfc/v2"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// BackendName is the name the libnfc backend registers under
const BackendName = "libnfc"

// Native tag commands
const (
	tagRead  byte = 0x30
	tagWrite byte = 0xA2
)

// transceiveTimeout is passed to libnfc in milliseconds
const transceiveTimeout = 500

var modulation = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}

// device is the part of nfc.Device the transport uses
type device interface {
	InitiatorInit() error
	InitiatorSelectPassiveTarget(m nfc.Modulation, initData []byte) (nfc.Target, error)
	InitiatorTransceiveBytes(tx, rx []byte, timeout int) (int, error)
	InitiatorDeselectTarget() error
	Close() error
	String() string
}

// Transport serves pseudo-APDUs through a libnfc device
type Transport struct {
	dev      device
	name     string
	mu       syncutil.Mutex
	selected bool
	closed   bool
}

// Open opens a libnfc connection string such as "pn532_uart:/dev/ttyUSB0"
// and puts the device in initiator mode.
func Open(connstring string) (*Transport, error) {
	dev, err := openDevice(connstring)
	if err != nil {
		return nil, err
	}
	return newTransport(dev)
}

func newTransport(dev device) (*Transport, error) {
	if err := dev.InitiatorInit(); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("failed to initialize %s as initiator: %w", dev, err)
	}
	return &Transport{dev: dev, name: dev.String()}, nil
}

// ReaderName returns the device name reported by libnfc
func (t *Transport) ReaderName() string {
	return t.name
}

// Transmit implements offertag.Transport
func (t *Transport) Transmit(ctx context.Context, apdu []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, offertag.ErrReaderClosed
	}
	if len(apdu) < 5 {
		return offertag.WithStatus(nil, offertag.SWBadINS), nil
	}
	if apdu[0] != offertag.ClassPseudo {
		return offertag.WithStatus(nil, [2]byte{0x6E, 0x00}), nil
	}

	page := apdu[3]
	switch apdu[1] {
	case offertag.InsGetData:
		uid, err := t.selectTarget()
		if err != nil {
			return nil, err
		}
		return offertag.WithStatus(uid, offertag.SWSuccess), nil
	case offertag.InsReadBinary, offertag.InsReadAlt:
		rx := make([]byte, 16)
		n, err := t.exchange([]byte{tagRead, page}, rx)
		if err != nil {
			return t.failure(err)
		}
		if n < offertag.PageSize {
			return offertag.WithStatus(nil, offertag.SWFailed), nil
		}
		return offertag.WithStatus(rx[:offertag.PageSize], offertag.SWSuccess), nil
	case offertag.InsUpdateBin, offertag.InsWriteAlt:
		if len(apdu) < 5+offertag.PageSize {
			return offertag.WithStatus(nil, offertag.SWFailed), nil
		}
		cmd := append([]byte{tagWrite, page}, apdu[5:5+offertag.PageSize]...)
		if _, err := t.exchange(cmd, make([]byte, 16)); err != nil {
			return t.failure(err)
		}
		return offertag.WithStatus(nil, offertag.SWSuccess), nil
	default:
		return offertag.WithStatus(nil, offertag.SWBadINS), nil
	}
}

// Close deselects the target and closes the device
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.selected {
		_ = t.dev.InitiatorDeselectTarget()
	}
	if err := t.dev.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", t.name, err)
	}
	return nil
}

// selectTarget selects one ISO14443A target and returns its UID
func (t *Transport) selectTarget() ([]byte, error) {
	t.selected = false
	target, err := t.dev.InitiatorSelectPassiveTarget(modulation, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", offertag.ErrNoCard, t.name, err)
	}
	iso, ok := target.(*nfc.ISO14443aTarget)
	if !ok || iso == nil {
		return nil, fmt.Errorf("%w: %s", offertag.ErrNoCard, t.name)
	}
	uidLen := int(iso.UIDLen)
	if uidLen <= 0 || uidLen > len(iso.UID) {
		return nil, fmt.Errorf("%w: UID length %d", offertag.ErrInvalidResponse, uidLen)
	}
	t.selected = true
	return append([]byte(nil), iso.UID[:uidLen]...), nil
}

func (t *Transport) exchange(tx, rx []byte) (int, error) {
	if !t.selected {
		if _, err := t.selectTarget(); err != nil {
			return 0, err
		}
	}
	n, err := t.dev.InitiatorTransceiveBytes(tx, rx, transceiveTimeout)
	if err != nil {
		return 0, fmt.Errorf("transceive 0x%02X: %w", tx[0], err)
	}
	return n, nil
}

// failure tells a refused command from a card that left. libnfc reports
// both as a transceive error, so the target is selected again: when that
// fails the card is gone, otherwise the tag refused the command.
func (t *Transport) failure(err error) ([]byte, error) {
	if errors.Is(err, offertag.ErrNoCard) {
		return nil, err
	}
	offertag.Debugf("%s: %v", t.name, err)
	if _, serr := t.selectTarget(); serr != nil {
		return nil, serr
	}
	return offertag.WithStatus(nil, offertag.SWFailed), nil
}

var (
	_ offertag.Transport      = (*Transport)(nil)
	_ offertag.NamedTransport = (*Transport)(nil)
)
