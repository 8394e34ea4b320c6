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

// Package i2c talks to PN532 boards on an I2C bus and registers the "i2c"
// reader backend.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/frame"
	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

const (
	// Address is the 7-bit PN532 address. The datasheet gives 0x48, which
	// includes the R/W bit.
	Address = 0x24

	// pn532Ready is the status byte the chip prepends to every read
	pn532Ready = 0x01

	maxClockFreq = 400 * physic.KiloHertz

	ackRetries     = 3
	frameRetries   = 3
	readyRetries   = 5
	defaultTimeout = 100 * time.Millisecond
	processDelay   = 6 * time.Millisecond
)

// Link errors
var (
	ErrNotReady      = errors.New("PN532 not ready")
	ErrNoACK         = errors.New("no ACK from PN532")
	ErrBadFrame      = errors.New("response frame failed checksum after retries")
	ErrUnexpectedTFI = errors.New("unexpected frame identifier")
)

// Link exchanges PN532 frames over I2C. It implements pn532.Link.
type Link struct {
	dev     *i2c.Dev
	closer  io.Closer
	busName string
	timeout time.Duration
	mu      syncutil.Mutex
}

// parseI2CPath strips the address suffix from "/dev/i2c-1:0x24" style paths
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// Open initializes periph and opens busName
func Open(busName string) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(parseI2CPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	// Some adapters are fixed at 100 kHz; the default speed still works.
	_ = bus.SetSpeed(maxClockFreq)
	return NewLink(bus, busName), nil
}

// NewLink uses an already open bus. The bus is closed with the link when it
// implements io.Closer.
func NewLink(bus i2c.Bus, busName string) *Link {
	l := &Link{
		dev:     &i2c.Dev{Addr: Address, Bus: bus},
		busName: busName,
		timeout: defaultTimeout,
	}
	if c, ok := bus.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// SendCommand sends cmd with args and returns the response data starting
// with the response code.
func (l *Link) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := frame.Build(frame.HostToPn532, append([]byte{cmd}, args...))
	if err != nil {
		return nil, err
	}
	if err := l.sendWithACKRetry(ctx, raw); err != nil {
		return nil, err
	}
	if err := sleepCtx(ctx, processDelay); err != nil {
		return nil, err
	}

	for range frameRetries {
		f, err := l.receiveFrame(ctx)
		switch {
		case err == nil:
			if err := l.tx(frame.AckFrame, "ACK"); err != nil {
				return nil, err
			}
			if f.TFI != frame.Pn532ToHost {
				return nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedTFI, f.TFI)
			}
			return f.Data, nil
		case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum):
			offertag.Debugf("I2C %s: %v, sending NACK", l.busName, err)
			if err := l.tx(frame.NackFrame, "NACK"); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: command 0x%02X on %s", ErrBadFrame, cmd, l.busName)
}

// Close releases the bus
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// sendWithACKRetry resends the frame when no ACK arrives
func (l *Link) sendWithACKRetry(ctx context.Context, raw []byte) error {
	var lastErr error
	for attempt := range ackRetries {
		if err := l.tx(raw, "send frame"); err != nil {
			return err
		}
		err := l.waitAck(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoACK) {
			return err
		}
		lastErr = err
		if err := sleepCtx(ctx, time.Duration(attempt+1)*5*time.Millisecond); err != nil {
			return err
		}
	}
	return fmt.Errorf("send failed after %d ACK retries: %w", ackRetries, lastErr)
}

func (l *Link) tx(w []byte, op string) error {
	if err := l.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("I2C %s failed: %w", op, err)
	}
	return nil
}

// checkReady polls the status byte with exponential backoff
func (l *Link) checkReady(ctx context.Context) error {
	ready := make([]byte, 1)
	for attempt := range readyRetries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.dev.Tx(nil, ready); err == nil && ready[0] == pn532Ready {
			return nil
		}
		if err := sleepCtx(ctx, time.Millisecond*time.Duration(1<<attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w on %s", ErrNotReady, l.busName)
}

// read performs one read transaction and strips the status byte
func (l *Link) read(n int) ([]byte, error) {
	buf := make([]byte, 1+n)
	if err := l.dev.Tx(nil, buf); err != nil {
		return nil, fmt.Errorf("I2C read failed: %w", err)
	}
	if buf[0] != pn532Ready {
		return nil, fmt.Errorf("%w on %s", ErrNotReady, l.busName)
	}
	return buf[1:], nil
}

// waitAck waits for the ACK frame until the link timeout
func (l *Link) waitAck(ctx context.Context) error {
	deadline := time.Now().Add(l.timeout)
	for time.Now().Before(deadline) {
		if err := l.checkReady(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		buf, err := l.read(len(frame.AckFrame))
		if err != nil {
			return err
		}
		if frame.IsAck(buf) {
			return nil
		}
		if err := sleepCtx(ctx, time.Millisecond); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w on %s", ErrNoACK, l.busName)
}

// receiveFrame reads the largest possible frame in one transaction. Every
// read transaction starts at the beginning of the chip's output buffer, so
// a frame cannot be assembled from several reads.
func (l *Link) receiveFrame(ctx context.Context) (frame.Frame, error) {
	deadline := time.Now().Add(l.timeout)
	for {
		err := l.checkReady(ctx)
		if err == nil {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return frame.Frame{}, ctxErr
		}
		if time.Now().After(deadline) {
			return frame.Frame{}, err
		}
	}

	buf, err := l.read(frame.MaxFrameDataLength + 10)
	if err != nil {
		return frame.Frame{}, err
	}
	f, _, err := frame.Parse(buf)
	if errors.Is(err, frame.ErrApplicationError) {
		return frame.Frame{}, fmt.Errorf("I2C %s: %w", l.busName, err)
	}
	return f, err
}

// sleepCtx performs a context-aware sleep
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
