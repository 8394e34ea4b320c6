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

// Package spi talks to PN532 boards on an SPI bus and registers the "spi"
// reader backend.
package spi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/frame"
	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

const (
	// SPI operation bytes sent ahead of every transaction
	spiStatRead  = 0x02
	spiDataWrite = 0x01
	spiDataRead  = 0x03
	spiReady     = 0x01

	defaultFreq    = 1 * physic.MegaHertz
	defaultTimeout = 100 * time.Millisecond
	processDelay   = 6 * time.Millisecond
	frameRetries   = 3
)

// Link errors
var (
	ErrNotReady      = errors.New("PN532 not ready")
	ErrNoACK         = errors.New("no ACK from PN532")
	ErrBadFrame      = errors.New("response frame failed checksum after retries")
	ErrUnexpectedTFI = errors.New("unexpected frame identifier")
)

// txConn is the part of spi.Conn the link uses
type txConn interface {
	Tx(w, r []byte) error
}

// Link exchanges PN532 frames over SPI. It implements pn532.Link.
type Link struct {
	conn     txConn
	closer   io.Closer
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
}

// Open initializes periph and opens portName
func Open(portName string) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}
	return connectPort(port, portName)
}

// connectPort configures port for the PN532 and wakes the chip. The port
// is closed on failure.
func connectPort(port spi.PortCloser, portName string) (*Link, error) {
	conn, err := port.Connect(defaultFreq, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI %s: %w", portName, err)
	}
	link := NewLink(conn, port, portName)
	link.wakeUp()
	return link, nil
}

// NewLink uses an already connected port. closer may be nil.
func NewLink(conn txConn, closer io.Closer, portName string) *Link {
	return &Link{
		conn:     conn,
		closer:   closer,
		portName: portName,
		timeout:  defaultTimeout,
	}
}

// wakeUp clocks a dummy byte so a sleeping chip listens again
func (l *Link) wakeUp() {
	time.Sleep(time.Millisecond)
	_ = l.conn.Tx([]byte{0x00}, nil)
	time.Sleep(time.Millisecond)
}

// reverseBit swaps bit order. The PN532 shifts LSB first while most SPI
// controllers only do MSB first.
func reverseBit(b byte) byte {
	var out byte
	for range 8 {
		out <<= 1
		out |= b & 1
		b >>= 1
	}
	return out
}

func reverseBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = reverseBit(b)
	}
	return out
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
	if err := l.write(raw, "send frame"); err != nil {
		return nil, err
	}
	if err := l.waitAck(ctx); err != nil {
		return nil, err
	}
	if err := sleepCtx(ctx, processDelay); err != nil {
		return nil, err
	}

	for range frameRetries {
		f, err := l.receiveFrame(ctx)
		switch {
		case err == nil:
			if err := l.write(frame.AckFrame, "ACK"); err != nil {
				return nil, err
			}
			if f.TFI != frame.Pn532ToHost {
				return nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedTFI, f.TFI)
			}
			return f.Data, nil
		case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum):
			offertag.Debugf("SPI %s: %v, sending NACK", l.portName, err)
			if err := l.write(frame.NackFrame, "NACK"); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: command 0x%02X on %s", ErrBadFrame, cmd, l.portName)
}

// Close releases the port
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	if err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

func (l *Link) write(data []byte, op string) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reverseBit(spiDataWrite))
	w = append(w, reverseBytes(data)...)
	if err := l.conn.Tx(w, nil); err != nil {
		return fmt.Errorf("SPI %s failed: %w", op, err)
	}
	return nil
}

// read clocks out n bytes in one data read transaction
func (l *Link) read(n int) ([]byte, error) {
	w := make([]byte, n+1)
	w[0] = reverseBit(spiDataRead)
	r := make([]byte, n+1)
	if err := l.conn.Tx(w, r); err != nil {
		return nil, fmt.Errorf("SPI read failed: %w", err)
	}
	return reverseBytes(r[1:]), nil
}

// waitReady polls the status register until the chip has data or the link
// timeout passes.
func (l *Link) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(l.timeout)
	w := []byte{reverseBit(spiStatRead), 0x00}
	r := make([]byte, 2)
	for time.Now().Before(deadline) {
		if err := l.conn.Tx(w, r); err != nil {
			return fmt.Errorf("SPI status read failed: %w", err)
		}
		if reverseBit(r[1]) == spiReady {
			return nil
		}
		if err := sleepCtx(ctx, time.Millisecond); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w on %s", ErrNotReady, l.portName)
}

func (l *Link) waitAck(ctx context.Context) error {
	if err := l.waitReady(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w on %s", ErrNoACK, l.portName)
	}
	buf, err := l.read(len(frame.AckFrame))
	if err != nil {
		return err
	}
	if !frame.IsAck(buf) {
		return fmt.Errorf("%w on %s: got % X", ErrNoACK, l.portName, buf)
	}
	return nil
}

// receiveFrame reads the largest possible frame in one transaction
func (l *Link) receiveFrame(ctx context.Context) (frame.Frame, error) {
	if err := l.waitReady(ctx); err != nil {
		return frame.Frame{}, err
	}
	buf, err := l.read(frame.MaxFrameDataLength + 10)
	if err != nil {
		return frame.Frame{}, err
	}
	f, _, err := frame.Parse(buf)
	if errors.Is(err, frame.ErrApplicationError) {
		return frame.Frame{}, fmt.Errorf("SPI %s: %w", l.portName, err)
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
