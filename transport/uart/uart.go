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

// Package uart talks to PN532 boards over a serial port and registers the
// "uart" reader backend.
package uart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/frame"
	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// Link errors
var (
	ErrNoACK         = errors.New("no ACK from PN532")
	ErrShortWrite    = errors.New("short write")
	ErrFrameTimeout  = errors.New("timed out waiting for response frame")
	ErrBadFrame      = errors.New("response frame failed checksum after retries")
	ErrUnexpectedTFI = errors.New("unexpected frame identifier")
)

const (
	baudRate = 115200

	// ackTimeout bounds the wait for the ACK after a command frame
	ackTimeout = 100 * time.Millisecond
	// responseTimeout bounds the wait for the response after the ACK
	responseTimeout = time.Second
	// wakeDelay gives the chip time to leave power down after the wake-up preamble
	wakeDelay = 6 * time.Millisecond
	// pollInterval paces reads that returned nothing
	pollInterval = time.Millisecond
	// maxNacks is how often a corrupt response is asked for again
	maxNacks = 3
)

// wakePreamble takes a PN532 out of power down over HSU
var wakePreamble = append([]byte{0x55}, make([]byte, 15)...)

// Port is the part of serial.Port the link uses
type Port interface {
	io.ReadWriter
	Drain() error
	Close() error
}

// Link exchanges PN532 frames over a serial port. It implements
// pn532.Link.
type Link struct {
	port      Port
	portName  string
	wakeDelay time.Duration
	mu        syncutil.Mutex
}

// Open opens portName at 115200 8N1
func Open(portName string) (*Link, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("UART open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("UART set timeout %s: %w", portName, err)
	}
	return NewLink(port, portName), nil
}

// NewLink wraps an already open port
func NewLink(port Port, portName string) *Link {
	return &Link{port: port, portName: portName, wakeDelay: wakeDelay}
}

// readTimeout returns the per-read timeout. Windows serial drivers need
// longer to deliver the first bytes of a response.
func readTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// SendCommand sends cmd with args and returns the response data starting
// with the response code. Corrupt responses are NACKed and read again.
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
	if err := l.wakeUp(); err != nil {
		return nil, err
	}
	if err := l.write("send frame", raw); err != nil {
		return nil, err
	}
	if runtime.GOOS == "windows" {
		time.Sleep(15 * time.Millisecond)
	}

	rest, early, err := l.waitAck(ctx)
	if err != nil {
		return nil, err
	}
	if early != nil {
		return l.finish(early)
	}

	for range maxNacks {
		f, err := l.receiveFrame(ctx, rest)
		switch {
		case err == nil:
			return l.finish(&f)
		case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum):
			offertag.Debugf("UART %s: %v, sending NACK", l.portName, err)
			if err := l.write("NACK", frame.NackFrame); err != nil {
				return nil, err
			}
			rest = nil
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: command 0x%02X on %s", ErrBadFrame, cmd, l.portName)
}

// finish acknowledges the response and checks its direction
func (l *Link) finish(f *frame.Frame) ([]byte, error) {
	if err := l.write("ACK", frame.AckFrame); err != nil {
		return nil, err
	}
	if f.TFI != frame.Pn532ToHost {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedTFI, f.TFI)
	}
	return f.Data, nil
}

// Close closes the serial port
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// wakeUp sends the HSU wake-up preamble
func (l *Link) wakeUp() error {
	if err := l.write("wake up", wakePreamble); err != nil {
		return err
	}
	if l.wakeDelay > 0 {
		time.Sleep(l.wakeDelay)
	}
	return nil
}

func (l *Link) write(op string, data []byte) error {
	n, err := l.port.Write(data)
	if err != nil {
		return fmt.Errorf("UART %s write failed: %w", op, err)
	}
	if n != len(data) {
		return fmt.Errorf("UART %s on %s: %w (%d of %d bytes)", op, l.portName, ErrShortWrite, n, len(data))
	}
	return l.drainWithRetry(op)
}

// waitAck reads until an ACK frame arrives and returns whatever followed
// it. Some firmware answers InListPassiveTarget without an ACK, so a
// complete response frame seen first is returned as early.
func (l *Link) waitAck(ctx context.Context) (rest []byte, early *frame.Frame, err error) {
	deadline := time.Now().Add(ackTimeout)
	var buf []byte
	for {
		if i := bytes.Index(buf, frame.AckFrame); i >= 0 {
			return buf[i+len(frame.AckFrame):], nil, nil
		}
		if len(buf) >= frame.MinFrameLength {
			f, _, perr := frame.Parse(buf)
			if perr == nil {
				return nil, &f, nil
			}
			if errors.Is(perr, frame.ErrApplicationError) {
				return nil, nil, fmt.Errorf("UART %s: %w", l.portName, perr)
			}
		}
		if err := l.readMore(ctx, deadline, &buf); err != nil {
			if errors.Is(err, ErrFrameTimeout) {
				return nil, nil, fmt.Errorf("%w on %s", ErrNoACK, l.portName)
			}
			return nil, nil, err
		}
	}
}

// receiveFrame reads until pre plus new bytes hold one complete frame
func (l *Link) receiveFrame(ctx context.Context, pre []byte) (frame.Frame, error) {
	deadline := time.Now().Add(responseTimeout)
	buf := append([]byte(nil), pre...)
	for {
		f, _, err := frame.Parse(buf)
		switch {
		case err == nil:
			return f, nil
		case errors.Is(err, frame.ErrIncomplete), errors.Is(err, frame.ErrNoStartCode):
		case errors.Is(err, frame.ErrApplicationError):
			return frame.Frame{}, fmt.Errorf("UART %s: %w", l.portName, err)
		default:
			return frame.Frame{}, err
		}
		if err := l.readMore(ctx, deadline, &buf); err != nil {
			return frame.Frame{}, err
		}
	}
}

// readMore appends the next chunk from the port to buf
func (l *Link) readMore(ctx context.Context, deadline time.Time, buf *[]byte) error {
	chunk := make([]byte, frame.MaxFrameDataLength+10)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w on %s", ErrFrameTimeout, l.portName)
		}
		n, err := l.port.Read(chunk)
		if err != nil {
			return fmt.Errorf("UART read failed: %w", err)
		}
		if n > 0 {
			*buf = append(*buf, chunk[:n]...)
			return nil
		}
		time.Sleep(pollInterval)
	}
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for the output buffer to empty, retrying calls
// interrupted by signals.
func (l *Link) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := l.port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}
		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}
	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}
