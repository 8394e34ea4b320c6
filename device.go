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

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// Timing holds the fixed waits of the write pipeline.
type Timing struct {
	LockRetry   RetryConfig
	CCRetry     RetryConfig
	PageSettle  time.Duration
	FormatPause time.Duration
	LockVerify  time.Duration
}

// DefaultTiming returns the waits used against real tags
func DefaultTiming() Timing {
	return Timing{
		PageSettle:  DefaultPageSettle,
		FormatPause: DefaultFormatPause,
		LockVerify:  LockVerifyDelay,
		LockRetry:   *LockRetryConfig(),
		CCRetry:     *CCRetryConfig(),
	}
}

// NoDelayTiming keeps the attempt counts of DefaultTiming but removes every
// wait. Used with simulated tags.
func NoDelayTiming() Timing {
	t := DefaultTiming()
	t.PageSettle, t.FormatPause, t.LockVerify = 0, 0, 0
	t.LockRetry.InitialBackoff, t.LockRetry.MaxBackoff = 0, 0
	t.CCRetry.InitialBackoff, t.CCRetry.MaxBackoff = 0, 0
	return t
}

// Option configures a Device
type Option func(*Device) error

// WithTiming replaces the pipeline waits
func WithTiming(timing Timing) Option {
	return func(d *Device) error {
		if timing.LockRetry.MaxAttempts < 1 || timing.CCRetry.MaxAttempts < 1 {
			return errors.New("retry attempts must be at least 1")
		}
		d.timing = timing
		return nil
	}
}

// WithReaderName sets the reader name used in errors and logs
func WithReaderName(name string) Option {
	return func(d *Device) error {
		d.readerName = name
		return nil
	}
}

// WithCommandTimeout bounds every single command exchange. Zero disables
// the bound.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout < 0 {
			return fmt.Errorf("invalid command timeout %v", timeout)
		}
		d.commandTimeout = timeout
		return nil
	}
}

// Device drives one reader. Commands are serialized so only one is ever in
// flight.
type Device struct {
	transport      Transport
	readerName     string
	timing         Timing
	commandTimeout time.Duration
	mu             syncutil.Mutex
}

// New creates a device on top of an open transport
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, errors.New("transport is nil")
	}
	device := &Device{
		transport:      transport,
		timing:         DefaultTiming(),
		commandTimeout: 2 * time.Second,
	}
	if named, ok := transport.(NamedTransport); ok {
		device.readerName = named.ReaderName()
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}
	return device, nil
}

// Connect opens the first reader matching match on the given backend (any
// registered backend when empty) and wraps it in a Device.
func Connect(ctx context.Context, backend, match string, opts ...Option) (*Device, error) {
	transport, info, err := OpenReader(ctx, backend, match)
	if err != nil {
		return nil, err
	}
	Infof("Found reader: %s", info.Name)

	opts = append([]Option{WithReaderName(info.Name)}, opts...)
	device, err := New(transport, opts...)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return device, nil
}

// ReaderName returns the name of the attached reader
func (d *Device) ReaderName() string {
	return d.readerName
}

// Timing returns the pipeline waits in use
func (d *Device) Timing() Timing {
	return d.timing
}

// Close releases the reader
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}

// transmit performs one exchange. Transport failures come back as
// ConnectivityError; the status word is left to the caller.
func (d *Device) transmit(ctx context.Context, op string, apdu []byte) (Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.commandTimeout)
		defer cancel()
	}

	Debugf("%s TX: % X", op, apdu)
	raw, err := d.transport.Transmit(ctx, apdu)
	if err != nil {
		return Response{}, &ConnectivityError{Op: op, Reader: d.readerName, Err: err}
	}
	resp, err := ParseResponse(raw)
	if err != nil {
		return Response{}, &ConnectivityError{Op: op, Reader: d.readerName, Err: err}
	}
	if !resp.OK() {
		Debugf("%s failed. Status: %02X%02X", op, resp.SW1, resp.SW2)
	} else {
		Debugf("%s RX: % X", op, resp.Data)
	}
	return resp, nil
}

// ReadUID returns the UID of the card on the reader as upper-case,
// space-separated hex ("04 A1 B2 C3 D4 E5 F6").
func (d *Device) ReadUID(ctx context.Context) (string, error) {
	uid, err := d.readUIDBytes(ctx)
	if err != nil {
		return "", err
	}
	return FormatUID(uid), nil
}

func (d *Device) readUIDBytes(ctx context.Context) ([]byte, error) {
	resp, err := d.transmit(ctx, "Reading UID", GetUIDCommand())
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &CommandError{Op: "get UID", SW1: resp.SW1, SW2: resp.SW2}
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty UID", ErrInvalidResponse)
	}
	return resp.Data, nil
}

// ReadPage reads one 4 byte page. The primary READ BINARY encoding is
// tried first and the native READ encoding once on a status failure.
func (d *Device) ReadPage(ctx context.Context, page uint8) ([]byte, error) {
	var last Response
	for _, enc := range readEncodings {
		resp, err := d.transmit(ctx, fmt.Sprintf("Reading page %d", page), ReadPageCommand(enc.ins, page))
		if err != nil {
			return nil, err
		}
		if resp.OK() {
			if len(resp.Data) < PageSize {
				return nil, fmt.Errorf("%w: page %d returned %d bytes", ErrInvalidResponse, page, len(resp.Data))
			}
			return resp.Data[:PageSize], nil
		}
		last = resp
	}
	return nil, &CommandError{Op: "read", Page: page, SW1: last.SW1, SW2: last.SW2}
}

// WritePage writes one 4 byte page using UPDATE BINARY, falling back once
// to the native WRITE encoding on a status failure.
func (d *Device) WritePage(ctx context.Context, page uint8, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page write needs %d bytes, got %d", PageSize, len(data))
	}
	var last Response
	for _, enc := range writeEncodings {
		resp, err := d.transmit(ctx, fmt.Sprintf("Writing page %d", page), WritePageCommand(enc.ins, page, data))
		if err != nil {
			return err
		}
		if resp.OK() {
			return nil
		}
		last = resp
	}
	return &CommandError{Op: "write", Page: page, SW1: last.SW1, SW2: last.SW2}
}

// readPages reads count consecutive pages starting at start
func (d *Device) readPages(ctx context.Context, start uint8, count int) ([]byte, error) {
	out := make([]byte, 0, count*PageSize)
	for i := range count {
		page := int(start) + i
		if page > 0xFF {
			return nil, fmt.Errorf("page %d out of range", page)
		}
		data, err := d.ReadPage(ctx, uint8(page))
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

// FormatUID renders UID bytes the way readers and record files show them.
func FormatUID(uid []byte) string {
	return strings.ToUpper(fmt.Sprintf("% X", uid))
}

// NormalizeUID trims and upper-cases a UID string for comparison.
func NormalizeUID(uid string) string {
	return strings.ToUpper(strings.TrimSpace(uid))
}
