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
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// Reader errors. They model failures of the exchange itself, which the
// host sees as a transport error rather than a status word.
var (
	ErrNoTag        = errors.New("no tag present")
	ErrReaderClosed = errors.New("reader closed")
	ErrLinkDropped  = errors.New("link dropped")
)

// Pseudo-APDU bytes served by VirtualReader.
const (
	apduClass     byte = 0xFF
	apduGetData   byte = 0xCA
	apduReadBin   byte = 0xB0
	apduReadAlt   byte = 0x30
	apduUpdateBin byte = 0xD6
	apduWriteAlt  byte = 0xA2
)

var (
	swOK       = []byte{0x90, 0x00}
	swFailed   = []byte{0x63, 0x00}
	swNotFound = []byte{0x6A, 0x82}
	swBadINS   = []byte{0x6D, 0x00}
	swBadCLA   = []byte{0x6E, 0x00}
)

// VirtualReader serves pseudo-APDUs against the tag currently placed on
// it, the way a PC/SC contactless reader does.
type VirtualReader struct {
	tag        *VirtualTag
	rejected   map[byte]bool
	CommandLog []CommandLogEntry
	name       string
	failNext   int
	delay      time.Duration
	mu         syncutil.Mutex
	closed     bool
}

// CommandLogEntry records a command sent to the reader
type CommandLogEntry struct {
	Timestamp time.Time
	APDU      []byte
}

// Ins returns the instruction byte of the logged command
func (e CommandLogEntry) Ins() byte {
	if len(e.APDU) < 2 {
		return 0
	}
	return e.APDU[1]
}

// NewVirtualReader creates a reader with tag placed on it. tag may be nil.
func NewVirtualReader(tag *VirtualTag) *VirtualReader {
	return &VirtualReader{
		tag:      tag,
		name:     "Virtual PC/SC Reader 00 00",
		rejected: make(map[byte]bool),
	}
}

// ReaderName returns the simulated reader name
func (r *VirtualReader) ReaderName() string {
	return r.name
}

// Transmit serves one pseudo-APDU
func (r *VirtualReader) Transmit(ctx context.Context, apdu []byte) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.Lock()
	delay := r.delay
	r.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrReaderClosed
	}
	r.CommandLog = append(r.CommandLog, CommandLogEntry{
		APDU:      append([]byte(nil), apdu...),
		Timestamp: time.Now(),
	})
	if r.failNext > 0 {
		r.failNext--
		return nil, ErrLinkDropped
	}
	if r.tag == nil {
		return nil, ErrNoTag
	}
	if len(apdu) < 5 {
		return append([]byte(nil), swBadINS...), nil
	}
	if apdu[0] != apduClass {
		return append([]byte(nil), swBadCLA...), nil
	}
	ins := apdu[1]
	if r.rejected[ins] {
		return append([]byte(nil), swBadINS...), nil
	}

	page := int(apdu[3])
	switch ins {
	case apduGetData:
		return withSW(r.tag.UID, swOK), nil
	case apduReadBin, apduReadAlt:
		data, err := r.tag.ReadPage(page)
		if err != nil {
			return withSW(nil, swNotFound), nil
		}
		return withSW(data[:], swOK), nil
	case apduUpdateBin, apduWriteAlt:
		if len(apdu) < 9 {
			return withSW(nil, swFailed), nil
		}
		if err := r.tag.WritePage(page, apdu[5:9]); err != nil {
			return withSW(nil, swFailed), nil
		}
		return withSW(nil, swOK), nil
	default:
		return append([]byte(nil), swBadINS...), nil
	}
}

// Close closes the reader
func (r *VirtualReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// IsClosed reports whether Close was called
func (r *VirtualReader) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// PlaceTag puts a tag on the reader, replacing any previous one
func (r *VirtualReader) PlaceTag(tag *VirtualTag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tag = tag
}

// RemoveTag takes the tag off the reader
func (r *VirtualReader) RemoveTag() {
	r.PlaceTag(nil)
}

// Tag returns the tag on the reader
func (r *VirtualReader) Tag() *VirtualTag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tag
}

// RejectInstruction makes the reader answer ins with 6D00, as readers
// without support for an encoding do.
func (r *VirtualReader) RejectInstruction(ins byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[ins] = true
}

// FailNextTransmits drops the link for the next n exchanges
func (r *VirtualReader) FailNextTransmits(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

// SetDelay configures a delay to simulate hardware response time
func (r *VirtualReader) SetDelay(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = delay
}

// ClearCommandLog clears the command log
func (r *VirtualReader) ClearCommandLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CommandLog = nil
}

// GetCommandCount returns how many commands with instruction ins were sent
func (r *VirtualReader) GetCommandCount(ins byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, entry := range r.CommandLog {
		if entry.Ins() == ins {
			count++
		}
	}
	return count
}

// WriteCommands returns the page numbers of every write command sent, in
// order, with either encoding.
func (r *VirtualReader) WriteCommands() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pages []int
	for _, entry := range r.CommandLog {
		if ins := entry.Ins(); (ins == apduUpdateBin || ins == apduWriteAlt) && len(entry.APDU) > 3 {
			pages = append(pages, int(entry.APDU[3]))
		}
	}
	return pages
}

func withSW(data, sw []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, sw...)
}
