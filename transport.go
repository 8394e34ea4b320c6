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
	"sync"
	"time"
)

// Transport exchanges pseudo-APDUs with a reader. The response carries the
// data bytes followed by the two status bytes. Implementations return an
// error only when the exchange itself failed (no reader, no card, link
// drop); a non-success status word is not an error at this level.
type Transport interface {
	// Transmit sends one command and waits for its response
	Transmit(ctx context.Context, apdu []byte) ([]byte, error)

	// Close releases the reader
	Close() error
}

// NamedTransport is implemented by transports that can report which reader
// they are attached to.
type NamedTransport interface {
	ReaderName() string
}

// MockTransport provides a mock implementation of Transport for testing.
// Responses and errors are keyed by instruction byte.
type MockTransport struct {
	responses map[byte][]byte
	callCount map[byte]int
	errorMap  map[byte]error
	sent      [][]byte
	delay     time.Duration
	mu        sync.RWMutex
	closed    bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[byte][]byte),
		callCount: make(map[byte]int),
		errorMap:  make(map[byte]error),
	}
}

// Transmit implements Transport
func (m *MockTransport) Transmit(ctx context.Context, apdu []byte) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	closed := m.closed
	delay := m.delay
	m.mu.RUnlock()

	if closed {
		return nil, ErrReaderClosed
	}
	if len(apdu) < 2 {
		return nil, errors.New("mock: command too short")
	}

	// Simulate hardware delay if configured with context awareness
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ins := apdu[1]

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[ins]++
	m.sent = append(m.sent, append([]byte(nil), apdu...))

	if err, exists := m.errorMap[ins]; exists {
		return nil, err
	}
	if response, exists := m.responses[ins]; exists {
		return append([]byte(nil), response...), nil
	}

	// Unknown instructions are rejected by the reader
	return SWBadINS[:], nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Test helper methods

// SetResponse configures the raw response (data plus status) for an instruction
func (m *MockTransport) SetResponse(ins byte, response []byte) {
	m.mu.Lock()
	m.responses[ins] = response
	m.mu.Unlock()
}

// SetError configures an error to be returned for an instruction
func (m *MockTransport) SetError(ins byte, err error) {
	m.mu.Lock()
	m.errorMap[ins] = err
	m.mu.Unlock()
}

// ClearError removes error injection for an instruction
func (m *MockTransport) ClearError(ins byte) {
	m.mu.Lock()
	delete(m.errorMap, ins)
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate hardware response time
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// GetCallCount returns how many times an instruction was sent
func (m *MockTransport) GetCallCount(ins byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[ins]
}

// Sent returns a copy of every command sent so far
func (m *MockTransport) Sent() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// IsClosed reports whether Close was called
func (m *MockTransport) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Ensure MockTransport implements Transport
var _ Transport = (*MockTransport)(nil)
