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
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConnectivity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "connectivity error", err: &ConnectivityError{Op: "read", Err: errors.New("gone")}, want: true},
		{name: "no card", err: fmt.Errorf("wrap: %w", ErrNoCard), want: true},
		{name: "no reader", err: ErrNoReader, want: true},
		{name: "closed pipe", err: io.ErrClosedPipe, want: true},
		{name: "device gone errno", err: fmt.Errorf("read: %w", syscall.ENODEV), want: true},
		{name: "command error", err: &CommandError{Op: "write", Page: 4, SW1: 0x63}, want: false},
		{name: "decode error", err: &DecodeError{Reason: "bad", Offset: 0}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsConnectivity(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(&CommandError{Op: "write", Page: 3, SW1: 0x63}))
	assert.True(t, IsRetryable(fmt.Errorf("format: %w", &CommandError{Op: "write"})))
	assert.False(t, IsRetryable(&ConnectivityError{Op: "write", Err: io.EOF}))
	assert.False(t, IsRetryable(ErrTagLocked))
}

func TestErrorMessagesAndUnwrap(t *testing.T) {
	t.Parallel()

	cmdErr := &CommandError{Op: "read", Page: 0x28, SW1: 0x63, SW2: 0x00}
	assert.Equal(t, "read page 0x28: status 6300", cmdErr.Error())
	require.ErrorIs(t, cmdErr, ErrCommandFailed)

	connErr := &ConnectivityError{Op: "Reading UID", Reader: "ACR122U", Err: io.EOF}
	assert.Equal(t, "Reading UID ACR122U: EOF", connErr.Error())
	require.ErrorIs(t, connErr, ErrConnectivity)
	require.ErrorIs(t, connErr, io.EOF)

	decErr := &DecodeError{Reason: "bad TLV", Offset: -1}
	assert.Equal(t, "decode: bad TLV", decErr.Error())
	decErr.Offset = 2
	assert.Equal(t, "decode at offset 2: bad TLV", decErr.Error())
	require.ErrorIs(t, decErr, ErrDecode)

	valErr := &ValidationError{Field: "offer", Reason: "is required"}
	assert.Equal(t, "invalid offer: is required", valErr.Error())
	require.ErrorIs(t, valErr, ErrValidation)

	lockErr := &LockVerificationError{Variant: VariantNTAG215}
	assert.Contains(t, lockErr.Error(), "NTAG215")
	assert.Contains(t, lockErr.Error(), "data was written")
	require.ErrorIs(t, lockErr, ErrLockVerification)
}
