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
	"runtime"
	"syscall"
)

// Error categories used to decide between re-prompting, operator
// intervention and aborting the current tag.
var (
	// Connectivity errors - fatal to the current operation, not the process
	ErrConnectivity   = errors.New("reader connectivity failure")
	ErrNoReader       = errors.New("no reader found")
	ErrNoCard         = errors.New("no card present")
	ErrReaderClosed   = errors.New("reader is closed")
	ErrUnknownBackend = errors.New("unknown reader backend")

	// Command errors - bad status word after both command encodings
	ErrCommandFailed   = errors.New("command failed")
	ErrInvalidResponse = errors.New("invalid response format")

	// Tag errors
	ErrUnsupportedTag   = errors.New("unsupported tag")
	ErrTagLocked        = errors.New("tag is locked")
	ErrLockVerification = errors.New("lock verification failed")
	ErrLockFailed       = errors.New("failed to lock tag")
	ErrFormatFailed     = errors.New("tag format failed")

	// Data errors
	ErrDecode       = errors.New("decode failed")
	ErrValidation   = errors.New("invalid record")
	ErrDataTooLarge = errors.New("data too large for tag")
)

// ConnectivityError reports that the reader or card went away while a
// command was in flight. The alternate command encoding is never tried for
// these.
type ConnectivityError struct {
	Err    error  // Underlying transport error
	Op     string // Operation that failed
	Reader string // Reader name, if known
}

func (e *ConnectivityError) Error() string {
	if e.Reader != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Reader, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() []error {
	return []error{ErrConnectivity, e.Err}
}

// CommandError reports a non-success status word for a page operation
// after the primary and alternate encodings were both tried.
type CommandError struct {
	Op   string
	Page uint8
	SW1  byte
	SW2  byte
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s page 0x%02X: status %02X%02X", e.Op, e.Page, e.SW1, e.SW2)
}

func (*CommandError) Unwrap() error {
	return ErrCommandFailed
}

// DecodeError reports malformed tag contents. Offset is relative to the
// start of the TLV and is -1 when the failure is not tied to a byte.
type DecodeError struct {
	Reason string
	Offset int
}

func (e *DecodeError) Error() string {
	if e.Offset < 0 {
		return "decode: " + e.Reason
	}
	return fmt.Sprintf("decode at offset %d: %s", e.Offset, e.Reason)
}

func (*DecodeError) Unwrap() error {
	return ErrDecode
}

// ValidationError reports a record field outside its contract. It is
// always returned before any tag I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (*ValidationError) Unwrap() error {
	return ErrValidation
}

// LockVerificationError means lock bytes were written but the tag still
// reads as unlocked. The record data is on the tag and may still be
// rewritable.
type LockVerificationError struct {
	Variant TagVariant
}

func (e *LockVerificationError) Error() string {
	return fmt.Sprintf("lock verification failed for %s: data was written but tag may remain rewritable",
		e.Variant)
}

func (*LockVerificationError) Unwrap() error {
	return ErrLockVerification
}

// IsConnectivity returns true if the error means the reader or card is gone.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectivity) {
		return true
	}
	if isDeviceGoneError(err) {
		return true
	}
	switch {
	case errors.Is(err, ErrNoReader),
		errors.Is(err, ErrNoCard),
		errors.Is(err, ErrReaderClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the failed operation can be attempted again
// against the same tag without operator intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *CommandError
	return errors.As(err, &ce)
}

// Windows error codes for device disconnection detection.
// These are defined here because they're not available on non-Windows platforms.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors indicating the reader was
// unplugged during I/O.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}
