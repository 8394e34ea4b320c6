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

package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	offertag "github.com/ZaparooProject/go-offertag"
)

// ErrLedgerBusy is returned when another process holds the ledger
var ErrLedgerBusy = errors.New("ledger is in use by another process")

// Ledger is an append-only CSV of scanned tags. Every appended row is
// flushed to disk before Append returns so an interrupted scan loses
// nothing.
type Ledger struct {
	file *os.File
	w    *csv.Writer
	uids map[string]struct{}
	path string
	rows int
}

// OpenLedger opens or creates the ledger at path, taking an exclusive
// lock, and loads the UIDs already recorded.
func OpenLedger(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	//nolint:gosec // path comes from the command line
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l := &Ledger{file: f, path: path, uids: make(map[string]struct{})}
	if err := l.load(); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	rows, err := ReadRows(l.file, ColUID)
	if err != nil {
		return fmt.Errorf("%s: %w", l.path, err)
	}
	for _, row := range rows {
		l.uids[offertag.NormalizeUID(row.UID)] = struct{}{}
	}
	l.rows = len(rows)

	end, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek ledger: %w", err)
	}
	l.w = csv.NewWriter(l.file)
	if end == 0 {
		return l.write(Header)
	}
	return nil
}

// Path returns the ledger file path
func (l *Ledger) Path() string {
	return l.path
}

// Len returns the number of UIDs recorded
func (l *Ledger) Len() int {
	return len(l.uids)
}

// Rows returns the number of data rows in the file
func (l *Ledger) Rows() int {
	return l.rows
}

// Contains reports whether uid is already recorded
func (l *Ledger) Contains(uid string) bool {
	_, ok := l.uids[offertag.NormalizeUID(uid)]
	return ok
}

// Append records row and flushes it to disk
func (l *Ledger) Append(row Row) error {
	if l.file == nil {
		return errors.New("ledger is closed")
	}
	if err := l.write(row.fields()); err != nil {
		return err
	}
	l.uids[offertag.NormalizeUID(row.UID)] = struct{}{}
	l.rows++
	return nil
}

func (l *Ledger) write(fields []string) error {
	if err := l.w.Write(fields); err != nil {
		return fmt.Errorf("failed to write ledger row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	return nil
}

// Close releases the lock and closes the file
func (l *Ledger) Close() error {
	if l.file == nil {
		return nil
	}
	_ = unlockFile(l.file)
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	return nil
}
