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

// Package scan records the UIDs of presented tags in a ledger file and,
// when a data file is given, assigns each new UID the next identifier and
// offer from it. The ledger is the input of a later batch write.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/csvio"
	"github.com/ZaparooProject/go-offertag/polling"
)

// ErrAllAssigned is returned by New when the ledger already holds a UID for
// every data row.
var ErrAllAssigned = errors.New("all records already assigned")

// TagReader is the part of *offertag.Device the scanner needs.
type TagReader interface {
	ReadUID(ctx context.Context) (string, error)
	IdentifyTag(ctx context.Context) (offertag.TagVariant, error)
	IsLocked(ctx context.Context, variant offertag.TagVariant) bool
}

// Trigger waits until the next tag should be read. It returns false when
// scanning should stop.
type Trigger interface {
	Next(ctx context.Context) (bool, error)
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context) (bool, error)

// Next calls f.
func (f TriggerFunc) Next(ctx context.Context) (bool, error) {
	return f(ctx)
}

// EnterPrompter is satisfied by batch.ConsolePrompter.
type EnterPrompter interface {
	WaitForEnter(ctx context.Context, message string) (bool, error)
}

// PromptTrigger scans each time the operator presses Enter.
func PromptTrigger(p EnterPrompter) Trigger {
	return TriggerFunc(func(ctx context.Context) (bool, error) {
		return p.WaitForEnter(ctx, "Place NFC tag on reader and press Enter to scan (or 'q' to quit)...")
	})
}

// WatchTrigger scans each time a new tag arrives on the reader. The same
// tag has to be removed before it triggers again.
func WatchTrigger(w *polling.Watcher) Trigger {
	return TriggerFunc(func(ctx context.Context) (bool, error) {
		offertag.Infof("Waiting for NFC tag...")
		if _, err := w.WaitForTag(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Result summarizes a scan run.
type Result struct {
	// Recorded counts the UIDs written to the ledger by this run
	Recorded int
	// Total counts every UID in the ledger
	Total int
	// Unassigned counts data rows still waiting for a tag
	Unassigned int
}

// Scanner assigns data rows to tags in order. It is not safe for
// concurrent use.
type Scanner struct {
	ledger  *csvio.Ledger
	version string
	data    []csvio.Row
	next    int
}

// New prepares a scan that appends to ledger. data may be empty, in which
// case only UIDs and the version are recorded. Assignment resumes after the
// rows the ledger already holds.
func New(ledger *csvio.Ledger, data []csvio.Row, version string) (*Scanner, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		version = offertag.DefaultVersion
	}
	if len(data) > 0 && ledger.Len() >= len(data) {
		return nil, fmt.Errorf("%w: already scanned %d UIDs - matches or exceeds available NFT records (%d)",
			ErrAllAssigned, ledger.Len(), len(data))
	}
	return &Scanner{
		ledger:  ledger,
		version: version,
		data:    data,
		next:    ledger.Len(),
	}, nil
}

func (s *Scanner) unassigned() int {
	if len(s.data) == 0 {
		return 0
	}
	return len(s.data) - s.next
}

// Run scans tags until the trigger stops, every data row is assigned, or
// ctx ends. Locked tags and UIDs already in the ledger are skipped. Each
// row is on disk before the next tag is read.
func (s *Scanner) Run(ctx context.Context, reader TagReader, trigger Trigger) (Result, error) {
	start := s.ledger.Len()
	if len(s.data) > 0 {
		offertag.Infof("\nStarting scan. %d UIDs already in file, %d NFT records remaining to assign.",
			start, s.unassigned())
	} else {
		offertag.Infof("\nStarting scan. %d UIDs already in file.", start)
	}

	err := s.run(ctx, reader, trigger)
	if err != nil && ctx.Err() != nil {
		if s.unassigned() > 0 {
			offertag.Warnf("\nScan stopped with %d NFT records still unassigned", s.unassigned())
		}
		offertag.Infof("\nOperation stopped by user")
	}

	res := Result{
		Recorded:   s.ledger.Len() - start,
		Total:      s.ledger.Len(),
		Unassigned: s.unassigned(),
	}
	switch {
	case len(s.data) == 0:
		offertag.Infof("\nScan complete. Total UIDs in file: %d", res.Total)
	case res.Unassigned > 0:
		offertag.Warnf("\nScan complete but %d NFT records remain unassigned", res.Unassigned)
	default:
		offertag.Infof("\nScan complete - all NFT records assigned!")
	}
	return res, err
}

func (s *Scanner) run(ctx context.Context, reader TagReader, trigger Trigger) error {
	for {
		if len(s.data) > 0 {
			if s.unassigned() == 0 {
				offertag.Infof("\nAll NFT records have been assigned!")
				return nil
			}
			offertag.Infof("\nNFT records remaining: %d", s.unassigned())
		}

		more, err := trigger.Next(ctx)
		if err != nil {
			return err
		}
		if !more {
			if s.unassigned() > 0 {
				offertag.Warnf("\nScan stopped with %d NFT records still unassigned", s.unassigned())
			}
			return nil
		}

		if err := s.scanOne(ctx, reader); err != nil {
			return err
		}
	}
}

// scanOne records the tag on the reader. Only ledger write failures and
// cancellation are returned; tag problems are logged and skipped.
func (s *Scanner) scanOne(ctx context.Context, reader TagReader) error {
	uid, err := reader.ReadUID(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		offertag.Errorf("Failed to read tag. Please try again. (%v)", err)
		return nil
	}
	uid = offertag.NormalizeUID(uid)

	variant, err := reader.IdentifyTag(ctx)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		offertag.Debugf("Could not identify tag %s, skipping lock check: %v", uid, err)
	case reader.IsLocked(ctx, variant):
		offertag.Warnf("Tag %s is locked - skipping", uid)
		return nil
	}

	if s.ledger.Contains(uid) {
		offertag.Warnf("UID already scanned: %s", uid)
		return nil
	}

	row := csvio.Row{UID: uid, Version: s.version}
	if len(s.data) > 0 {
		src := s.data[s.next]
		row.Identifier = src.Identifier
		row.Offer = src.Offer
	}
	if err := s.ledger.Append(row); err != nil {
		return fmt.Errorf("failed to record UID %s: %w", uid, err)
	}
	if len(s.data) > 0 {
		s.next++
	}

	offertag.Infof("Successfully recorded UID: %s", uid)
	if len(s.data) > 0 {
		offertag.Infof("Assigned NFT ID: %s", row.Identifier)
		offertag.Infof("Assigned offer: %s", row.Offer)
		offertag.Infof("NFTs remaining: %d", s.unassigned())
	} else {
		offertag.Infof("Total UIDs scanned: %d", s.ledger.Len())
	}
	offertag.Infof("You can now remove the tag")
	return nil
}
