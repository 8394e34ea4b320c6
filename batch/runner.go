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

// Package batch writes a set of expected records to physical tags. The
// operator presents tags in any order; each tag is matched to its record
// by UID, written once, and every failure is resolved through a Prompter.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	offertag "github.com/ZaparooProject/go-offertag"
)

// TagWriter is the part of *offertag.Device the runner needs.
type TagWriter interface {
	ReadUID(ctx context.Context) (string, error)
	WriteRecord(ctx context.Context, rec offertag.Record, lock bool) error
}

// Options configures a Runner.
type Options struct {
	// RunID is logged when the run starts and ends so session log lines can
	// be matched to a run; a random UUID when empty
	RunID  string
	Policy offertag.OfferPolicy
}

// ErrDuplicateUID is returned by New when two records expect the same tag.
var ErrDuplicateUID = errors.New("duplicate uid in records")

// Runner drives one batch. It is not safe for concurrent use.
type Runner struct {
	byUID   map[string]*Entry
	runID   string
	entries []*Entry
}

// New validates every record before any tag is touched. The first invalid
// record fails the whole batch.
func New(records []Expected, opts Options) (*Runner, error) {
	if len(records) == 0 {
		return nil, errors.New("no records found")
	}

	r := &Runner{
		runID:   opts.RunID,
		entries: make([]*Entry, 0, len(records)),
		byUID:   make(map[string]*Entry, len(records)),
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}

	for i, exp := range records {
		uid := offertag.NormalizeUID(exp.UID)
		if uid == "" {
			return nil, fmt.Errorf("record %d: %w", i+1, &offertag.ValidationError{Field: "uid", Reason: "is required"})
		}
		if _, dup := r.byUID[uid]; dup {
			return nil, fmt.Errorf("record %d: %w: %s", i+1, ErrDuplicateUID, uid)
		}
		rec, err := offertag.NewRecord(exp.Version, exp.Identifier, exp.Offer, opts.Policy)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i+1, uid, err)
		}
		entry := &Entry{UID: uid, Record: rec}
		r.entries = append(r.entries, entry)
		r.byUID[uid] = entry
	}
	return r, nil
}

// RunID returns the identifier used in this run's log lines.
func (r *Runner) RunID() string {
	return r.runID
}

// Entries returns the entries in input order.
func (r *Runner) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = *e
	}
	return out
}

// Summary counts the entries by status.
func (r *Runner) Summary() Summary {
	s := Summary{Total: len(r.entries)}
	for _, e := range r.entries {
		switch e.Status {
		case StatusSuccess:
			s.Success++
		case StatusFailed:
			s.Failed++
		case StatusPending:
		}
	}
	s.Remaining = s.Total - s.Success - s.Failed
	return s
}

func (r *Runner) done() bool {
	for _, e := range r.entries {
		if !e.Status.Terminal() {
			return false
		}
	}
	return true
}

// Run processes tags until every entry is terminal, the operator quits, or
// ctx ends. The summary is logged and returned in every case; the error is
// non-nil only when ctx ended or the prompter failed.
func (r *Runner) Run(ctx context.Context, writer TagWriter, prompter Prompter) (Summary, error) {
	offertag.Infof("Batch run %s", r.runID)
	offertag.Infof("Processing NFC Writes: %d to be written", len(r.entries))

	err := r.run(ctx, writer, prompter)
	if err != nil && ctx.Err() != nil {
		offertag.Infof("\nOperation stopped by user")
	}

	summary := r.Summary()
	offertag.Infof("\nOperation complete: %s", summary)
	offertag.Debugf("Batch run %s finished: %s", r.runID, summary)
	return summary, err
}

func (r *Runner) run(ctx context.Context, writer TagWriter, prompter Prompter) error {
	lock, err := prompter.ChooseLock(ctx)
	if err != nil {
		return err
	}
	if lock {
		offertag.Warnf("Tags will be locked after writing")
	}

	for !r.done() {
		more, err := prompter.WaitForTag(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}

		scanned, err := writer.ReadUID(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			offertag.Errorf("Failed to read tag: %v", err)
			continue
		}
		uid := offertag.NormalizeUID(scanned)

		entry, ok := r.byUID[uid]
		if !ok {
			offertag.Errorf("No matching UID found in records: %s", uid)
			continue
		}
		if entry.Status.Terminal() {
			offertag.Errorf("This tag has already been processed: %s", uid)
			continue
		}

		quit, err := r.process(ctx, writer, prompter, entry, lock)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
	return nil
}

// process writes one entry, retrying for as long as the operator asks.
// It reports quit when the operator chose to stop the run.
func (r *Runner) process(
	ctx context.Context, writer TagWriter, prompter Prompter, entry *Entry, lock bool,
) (quit bool, err error) {
	for {
		offertag.Infof("\nWriting to tag %s:", entry.UID)
		offertag.Infof("    Version: %s", entry.Record.Version)
		offertag.Infof("    Nft_Id: %s", entry.Record.Identifier)
		offertag.Infof("    Offer: %s", entry.Record.Offer)

		werr := writer.WriteRecord(ctx, entry.Record, lock)
		if werr == nil {
			entry.Status = StatusSuccess
			entry.Err = nil
			r.logProgress(offertag.Infof, "Success")
			return false, nil
		}
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		entry.Err = werr

		switch {
		case errors.Is(werr, offertag.ErrLockFailed):
			// The record is on the tag; writing it again cannot fix the lock.
			offertag.Errorf("%v", werr)
			entry.Status = StatusFailed
			r.logProgress(offertag.Errorf, "Write failed")
			return false, nil

		case errors.Is(werr, offertag.ErrTagLocked):
			offertag.Errorf("Tag is locked - cannot write")
			action, err := prompter.LockedAction(ctx, entry.UID)
			if err != nil {
				return true, err
			}
			if action == ActionQuit {
				return true, nil
			}
			entry.Status = StatusFailed
			r.logProgress(offertag.Infof, "Skipped")
			return false, nil

		default:
			offertag.Errorf("\nWrite failed: %v", werr)
			action, err := prompter.FailureAction(ctx, entry.UID, werr)
			if err != nil {
				return true, err
			}
			switch action {
			case ActionRetry:
				continue
			case ActionQuit:
				return true, nil
			case ActionSkip:
				entry.Status = StatusFailed
				r.logProgress(offertag.Infof, "Skipped")
				return false, nil
			default:
				return true, fmt.Errorf("unexpected operator action %v", action)
			}
		}
	}
}

func (r *Runner) logProgress(logf func(string, ...any), what string) {
	s := r.Summary()
	logf("%s (%d/%d, %d failed)", what, s.Success, s.Total, s.Unsuccessful())
}
