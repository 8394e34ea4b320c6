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

// Package polling watches a reader for tags arriving and leaving, so
// workflows can run hands-free instead of waiting for Enter.
package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	offertag "github.com/ZaparooProject/go-offertag"
)

// UIDReader is the part of offertag.Device the watcher polls
type UIDReader interface {
	ReadUID(ctx context.Context) (string, error)
}

// Watcher polls a reader for tag arrival and removal
type Watcher struct {
	reader   UIDReader
	config   *Config
	now      func() time.Time
	lastPoll time.Time
	state    CardState
}

// NewWatcher creates a watcher. A nil config uses DefaultConfig.
func NewWatcher(reader UIDReader, config *Config) *Watcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Watcher{reader: reader, config: config, now: time.Now}
}

// State returns a copy of the current card state
func (w *Watcher) State() CardState {
	return w.state
}

// WaitForTag blocks until a tag arrives and returns its UID. A tag that
// was already reported is not reported again until it has been removed.
func (w *Watcher) WaitForTag(ctx context.Context) (string, error) {
	for {
		uid, present, err := w.poll(ctx)
		if err != nil {
			return "", err
		}
		if present && uid != "" {
			return uid, nil
		}
		if err := sleepCtx(ctx, w.config.PollInterval); err != nil {
			return "", err
		}
	}
}

// WaitForRemoval blocks until no tag has been readable for the removal
// timeout.
func (w *Watcher) WaitForRemoval(ctx context.Context) error {
	for w.state.Present() {
		if _, _, err := w.poll(ctx); err != nil {
			return err
		}
		if !w.state.Present() {
			break
		}
		if err := sleepCtx(ctx, w.config.PollInterval); err != nil {
			return err
		}
	}
	return nil
}

// poll reads the UID once and updates the card state. It returns the UID
// only when a new tag arrived.
func (w *Watcher) poll(ctx context.Context) (string, bool, error) {
	now := w.now()
	if !w.lastPoll.IsZero() && w.config.SleepRecovery.DetectSleep(now.Sub(w.lastPoll), w.config.PollInterval) {
		offertag.Debugf("Poll gap of %v, treating field as empty", now.Sub(w.lastPoll))
		w.state.TransitionToIdle()
	}
	w.lastPoll = now

	uid, err := w.reader.ReadUID(ctx)
	if err != nil {
		if fatalPollError(ctx, err) {
			return "", false, fmt.Errorf("tag polling stopped: %w", err)
		}
		if w.state.TransitionToMissing(now, w.config.CardRemovalTimeout) {
			offertag.Debugln("Tag removed")
		}
		return "", false, nil
	}

	uid = offertag.NormalizeUID(uid)
	if w.state.Present() && uid == w.state.LastUID {
		w.state.TransitionToDetected(uid, now)
		return "", false, nil
	}
	w.state.TransitionToDetected(uid, now)
	offertag.Debugf("Tag detected: %s", uid)
	return uid, true, nil
}

// fatalPollError separates a lost reader from an empty field. Any other
// failure to read a UID means no usable tag this cycle.
func fatalPollError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, offertag.ErrReaderClosed) || errors.Is(err, offertag.ErrNoReader)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
