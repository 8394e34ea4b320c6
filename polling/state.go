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

package polling

import "time"

// CardDetectionState is the state of the field as seen by a Watcher
type CardDetectionState int

const (
	StateIdle CardDetectionState = iota
	StateTagDetected
	StateRemoving
)

func (s CardDetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTagDetected:
		return "tag detected"
	case StateRemoving:
		return "removing"
	default:
		return "unknown"
	}
}

// CardState tracks the tag on a reader between polls
type CardState struct {
	LastSeenTime   time.Time
	MissingSince   time.Time
	LastUID        string
	DetectionState CardDetectionState
}

// Present reports whether a tag is considered on the reader
func (cs *CardState) Present() bool {
	return cs.DetectionState != StateIdle
}

// TransitionToDetected records a successful read of uid
func (cs *CardState) TransitionToDetected(uid string, now time.Time) {
	cs.DetectionState = StateTagDetected
	cs.LastUID = uid
	cs.LastSeenTime = now
	cs.MissingSince = time.Time{}
}

// TransitionToMissing records a failed read. The tag only counts as removed
// once it has been missing for removalTimeout; it reports whether that
// happened on this call.
func (cs *CardState) TransitionToMissing(now time.Time, removalTimeout time.Duration) bool {
	switch cs.DetectionState {
	case StateIdle:
		return false
	case StateTagDetected:
		cs.DetectionState = StateRemoving
		cs.MissingSince = now
	case StateRemoving:
	}
	if now.Sub(cs.MissingSince) < removalTimeout {
		return false
	}
	cs.TransitionToIdle()
	return true
}

// TransitionToIdle resets to idle state
func (cs *CardState) TransitionToIdle() {
	cs.DetectionState = StateIdle
	cs.LastUID = ""
	cs.LastSeenTime = time.Time{}
	cs.MissingSince = time.Time{}
}
