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

package batch

import (
	"fmt"

	offertag "github.com/ZaparooProject/go-offertag"
)

// Status is the outcome of one entry. Every status other than
// StatusPending is terminal.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether the entry can no longer be written in this run.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Expected is one input row: the UID a tag must have and the record it
// should receive.
type Expected struct {
	UID        string
	Version    string
	Identifier string
	Offer      string
}

// Entry tracks one expected tag through the run.
type Entry struct {
	// Err is the last write error; kept for failed entries, including
	// those the operator skipped
	Err    error
	UID    string
	Record offertag.Record
	Status Status
}

// Summary counts entries by status. Remaining is
// Total - Success - Failed.
type Summary struct {
	Total     int
	Success   int
	Failed    int
	Remaining int
}

// Unsuccessful counts entries that reached a terminal status without a
// successful write.
func (s Summary) Unsuccessful() int {
	return s.Failed
}

func (s Summary) String() string {
	return fmt.Sprintf("%d successful, %d failed, %d remaining", s.Success, s.Unsuccessful(), s.Remaining)
}
