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

import "time"

// Page write timing. The tag needs a short settle time after each EEPROM
// write before the next command.
const (
	// DefaultPageSettle is the pause after every data page write.
	DefaultPageSettle = 2 * time.Millisecond
	// DefaultFormatPause is the pause between clearing user memory and
	// writing the capability container.
	DefaultFormatPause = 100 * time.Millisecond
)

// Capability container retry constants.
const (
	// CCWriteAttempts is the number of attempts to write the capability container.
	CCWriteAttempts = 3
	// CCRetryDelay is the delay between capability container attempts.
	CCRetryDelay = 200 * time.Millisecond
)

// Lock retry constants control static and dynamic lock byte writes.
const (
	// LockWriteAttempts is the number of attempts for each lock page write.
	LockWriteAttempts = 3
	// LockRetryDelay is the delay between lock page attempts.
	LockRetryDelay = 100 * time.Millisecond
	// LockVerifyDelay gives the tag time to commit lock bits before they are
	// read back.
	LockVerifyDelay = 100 * time.Millisecond
)

// StaticLockBytes is written to page 2 to set every static lock bit. The
// first two bytes are ignored by the tag.
var StaticLockBytes = [4]byte{0x00, 0x00, 0xFF, 0xFF}
