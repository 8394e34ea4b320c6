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
	"bytes"
	"context"
	"fmt"
)

var zeroPage = make([]byte, PageSize)

// ClearTag zeroes every user data page. It refuses locked tags with
// ErrTagLocked and stops at the first page that fails.
func (d *Device) ClearTag(ctx context.Context, variant TagVariant) error {
	geo, err := geometryFor(variant)
	if err != nil {
		return err
	}
	if d.IsLocked(ctx, variant) {
		return fmt.Errorf("%w: lock bits set", ErrTagLocked)
	}

	Debugf("Clearing tag memory (pages %02x-%02x)", geo.DataStart, geo.DataEnd)
	for page := int(geo.DataStart); page <= int(geo.DataEnd); page++ {
		if err := d.WritePage(ctx, uint8(page), zeroPage); err != nil {
			return fmt.Errorf("failed to clear page %02x: %w", page, err)
		}
		if err := sleepWithContext(ctx, d.timing.PageSettle); err != nil {
			return err
		}
	}
	return nil
}

// FormatTag clears user memory and writes the capability container. A
// read-back that differs only by a larger memory size byte is accepted;
// any other mismatch gets one write using the size the tag reports.
func (d *Device) FormatTag(ctx context.Context, variant TagVariant) error {
	geo, err := geometryFor(variant)
	if err != nil {
		return err
	}

	if err := d.ClearTag(ctx, variant); err != nil {
		return err
	}
	if err := sleepWithContext(ctx, d.timing.FormatPause); err != nil {
		return err
	}

	err = RetryWithConfig(ctx, &d.timing.CCRetry, func() error {
		return d.WritePage(ctx, geo.CCPage, geo.CC[:])
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write capability container: %w", ErrFormatFailed, err)
	}

	got, err := d.ReadPage(ctx, geo.CCPage)
	if err != nil {
		return fmt.Errorf("%w: failed to read capability container: %w", ErrFormatFailed, err)
	}
	if bytes.Equal(got, geo.CC[:]) {
		return nil
	}

	if got[0] == geo.CC[0] && got[1] == geo.CC[1] && got[3] == geo.CC[3] && got[2] > geo.CC[2] {
		Debugf("Tag reports larger memory size 0x%02X than 0x%02X, keeping it", got[2], geo.CC[2])
		return nil
	}

	adjusted := []byte{geo.CC[0], geo.CC[1], got[2], geo.CC[3]}
	Debugf("Capability container mismatch (% X), writing % X", got, adjusted)
	if err := d.WritePage(ctx, geo.CCPage, adjusted); err != nil {
		return fmt.Errorf("%w: adjusted capability container write: %w", ErrFormatFailed, err)
	}
	return nil
}

// WriteRecord stores rec on the tag currently on the reader and locks the
// tag when lock is set. A locked tag returns ErrTagLocked without any data
// write, and capacity is checked before formatting. When locking fails the
// record stays written.
func (d *Device) WriteRecord(ctx context.Context, rec Record, lock bool) error {
	// Offer length policy is the caller's; only the outer limits apply here.
	if err := rec.Validate(OfferPolicy{}); err != nil {
		return err
	}

	variant, err := d.IdentifyTag(ctx)
	if err != nil {
		return fmt.Errorf("could not determine tag type: %w", err)
	}

	if d.IsLocked(ctx, variant) {
		return fmt.Errorf("%w: %s refuses writes", ErrTagLocked, variant)
	}

	tlv, err := EncodeMessage(rec)
	if err != nil {
		return err
	}
	if err := CheckCapacity(tlv, variant); err != nil {
		return err
	}

	if err := d.FormatTag(ctx, variant); err != nil {
		return err
	}
	if err := d.WriteMessage(ctx, variant, tlv); err != nil {
		return err
	}
	Infof("NDEF message written successfully")

	if !lock {
		Infof("Tag successfully written (unlocked)")
		return nil
	}
	if err := d.Lock(ctx, variant); err != nil {
		return fmt.Errorf("%w - data was written but tag remains rewritable: %w", ErrLockFailed, err)
	}
	Infof("Tag successfully written and locked")
	return nil
}
