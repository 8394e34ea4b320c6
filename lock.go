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
	"context"
	"errors"
	"fmt"
)

// IsLocked reports whether the tag refuses writes. Static lock bytes are
// checked first, then the dynamic lock page, then a write of the first data
// page back onto itself. Detection fails open: an unreadable lock page or
// an exchange error during the probe reports the tag as unlocked, so only
// an explicit lock bit or a refused write blocks a batch.
func (d *Device) IsLocked(ctx context.Context, variant TagVariant) bool {
	geo, ok := variant.Geometry()
	if !ok {
		return false
	}

	static, err := d.ReadPage(ctx, StaticLockPage)
	if err == nil {
		Debugf("Static lock bits: % X", static)
		if static[2] != 0 || static[3] != 0 {
			Infof("Tag is locked (static lock bits: % X)", static)
			return true
		}
	} else {
		Debugf("Static lock page unreadable: %v", err)
	}

	if geo.HasDynamicLock() {
		dynamic, err := d.ReadPage(ctx, geo.LockPage)
		if err == nil {
			Debugf("Lock bits at page %02x: % X", geo.LockPage, dynamic)
			if variant.dynamicLockSet(dynamic) {
				Infof("Tag is locked (dynamic lock bits: % X)", dynamic)
				return true
			}
		} else {
			Debugf("Dynamic lock page unreadable: %v", err)
		}
	}

	return d.probeWritable(ctx, geo)
}

// probeWritable writes the first data page back onto itself. Only a
// refused write reports the tag as locked.
func (d *Device) probeWritable(ctx context.Context, geo TagGeometry) bool {
	current, err := d.ReadPage(ctx, geo.DataStart)
	if err != nil {
		Debugf("Lock check error: %v", err)
		return false
	}

	err = d.WritePage(ctx, geo.DataStart, current)
	if err == nil {
		Debugln("Tag is writable")
		return false
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		Infof("Tag appears to be write protected")
		return true
	}
	Debugf("Lock check error: %v", err)
	return false
}

// Lock sets the static lock bits and, for variants with one, the dynamic
// lock page, then reads them back. Locking cannot be undone. A
// LockVerificationError means the lock bytes were written but the tag
// still reads as unlocked.
func (d *Device) Lock(ctx context.Context, variant TagVariant) error {
	geo, err := geometryFor(variant)
	if err != nil {
		return err
	}

	err = RetryWithConfig(ctx, &d.timing.LockRetry, func() error {
		return d.WritePage(ctx, StaticLockPage, StaticLockBytes[:])
	})
	if err != nil {
		return fmt.Errorf("failed to set static lock bits: %w", err)
	}

	if geo.HasDynamicLock() {
		err = RetryWithConfig(ctx, &d.timing.LockRetry, func() error {
			return d.WritePage(ctx, geo.LockPage, geo.LockBytes[:])
		})
		if err != nil {
			return fmt.Errorf("failed to set dynamic lock bits for %s: %w", variant, err)
		}
	}

	if err := sleepWithContext(ctx, d.timing.LockVerify); err != nil {
		return err
	}
	if !d.IsLocked(ctx, variant) {
		return &LockVerificationError{Variant: variant}
	}

	Infof("Successfully locked %s tag", variant)
	return nil
}
