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
	"encoding/hex"
	"fmt"
)

// TagInfo is the raw configuration of a tag as shown by the info command.
type TagInfo struct {
	UID              string
	ManufacturerData string
	CCBytes          string
	VersionData      string
	Type             string
	MemorySize       string
	StaticLock       string
	DynamicLock      string
}

// Fields returns the populated fields as ordered label/value pairs.
func (i TagInfo) Fields() [][2]string {
	all := [][2]string{
		{"UID", i.UID},
		{"Manufacturer Data", i.ManufacturerData},
		{"CC Bytes", i.CCBytes},
		{"Version Data", i.VersionData},
		{"Type", i.Type},
		{"Memory Size", i.MemorySize},
		{"Static Lock", i.StaticLock},
		{"Dynamic Lock", i.DynamicLock},
	}
	out := all[:0]
	for _, f := range all {
		if f[1] != "" {
			out = append(out, f)
		}
	}
	return out
}

// Info reads the identification and lock pages of the tag on the reader.
// Only the product byte is used to classify the type here, so tags without
// version data show as unknown even though IdentifyTag would fall back.
func (d *Device) Info(ctx context.Context) (TagInfo, error) {
	uid, err := d.ReadUID(ctx)
	if err != nil {
		return TagInfo{}, fmt.Errorf("failed to read UID: %w", err)
	}
	page0, err := d.ReadPage(ctx, 0)
	if err != nil {
		return TagInfo{}, fmt.Errorf("failed to read manufacturer data: %w", err)
	}
	cc, err := d.ReadPage(ctx, CCPage)
	if err != nil {
		return TagInfo{}, fmt.Errorf("failed to read capability container: %w", err)
	}
	version := d.readVersionData(ctx)

	info := TagInfo{
		UID:              uid,
		ManufacturerData: hex.EncodeToString(page0),
		CCBytes:          hex.EncodeToString(cc),
		VersionData:      hex.EncodeToString(version),
		Type:             "Unknown",
	}

	variant := VariantUnknown
	if page0[0] == ManufacturerNXP {
		switch {
		case len(version) < minVersionBytes:
			info.Type = "NTAG21x (version info unavailable)"
		default:
			prod := version[productTypeOffset]
			v, ok := productTypes[prod]
			if ok {
				variant = v
				geo, _ := v.Geometry()
				info.Type = v.String()
				info.MemorySize = fmt.Sprintf("%d bytes", geo.MaxPayload)
			} else {
				info.Type = fmt.Sprintf("Unknown NTAG21x (type: 0x%02x)", prod)
			}
		}
	}

	if static, err := d.ReadPage(ctx, StaticLockPage); err == nil {
		info.StaticLock = hex.EncodeToString(static)
	}
	if geo, ok := variant.Geometry(); ok && geo.HasDynamicLock() {
		if dynamic, err := d.ReadPage(ctx, geo.LockPage); err == nil {
			info.DynamicLock = hex.EncodeToString(dynamic)
		}
	}
	return info, nil
}
