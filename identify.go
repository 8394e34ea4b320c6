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
	"fmt"
)

// Identification constants
const (
	// UIDLength is the only UID length the supported tags use.
	UIDLength = 7
	// ManufacturerNXP in page 0 byte 0 marks the NTAG21x family.
	ManufacturerNXP byte = 0x04
	// CCMagic is the NDEF magic number in capability container byte 0.
	CCMagic byte = 0xE1

	productTypeOffset = 6
	minVersionBytes   = 8
	ccSizeUnit        = 8
)

// productTypes maps the product byte of the version data to a variant.
var productTypes = map[byte]TagVariant{
	0x0F: VariantNTAG213,
	0x11: VariantNTAG215,
	0x13: VariantNTAG216,
	0x2A: VariantNTAG21x2A,
}

// ccSizes maps the capability container memory size to a variant.
var ccSizes = map[int]TagVariant{
	144:  VariantNTAG213,
	504:  VariantNTAG215,
	1016: VariantNTAG21x2A,
}

// IdentifyVariant resolves the tag variant from the UID, manufacturer page,
// version bytes (pages 0 to 2) and capability container (page 3). The
// product byte is tried first, then the capability container size. Tags
// that resolve by neither are treated as Ultralight, since many real tags
// carry no usable version data.
func IdentifyVariant(uid, page0, version, cc []byte) (TagVariant, error) {
	if len(uid) != UIDLength {
		return VariantUnknown, fmt.Errorf("%w: UID is %d bytes, want %d", ErrUnsupportedTag, len(uid), UIDLength)
	}
	if len(page0) == 0 {
		return VariantUnknown, fmt.Errorf("%w: manufacturer page missing", ErrUnsupportedTag)
	}

	if page0[0] == ManufacturerNXP {
		if len(version) >= minVersionBytes {
			if v, ok := productTypes[version[productTypeOffset]]; ok {
				return v, nil
			}
		}
		if len(cc) >= 3 && cc[0] == CCMagic {
			if v, ok := ccSizes[int(cc[2])*ccSizeUnit]; ok {
				return v, nil
			}
		}
	}

	return VariantUltralight, nil
}

// IdentifyTag reads the pages IdentifyVariant needs from the tag on the
// reader. Version and capability pages that cannot be read are passed on
// as missing rather than failing the identification.
func (d *Device) IdentifyTag(ctx context.Context) (TagVariant, error) {
	uid, err := d.readUIDBytes(ctx)
	if err != nil {
		return VariantUnknown, err
	}
	page0, err := d.ReadPage(ctx, 0)
	if err != nil {
		return VariantUnknown, err
	}

	var version, cc []byte
	if page0[0] == ManufacturerNXP && len(uid) == UIDLength {
		version = d.readVersionData(ctx)
		cc, err = d.ReadPage(ctx, CCPage)
		if err != nil {
			if IsConnectivity(err) {
				return VariantUnknown, err
			}
			Debugf("capability container unreadable: %v", err)
			cc = nil
		}
	}

	variant, err := IdentifyVariant(uid, page0, version, cc)
	if err != nil {
		return VariantUnknown, err
	}
	Debugf("Tag %s identified as %s", FormatUID(uid), variant)
	return variant, nil
}

// readVersionData concatenates pages 0 to 2, skipping pages that fail.
func (d *Device) readVersionData(ctx context.Context) []byte {
	var version []byte
	for page := uint8(0); page < 3; page++ {
		data, err := d.ReadPage(ctx, page)
		if err != nil {
			Debugf("version page %d unreadable: %v", page, err)
			continue
		}
		version = append(version, data...)
	}
	return version
}
