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

// PageSize is the on-wire unit of every page-addressed operation.
const PageSize = 4

// Fixed page addresses shared by every supported variant.
const (
	StaticLockPage uint8 = 0x02
	CCPage         uint8 = 0x03
)

// TagVariant identifies a supported tag memory layout.
type TagVariant uint8

const (
	// VariantUnknown is never returned by a successful identification.
	VariantUnknown TagVariant = iota
	VariantNTAG213
	VariantNTAG215
	VariantNTAG216
	// VariantNTAG21x2A is the NTAG21x part reporting product byte 0x2A and a
	// 1016 byte data area.
	VariantNTAG21x2A
	VariantUltralight
)

// String returns the variant name used in logs and tag info output.
func (v TagVariant) String() string {
	switch v {
	case VariantNTAG213:
		return "NTAG213"
	case VariantNTAG215:
		return "NTAG215"
	case VariantNTAG216:
		return "NTAG216"
	case VariantNTAG21x2A:
		return "NTAG21x_2A"
	case VariantUltralight:
		return "ULTRALIGHT"
	case VariantUnknown:
		return "Unknown"
	default:
		return "Unknown"
	}
}

// TagGeometry describes where a variant keeps its user data, capability
// container and lock bytes.
type TagGeometry struct {
	CC         [4]byte
	LockBytes  [4]byte
	MaxPayload int
	DataStart  uint8
	DataEnd    uint8
	CCPage     uint8
	LockPage   uint8
}

// Pages returns the number of user data pages.
func (g TagGeometry) Pages() int {
	return int(g.DataEnd) - int(g.DataStart) + 1
}

// HasDynamicLock reports whether the variant carries a dynamic lock page
// separate from the static lock bytes.
func (g TagGeometry) HasDynamicLock() bool {
	return g.LockPage != StaticLockPage
}

// Geometry returns the memory layout of the variant. The second return
// value is false for VariantUnknown.
func (v TagVariant) Geometry() (TagGeometry, bool) {
	switch v {
	case VariantNTAG213:
		return TagGeometry{
			DataStart: 0x04, DataEnd: 0x27, CCPage: CCPage,
			CC:         [4]byte{0xE1, 0x10, 0x12, 0x00},
			MaxPayload: 144,
			LockPage:   0x28,
			LockBytes:  [4]byte{0xFF, 0xFF, 0x00, 0x00},
		}, true
	case VariantNTAG215:
		return TagGeometry{
			DataStart: 0x04, DataEnd: 0x81, CCPage: CCPage,
			CC:         [4]byte{0xE1, 0x10, 0x3E, 0x00},
			MaxPayload: 504,
			LockPage:   0x82,
			LockBytes:  [4]byte{0xFF, 0xFF, 0x00, 0x00},
		}, true
	case VariantNTAG216:
		return TagGeometry{
			DataStart: 0x04, DataEnd: 0xE1, CCPage: CCPage,
			CC:         [4]byte{0xE1, 0x10, 0x6D, 0x00},
			MaxPayload: 888,
			LockPage:   0xE2,
			LockBytes:  [4]byte{0xFF, 0xFF, 0xFF, 0x00},
		}, true
	case VariantNTAG21x2A:
		return TagGeometry{
			DataStart: 0x04, DataEnd: 0x81, CCPage: CCPage,
			CC:         [4]byte{0xE1, 0x11, 0x7F, 0x00},
			MaxPayload: 1016,
			LockPage:   0x82,
			LockBytes:  [4]byte{0xFF, 0xFF, 0x00, 0x00},
		}, true
	case VariantUltralight:
		return TagGeometry{
			DataStart: 0x04, DataEnd: 0x0F, CCPage: CCPage,
			CC:         [4]byte{0xE1, 0x10, 0x06, 0x00},
			MaxPayload: 48,
			LockPage:   StaticLockPage,
			LockBytes:  [4]byte{0xFF, 0xFF, 0x00, 0x00},
		}, true
	case VariantUnknown:
		return TagGeometry{}, false
	default:
		return TagGeometry{}, false
	}
}

// dynamicLockSet tests the variant-specific dynamic lock bit groups.
func (v TagVariant) dynamicLockSet(lock []byte) bool {
	if len(lock) < 3 {
		return false
	}
	switch v {
	case VariantNTAG213:
		return lock[0] != 0
	case VariantNTAG215, VariantNTAG21x2A:
		return lock[0]|lock[1] != 0
	case VariantNTAG216:
		return lock[0]|lock[1]|lock[2] != 0
	case VariantUltralight, VariantUnknown:
		return false
	default:
		return false
	}
}

func geometryFor(v TagVariant) (TagGeometry, error) {
	geo, ok := v.Geometry()
	if !ok {
		return TagGeometry{}, ErrUnsupportedTag
	}
	return geo, nil
}
