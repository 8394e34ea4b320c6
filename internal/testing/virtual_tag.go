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

// Package testing provides simulated tags and readers for tests.
//
// VirtualTag models the page memory of NTAG21x and Ultralight tags,
// including the one-way behavior of lock bytes and the capability
// container. VirtualReader serves pseudo-APDUs against a VirtualTag the
// way a PC/SC reader does, and VirtualPN532 serves PN532 frames.
package testing

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// Tag errors returned by VirtualTag. Both are reported to the host as a
// failed status, not as a transport error.
var (
	ErrPageOutOfRange = errors.New("page out of range")
	ErrPageLocked     = errors.New("page is locked")
	ErrPageReadOnly   = errors.New("page is read-only")
	ErrWriteRefused   = errors.New("write refused")
)

// TagModel is the physical layout of a simulated tag.
type TagModel struct {
	Name string
	// FactoryCC is the capability container as shipped
	FactoryCC [4]byte
	// TotalPages counts every addressable page including configuration
	TotalPages int
	// UserEnd is the last user data page
	UserEnd int
	// DynamicLockPage is 0 for tags without dynamic lock bytes
	DynamicLockPage int
}

// Simulated tag layouts.
var (
	ModelNTAG213 = TagModel{
		Name: "NTAG213", TotalPages: 45, UserEnd: 0x27, DynamicLockPage: 0x28,
		FactoryCC: [4]byte{0xE1, 0x10, 0x12, 0x00},
	}
	ModelNTAG215 = TagModel{
		Name: "NTAG215", TotalPages: 135, UserEnd: 0x81, DynamicLockPage: 0x82,
		FactoryCC: [4]byte{0xE1, 0x10, 0x3E, 0x00},
	}
	ModelNTAG216 = TagModel{
		Name: "NTAG216", TotalPages: 231, UserEnd: 0xE1, DynamicLockPage: 0xE2,
		FactoryCC: [4]byte{0xE1, 0x10, 0x6D, 0x00},
	}
	ModelNTAG21x2A = TagModel{
		Name: "NTAG21x_2A", TotalPages: 135, UserEnd: 0x81, DynamicLockPage: 0x82,
		FactoryCC: [4]byte{0xE1, 0x11, 0x7F, 0x00},
	}
	ModelUltralight = TagModel{
		Name: "ULTRALIGHT", TotalPages: 16, UserEnd: 0x0F,
		FactoryCC: [4]byte{0xE1, 0x10, 0x06, 0x00},
	}
)

// Common UIDs for testing. Byte 5 of a UID is what the tag shows at byte 6
// of pages 0 to 2, where identification looks for the product type.
var (
	// TestNTAG213UID carries product byte 0x0F
	TestNTAG213UID = []byte{0x04, 0xA1, 0xB2, 0xC3, 0xD4, 0x0F, 0xE6}
	// TestNTAG215UID carries product byte 0x11
	TestNTAG215UID = []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x11, 0x66}
	// TestNTAG216UID carries product byte 0x13
	TestNTAG216UID = []byte{0x04, 0x21, 0x32, 0x43, 0x54, 0x13, 0x76}
	// TestNTAG21x2AUID carries product byte 0x2A
	TestNTAG21x2AUID = []byte{0x04, 0x5A, 0x6B, 0x7C, 0x8D, 0x2A, 0x9F}
	// TestPlainUID carries no recognizable product byte
	TestPlainUID = []byte{0x04, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
)

// VirtualTag represents a simulated NFC tag for testing
type VirtualTag struct {
	failWrites map[int]int
	Model      TagModel
	UID        []byte
	pages      [][4]byte
	writes     int
	mu         syncutil.Mutex
	// WriteProtected refuses every write without setting lock bits
	WriteProtected bool
}

// NewVirtualTag creates a tag of the given model with a factory memory
// image. A nil uid uses TestPlainUID.
func NewVirtualTag(model TagModel, uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestPlainUID
	}
	tag := &VirtualTag{
		Model:      model,
		UID:        append([]byte(nil), uid...),
		pages:      make([][4]byte, model.TotalPages),
		failWrites: make(map[int]int),
	}
	tag.initMemory()
	return tag
}

// NewVirtualNTAG213 creates a virtual NTAG213 tag
func NewVirtualNTAG213(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestNTAG213UID
	}
	return NewVirtualTag(ModelNTAG213, uid)
}

// NewVirtualNTAG215 creates a virtual NTAG215 tag
func NewVirtualNTAG215(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestNTAG215UID
	}
	return NewVirtualTag(ModelNTAG215, uid)
}

// NewVirtualNTAG216 creates a virtual NTAG216 tag
func NewVirtualNTAG216(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestNTAG216UID
	}
	return NewVirtualTag(ModelNTAG216, uid)
}

// NewVirtualNTAG21x2A creates a virtual NTAG21x tag with the 1016 byte layout
func NewVirtualNTAG21x2A(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestNTAG21x2AUID
	}
	return NewVirtualTag(ModelNTAG21x2A, uid)
}

// NewVirtualUltralight creates a virtual MIFARE Ultralight tag
func NewVirtualUltralight(uid []byte) *VirtualTag {
	return NewVirtualTag(ModelUltralight, uid)
}

// initMemory lays out UID, check bytes, lock bytes and capability container
func (v *VirtualTag) initMemory() {
	u := v.UID
	if len(u) >= 7 {
		bcc0 := 0x88 ^ u[0] ^ u[1] ^ u[2]
		bcc1 := u[3] ^ u[4] ^ u[5] ^ u[6]
		v.pages[0] = [4]byte{u[0], u[1], u[2], bcc0}
		v.pages[1] = [4]byte{u[3], u[4], u[5], u[6]}
		v.pages[2] = [4]byte{bcc1, 0x48, 0x00, 0x00}
	} else {
		copy(v.pages[0][:], u)
	}
	v.pages[3] = v.Model.FactoryCC
}

// UIDString returns the UID the way readers report it
func (v *VirtualTag) UIDString() string {
	return fmt.Sprintf("% X", v.UID)
}

// ReadPage returns one page
func (v *VirtualTag) ReadPage(page int) ([4]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if page < 0 || page >= len(v.pages) {
		return [4]byte{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}
	return v.pages[page], nil
}

// ReadPages returns count pages starting at page, wrapping like the native
// READ command which always returns four pages.
func (v *VirtualTag) ReadPages(page, count int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if page < 0 || page >= len(v.pages) {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}
	out := make([]byte, 0, count*4)
	for i := range count {
		p := v.pages[(page+i)%len(v.pages)]
		out = append(out, p[:]...)
	}
	return out, nil
}

// WritePage writes one page, applying the one-way rules of lock and
// capability container pages.
func (v *VirtualTag) WritePage(page int, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(data) != 4 {
		return fmt.Errorf("write needs 4 bytes, got %d", len(data))
	}
	if page < 0 || page >= len(v.pages) {
		return fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}
	if n := v.failWrites[page]; n > 0 {
		v.failWrites[page] = n - 1
		return fmt.Errorf("%w: page %d", ErrWriteRefused, page)
	}
	if v.WriteProtected {
		return fmt.Errorf("%w: page %d", ErrWriteRefused, page)
	}
	if v.pageLocked(page) {
		return fmt.Errorf("%w: %d", ErrPageLocked, page)
	}

	switch {
	case page < 2:
		return fmt.Errorf("%w: %d", ErrPageReadOnly, page)
	case page == 2:
		// Only the lock bytes are writable and their bits only ever set
		v.pages[2][2] |= data[2]
		v.pages[2][3] |= data[3]
	case page == 3:
		// Capability container bits are one-time programmable
		for i := range 4 {
			v.pages[3][i] |= data[i]
		}
	case v.Model.DynamicLockPage != 0 && page == v.Model.DynamicLockPage:
		for i := range 3 {
			v.pages[page][i] |= data[i]
		}
	default:
		copy(v.pages[page][:], data)
	}
	v.writes++
	return nil
}

// pageLocked applies a coarse model of the lock bits: static lock byte 0
// covers pages 3 to 7, byte 1 pages 8 to 15 and any dynamic lock bit the
// rest of user memory.
func (v *VirtualTag) pageLocked(page int) bool {
	lock0, lock1 := v.pages[2][2], v.pages[2][3]
	switch {
	case page >= 3 && page <= 7:
		return lock0 != 0
	case page >= 8 && page <= 15:
		return lock1 != 0
	case page >= 16 && page <= v.Model.UserEnd && v.Model.DynamicLockPage != 0:
		dyn := v.pages[v.Model.DynamicLockPage]
		return dyn[0]|dyn[1]|dyn[2] != 0
	case v.Model.DynamicLockPage != 0 && page == v.Model.DynamicLockPage:
		return false
	default:
		return false
	}
}

// SetPage overwrites a page directly, bypassing write rules
func (v *VirtualTag) SetPage(page int, data [4]byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pages[page] = data
}

// SetMemory copies data into consecutive pages starting at page
func (v *VirtualTag) SetMemory(page int, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for off := 0; off < len(data); off += 4 {
		var p [4]byte
		copy(p[:], data[off:min(off+4, len(data))])
		v.pages[page+off/4] = p
	}
}

// Memory returns count*4 bytes starting at page
func (v *VirtualTag) Memory(page, count int) []byte {
	out := make([]byte, 0, count*4)
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range count {
		out = append(out, v.pages[page+i][:]...)
	}
	return out
}

// FailNextWrites makes the next n writes to page fail
func (v *VirtualTag) FailNextWrites(page, n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failWrites[page] = n
}

// WriteCount returns how many page writes succeeded
func (v *VirtualTag) WriteCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writes
}

// SetStaticLock sets the static lock bytes as a locked tag would have them
func (v *VirtualTag) SetStaticLock(lock0, lock1 byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pages[2][2], v.pages[2][3] = lock0, lock1
}

// SetDynamicLock sets the dynamic lock bytes
func (v *VirtualTag) SetDynamicLock(b0, b1, b2 byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Model.DynamicLockPage == 0 {
		return
	}
	v.pages[v.Model.DynamicLockPage] = [4]byte{b0, b1, b2, 0x00}
}
