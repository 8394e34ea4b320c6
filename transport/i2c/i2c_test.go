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

package i2c

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/frame"
	"github.com/ZaparooProject/go-offertag/internal/pn532"
	virt "github.com/ZaparooProject/go-offertag/internal/testing"
)

var errBusClosed = errors.New("bus is closed")

// mockBus implements i2c.Bus on top of VirtualPN532. Reads carry the
// status byte the chip prepends.
type mockBus struct {
	sim     *virt.VirtualPN532
	lastErr error
	addr    uint16
	closed  bool
}

func (m *mockBus) Tx(addr uint16, w, r []byte) error {
	if m.closed {
		return errBusClosed
	}
	m.addr = addr
	if len(w) > 0 {
		if _, err := m.sim.Write(w); err != nil {
			return err
		}
	}
	if len(r) == 0 {
		return nil
	}
	for i := range r {
		r[i] = 0
	}
	if !m.sim.HasPendingResponse() {
		return nil
	}
	r[0] = pn532Ready
	if len(r) == 1 {
		return nil
	}
	_, err := m.sim.Read(r[1:])
	return err
}

func (*mockBus) SetSpeed(physic.Frequency) error { return nil }

func (*mockBus) String() string { return "mock://i2c" }

func (m *mockBus) Close() error {
	m.closed = true
	return nil
}

var _ i2c.Bus = (*mockBus)(nil)

func newTestLink(sim *virt.VirtualPN532) (*Link, *mockBus) {
	bus := &mockBus{sim: sim}
	return NewLink(bus, "mock://i2c"), bus
}

func TestLinkFirmwareVersion(t *testing.T) {
	t.Parallel()
	link, bus := newTestLink(virt.NewVirtualPN532())

	resp, err := link.SendCommand(context.Background(), pn532.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, resp)
	assert.Equal(t, uint16(Address), bus.addr)
}

func TestLinkRecoversFromChecksumError(t *testing.T) {
	t.Parallel()
	sim := virt.NewVirtualPN532()
	sim.InjectChecksumError()
	link, _ := newTestLink(sim)

	resp, err := link.SendCommand(context.Background(), pn532.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), resp[0])
}

func TestLinkErrorFrame(t *testing.T) {
	t.Parallel()
	link, _ := newTestLink(virt.NewVirtualPN532())

	_, err := link.SendCommand(context.Background(), 0x60, nil)
	require.ErrorIs(t, err, frame.ErrApplicationError)
}

func TestLinkContextCancelled(t *testing.T) {
	t.Parallel()
	link, _ := newTestLink(virt.NewVirtualPN532())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := link.SendCommand(ctx, pn532.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLinkCloseReleasesBus(t *testing.T) {
	t.Parallel()
	link, bus := newTestLink(virt.NewVirtualPN532())

	require.NoError(t, link.Close())
	assert.True(t, bus.closed)
	require.NoError(t, link.Close())
}

func TestWriteRecordOverI2C(t *testing.T) {
	t.Parallel()
	sim := virt.NewVirtualPN532()
	tag := virt.NewVirtualNTAG216(nil)
	sim.SetTag(tag)
	link, _ := newTestLink(sim)
	ctx := context.Background()

	device, err := offertag.New(pn532.NewBridge(link, "PN532 i2c"),
		offertag.WithTiming(offertag.NoDelayTiming()))
	require.NoError(t, err)

	offer := "offer1" + strings.Repeat("i", offertag.OfferLength-6)
	rec, err := offertag.NewRecord("", "nft1i2c", offer, offertag.DefaultOfferPolicy())
	require.NoError(t, err)
	require.NoError(t, device.WriteRecord(ctx, rec, true))

	got, err := device.ReadRecordFrom(ctx, offertag.VariantNTAG216)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, tag.Memory(0xE2, 1)[:3])
}

func TestParseI2CPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/dev/i2c-1", parseI2CPath("/dev/i2c-1:0x24"))
	assert.Equal(t, "/dev/i2c-1", parseI2CPath("/dev/i2c-1"))
}

func TestAddressResponds(t *testing.T) {
	t.Parallel()
	bus := &mockBus{sim: virt.NewVirtualPN532()}
	assert.True(t, addressResponds(bus))

	bus.closed = true
	assert.False(t, addressResponds(bus))
}
