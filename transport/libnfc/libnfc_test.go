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

package libnfc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/clausecker/nfc/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	offertag "github.com/ZaparooProject/go-offertag"
	virt "github.com/ZaparooProject/go-offertag/internal/testing"
)

var errNoTarget = errors.New("no target found")

// fakeDevice answers native tag commands from a VirtualTag
type fakeDevice struct {
	tag       *virt.VirtualTag
	initErr   error
	selects   int
	closed    bool
	deselects int
}

func (*fakeDevice) String() string { return "PN533 fake" }

func (d *fakeDevice) InitiatorInit() error { return d.initErr }

func (d *fakeDevice) InitiatorSelectPassiveTarget(nfc.Modulation, []byte) (nfc.Target, error) {
	d.selects++
	if d.tag == nil {
		return nil, errNoTarget
	}
	target := &nfc.ISO14443aTarget{UIDLen: 7}
	copy(target.UID[:], d.tag.UID)
	return target, nil
}

func (d *fakeDevice) InitiatorTransceiveBytes(tx, rx []byte, _ int) (int, error) {
	if d.tag == nil {
		return 0, errors.New("RF transmission error")
	}
	switch tx[0] {
	case tagRead:
		data, err := d.tag.ReadPages(int(tx[1]), 4)
		if err != nil {
			return 0, err
		}
		return copy(rx, data), nil
	case tagWrite:
		if err := d.tag.WritePage(int(tx[1]), tx[2:6]); err != nil {
			return 0, errors.New("RF transmission error")
		}
		return 0, nil
	default:
		return 0, errors.New("unsupported command")
	}
}

func (d *fakeDevice) InitiatorDeselectTarget() error {
	d.deselects++
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func newFakeTransport(t *testing.T, tag *virt.VirtualTag) (*Transport, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{tag: tag}
	transport, err := newTransport(dev)
	require.NoError(t, err)
	return transport, dev
}

func TestGetUID(t *testing.T) {
	t.Parallel()
	transport, _ := newFakeTransport(t, virt.NewVirtualNTAG213(nil))

	resp, err := transport.Transmit(context.Background(), offertag.GetUIDCommand())
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), virt.TestNTAG213UID...), 0x90, 0x00), resp)
	assert.Equal(t, "PN533 fake", transport.ReaderName())
}

func TestNoTarget(t *testing.T) {
	t.Parallel()
	transport, _ := newFakeTransport(t, nil)

	_, err := transport.Transmit(context.Background(), offertag.GetUIDCommand())
	require.ErrorIs(t, err, offertag.ErrNoCard)
}

func TestRefusedWriteIsStatus(t *testing.T) {
	t.Parallel()
	tag := virt.NewVirtualNTAG213(nil)
	tag.WriteProtected = true
	transport, _ := newFakeTransport(t, tag)

	resp, err := transport.Transmit(context.Background(),
		offertag.WritePageCommand(offertag.InsUpdateBin, 4, make([]byte, 4)))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x63, 0x00}, resp)
}

func TestRemovedDuringWrite(t *testing.T) {
	t.Parallel()
	transport, dev := newFakeTransport(t, virt.NewVirtualNTAG213(nil))
	bg := context.Background()

	_, err := transport.Transmit(bg, offertag.GetUIDCommand())
	require.NoError(t, err)

	dev.tag = nil
	_, err = transport.Transmit(bg, offertag.WritePageCommand(offertag.InsUpdateBin, 4, make([]byte, 4)))
	require.ErrorIs(t, err, offertag.ErrNoCard)
}

func TestInitFailureClosesDevice(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{initErr: errors.New("device busy")}

	_, err := newTransport(dev)
	require.Error(t, err)
	assert.True(t, dev.closed)
}

func TestCloseDeselects(t *testing.T) {
	t.Parallel()
	transport, dev := newFakeTransport(t, virt.NewVirtualNTAG213(nil))

	_, err := transport.Transmit(context.Background(), offertag.GetUIDCommand())
	require.NoError(t, err)
	require.NoError(t, transport.Close())
	assert.Equal(t, 1, dev.deselects)
	assert.True(t, dev.closed)

	_, err = transport.Transmit(context.Background(), offertag.GetUIDCommand())
	require.ErrorIs(t, err, offertag.ErrReaderClosed)
}

func TestWriteRecordOverLibnfc(t *testing.T) {
	t.Parallel()
	transport, _ := newFakeTransport(t, virt.NewVirtualNTAG21x2A(nil))
	bg := context.Background()

	device, err := offertag.New(transport, offertag.WithTiming(offertag.NoDelayTiming()))
	require.NoError(t, err)

	offer := "offer1" + strings.Repeat("n", offertag.OfferLength-6)
	rec, err := offertag.NewRecord("", "nft1libnfc", offer, offertag.DefaultOfferPolicy())
	require.NoError(t, err)
	require.NoError(t, device.WriteRecord(bg, rec, false))

	variant, err := device.IdentifyTag(bg)
	require.NoError(t, err)
	assert.Equal(t, offertag.VariantNTAG21x2A, variant)

	got, err := device.ReadRecord(bg)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestBackendListReaders(t *testing.T) {
	t.Parallel()
	b := &backend{list: func() ([]string, error) {
		return []string{"pn532_uart:/dev/ttyUSB0", "acr122_pcsc:ACS ACR122U 00 00"}, nil
	}}

	readers, err := b.ListReaders(context.Background())
	require.NoError(t, err)
	require.Len(t, readers, 1)
	assert.Equal(t, "pn532_uart:/dev/ttyUSB0", readers[0].Path)
	assert.Equal(t, "pn532_uart", readers[0].Metadata["driver"])
}

func TestBackendOpen(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{tag: virt.NewVirtualNTAG213(nil)}
	b := &backend{open: func(string) (device, error) { return dev, nil }}

	transport, err := b.Open(context.Background(), offertag.ReaderInfo{Path: "pn532_uart:/dev/ttyUSB0"})
	require.NoError(t, err)
	require.NoError(t, transport.Close())
	assert.True(t, dev.closed)
}
