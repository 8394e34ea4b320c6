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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-offertag/internal/testing"
)

func pageWrites(reader *testutil.VirtualReader, page int) int {
	n := 0
	for _, p := range reader.WriteCommands() {
		if p == page {
			n++
		}
	}
	return n
}

func TestWriteRecordRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		newTag func() *testutil.VirtualTag
		name   string
	}{
		{name: "NTAG213", newTag: func() *testutil.VirtualTag { return testutil.NewVirtualNTAG213(nil) }},
		{name: "NTAG215", newTag: func() *testutil.VirtualTag { return testutil.NewVirtualNTAG215(nil) }},
		{name: "NTAG216", newTag: func() *testutil.VirtualTag { return testutil.NewVirtualNTAG216(nil) }},
		{name: "NTAG21x_2A", newTag: func() *testutil.VirtualTag { return testutil.NewVirtualNTAG21x2A(nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			tag := tt.newTag()
			device, _ := newVirtualDevice(t, tag)
			rec := testRecord(t)

			require.NoError(t, device.WriteRecord(ctx, rec, false))
			got, err := device.ReadRecord(ctx)
			require.NoError(t, err)
			assert.Equal(t, rec, got)
		})
	}
}

func TestWriteRecordOverwritesPreviousRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	device, _ := newVirtualDevice(t, testutil.NewVirtualNTAG215(nil))
	first := testRecord(t)
	second, err := NewRecord("DT002", "nft1other", "ABCDE", OfferPolicy{Legacy: true, Strict: true})
	require.NoError(t, err)

	require.NoError(t, device.WriteRecord(ctx, first, false))
	require.NoError(t, device.WriteRecord(ctx, second, false))

	got, err := device.ReadRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestWriteRecordAndLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualNTAG213(nil)
	device, reader := newVirtualDevice(t, tag)
	rec := testRecord(t)

	require.NoError(t, device.WriteRecord(ctx, rec, true))
	assert.True(t, device.IsLocked(ctx, VariantNTAG213))

	before := len(reader.WriteCommands())
	snapshot := tag.Memory(4, 36)
	err := device.WriteRecord(ctx, testRecord(t), false)
	require.ErrorIs(t, err, ErrTagLocked)
	assert.Len(t, reader.WriteCommands(), before)
	assert.Equal(t, snapshot, tag.Memory(4, 36))

	got, err := device.ReadRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestWriteRecordValidatesBeforeIO(t *testing.T) {
	t.Parallel()

	device, reader := newVirtualDevice(t, testutil.NewVirtualNTAG213(nil))
	err := device.WriteRecord(context.Background(), Record{Version: "DT001", Offer: "x"}, false)
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, reader.CommandLog)
}

func TestWriteRecordRejectsPaddedIdentifier(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"nft1abc ", "   "} {
		device, reader := newVirtualDevice(t, testutil.NewVirtualNTAG213(nil))
		err := device.WriteRecord(context.Background(), Record{Version: "DT001", Identifier: id, Offer: "x"}, false)
		require.ErrorIs(t, err, ErrValidation, "identifier %q", id)
		assert.Empty(t, reader.CommandLog)
	}
}

func TestWriteRecordCapacityBeforeWrite(t *testing.T) {
	t.Parallel()

	device, reader := newVirtualDevice(t, testutil.NewVirtualUltralight(nil))
	err := device.WriteRecord(context.Background(), testRecord(t), false)
	require.ErrorIs(t, err, ErrDataTooLarge)
	// Only the write-back of the lock probe reached the tag
	geo, _ := VariantUltralight.Geometry()
	assert.Equal(t, []int{int(geo.DataStart)}, reader.WriteCommands())
}

func TestWriteRecordLockedTag(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualNTAG215(nil)
	tag.SetDynamicLock(0xFF, 0x00, 0x00)
	device, reader := newVirtualDevice(t, tag)

	err := device.WriteRecord(context.Background(), testRecord(t), false)
	require.ErrorIs(t, err, ErrTagLocked)
	assert.Empty(t, reader.WriteCommands())
}

func TestWriteRecordLockFailureKeepsData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualNTAG213(nil)
	tag.FailNextWrites(0x02, 2*LockWriteAttempts)
	device, _ := newVirtualDevice(t, tag)
	rec := testRecord(t)

	err := device.WriteRecord(ctx, rec, true)
	require.ErrorIs(t, err, ErrCommandFailed)
	require.ErrorIs(t, err, ErrLockFailed)
	assert.Contains(t, err.Error(), "data was written but tag remains rewritable")

	got, err := device.ReadRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestWriteRecordNoCard(t *testing.T) {
	t.Parallel()

	device, _ := newVirtualDevice(t, nil)
	err := device.WriteRecord(context.Background(), testRecord(t), false)
	require.ErrorIs(t, err, ErrConnectivity)
}

func TestClearTag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualUltralight(nil)
	tag.SetMemory(4, bytes.Repeat([]byte{0xAB}, 48))
	device, _ := newVirtualDevice(t, tag)

	require.NoError(t, device.ClearTag(ctx, VariantUltralight))
	assert.Equal(t, make([]byte, 48), tag.Memory(4, 12))

	tag.SetStaticLock(0xFF, 0xFF)
	require.ErrorIs(t, device.ClearTag(ctx, VariantUltralight), ErrTagLocked)
	require.ErrorIs(t, device.ClearTag(ctx, VariantUnknown), ErrUnsupportedTag)
}

func TestFormatTag(t *testing.T) {
	t.Parallel()

	t.Run("writes capability container", func(t *testing.T) {
		t.Parallel()
		tag := testutil.NewVirtualTag(testutil.ModelNTAG213, nil)
		tag.SetPage(3, [4]byte{})
		device, reader := newVirtualDevice(t, tag)

		require.NoError(t, device.FormatTag(context.Background(), VariantNTAG213))
		assert.Equal(t, []byte{0xE1, 0x10, 0x12, 0x00}, tag.Memory(3, 1))
		assert.Equal(t, 1, pageWrites(reader, 3))
	})

	t.Run("accepts larger reported size", func(t *testing.T) {
		t.Parallel()
		tag := testutil.NewVirtualNTAG215(nil)
		device, reader := newVirtualDevice(t, tag)

		require.NoError(t, device.FormatTag(context.Background(), VariantNTAG213))
		assert.Equal(t, []byte{0xE1, 0x10, 0x3E, 0x00}, tag.Memory(3, 1))
		assert.Equal(t, 1, pageWrites(reader, 3))
	})

	t.Run("adjusts on other mismatch", func(t *testing.T) {
		t.Parallel()
		tag := testutil.NewVirtualNTAG213(nil)
		tag.SetPage(3, [4]byte{0xE1, 0x10, 0x12, 0x0F})
		device, reader := newVirtualDevice(t, tag)

		require.NoError(t, device.FormatTag(context.Background(), VariantNTAG213))
		assert.Equal(t, 2, pageWrites(reader, 3))
	})

	t.Run("retries capability container", func(t *testing.T) {
		t.Parallel()
		tag := testutil.NewVirtualNTAG213(nil)
		tag.FailNextWrites(3, 2)
		device, reader := newVirtualDevice(t, tag)

		require.NoError(t, device.FormatTag(context.Background(), VariantNTAG213))
		assert.Equal(t, 3, pageWrites(reader, 3))
	})

	t.Run("fails after attempts", func(t *testing.T) {
		t.Parallel()
		tag := testutil.NewVirtualNTAG213(nil)
		tag.FailNextWrites(3, 2*CCWriteAttempts)
		device, reader := newVirtualDevice(t, tag)

		err := device.FormatTag(context.Background(), VariantNTAG213)
		require.ErrorIs(t, err, ErrFormatFailed)
		require.ErrorIs(t, err, ErrCommandFailed)
		assert.Equal(t, 2*CCWriteAttempts, pageWrites(reader, 3))
	})
}

func TestWriteRecordCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	device, _ := newVirtualDevice(t, testutil.NewVirtualNTAG213(nil))
	require.ErrorIs(t, device.WriteRecord(ctx, testRecord(t), false), context.Canceled)
}
