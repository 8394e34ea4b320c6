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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-offertag/internal/testing"
)

func TestInfo(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualNTAG213(nil)
	tag.SetDynamicLock(0x01, 0x00, 0x00)
	device, _ := newVirtualDevice(t, tag)

	info, err := device.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "04 A1 B2 C3 D4 0F E6", info.UID)
	assert.Equal(t, "04a1b29f", info.ManufacturerData)
	assert.Equal(t, "e1101200", info.CCBytes)
	assert.Equal(t, "04a1b29fc3d40fe6fe480000", info.VersionData)
	assert.Equal(t, "NTAG213", info.Type)
	assert.Equal(t, "144 bytes", info.MemorySize)
	assert.Equal(t, "fe480000", info.StaticLock)
	assert.Equal(t, "01000000", info.DynamicLock)
}

func TestInfoUnknownProduct(t *testing.T) {
	t.Parallel()

	device, _ := newVirtualDevice(t, testutil.NewVirtualUltralight(nil))
	info, err := device.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Unknown NTAG21x (type: 0xee)", info.Type)
	assert.Empty(t, info.MemorySize)
	assert.Empty(t, info.DynamicLock)

	labels := make([]string, 0)
	for _, f := range info.Fields() {
		labels = append(labels, f[0])
	}
	assert.Equal(t, []string{"UID", "Manufacturer Data", "CC Bytes", "Version Data", "Type", "Static Lock"}, labels)
}

func TestInfoNoCard(t *testing.T) {
	t.Parallel()

	device, _ := newVirtualDevice(t, nil)
	_, err := device.Info(context.Background())
	require.ErrorIs(t, err, ErrConnectivity)
}
