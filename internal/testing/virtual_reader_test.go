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

package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualReaderCommands(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reader := NewVirtualReader(NewVirtualNTAG213(nil))

	resp, err := reader.Transmit(ctx, []byte{0xFF, 0xCA, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), TestNTAG213UID...), 0x90, 0x00), resp)

	resp, err = reader.Transmit(ctx, []byte{0xFF, 0xB0, 0x00, 0x03, 0x04})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE1, 0x10, 0x12, 0x00, 0x90, 0x00}, resp)

	resp, err = reader.Transmit(ctx, []byte{0xFF, 0xD6, 0x00, 0x04, 0x04, 0x03, 0x00, 0xFE, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x00}, resp)
	assert.Equal(t, []byte{0x03, 0x00, 0xFE, 0x00}, reader.Tag().Memory(4, 1))

	resp, err = reader.Transmit(ctx, []byte{0xFF, 0xA2, 0x00, 0x00, 0x04, 0x01, 0x02, 0x03, 0x04})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x63, 0x00}, resp, "UID page refuses writes")

	resp, err = reader.Transmit(ctx, []byte{0xFF, 0xB0, 0x00, 0x80, 0x04})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x6A, 0x82}, resp)

	assert.Equal(t, []int{4, 0}, reader.WriteCommands())
	assert.Equal(t, 2, reader.GetCommandCount(0xB0))
}

func TestVirtualReaderRejectedInstruction(t *testing.T) {
	t.Parallel()

	reader := NewVirtualReader(NewVirtualNTAG213(nil))
	reader.RejectInstruction(0xB0)

	resp, err := reader.Transmit(context.Background(), []byte{0xFF, 0xB0, 0x00, 0x04, 0x04})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x6D, 0x00}, resp)

	resp, err = reader.Transmit(context.Background(), []byte{0xFF, 0x30, 0x00, 0x04, 0x04})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x00}, resp[4:])
}

func TestVirtualReaderFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	getUID := []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}

	reader := NewVirtualReader(nil)
	_, err := reader.Transmit(ctx, getUID)
	require.ErrorIs(t, err, ErrNoTag)

	reader.PlaceTag(NewVirtualNTAG215(nil))
	reader.FailNextTransmits(1)
	_, err = reader.Transmit(ctx, getUID)
	require.ErrorIs(t, err, ErrLinkDropped)
	_, err = reader.Transmit(ctx, getUID)
	require.NoError(t, err)

	require.NoError(t, reader.Close())
	assert.True(t, reader.IsClosed())
	_, err = reader.Transmit(ctx, getUID)
	require.ErrorIs(t, err, ErrReaderClosed)
}

func TestVirtualReaderContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewVirtualReader(NewVirtualNTAG213(nil))
	_, err := reader.Transmit(ctx, []byte{0xFF, 0xCA, 0x00, 0x00, 0x00})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reader.CommandLog)
}
