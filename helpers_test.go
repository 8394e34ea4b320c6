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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-offertag/internal/testing"
)

// newVirtualDevice returns a device talking to a simulated reader with tag
// placed on it. Every wait is removed.
func newVirtualDevice(t *testing.T, tag *testutil.VirtualTag) (*Device, *testutil.VirtualReader) {
	t.Helper()
	reader := testutil.NewVirtualReader(tag)
	device, err := New(reader, WithTiming(NoDelayTiming()))
	require.NoError(t, err)
	return device, reader
}

// setupDeviceWithMock returns a device over a MockTransport prepared by
// setupMock.
func setupDeviceWithMock(t *testing.T, setupMock func(*MockTransport)) (*Device, *MockTransport) {
	t.Helper()
	mock := NewMockTransport()
	if setupMock != nil {
		setupMock(mock)
	}
	device, err := New(mock, WithTiming(NoDelayTiming()))
	require.NoError(t, err)
	return device, mock
}

// testOffer returns an offer code of the current length
func testOffer() string {
	return "offer1" + strings.Repeat("q", OfferLength-6)
}

func testRecord(t *testing.T) Record {
	t.Helper()
	rec, err := NewRecord("", "nft1abc", testOffer(), DefaultOfferPolicy())
	require.NoError(t, err)
	return rec
}
