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
	"fmt"
	"strings"

	"github.com/clausecker/nfc/v2"

	offertag "github.com/ZaparooProject/go-offertag"
)

func init() {
	offertag.RegisterBackend(&backend{list: nfc.ListDevices, open: openDevice})
}

func openDevice(connstring string) (device, error) {
	dev, err := nfc.Open(connstring)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", connstring, err)
	}
	return dev, nil
}

type backend struct {
	list func() ([]string, error)
	open func(connstring string) (device, error)
}

func (*backend) Name() string {
	return BackendName
}

// ListReaders returns the libnfc connection strings found by a device scan.
// PC/SC readers seen through libnfc's pcsc driver are left to the pcsc
// backend.
func (b *backend) ListReaders(_ context.Context) ([]offertag.ReaderInfo, error) {
	conns, err := b.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list libnfc devices: %w", err)
	}
	readers := make([]offertag.ReaderInfo, 0, len(conns))
	for _, conn := range conns {
		driver, _, _ := strings.Cut(conn, ":")
		if driver == "pcsc" || driver == "acr122_pcsc" {
			continue
		}
		readers = append(readers, offertag.ReaderInfo{
			Backend:  BackendName,
			Name:     conn,
			Path:     conn,
			Metadata: map[string]string{"driver": driver},
		})
	}
	return readers, nil
}

// Open opens the device and puts it in initiator mode
func (b *backend) Open(_ context.Context, reader offertag.ReaderInfo) (offertag.Transport, error) {
	dev, err := b.open(reader.Path)
	if err != nil {
		return nil, err
	}
	return newTransport(dev)
}
