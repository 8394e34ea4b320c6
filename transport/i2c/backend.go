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
	"fmt"
	"runtime"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/pn532"
)

// BackendName is the name the I2C backend registers under
const BackendName = "i2c"

func init() {
	offertag.RegisterBackend(&backend{})
}

type backend struct{}

func (*backend) Name() string {
	return BackendName
}

// ListReaders returns the I2C buses with a device answering at the PN532
// address. Only Linux exposes I2C buses to user space.
func (*backend) ListReaders(_ context.Context) ([]offertag.ReaderInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	var readers []offertag.ReaderInfo
	for _, ref := range i2creg.All() {
		bus, err := ref.Open()
		if err != nil {
			offertag.Debugf("I2C bus %s: %v", ref.Name, err)
			continue
		}
		found := addressResponds(bus)
		_ = bus.Close()
		if !found {
			continue
		}
		readers = append(readers, offertag.ReaderInfo{
			Backend:  BackendName,
			Name:     "PN532 " + ref.Name,
			Path:     fmt.Sprintf("%s:0x%02x", ref.Name, Address),
			Metadata: map[string]string{"address": fmt.Sprintf("0x%02x", Address)},
		})
	}
	return readers, nil
}

// addressResponds reads the status byte; a missing device NACKs its address
func addressResponds(bus i2c.Bus) bool {
	dev := &i2c.Dev{Addr: Address, Bus: bus}
	return dev.Tx(nil, make([]byte, 1)) == nil
}

// Open opens the bus and checks that a PN532 answers on it
func (*backend) Open(ctx context.Context, reader offertag.ReaderInfo) (offertag.Transport, error) {
	link, err := Open(reader.Path)
	if err != nil {
		return nil, err
	}
	bridge := pn532.NewBridge(link, reader.Name)
	fw, err := bridge.Firmware(ctx)
	if err != nil {
		_ = bridge.Close()
		return nil, fmt.Errorf("no PN532 on %s: %w", reader.Path, err)
	}
	offertag.Debugf("%s firmware %s", reader.Path, fw)
	return bridge, nil
}
