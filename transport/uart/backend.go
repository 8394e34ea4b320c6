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

package uart

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/pn532"
)

// BackendName is the name the UART backend registers under
const BackendName = "uart"

func init() {
	offertag.RegisterBackend(&backend{list: enumerator.GetDetailedPortsList})
}

// knownVIDPIDs are USB serial bridges commonly soldered onto PN532 boards
var knownVIDPIDs = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

type backend struct {
	list func() ([]*enumerator.PortDetails, error)
}

func (*backend) Name() string {
	return BackendName
}

// ListReaders returns USB serial ports that look like PN532 boards. Ports
// are not opened here; probing an unrelated device can upset it.
func (b *backend) ListReaders(_ context.Context) ([]offertag.ReaderInfo, error) {
	ports, err := b.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var readers []offertag.ReaderInfo
	for _, port := range ports {
		if port == nil || !isLikelyPN532(port) {
			continue
		}
		info := offertag.ReaderInfo{
			Backend:  BackendName,
			Name:     "PN532 " + port.Name,
			Path:     port.Name,
			Metadata: make(map[string]string),
		}
		if port.IsUSB {
			info.Metadata["vidpid"] = vidPID(port)
		}
		if port.Product != "" {
			info.Metadata["product"] = port.Product
		}
		if port.SerialNumber != "" {
			info.Metadata["serial"] = port.SerialNumber
		}
		readers = append(readers, info)
	}
	return readers, nil
}

// Open opens the serial port and checks that a PN532 answers on it
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

func vidPID(port *enumerator.PortDetails) string {
	return strings.ToUpper(port.VID + ":" + port.PID)
}

// isLikelyPN532 matches known USB bridges and product strings
func isLikelyPN532(port *enumerator.PortDetails) bool {
	if !port.IsUSB {
		return false
	}
	id := vidPID(port)
	for _, known := range knownVIDPIDs {
		if id == known {
			return true
		}
	}
	product := strings.ToLower(port.Product)
	for _, keyword := range []string{"pn532", "nfc", "rfid", "13.56"} {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}
