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

package spi

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/pn532"
)

// BackendName is the name the SPI backend registers under
const BackendName = "spi"

// probeTimeout bounds the firmware query used to tell a PN532 from any
// other device on a port
const probeTimeout = 2 * time.Second

func init() {
	offertag.RegisterBackend(&backend{
		hostInit: func() error {
			_, err := host.Init()
			return err
		},
		refs: spireg.All,
	})
}

type backend struct {
	hostInit func() error
	refs     func() []*spireg.Ref
}

func (*backend) Name() string {
	return BackendName
}

// ListReaders probes every SPI port for a PN532. SPI has no addressing, so
// a firmware query is the only way to find the chip. Only Linux exposes SPI
// ports to user space.
func (b *backend) ListReaders(ctx context.Context) ([]offertag.ReaderInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, nil
	}
	if err := b.hostInit(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	var readers []offertag.ReaderInfo
	for _, ref := range b.refs() {
		if err := ctx.Err(); err != nil {
			return readers, err
		}
		fw, ok := probe(ctx, ref)
		if !ok {
			continue
		}
		readers = append(readers, offertag.ReaderInfo{
			Backend:  BackendName,
			Name:     "PN532 " + ref.Name,
			Path:     ref.Name,
			Metadata: map[string]string{"firmware": fw},
		})
	}
	return readers, nil
}

// probe opens ref, asks for the firmware version and closes the port again
func probe(ctx context.Context, ref *spireg.Ref) (string, bool) {
	port, err := ref.Open()
	if err != nil {
		offertag.Debugf("SPI port %s: %v", ref.Name, err)
		return "", false
	}
	link, err := connectPort(port, ref.Name)
	if err != nil {
		offertag.Debugf("SPI port %s: %v", ref.Name, err)
		return "", false
	}
	bridge := pn532.NewBridge(link, ref.Name)
	defer func() { _ = bridge.Close() }()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	fw, err := bridge.Firmware(probeCtx)
	if err != nil {
		offertag.Debugf("SPI port %s: no PN532: %v", ref.Name, err)
		return "", false
	}
	return fw.String(), true
}

// Open opens the port and checks that a PN532 answers on it
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
