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

package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ebfe/scard"

	offertag "github.com/ZaparooProject/go-offertag"
)

func init() {
	offertag.RegisterBackend(&backend{establish: establish})
}

type backend struct {
	establish func() (cardContext, error)
}

func (*backend) Name() string {
	return BackendName
}

// ListReaders returns the contactless PC/SC readers. SAM slots are skipped.
func (b *backend) ListReaders(_ context.Context) ([]offertag.ReaderInfo, error) {
	ctx, err := b.establish()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctx.Release() }()

	names, err := ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list PC/SC readers: %w", err)
	}

	readers := make([]offertag.ReaderInfo, 0, len(names))
	for _, name := range names {
		if strings.Contains(strings.ToUpper(name), "SAM") {
			continue
		}
		readers = append(readers, offertag.ReaderInfo{
			Backend: BackendName,
			Name:    name,
			Path:    name,
		})
	}
	return readers, nil
}

// Open returns a transport for the reader. The PC/SC context lives as long
// as the transport.
func (b *backend) Open(_ context.Context, reader offertag.ReaderInfo) (offertag.Transport, error) {
	ctx, err := b.establish()
	if err != nil {
		return nil, err
	}
	return newTransport(ctx, reader.Name), nil
}
