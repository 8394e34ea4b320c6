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
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// ReaderInfo describes a reader found by a backend.
type ReaderInfo struct {
	// Additional metadata (e.g., VID:PID for USB devices)
	Metadata map[string]string
	// Backend that found the reader: "pcsc", "libnfc", "uart", "i2c"
	Backend string
	// Name as reported by the backend
	Name string
	// Connection path (e.g., "/dev/ttyUSB0", "pn532_uart:/dev/ttyUSB0")
	Path string
}

// String returns a human-readable representation of the reader
func (r ReaderInfo) String() string {
	if r.Path != "" && r.Path != r.Name {
		return fmt.Sprintf("%s reader %s at %s", r.Backend, r.Name, r.Path)
	}
	return fmt.Sprintf("%s reader %s", r.Backend, r.Name)
}

// Backend finds readers of one kind and opens transports to them.
type Backend interface {
	// Name returns the backend name used in configuration
	Name() string
	// ListReaders returns the readers currently attached
	ListReaders(ctx context.Context) ([]ReaderInfo, error)
	// Open connects to a reader returned by ListReaders
	Open(ctx context.Context, reader ReaderInfo) (Transport, error)
}

var (
	registryMu syncutil.RWMutex
	registry   = make(map[string]Backend)
)

// RegisterBackend adds a backend to the registry. Backend packages call it
// from init so a blank import is enough to enable them.
func RegisterBackend(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[b.Name()] = b
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// getBackends returns backends filtered by name
func getBackends(names []string) ([]Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if len(names) == 0 {
		all := make([]Backend, 0, len(registry))
		for _, name := range sortedKeys(registry) {
			all = append(all, registry[name])
		}
		return all, nil
	}

	filtered := make([]Backend, 0, len(names))
	for _, name := range names {
		b, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
		}
		filtered = append(filtered, b)
	}
	return filtered, nil
}

func sortedKeys(m map[string]Backend) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type enumerationResult struct {
	err     error
	readers []ReaderInfo
	index   int
}

// EnumerateReaders lists readers from the named backends, or from every
// registered backend when names is empty. Backends run in parallel and
// results keep backend order. Readers are returned even if some backends
// failed.
func EnumerateReaders(ctx context.Context, names ...string) ([]ReaderInfo, error) {
	backends, err := getBackends(names)
	if err != nil {
		return nil, err
	}
	if len(backends) == 0 {
		return nil, ErrNoReader
	}

	results := make(chan enumerationResult, len(backends))
	for i, b := range backends {
		go func(idx int, b Backend) {
			readers, listErr := b.ListReaders(ctx)
			if listErr != nil {
				listErr = fmt.Errorf("%s: %w", b.Name(), listErr)
			}
			results <- enumerationResult{index: idx, readers: readers, err: listErr}
		}(i, b)
	}

	ordered := make([][]ReaderInfo, len(backends))
	var errs []error
	for range backends {
		select {
		case res := <-results:
			if res.err != nil {
				Debugf("reader enumeration: %v", res.err)
				errs = append(errs, res.err)
				continue
			}
			ordered[res.index] = res.readers
		case <-ctx.Done():
			return nil, fmt.Errorf("reader enumeration: %w", ctx.Err())
		}
	}

	var all []ReaderInfo
	for _, readers := range ordered {
		all = append(all, readers...)
	}
	if len(all) > 0 {
		return all, nil
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoReader, errors.Join(errs...))
	}
	return nil, ErrNoReader
}

// OpenReader connects to the first reader whose name or path contains
// match (case-insensitive), or to the first reader found when match is
// empty.
func OpenReader(ctx context.Context, backend, match string) (Transport, ReaderInfo, error) {
	var names []string
	if backend != "" {
		names = []string{backend}
	}
	readers, err := EnumerateReaders(ctx, names...)
	if err != nil {
		return nil, ReaderInfo{}, err
	}

	info, ok := selectReader(readers, match)
	if !ok {
		return nil, ReaderInfo{}, fmt.Errorf("%w: no reader matching %q", ErrNoReader, match)
	}

	backends, err := getBackends([]string{info.Backend})
	if err != nil {
		return nil, ReaderInfo{}, err
	}
	transport, err := backends[0].Open(ctx, info)
	if err != nil {
		return nil, ReaderInfo{}, &ConnectivityError{Op: "open", Reader: info.Name, Err: err}
	}
	return transport, info, nil
}

func selectReader(readers []ReaderInfo, match string) (ReaderInfo, bool) {
	if len(readers) == 0 {
		return ReaderInfo{}, false
	}
	if match == "" {
		return readers[0], true
	}
	needle := strings.ToLower(match)
	for _, r := range readers {
		if strings.Contains(strings.ToLower(r.Name), needle) ||
			strings.Contains(strings.ToLower(r.Path), needle) {
			return r, true
		}
	}
	return ReaderInfo{}, false
}
