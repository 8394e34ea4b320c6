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

// Package csvio reads record files and keeps the scan ledger, both CSV
// files with a uid,version,nft_id,offer header.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Column names
const (
	ColUID        = "uid"
	ColVersion    = "version"
	ColIdentifier = "nft_id"
	ColOffer      = "offer"
)

// Header is the column order used when writing
var Header = []string{ColUID, ColVersion, ColIdentifier, ColOffer}

// ErrMissingColumn is returned when a required column is absent
var ErrMissingColumn = errors.New("missing column")

// Row is one line of a record file. Columns absent from the file are empty.
type Row struct {
	UID        string
	Version    string
	Identifier string
	Offer      string
	// Line is the 1-based line number in the source file
	Line int
}

func (r Row) fields() []string {
	return []string{r.UID, r.Version, r.Identifier, r.Offer}
}

// ReadRows reads rows by header name. Columns are matched case-insensitively
// and extra columns are ignored. Every name in required must be present in
// the header.
func ReadRows(r io.Reader, required ...string) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if isBlank(rec) {
			continue
		}
		rows = append(rows, Row{
			UID:        get(rec, ColUID),
			Version:    get(rec, ColVersion),
			Identifier: get(rec, ColIdentifier),
			Offer:      get(rec, ColOffer),
			Line:       line,
		})
	}
}

// ReadFile reads rows from path
func ReadFile(path string, required ...string) ([]Row, error) {
	//nolint:gosec // path comes from the command line
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	rows, err := ReadRows(f, required...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func isBlank(rec []string) bool {
	for _, field := range rec {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
