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

//nolint:paralleltest // Lookup tests use t.Setenv
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	offertag "github.com/ZaparooProject/go-offertag"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "pcsc", cfg.Reader.Backend)
	assert.Equal(t, offertag.DefaultVersion, cfg.Offers.Version)
	assert.Equal(t, "output/nfc_scan_output.csv", cfg.Scan.Output)
	assert.Equal(t, offertag.OfferPolicy{Strict: true}, cfg.OfferPolicy())
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "offertag.yaml", `
reader:
  backend: uart
  name: ttyUSB0
  command_timeout: 500ms
offers:
  legacy: true
timing:
  page_settle: 5ms
polling:
  interval: 100ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "uart", cfg.Reader.Backend)
	assert.Equal(t, "ttyUSB0", cfg.Reader.Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Reader.CommandTimeout)
	assert.Equal(t, 5*time.Millisecond, cfg.Timing.PageSettle)
	assert.Equal(t, offertag.DefaultFormatPause, cfg.Timing.FormatPause)
	assert.Equal(t, offertag.OfferPolicy{Legacy: true, Strict: true}, cfg.OfferPolicy())
	assert.Equal(t, 100*time.Millisecond, cfg.PollConfig().PollInterval)
	assert.Equal(t, "output", cfg.Logging.Dir)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "reader: [unterminated"))
	require.ErrorContains(t, err, "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"OFFERTAG_BACKEND":          "libnfc",
		"OFFERTAG_READER":           " pn532_uart ",
		"OFFERTAG_COMMAND_TIMEOUT":  "3s",
		"OFFERTAG_ALLOW_ANY_LENGTH": "true",
		"OFFERTAG_DEBUG":            "1",
		"OFFERTAG_SCAN_AUTO":        "yes",
	}))
	require.Error(t, err, "yes is not a boolean")

	assert.Equal(t, "libnfc", cfg.Reader.Backend)
	assert.Equal(t, "pn532_uart", cfg.Reader.Name)
	assert.Equal(t, 3*time.Second, cfg.Reader.CommandTimeout)
	assert.True(t, cfg.Offers.AllowAnyLength)
	assert.True(t, cfg.Logging.Debug)
	assert.False(t, cfg.Scan.Auto)
	assert.Equal(t, offertag.OfferPolicy{}, cfg.OfferPolicy())
}

func TestReadEnvFiles(t *testing.T) {
	t.Parallel()
	first := writeFile(t, ".env", "OFFERTAG_BACKEND=uart\nOFFERTAG_VERSION=DT002\n")
	second := writeFile(t, ".env.local", "OFFERTAG_BACKEND=i2c\n")
	missing := filepath.Join(t.TempDir(), ".env.missing")

	values, err := ReadEnvFiles(first, missing, second)
	require.NoError(t, err)
	assert.Equal(t, "i2c", values["OFFERTAG_BACKEND"])
	assert.Equal(t, "DT002", values["OFFERTAG_VERSION"])

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(mapLookup(values)))
	assert.Equal(t, "i2c", cfg.Reader.Backend)
	assert.Equal(t, "DT002", cfg.Offers.Version)
}

func TestLookupPrefersProcessEnvironment(t *testing.T) {
	t.Setenv("OFFERTAG_TEST_LOOKUP", "process")
	lookup := Lookup(map[string]string{
		"OFFERTAG_TEST_LOOKUP": "file",
		"OFFERTAG_TEST_ONLY":   "file",
	})

	v, ok := lookup("OFFERTAG_TEST_LOOKUP")
	assert.True(t, ok)
	assert.Equal(t, "process", v)

	v, ok = lookup("OFFERTAG_TEST_ONLY")
	assert.True(t, ok)
	assert.Equal(t, "file", v)

	_, ok = lookup("OFFERTAG_TEST_UNSET")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mutate func(*Config)
		name   string
		errMsg string
	}{
		{name: "any backend", mutate: func(c *Config) { c.Reader.Backend = "" }},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Reader.Backend = "bluetooth" },
			errMsg: "unknown backend",
		},
		{
			name:   "short version",
			mutate: func(c *Config) { c.Offers.Version = "DT1" },
			errMsg: "exactly 5 characters",
		},
		{
			name:   "negative wait",
			mutate: func(c *Config) { c.Timing.LockVerify = -time.Second },
			errMsg: "must not be negative",
		},
		{
			name:   "zero poll interval",
			mutate: func(c *Config) { c.Polling.Interval = 0 },
			errMsg: "polling.interval",
		},
		{
			name:   "no log dir",
			mutate: func(c *Config) { c.Logging.Dir = "" },
			errMsg: "logging.dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestDeviceOptions(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Timing.PageSettle = 0
	cfg.Timing.FormatPause = 0
	cfg.Timing.LockVerify = 0

	device, err := offertag.New(offertag.NewMockTransport(), cfg.DeviceOptions()...)
	require.NoError(t, err)
	assert.Zero(t, device.Timing().PageSettle)
	assert.Equal(t, offertag.LockWriteAttempts, device.Timing().LockRetry.MaxAttempts)
}
