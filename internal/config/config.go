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

// Package config loads tool settings from a YAML file, .env files and
// OFFERTAG_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/polling"
)

// DefaultPath is read when no config file is named and it exists
const DefaultPath = "offertag.yaml"

// EnvPrefix starts every environment override
const EnvPrefix = "OFFERTAG_"

// KnownBackends are the reader backends the tool ships with. An empty
// backend means any of them.
var KnownBackends = []string{"i2c", "libnfc", "pcsc", "spi", "uart"}

// Config is the top-level configuration of the tool.
type Config struct {
	Reader  ReaderConfig  `yaml:"reader"`
	Offers  OfferConfig   `yaml:"offers"`
	Logging LoggingConfig `yaml:"logging"`
	Scan    ScanConfig    `yaml:"scan"`
	Timing  TimingConfig  `yaml:"timing"`
	Polling PollingConfig `yaml:"polling"`
}

// ReaderConfig selects the reader.
type ReaderConfig struct {
	// Backend is one of KnownBackends, or empty to try all of them.
	Backend string `yaml:"backend"`
	// Name selects the first reader whose name or path contains it.
	Name string `yaml:"name"`
	// CommandTimeout bounds every single command exchange.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// OfferConfig sets the record defaults and offer length policy.
type OfferConfig struct {
	Version        string `yaml:"version"`
	Legacy         bool   `yaml:"legacy"`
	AllowAnyLength bool   `yaml:"allow_any_length"`
}

// LoggingConfig places the operations log.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Debug bool   `yaml:"debug"`
}

// ScanConfig sets the scan workflow defaults.
type ScanConfig struct {
	Output string `yaml:"output"`
	// Auto detects tags by polling instead of waiting for Enter.
	Auto bool `yaml:"auto"`
}

// TimingConfig overrides the waits of the write pipeline.
type TimingConfig struct {
	PageSettle  time.Duration `yaml:"page_settle"`
	FormatPause time.Duration `yaml:"format_pause"`
	LockVerify  time.Duration `yaml:"lock_verify"`
}

// PollingConfig tunes tag detection in auto mode.
type PollingConfig struct {
	Interval       time.Duration `yaml:"interval"`
	RemovalTimeout time.Duration `yaml:"removal_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{
			Backend:        "pcsc",
			CommandTimeout: 2 * time.Second,
		},
		Offers:  OfferConfig{Version: offertag.DefaultVersion},
		Logging: LoggingConfig{Dir: "output"},
		Scan:    ScanConfig{Output: "output/nfc_scan_output.csv"},
		Timing: TimingConfig{
			PageSettle:  offertag.DefaultPageSettle,
			FormatPause: offertag.DefaultFormatPause,
			LockVerify:  offertag.LockVerifyDelay,
		},
		Polling: PollingConfig{
			Interval:       polling.DefaultConfig().PollInterval,
			RemovalTimeout: polling.DefaultConfig().CardRemovalTimeout,
		},
	}
}

// Load reads path over the defaults. An empty path loads DefaultPath when
// it exists and the defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			return cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ReadEnvFiles reads KEY=value files in the .env format. Missing files
// are skipped; later files win.
func ReadEnvFiles(paths ...string) (map[string]string, error) {
	values := make(map[string]string)
	for _, path := range paths {
		env, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for k, v := range env {
			values[k] = v
		}
	}
	return values, nil
}

// Lookup resolves a variable from the process environment first and then
// from values read by ReadEnvFiles, matching godotenv.Load, which never
// overrides variables that are already set.
func Lookup(fileValues map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileValues[key]
		return v, ok
	}
}

// ApplyEnv applies OFFERTAG_* overrides.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}
	duration := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("BACKEND", &c.Reader.Backend)
	str("READER", &c.Reader.Name)
	str("VERSION", &c.Offers.Version)
	str("LOG_DIR", &c.Logging.Dir)
	str("SCAN_OUTPUT", &c.Scan.Output)
	return errors.Join(
		duration("COMMAND_TIMEOUT", &c.Reader.CommandTimeout),
		boolean("LEGACY_OFFER", &c.Offers.Legacy),
		boolean("ALLOW_ANY_LENGTH", &c.Offers.AllowAnyLength),
		boolean("DEBUG", &c.Logging.Debug),
		boolean("SCAN_AUTO", &c.Scan.Auto),
	)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Reader.Backend != "" && !isKnownBackend(c.Reader.Backend) {
		return fmt.Errorf("reader.backend: unknown backend %q (supported: %s)",
			c.Reader.Backend, strings.Join(KnownBackends, ", "))
	}
	if c.Reader.CommandTimeout < 0 {
		return fmt.Errorf("reader.command_timeout: must not be negative, got %v", c.Reader.CommandTimeout)
	}
	if n := utf8.RuneCountInString(c.Offers.Version); c.Offers.Version != "" && n != offertag.VersionLength {
		return fmt.Errorf("offers.version: must be exactly %d characters, got %d", offertag.VersionLength, n)
	}
	if c.Timing.PageSettle < 0 || c.Timing.FormatPause < 0 || c.Timing.LockVerify < 0 {
		return errors.New("timing: waits must not be negative")
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval: must be positive, got %v", c.Polling.Interval)
	}
	if c.Polling.RemovalTimeout < 0 {
		return fmt.Errorf("polling.removal_timeout: must not be negative, got %v", c.Polling.RemovalTimeout)
	}
	if c.Logging.Dir == "" {
		return errors.New("logging.dir is required")
	}
	return nil
}

func isKnownBackend(name string) bool {
	for _, known := range KnownBackends {
		if name == known {
			return true
		}
	}
	return false
}

// OfferPolicy returns the offer length policy
func (c *Config) OfferPolicy() offertag.OfferPolicy {
	return offertag.OfferPolicy{Legacy: c.Offers.Legacy, Strict: !c.Offers.AllowAnyLength}
}

// DeviceOptions returns the device options for the configured waits
func (c *Config) DeviceOptions() []offertag.Option {
	timing := offertag.DefaultTiming()
	timing.PageSettle = c.Timing.PageSettle
	timing.FormatPause = c.Timing.FormatPause
	timing.LockVerify = c.Timing.LockVerify
	return []offertag.Option{
		offertag.WithTiming(timing),
		offertag.WithCommandTimeout(c.Reader.CommandTimeout),
	}
}

// PollConfig returns the tag watcher configuration
func (c *Config) PollConfig() *polling.Config {
	pc := polling.DefaultConfig()
	pc.PollInterval = c.Polling.Interval
	pc.CardRemovalTimeout = c.Polling.RemovalTimeout
	return pc
}
