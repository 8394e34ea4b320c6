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

// Command offertag writes offer records to NFC tags and manages the files
// that drive a tagging run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/config"
	"github.com/ZaparooProject/go-offertag/internal/logging"
	_ "github.com/ZaparooProject/go-offertag/transport/i2c"
	_ "github.com/ZaparooProject/go-offertag/transport/libnfc"
	_ "github.com/ZaparooProject/go-offertag/transport/pcsc"
	_ "github.com/ZaparooProject/go-offertag/transport/spi"
	_ "github.com/ZaparooProject/go-offertag/transport/uart"
)

// errUsage marks errors caused by the command line rather than the run
var errUsage = errors.New("usage error")

type globalOptions struct {
	configPath string
	backend    string
	reader     string
	debug      bool
	backendSet bool
	readerSet  bool
}

type command struct {
	run  func(a *app, ctx context.Context, args []string) error
	name string
	help string
}

var commands = []command{
	{name: "readers", help: "List available readers", run: (*app).runReaders},
	{name: "read", help: "Read NFC tag", run: (*app).runRead},
	{name: "write", help: "Write to NFC tag", run: (*app).runWrite},
	{name: "batch", help: "Process NFCs from CSV file", run: (*app).runBatch},
	{name: "scan", help: "Scan NFCs and record UIDs to CSV", run: (*app).runScan},
	{name: "info", help: "Display detailed tag information", run: (*app).runInfo},
	{name: "encode", help: "Encode a record to its binary form", run: (*app).runEncode},
	{name: "decode", help: "Decode a record from its binary form", run: (*app).runDecode},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer, fs *pflag.FlagSet) {
	_, _ = fmt.Fprintln(w, "Usage: offertag [global flags] <command> [flags]")
	_, _ = fmt.Fprintln(w, "\nCommands:")
	for _, c := range commands {
		_, _ = fmt.Fprintf(w, "  %-8s %s\n", c.name, c.help)
	}
	_, _ = fmt.Fprintln(w, "\nGlobal flags:")
	_, _ = fmt.Fprint(w, fs.FlagUsages())
}

// parseGlobal parses the flags before the command name and returns the
// command and its arguments.
func parseGlobal(args []string, stderr io.Writer) (globalOptions, string, []string, error) {
	var opts globalOptions
	fs := pflag.NewFlagSet("offertag", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.StringVar(&opts.configPath, "config", "", "configuration file (default "+config.DefaultPath+" when present)")
	fs.BoolVar(&opts.debug, "debug", false, "show debug output on the console")
	fs.StringVar(&opts.backend, "backend", "", "reader backend: "+strings.Join(config.KnownBackends, ", "))
	fs.StringVar(&opts.reader, "reader", "", "use the first reader whose name or path contains this")
	fs.Usage = func() { usage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return opts, "", nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	opts.backendSet = fs.Changed("backend")
	opts.readerSet = fs.Changed("reader")

	if fs.NArg() == 0 {
		fs.Usage()
		return opts, "", nil, fmt.Errorf("%w: no command specified", errUsage)
	}
	return opts, fs.Arg(0), fs.Args()[1:], nil
}

// loadConfig layers the config file, .env and OFFERTAG_* variables and
// the global flags, in that order.
func loadConfig(opts globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	env, err := config.ReadEnvFiles(".env")
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(config.Lookup(env)); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if opts.backendSet {
		cfg.Reader.Backend = opts.backend
	}
	if opts.readerSet {
		cfg.Reader.Name = opts.reader
	}
	if opts.debug {
		cfg.Logging.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, name, cmdArgs, err := parseGlobal(args, stderr)
	if err != nil {
		return err
	}
	cmd, ok := findCommand(name)
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	offertag.SetDebugEnabled(cfg.Logging.Debug)
	session, err := logging.Setup(cfg.Logging.Dir, stdout, cfg.Logging.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	a := newApp(cfg, stdin, stdout, stderr)
	return cmd.run(a, ctx, cmdArgs)
}

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}
