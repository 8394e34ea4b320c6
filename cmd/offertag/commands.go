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

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/batch"
	"github.com/ZaparooProject/go-offertag/internal/config"
	"github.com/ZaparooProject/go-offertag/internal/csvio"
	"github.com/ZaparooProject/go-offertag/pkg/idcodec"
	"github.com/ZaparooProject/go-offertag/polling"
	"github.com/ZaparooProject/go-offertag/scan"
)

const waitMessage = "Waiting for tag... Please touch an NFC tag to the reader then press enter or (q) to quit."

type app struct {
	cfg      *config.Config
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	prompter *batch.ConsolePrompter
	// connect opens the configured reader
	connect func(ctx context.Context) (*offertag.Device, error)
}

func newApp(cfg *config.Config, in io.Reader, out, errOut io.Writer) *app {
	a := &app{
		cfg:      cfg,
		in:       in,
		out:      out,
		errOut:   errOut,
		prompter: batch.NewConsolePrompter(in, out, batch.WithTerminalCheck(batch.IsInteractive)),
	}
	a.connect = func(ctx context.Context) (*offertag.Device, error) {
		device, err := offertag.Connect(ctx, cfg.Reader.Backend, cfg.Reader.Name, cfg.DeviceOptions()...)
		if err != nil {
			offertag.Errorf("Failed to find NFC reader")
			return nil, err
		}
		return device, nil
	}
	return a
}

func (a *app) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return nil
}

// offerFlags registers the offer length flags shared by write and batch.
type offerFlags struct {
	legacy bool
	anyLen bool
}

func (a *app) addOfferFlags(fs *pflag.FlagSet) *offerFlags {
	f := &offerFlags{}
	fs.BoolVar(&f.legacy, "legacy-offer", a.cfg.Offers.Legacy, "use legacy 5-character offer codes")
	fs.BoolVar(&f.anyLen, "allow-any-length", a.cfg.Offers.AllowAnyLength, "allow non-standard offer code lengths")
	return f
}

func (f *offerFlags) policy() offertag.OfferPolicy {
	return offertag.OfferPolicy{Legacy: f.legacy, Strict: !f.anyLen}
}

// identifierArg accepts an identifier or the 64 hex digit hash it encodes.
func identifierArg(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2*idcodec.HashLength {
		return s, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return s, nil
	}
	var hash [idcodec.HashLength]byte
	copy(hash[:], raw)
	return idcodec.HashToID(hash)
}

func (a *app) open(ctx context.Context) (*offertag.Device, func(), error) {
	device, err := a.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	return device, func() {
		if err := device.Close(); err != nil {
			offertag.Warnf("%v", err)
		}
	}, nil
}

func (a *app) runReaders(ctx context.Context, args []string) error {
	fs := a.flagSet("readers")
	all := fs.Bool("all", false, "list readers of every backend, not only the configured one")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var names []string
	if !*all && a.cfg.Reader.Backend != "" {
		names = []string{a.cfg.Reader.Backend}
	}
	readers, err := offertag.EnumerateReaders(ctx, names...)
	if errors.Is(err, offertag.ErrNoReader) {
		offertag.Warnf("No readers found")
		offertag.Debugf("%v", err)
		return nil
	}
	if err != nil {
		return err
	}
	for i, r := range readers {
		_, _ = fmt.Fprintf(a.out, "%d: %s\n", i, r)
		for _, k := range slices.Sorted(maps.Keys(r.Metadata)) {
			_, _ = fmt.Fprintf(a.out, "   %s: %s\n", k, r.Metadata[k])
		}
	}
	return nil
}

func (a *app) runRead(ctx context.Context, args []string) error {
	fs := a.flagSet("read")
	uidOnly := fs.Bool("uid", false, "only read tag UID")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	device, closeDevice, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeDevice()

	more, err := a.prompter.WaitForEnter(ctx, waitMessage)
	if err != nil || !more {
		return err
	}

	if *uidOnly {
		uid, err := device.ReadUID(ctx)
		if err != nil {
			return fmt.Errorf("failed to read UID: %w", err)
		}
		offertag.Infof("UID: %s", uid)
		return nil
	}

	variant, err := device.IdentifyTag(ctx)
	if err != nil {
		return fmt.Errorf("could not determine tag type: %w", err)
	}
	offertag.Infof("Tag Type: %s", variant)
	rec, err := device.ReadRecordFrom(ctx, variant)
	if err != nil {
		return err
	}
	offertag.Infof("Version: %s", rec.Version)
	offertag.Infof("NFT ID: %s", rec.Identifier)
	offertag.Infof("Offer: %s", rec.Offer)
	return nil
}

func (a *app) runWrite(ctx context.Context, args []string) error {
	fs := a.flagSet("write")
	version := fs.StringP("version", "v", a.cfg.Offers.Version, "version string")
	id := fs.StringP("nft-id", "n", "", "NFT ID or 32-byte hash in hex")
	offer := fs.StringP("offer", "o", "", "offer code (64 characters, or 5 with --legacy-offer)")
	lock := fs.Bool("lock", false, "lock the tag after writing")
	offers := a.addOfferFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: NFT ID is required", errUsage)
	}
	if *offer == "" {
		return fmt.Errorf("%w: Offer code is required", errUsage)
	}

	identifier, err := identifierArg(*id)
	if err != nil {
		return err
	}
	rec, err := offertag.NewRecord(*version, identifier, *offer, offers.policy())
	if err != nil {
		return err
	}

	device, closeDevice, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeDevice()

	lockTag := false
	if *lock {
		if lockTag, err = a.prompter.ConfirmLock(ctx); err != nil {
			return err
		}
	}

	more, err := a.prompter.WaitForEnter(ctx, waitMessage)
	if err != nil || !more {
		return err
	}
	if err := device.WriteRecord(ctx, rec, lockTag); err != nil {
		offertag.Errorf("Write failed")
		return err
	}
	offertag.Infof("Write successful")
	return nil
}

func (a *app) runBatch(ctx context.Context, args []string) error {
	fs := a.flagSet("batch")
	file := fs.StringP("full-nfc-data-file", "f", "", "CSV file with uid, version, nft_id and offer columns")
	_ = fs.Bool("force", false, "accepted for compatibility; has no effect")
	offers := a.addOfferFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("%w: NFT data file is required", errUsage)
	}

	rows, err := csvio.ReadFile(*file, csvio.ColUID, csvio.ColIdentifier, csvio.ColOffer)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.New("no records found in CSV file")
	}

	records := make([]batch.Expected, 0, len(rows))
	for _, row := range rows {
		version := row.Version
		if version == "" {
			version = a.cfg.Offers.Version
		}
		records = append(records, batch.Expected{
			UID:        row.UID,
			Version:    version,
			Identifier: row.Identifier,
			Offer:      row.Offer,
		})
	}
	runner, err := batch.New(records, batch.Options{Policy: offers.policy()})
	if err != nil {
		offertag.Errorf("Validation failed - check offer code lengths")
		return err
	}

	device, closeDevice, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeDevice()

	summary, err := runner.Run(ctx, device, a.prompter)
	if err != nil {
		return err
	}
	if summary.Unsuccessful() > 0 {
		offertag.Warnf("%d tag(s) were not written", summary.Unsuccessful())
	}
	return nil
}

func (a *app) runScan(ctx context.Context, args []string) error {
	fs := a.flagSet("scan")
	dataFile := fs.StringP("nft-data-file", "d", "", "CSV file containing NFT IDs and offer codes")
	output := fs.StringP("output", "o", a.cfg.Scan.Output, "output CSV file")
	version := fs.StringP("version", "v", a.cfg.Offers.Version, "version string")
	auto := fs.Bool("auto", a.cfg.Scan.Auto, "detect tags automatically instead of waiting for Enter")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var data []csvio.Row
	if *dataFile != "" {
		rows, err := csvio.ReadFile(*dataFile, csvio.ColIdentifier, csvio.ColOffer)
		if err != nil {
			offertag.Errorf("Failed to load template file: %v", err)
			return err
		}
		data = rows
		offertag.Infof("Loaded %d NFT records from data file", len(data))
	}

	ledger, err := csvio.OpenLedger(*output)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	scanner, err := scan.New(ledger, data, *version)
	if err != nil {
		return err
	}

	device, closeDevice, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeDevice()

	trigger := scan.PromptTrigger(a.prompter)
	if *auto {
		trigger = scan.WatchTrigger(polling.NewWatcher(device, a.cfg.PollConfig()))
	}
	_, err = scanner.Run(ctx, device, trigger)
	return err
}

func (a *app) runInfo(ctx context.Context, args []string) error {
	if err := parseFlags(a.flagSet("info"), args); err != nil {
		return err
	}

	device, closeDevice, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeDevice()

	more, err := a.prompter.WaitForEnter(ctx, "\nPlace tag on reader and press Enter...")
	if err != nil || !more {
		return err
	}
	info, err := device.Info(ctx)
	if err != nil {
		offertag.Errorf("Failed to read tag information")
		return err
	}
	offertag.Infof("\nTag Information:")
	offertag.Infof("%s", strings.Repeat("-", 40))
	for _, f := range info.Fields() {
		offertag.Infof("%s: %s", f[0], f[1])
	}
	return nil
}

func (a *app) runEncode(_ context.Context, args []string) error {
	fs := a.flagSet("encode")
	version := fs.StringP("version", "v", a.cfg.Offers.Version, "version string")
	id := fs.StringP("nft-id", "n", "", "NFT ID or 32-byte hash in hex")
	offer := fs.StringP("offer", "o", "", "offer code")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	identifier, err := identifierArg(*id)
	if err != nil {
		return err
	}
	rec, err := offertag.NewRecord(*version, identifier, *offer, offertag.OfferPolicy{})
	if err != nil {
		return err
	}
	data, err := idcodec.EncodeBinary(rec)
	if err != nil {
		return fmt.Errorf("failed to encode NFT data: %w", err)
	}

	offertag.Infof("\nWriting to NFC:")
	offertag.Infof("    Version: %s", rec.Version)
	offertag.Infof("    NFT ID:  %s", rec.Identifier)
	offertag.Infof("    Offer:   %s", rec.Offer)
	_, _ = fmt.Fprintln(a.out, hex.EncodeToString(data))
	return nil
}

func (a *app) runDecode(_ context.Context, args []string) error {
	fs := a.flagSet("decode")
	input := fs.String("hex", "", "binary record as hex")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	raw, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(*input), " ", ""))
	if err != nil {
		return fmt.Errorf("%w: --hex: %w", errUsage, err)
	}
	b, err := idcodec.DecodeBinary(raw)
	if err != nil {
		return fmt.Errorf("failed to decode NFT data: %w", err)
	}

	hashEnd := offertag.VersionLength + idcodec.HashLength
	offertag.Infof("\nDECODING:")
	offertag.Infof("%s", strings.Repeat("-", 50))
	offertag.Infof("Encoded Data:")
	offertag.Infof("   Version Bytes:          % X", raw[:offertag.VersionLength])
	offertag.Infof("   NFT Hash Bytes:         % X", raw[offertag.VersionLength:hashEnd])
	offertag.Infof("   Offer Short Code Bytes: % X", raw[hashEnd:])
	offertag.Infof("\nDecoded format:")
	offertag.Infof("   Version:  %s", b.Record.Version)
	offertag.Infof("   NFT ID:   %s", b.Record.Identifier)
	offertag.Infof("   NFT Hash: %s", hex.EncodeToString(b.Hash[:]))
	offertag.Infof("   Offer:    %s", b.Record.Offer)
	return nil
}
