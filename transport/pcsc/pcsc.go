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

// Package pcsc exchanges pseudo-APDUs with contactless readers through the
// PC/SC service and registers the "pcsc" reader backend.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ebfe/scard"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// BackendName is the name the PC/SC backend registers under
const BackendName = "pcsc"

// card is the part of *scard.Card the transport uses
type card interface {
	Transmit(cmd []byte) ([]byte, error)
	Reconnect(mode scard.ShareMode, proto scard.Protocol, disp scard.Disposition) error
	Disconnect(disp scard.Disposition) error
}

// cardContext is the part of *scard.Context the transport uses
type cardContext interface {
	ListReaders() ([]string, error)
	Connect(reader string) (card, error)
	Release() error
}

type scardContext struct {
	*scard.Context
}

func (c scardContext) Connect(reader string) (card, error) {
	return c.Context.Connect(reader, scard.ShareShared, scard.ProtocolAny)
}

func establish() (cardContext, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}
	return scardContext{ctx}, nil
}

// Transport talks to one PC/SC reader. The card is connected on first use
// and again after it was removed, so one Transport serves a whole batch.
type Transport struct {
	ctx    cardContext
	card   card
	reader string
	mu     syncutil.Mutex
	closed bool
}

// Open returns a transport for the named reader. No card needs to be
// present yet.
func Open(reader string) (*Transport, error) {
	ctx, err := establish()
	if err != nil {
		return nil, err
	}
	return newTransport(ctx, reader), nil
}

func newTransport(ctx cardContext, reader string) *Transport {
	return &Transport{ctx: ctx, reader: reader}
}

// ReaderName returns the PC/SC reader name
func (t *Transport) ReaderName() string {
	return t.reader
}

// Transmit implements offertag.Transport. A reset card is reconnected and
// the command sent once more; a missing card is reported as
// offertag.ErrNoCard.
func (t *Transport) Transmit(ctx context.Context, apdu []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, offertag.ErrReaderClosed
	}
	if err := t.connect(); err != nil {
		return nil, err
	}

	resp, err := t.card.Transmit(apdu)
	if errors.Is(err, scard.ErrResetCard) {
		offertag.Debugf("card reset on %s, reconnecting", t.reader)
		if rerr := t.card.Reconnect(scard.ShareShared, scard.ProtocolAny, scard.LeaveCard); rerr != nil {
			t.dropCard()
			return nil, t.mapError(rerr)
		}
		resp, err = t.card.Transmit(apdu)
	}
	if err != nil {
		return nil, t.mapError(err)
	}
	return resp, nil
}

// Close disconnects the card and releases the PC/SC context
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.dropCard()
	if err := t.ctx.Release(); err != nil {
		return fmt.Errorf("failed to release PC/SC context: %w", err)
	}
	return nil
}

func (t *Transport) connect() error {
	if t.card != nil {
		return nil
	}
	c, err := t.ctx.Connect(t.reader)
	if err != nil {
		return t.mapError(err)
	}
	t.card = c
	return nil
}

func (t *Transport) dropCard() {
	if t.card == nil {
		return
	}
	if err := t.card.Disconnect(scard.LeaveCard); err != nil {
		offertag.Debugf("disconnect %s: %v", t.reader, err)
	}
	t.card = nil
}

// mapError forgets the card when it is gone so the next command reconnects
func (t *Transport) mapError(err error) error {
	if isCardGone(err) {
		t.dropCard()
		return fmt.Errorf("%w: %s: %w", offertag.ErrNoCard, t.reader, err)
	}
	if errors.Is(err, scard.ErrReaderUnavailable) || errors.Is(err, scard.ErrUnknownReader) {
		t.dropCard()
		return fmt.Errorf("%w: %s: %w", offertag.ErrNoReader, t.reader, err)
	}
	return fmt.Errorf("PC/SC %s: %w", t.reader, err)
}

// isCardGone reports errors that mean the card left the field
func isCardGone(err error) bool {
	switch {
	case errors.Is(err, scard.ErrNoSmartcard),
		errors.Is(err, scard.ErrRemovedCard),
		errors.Is(err, scard.ErrResetCard),
		errors.Is(err, scard.ErrUnpoweredCard):
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "removed") || strings.Contains(lower, "no smart card")
}

var (
	_ offertag.Transport      = (*Transport)(nil)
	_ offertag.NamedTransport = (*Transport)(nil)
)
