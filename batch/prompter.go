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

package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	offertag "github.com/ZaparooProject/go-offertag"
)

// Action is an operator decision after a failed write.
type Action int

const (
	ActionRetry Action = iota + 1
	ActionSkip
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionSkip:
		return "skip"
	case ActionQuit:
		return "quit"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Prompter asks the operator for every decision the runner cannot make on
// its own. Implementations block until the operator answers or ctx ends.
type Prompter interface {
	// ChooseLock is asked once per run, before any tag is written.
	ChooseLock(ctx context.Context) (bool, error)
	// WaitForTag returns false when the operator quits.
	WaitForTag(ctx context.Context) (bool, error)
	// LockedAction returns ActionSkip or ActionQuit.
	LockedAction(ctx context.Context, uid string) (Action, error)
	// FailureAction returns ActionRetry, ActionSkip or ActionQuit.
	FailureAction(ctx context.Context, uid string, err error) (Action, error)
}

// Confirmation the operator must type before tags are locked.
const LockConfirmation = "LOCK"

type line struct {
	text string
}

// ConsolePrompter asks questions on a line-oriented console. Input is read
// by a background goroutine so a blocked prompt still returns when the
// context is cancelled.
type ConsolePrompter struct {
	in         io.Reader
	out        io.Writer
	isTerminal func(io.Reader) bool
	lines      chan line
	// readErr is set before lines is closed
	readErr error
}

// PrompterOption configures a ConsolePrompter
type PrompterOption func(*ConsolePrompter)

// WithTerminalCheck makes ConfirmLock refuse to lock unless isTerminal
// reports the input as a terminal, so piped answers can never lock tags.
func WithTerminalCheck(isTerminal func(io.Reader) bool) PrompterOption {
	return func(p *ConsolePrompter) {
		p.isTerminal = isTerminal
	}
}

// NewConsolePrompter reads answers from in and writes prompts to out.
func NewConsolePrompter(in io.Reader, out io.Writer, opts ...PrompterOption) *ConsolePrompter {
	p := &ConsolePrompter{in: in, out: out}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsInteractive reports whether r is a terminal.
func IsInteractive(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *ConsolePrompter) start() {
	if p.lines != nil {
		return
	}
	p.lines = make(chan line)
	go func() {
		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			p.lines <- line{text: scanner.Text()}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		p.readErr = err
		close(p.lines)
	}()
}

func (p *ConsolePrompter) ask(ctx context.Context, prompt string) (string, error) {
	p.start()
	if prompt != "" {
		_, _ = fmt.Fprint(p.out, prompt)
	}
	select {
	case l, ok := <-p.lines:
		if !ok {
			return "", p.readErr
		}
		return strings.TrimSpace(l.text), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ChooseLock asks whether to lock tags and requires LockConfirmation before
// answering yes. End of input means no.
func (p *ConsolePrompter) ChooseLock(ctx context.Context) (bool, error) {
	for {
		answer, err := p.ask(ctx, "\nLock tags to prevent future writes? (yes / default = no): ")
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "", "no":
			return false, nil
		case "yes":
		default:
			_, _ = fmt.Fprintln(p.out, "Please answer 'yes' or 'no'")
			continue
		}

		return p.ConfirmLock(ctx)
	}
}

// ConfirmLock warns that locking is permanent and reports whether the
// operator typed LockConfirmation. With WithTerminalCheck the answer only
// counts when it came from a terminal.
func (p *ConsolePrompter) ConfirmLock(ctx context.Context) (bool, error) {
	confirm, err := p.ask(ctx, "\nWARNING: Locking cannot be undone! Type '"+LockConfirmation+"' to confirm: ")
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	if confirm != LockConfirmation {
		offertag.Infof("Locking cancelled - proceeding with write-only mode")
		return false, nil
	}
	if p.isTerminal != nil && !p.isTerminal(p.in) {
		offertag.Warnf("Locking needs an interactive terminal - proceeding with write-only mode")
		return false, nil
	}
	return true, nil
}

// WaitForTag waits for Enter. "q" or end of input quits.
func (p *ConsolePrompter) WaitForTag(ctx context.Context) (bool, error) {
	return p.WaitForEnter(ctx, "\nPlace tag on reader and press Enter (or 'q' to quit)...")
}

// WaitForEnter logs message and waits for Enter. "q" or end of input
// quits.
func (p *ConsolePrompter) WaitForEnter(ctx context.Context, message string) (bool, error) {
	offertag.Infof("%s", message)
	answer, err := p.ask(ctx, "")
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !strings.EqualFold(answer, "q"), nil
}

// LockedAction offers skip or quit.
func (p *ConsolePrompter) LockedAction(ctx context.Context, _ string) (Action, error) {
	return p.choose(ctx, "(s)kip/(q)uit: ", map[string]Action{"s": ActionSkip, "q": ActionQuit})
}

// FailureAction offers retry, skip or quit.
func (p *ConsolePrompter) FailureAction(ctx context.Context, _ string, _ error) (Action, error) {
	return p.choose(ctx, "Choose action (r)etry/(s)kip/(q)uit: ",
		map[string]Action{"r": ActionRetry, "s": ActionSkip, "q": ActionQuit})
}

// choose repeats prompt until the answer is one of choices. End of input
// quits.
func (p *ConsolePrompter) choose(ctx context.Context, prompt string, choices map[string]Action) (Action, error) {
	for {
		answer, err := p.ask(ctx, prompt)
		if errors.Is(err, io.EOF) {
			return ActionQuit, nil
		}
		if err != nil {
			return 0, err
		}
		if action, ok := choices[strings.ToLower(answer)]; ok {
			return action, nil
		}
	}
}
