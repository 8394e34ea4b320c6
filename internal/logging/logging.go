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

// Package logging sends operator messages to the console and every message,
// including command traffic, to an append-only operations log.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	offertag "github.com/ZaparooProject/go-offertag"
	"github.com/ZaparooProject/go-offertag/internal/syncutil"
)

// LogFileName is the operations log created in the log directory
const LogFileName = "operations.log"

const fileTimeFormat = "2006-01-02 15:04:05"

var separator = strings.Repeat("=", 80)

// Session is an open operations log.
type Session struct {
	logger *logrus.Logger
	file   *os.File
	path   string
}

// Setup creates dir if needed, opens the operations log for appending and
// installs a logger that writes INFO and above to console as bare messages
// and everything to the file. With debug set the console gets DEBUG too.
func Setup(dir string, console io.Writer, debug bool) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, LogFileName)
	//nolint:gosec // path is built from configured directory
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open operations log: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	logger.AddHook(&writerHook{
		writer:    console,
		formatter: messageFormatter{},
		levels:    levelsFrom(consoleLevel(debug)),
	})
	logger.AddHook(&writerHook{
		writer:    file,
		formatter: fileFormatter{},
		levels:    logrus.AllLevels,
	})

	writeSessionHeader(file)
	s := &Session{logger: logger, file: file, path: path}
	offertag.SetLogger(logger)
	logger.Debug(separator)
	logger.Info("Starting new NFC operation session")
	return s, nil
}

// Logger returns the session logger
func (s *Session) Logger() *logrus.Logger {
	return s.logger
}

// Path returns the operations log path
func (s *Session) Path() string {
	return s.path
}

// Close writes the session footer, closes the file and restores the
// default logger.
func (s *Session) Close() error {
	offertag.SetLogger(nil)
	if s.file == nil {
		return nil
	}
	_, _ = fmt.Fprintf(s.file, "[%s] === Session ended ===\n", time.Now().Format(fileTimeFormat))
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("failed to close operations log: %w", err)
	}
	return nil
}

func consoleLevel(debug bool) logrus.Level {
	if debug || offertag.DebugEnabled() {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

// levelsFrom returns threshold and every more severe level
func levelsFrom(threshold logrus.Level) []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= threshold {
			levels = append(levels, l)
		}
	}
	return levels
}

// writeSessionHeader writes metadata about the session to the log file.
func writeSessionHeader(w io.Writer) {
	_, _ = fmt.Fprintf(w, "%s\n", separator)
	_, _ = fmt.Fprintf(w, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(w, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	if exe, err := os.Executable(); err == nil {
		_, _ = fmt.Fprintf(w, "Executable: %s\n", exe)
	}
	_, _ = fmt.Fprintf(w, "Command Line: %s\n", strings.Join(os.Args, " "))
}

// writerHook formats entries of the given levels onto one writer
type writerHook struct {
	writer    io.Writer
	formatter logrus.Formatter
	levels    []logrus.Level
	mu        syncutil.Mutex
}

func (h *writerHook) Levels() []logrus.Level {
	return h.levels
}

func (h *writerHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return fmt.Errorf("failed to format log entry: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

// messageFormatter prints the message alone
type messageFormatter struct{}

func (messageFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(entry.Message + "\n"), nil
}

// fileFormatter prints "[timestamp] LEVEL: message" with surrounding
// newlines removed from the message
type fileFormatter struct{}

func (fileFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	msg := strings.Trim(entry.Message, "\r\n")
	line := fmt.Sprintf("[%s] %s: %s\n",
		entry.Time.Format(fileTimeFormat), strings.ToUpper(entry.Level.String()), msg)
	return []byte(line), nil
}
