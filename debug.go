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
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// debugEnabled controls whether debug output reaches the console. Debug
// entries always reach the session log when one is attached.
var debugEnabled atomic.Bool

var logger atomic.Pointer[logrus.Logger]

func init() {
	// Enable debug logging if DEBUG environment variable is set
	if os.Getenv("OFFERTAG_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
	logger.Store(logrus.StandardLogger())
}

// SetLogger replaces the logger used by the package. A nil logger restores
// the logrus standard logger.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	logger.Store(l)
}

// Logger returns the logger used by the package.
func Logger() *logrus.Logger {
	return logger.Load()
}

// SetDebugEnabled allows programmatic control of debug logging
// Useful for testing or application-controlled debug modes
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether debug output should reach the console.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Debugf logs low-level command traffic and decisions.
func Debugf(format string, args ...any) {
	logger.Load().Debugf(format, args...)
}

// Debugln logs low-level command traffic and decisions.
func Debugln(args ...any) {
	logger.Load().Debugln(args...)
}

// Infof logs operator-facing progress.
func Infof(format string, args ...any) {
	logger.Load().Infof(format, args...)
}

// Warnf logs recoverable problems.
func Warnf(format string, args ...any) {
	logger.Load().Warnf(format, args...)
}

// Errorf logs failures that end the current operation.
func Errorf(format string, args ...any) {
	logger.Load().Errorf(format, args...)
}
