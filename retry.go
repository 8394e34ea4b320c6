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
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// RetryConfig configures bounded retries of a single tag operation
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (0 or 1 = no retry)
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which the backoff increases (1 = fixed delay)
	BackoffMultiplier float64
	// Jitter adds randomness to the backoff (0.0-1.0)
	Jitter float64
}

// LockRetryConfig returns the retry configuration for lock page writes
func LockRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       LockWriteAttempts,
		InitialBackoff:    LockRetryDelay,
		MaxBackoff:        LockRetryDelay,
		BackoffMultiplier: 1,
	}
}

// CCRetryConfig returns the retry configuration for capability container writes
func CCRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       CCWriteAttempts,
		InitialBackoff:    CCRetryDelay,
		MaxBackoff:        CCRetryDelay,
		BackoffMultiplier: 1,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// RetryWithConfig runs retryFunc until it succeeds, returns an error that
// IsRetryable rejects, or runs out of attempts. The last error is
// returned.
func RetryWithConfig(ctx context.Context, config *RetryConfig, retryFunc RetryableFunc) error {
	if config == nil || config.MaxAttempts <= 1 {
		return retryFunc()
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := range config.MaxAttempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", err)
		}

		err := retryFunc()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		Debugf("attempt %d/%d failed: %v", attempt+1, config.MaxAttempts, err)

		if attempt < config.MaxAttempts-1 {
			if err := sleepWithContext(ctx, calculateJitteredSleep(backoff, config.Jitter)); err != nil {
				return lastErr
			}
			backoff = calculateNextBackoff(backoff, config)
		}
	}

	return lastErr
}

// sleepWithContext waits for d or until ctx is done. A zero duration
// returns immediately.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func calculateNextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	if config.BackoffMultiplier <= 1 {
		return backoff
	}
	next := time.Duration(float64(backoff) * config.BackoffMultiplier)
	if config.MaxBackoff > 0 && next > config.MaxBackoff {
		return config.MaxBackoff
	}
	return next
}

// calculateJitteredSleep calculates sleep duration with jitter
func calculateJitteredSleep(baseSleep time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || baseSleep <= 0 {
		return baseSleep
	}
	var randBytes [8]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		return baseSleep
	}
	// Convert to float64 in range [0, 1)
	randFloat := float64(binary.LittleEndian.Uint64(randBytes[:])) / float64(1<<64)
	return baseSleep + time.Duration(randFloat*float64(baseSleep)*jitterFactor)
}
