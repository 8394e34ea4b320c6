//go:build deadlock

// Package syncutil provides the mutexes guarding devices, transports and the
// backend registry, here backed by go-deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex serializes exchanges with one reader and reports lock waits that
// exceed the go-deadlock timeout.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex guards read-mostly state such as the backend registry.
type RWMutex struct {
	deadlock.RWMutex
}
