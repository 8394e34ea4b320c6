//go:build !deadlock

// Package syncutil provides the mutexes guarding devices, transports and the
// backend registry. They are plain sync types unless the module is built
// with -tags=deadlock, which swaps in github.com/sasha-s/go-deadlock so a
// reader stuck holding a lock during tag I/O is reported.
package syncutil

import "sync"

// Mutex serializes exchanges with one reader.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}

// RWMutex guards state that is read far more often than written, such as
// the backend registry.
//
//nolint:gocritic // Intentionally embedding sync.RWMutex to expose its interface
type RWMutex struct {
	sync.RWMutex
}
