// File: internal/input/lock.go
package input

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Guard serializes access to the physical desktop. The desktop is one shared
// mutable resource: interleaving the primitives of two logical actions (a
// move from one, a click from another) produces actions nobody requested, so
// the holder keeps the guard across every primitive of its action.
//
// Built on a weighted semaphore rather than a mutex so acquisition can be
// abandoned when the caller's context is cancelled.
type Guard struct {
	sem *semaphore.Weighted
}

// NewGuard returns a guard admitting one holder at a time.
func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the desktop is exclusively held or ctx is done.
func (g *Guard) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns the desktop. Callers pair it with a successful Acquire,
// typically via defer.
func (g *Guard) Release() {
	g.sem.Release(1)
}
