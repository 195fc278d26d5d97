// File: internal/screen/guarded.go
package screen

import (
	"context"

	"github.com/vistral/deskpilot/internal/input"
)

// GuardedCapturer serializes capture with input injection through the
// shared desktop guard, so a frame is never grabbed mid-action.
type GuardedCapturer struct {
	inner Capturer
	guard *input.Guard
}

// Guarded wraps a capturer with the desktop guard.
func Guarded(inner Capturer, guard *input.Guard) *GuardedCapturer {
	return &GuardedCapturer{inner: inner, guard: guard}
}

func (g *GuardedCapturer) Capture(ctx context.Context) (*Frame, error) {
	if err := g.guard.Acquire(ctx); err != nil {
		return nil, err
	}
	defer g.guard.Release()
	return g.inner.Capture(ctx)
}

func (g *GuardedCapturer) Geometry(ctx context.Context) (int, int, error) {
	return g.inner.Geometry(ctx)
}
