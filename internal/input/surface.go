// File: internal/input/surface.go

// Package input defines the desktop input-injection boundary: the Surface
// interface the executor drives, the process-wide exclusivity Guard, and the
// production X11 implementation.
package input

import (
	"context"
	"time"
)

// MouseButton names a physical pointer button for the surface.
type MouseButton string

const (
	MouseLeft   MouseButton = "left"
	MouseRight  MouseButton = "right"
	MouseMiddle MouseButton = "middle"
)

// ScrollDelta is one scroll request in surface terms: a direction plus a
// notch count.
type ScrollDelta struct {
	Direction string
	Amount    int
}

// Surface is the injection capability an executor maps actions onto. All
// coordinates are pixels; normalization is resolved before the surface is
// reached. Implementations are not required to be safe for concurrent use;
// callers serialize through a Guard.
type Surface interface {
	// MoveTo glides the pointer to the pixel position.
	MoveTo(ctx context.Context, x, y int) error
	// Click presses and releases a button at the current pointer position.
	Click(ctx context.Context, button MouseButton, double bool) error
	// Press and Release hold a button across a drag.
	Press(ctx context.Context, button MouseButton) error
	Release(ctx context.Context, button MouseButton) error
	// TypeText injects the text as synthetic key events.
	TypeText(ctx context.Context, text string) error
	// PasteText places the text on the clipboard and sends the paste chord,
	// for text the key-event path cannot represent.
	PasteText(ctx context.Context, text string) error
	// KeyTap presses a single named key.
	KeyTap(ctx context.Context, key string) error
	// Hotkey presses a chord of named keys together.
	Hotkey(ctx context.Context, keys []string) error
	// Scroll turns the wheel at the current pointer position.
	Scroll(ctx context.Context, delta ScrollDelta) error
	// Launch starts the given desktop command, detached.
	Launch(ctx context.Context, command string) error
	// Sleep pauses without touching the desktop, honoring ctx cancellation.
	Sleep(ctx context.Context, d time.Duration) error
}
