// File: internal/screen/screen.go

// Package screen provides desktop frame capture and optional on-disk
// persistence of captured frames.
package screen

import (
	"context"
	"time"
)

// Frame is one captured screenshot: encoded PNG bytes plus the pixel
// geometry they were captured at.
type Frame struct {
	PNG        []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Capturer produces the current desktop frame. Capture is a read of the
// shared desktop; callers that need a frame consistent with pending input
// hold the input guard across both.
type Capturer interface {
	Capture(ctx context.Context) (*Frame, error)
	// Geometry reports the desktop resolution in pixels.
	Geometry(ctx context.Context) (width, height int, err error)
}
