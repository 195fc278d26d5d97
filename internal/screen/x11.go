// File: internal/screen/x11.go
package screen

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// X11Capturer grabs the root window with ImageMagick's import and reads the
// display geometry from xdotool. Geometry is probed once and cached; the
// desktop resolution is immutable for the life of a session.
type X11Capturer struct {
	logger *zap.Logger

	width  int
	height int

	// command output hooks, swapped in tests.
	captureOutput  func(ctx context.Context) ([]byte, error)
	geometryOutput func(ctx context.Context) ([]byte, error)
}

// NewX11Capturer returns a capturer for the current display. A non-zero
// width/height pair pins the reported geometry instead of probing.
func NewX11Capturer(width, height int, logger *zap.Logger) *X11Capturer {
	return &X11Capturer{
		logger: logger.Named("screen"),
		width:  width,
		height: height,
		captureOutput: func(ctx context.Context) ([]byte, error) {
			return exec.CommandContext(ctx, "import", "-window", "root", "-silent", "png:-").Output()
		},
		geometryOutput: func(ctx context.Context) ([]byte, error) {
			return exec.CommandContext(ctx, "xdotool", "getdisplaygeometry").Output()
		},
	}
}

func (c *X11Capturer) Capture(ctx context.Context) (*Frame, error) {
	w, h, err := c.Geometry(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	png, err := c.captureOutput(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	c.logger.Debug("Captured frame.",
		zap.Int("bytes", len(png)),
		zap.Duration("elapsed", time.Since(start)))

	return &Frame{PNG: png, Width: w, Height: h, CapturedAt: start}, nil
}

func (c *X11Capturer) Geometry(ctx context.Context) (int, int, error) {
	if c.width > 0 && c.height > 0 {
		return c.width, c.height, nil
	}

	out, err := c.geometryOutput(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("probe display geometry: %w", err)
	}
	var w, h int
	if _, err := fmt.Fscan(bytes.NewReader([]byte(strings.TrimSpace(string(out)))), &w, &h); err != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("unexpected display geometry %q", strings.TrimSpace(string(out)))
	}
	c.width, c.height = w, h
	return w, h, nil
}
