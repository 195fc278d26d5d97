// File: internal/screen/store.go
package screen

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/config"
)

// Store persists captured frames to disk for later inspection. Filenames
// carry a wall-clock timestamp plus a monotonic counter so frames captured
// within the same second never collide.
type Store struct {
	enabled bool
	dir     string
	counter atomic.Uint64
	logger  *zap.Logger
}

// NewStore builds a frame store from configuration. A disabled store is
// valid and turns Save into a no-op.
func NewStore(cfg config.ScreenshotsConfig, logger *zap.Logger) *Store {
	return &Store{
		enabled: cfg.Enabled,
		dir:     cfg.Dir,
		logger:  logger.Named("screenshots"),
	}
}

// Save writes the frame as PNG and returns the absolute path, or "" when the
// store is disabled. Persistence failures are logged and swallowed; a session
// never dies because a debug artifact could not be written.
func (s *Store) Save(frame *Frame) string {
	if !s.enabled || frame == nil {
		return ""
	}
	path, err := s.write(frame)
	if err != nil {
		s.logger.Warn("Failed to persist screenshot.", zap.String("dir", s.dir), zap.Error(err))
		return ""
	}
	return path
}

// Persist writes the frame regardless of the enabled toggle and returns the
// absolute path. The screenshot tool uses this: its contract is that the
// returned path exists, so the session's debug-artifact toggle does not
// apply and failures surface to the caller.
func (s *Store) Persist(frame *Frame) (string, error) {
	if frame == nil {
		return "", fmt.Errorf("nil frame")
	}
	return s.write(frame)
}

func (s *Store) write(frame *Frame) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot directory: %w", err)
	}

	name := fmt.Sprintf("screenshot_%s_%04d.png",
		frame.CapturedAt.Format("20060102_150405"), s.counter.Add(1))
	path, err := filepath.Abs(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, frame.PNG, 0o644); err != nil {
		return "", err
	}
	s.logger.Debug("Persisted screenshot.", zap.String("path", path))
	return path, nil
}
