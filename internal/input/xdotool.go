// File: internal/input/xdotool.go
package input

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vistral/deskpilot/internal/config"
)

// xdotool button numbers.
var buttonNumbers = map[MouseButton]string{
	MouseLeft:   "1",
	MouseMiddle: "2",
	MouseRight:  "3",
}

// scroll directions map to xdotool wheel buttons 4-7.
var scrollButtons = map[string]string{
	"up":    "4",
	"down":  "5",
	"left":  "6",
	"right": "7",
}

// X11Surface is the production Surface, shelling out to xdotool for input
// events and xclip for the clipboard. Every primitive is paced by a shared
// rate limiter so synthetic events leave time for the desktop to settle.
type X11Surface struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	moveDur time.Duration

	// runCommand is swapped in tests to avoid touching a real display.
	runCommand func(ctx context.Context, name string, args ...string) error
}

// NewX11Surface builds the production surface from input configuration.
func NewX11Surface(cfg config.InputConfig, logger *zap.Logger) *X11Surface {
	pause := cfg.Pause
	if pause <= 0 {
		pause = 250 * time.Millisecond
	}
	return &X11Surface{
		logger:     logger.Named("input"),
		limiter:    rate.NewLimiter(rate.Every(pause), 1),
		moveDur:    cfg.MoveDuration,
		runCommand: runExec,
	}
}

func runExec(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (s *X11Surface) run(ctx context.Context, name string, args ...string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	s.logger.Debug("Injecting input primitive.", zap.String("cmd", name), zap.Strings("args", args))
	return s.runCommand(ctx, name, args...)
}

func (s *X11Surface) MoveTo(ctx context.Context, x, y int) error {
	// xdotool has no native glide; a sync move plus the settle pause from the
	// limiter approximates the configured move duration closely enough.
	if err := s.run(ctx, "xdotool", "mousemove", "--sync", strconv.Itoa(x), strconv.Itoa(y)); err != nil {
		return err
	}
	if s.moveDur > 0 {
		return s.Sleep(ctx, s.moveDur)
	}
	return nil
}

func (s *X11Surface) Click(ctx context.Context, button MouseButton, double bool) error {
	num, ok := buttonNumbers[button]
	if !ok {
		return fmt.Errorf("unknown mouse button %q", button)
	}
	args := []string{"click"}
	if double {
		args = append(args, "--repeat", "2", "--delay", "100")
	}
	args = append(args, num)
	return s.run(ctx, "xdotool", args...)
}

func (s *X11Surface) Press(ctx context.Context, button MouseButton) error {
	num, ok := buttonNumbers[button]
	if !ok {
		return fmt.Errorf("unknown mouse button %q", button)
	}
	return s.run(ctx, "xdotool", "mousedown", num)
}

func (s *X11Surface) Release(ctx context.Context, button MouseButton) error {
	num, ok := buttonNumbers[button]
	if !ok {
		return fmt.Errorf("unknown mouse button %q", button)
	}
	return s.run(ctx, "xdotool", "mouseup", num)
}

func (s *X11Surface) TypeText(ctx context.Context, text string) error {
	return s.run(ctx, "xdotool", "type", "--delay", "30", "--", text)
}

// PasteText routes text through the clipboard and sends ctrl+v. Used for
// text the synthetic key-event path cannot represent (CJK input, emoji).
func (s *X11Surface) PasteText(ctx context.Context, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "xclip", "-selection", "clipboard")
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("xclip: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return s.run(ctx, "xdotool", "key", "--clearmodifiers", "ctrl+v")
}

func (s *X11Surface) KeyTap(ctx context.Context, key string) error {
	return s.run(ctx, "xdotool", "key", "--clearmodifiers", key)
}

func (s *X11Surface) Hotkey(ctx context.Context, keys []string) error {
	return s.run(ctx, "xdotool", "key", "--clearmodifiers", strings.Join(keys, "+"))
}

func (s *X11Surface) Scroll(ctx context.Context, delta ScrollDelta) error {
	num, ok := scrollButtons[delta.Direction]
	if !ok {
		return fmt.Errorf("unknown scroll direction %q", delta.Direction)
	}
	amount := delta.Amount
	if amount <= 0 {
		amount = 1
	}
	return s.run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(amount), "--delay", "50", num)
}

// Launch starts the command detached through a shell, so alias commands may
// carry arguments. The process is not waited on.
func (s *X11Surface) Launch(ctx context.Context, command string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	s.logger.Info("Launching application.", zap.String("command", command))
	cmd := exec.Command("sh", "-c", command)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %q: %w", command, err)
	}
	// Reap the child in the background to avoid zombies.
	go func() { _ = cmd.Wait() }()
	return nil
}

func (s *X11Surface) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
