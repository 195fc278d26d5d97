// File: internal/executor/executor.go

// Package executor maps decoded actions onto the desktop input surface: one
// action in, one observable desktop effect (or a typed error) out.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/action"
	"github.com/vistral/deskpilot/internal/input"
)

// keyNames maps the loose key names models emit to X11 keysym names.
// Unmapped names pass through unchanged.
var keyNames = map[string]string{
	"enter":     "Return",
	"return":    "Return",
	"esc":       "Escape",
	"escape":    "Escape",
	"tab":       "Tab",
	"space":     "space",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Page_Up",
	"page_up":   "Page_Up",
	"pagedown":  "Page_Down",
	"page_down": "Page_Down",
	"win":       "super",
	"windows":   "super",
	"cmd":       "super",
}

// Outcome reports one executed action: whether a desktop effect (or terminal
// acknowledgement) happened, and a human-readable description of it. The
// description is what the controller feeds back to the model as step result.
type Outcome struct {
	Executed bool
	Detail   string
}

// Executor is the single-shot action executor. It owns no policy: it takes
// one already-validated action and maps it onto the surface, holding the
// desktop guard across all primitives of that action.
type Executor struct {
	surface  input.Surface
	guard    *input.Guard
	launcher *Launcher
	width    int
	height   int
	logger   *zap.Logger
}

// New builds an executor bound to a surface, the shared desktop guard, a
// launcher registry and a fixed pixel geometry.
func New(surface input.Surface, guard *input.Guard, launcher *Launcher, width, height int, logger *zap.Logger) *Executor {
	return &Executor{
		surface:  surface,
		guard:    guard,
		launcher: launcher,
		width:    width,
		height:   height,
		logger:   logger.Named("executor"),
	}
}

// Execute carries out one action. Injecting kinds acquire the desktop guard
// first and hold it until the last primitive completes; wait and the
// terminal kinds never touch the guard.
func (e *Executor) Execute(ctx context.Context, a action.Action) (Outcome, error) {
	e.logger.Debug("Executing action.", zap.String("action", a.Summary()))

	if a.Injects() {
		if err := e.guard.Acquire(ctx); err != nil {
			return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
		}
		defer e.guard.Release()
	}

	out, err := e.dispatch(ctx, a)
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (e *Executor) dispatch(ctx context.Context, a action.Action) (Outcome, error) {
	switch a.Kind {
	case action.KindClick, action.KindDoubleClick:
		return e.click(ctx, a)
	case action.KindType:
		return e.typeText(ctx, a)
	case action.KindDrag:
		return e.drag(ctx, a)
	case action.KindKeyPress:
		if err := e.surface.KeyTap(ctx, mapKey(a.Key)); err != nil {
			return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
		}
		return Outcome{Executed: true, Detail: fmt.Sprintf("pressed %s", a.Key)}, nil
	case action.KindHotkey:
		keys := make([]string, len(a.Keys))
		for i, k := range a.Keys {
			keys[i] = mapKey(k)
		}
		if err := e.surface.Hotkey(ctx, keys); err != nil {
			return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
		}
		return Outcome{Executed: true, Detail: fmt.Sprintf("pressed %s", strings.Join(a.Keys, "+"))}, nil
	case action.KindScroll:
		return e.scroll(ctx, a)
	case action.KindWait:
		if err := e.surface.Sleep(ctx, time.Duration(a.Duration*float64(time.Second))); err != nil {
			return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
		}
		return Outcome{Executed: true, Detail: fmt.Sprintf("waited %.1fs", a.Duration)}, nil
	case action.KindLaunch:
		return e.launch(ctx, a)
	case action.KindAnswer:
		// Terminal: the answer is the session's product, not a desktop effect.
		return Outcome{Executed: true, Detail: "answer recorded"}, nil
	case action.KindTerminate:
		return Outcome{Executed: true, Detail: fmt.Sprintf("terminated with status %s", a.Status)}, nil
	default:
		return Outcome{}, &ExecutionError{Kind: a.Kind, Err: fmt.Errorf("unsupported action kind")}
	}
}

func (e *Executor) click(ctx context.Context, a action.Action) (Outcome, error) {
	x, y := a.Coordinate.Denormalize(e.width, e.height)
	if err := e.surface.MoveTo(ctx, x, y); err != nil {
		return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
	}
	double := a.Kind == action.KindDoubleClick
	if err := e.surface.Click(ctx, input.MouseButton(a.Button), double); err != nil {
		return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
	}
	verb := "clicked"
	if double {
		verb = "double-clicked"
	}
	return Outcome{Executed: true, Detail: fmt.Sprintf("%s %s at (%d, %d)", verb, a.Button, x, y)}, nil
}

func (e *Executor) typeText(ctx context.Context, a action.Action) (Outcome, error) {
	// Text outside the plain keyboard repertoire goes through the clipboard;
	// synthetic key events cannot represent it reliably.
	var err error
	if directlyTypable(a.Text) {
		err = e.surface.TypeText(ctx, a.Text)
	} else {
		err = e.surface.PasteText(ctx, a.Text)
	}
	if err != nil {
		return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
	}
	return Outcome{Executed: true, Detail: fmt.Sprintf("typed %d characters", len([]rune(a.Text)))}, nil
}

func (e *Executor) drag(ctx context.Context, a action.Action) (Outcome, error) {
	sx, sy := a.StartCoordinate.Denormalize(e.width, e.height)
	ex, ey := a.EndCoordinate.Denormalize(e.width, e.height)

	steps := []func() error{
		func() error { return e.surface.MoveTo(ctx, sx, sy) },
		func() error { return e.surface.Press(ctx, input.MouseLeft) },
		func() error { return e.surface.MoveTo(ctx, ex, ey) },
		func() error { return e.surface.Release(ctx, input.MouseLeft) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			// Best effort: never leave the button held down.
			_ = e.surface.Release(ctx, input.MouseLeft)
			return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
		}
	}
	return Outcome{Executed: true, Detail: fmt.Sprintf("dragged (%d, %d) to (%d, %d)", sx, sy, ex, ey)}, nil
}

func (e *Executor) scroll(ctx context.Context, a action.Action) (Outcome, error) {
	where := "at current position"
	if a.Coordinate != nil {
		x, y := a.Coordinate.Denormalize(e.width, e.height)
		if err := e.surface.MoveTo(ctx, x, y); err != nil {
			return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
		}
		where = fmt.Sprintf("at (%d, %d)", x, y)
	}
	delta := input.ScrollDelta{Direction: string(a.Direction), Amount: a.Amount}
	if err := e.surface.Scroll(ctx, delta); err != nil {
		return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
	}
	return Outcome{Executed: true, Detail: fmt.Sprintf("scrolled %s by %d %s", a.Direction, a.Amount, where)}, nil
}

func (e *Executor) launch(ctx context.Context, a action.Action) (Outcome, error) {
	command, err := e.launcher.Resolve(a.Text)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.surface.Launch(ctx, command); err != nil {
		return Outcome{}, &ExecutionError{Kind: a.Kind, Err: err}
	}
	return Outcome{Executed: true, Detail: fmt.Sprintf("launched %s", a.Text)}, nil
}

// directlyTypable reports whether every rune is plain printable ASCII (or a
// newline/tab), i.e. representable as synthetic key events.
func directlyTypable(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\t' {
			continue
		}
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func mapKey(key string) string {
	if mapped, ok := keyNames[strings.ToLower(strings.TrimSpace(key))]; ok {
		return mapped
	}
	return key
}
