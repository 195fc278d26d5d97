// File: internal/action/action.go
package action

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ScaleFactor is the model's native coordinate grid: integer positions in
// [0, 999] on both axes, regardless of the real screen resolution.
const ScaleFactor = 999

// Kind enumerates the closed action vocabulary the vision model may emit.
// The decoder rejects anything outside this set.
type Kind string

const (
	KindClick       Kind = "click"
	KindDoubleClick Kind = "double_click"
	KindType        Kind = "type"
	KindDrag        Kind = "drag"
	KindKeyPress    Kind = "key_press"
	KindHotkey      Kind = "hotkey"
	KindScroll      Kind = "scroll"
	KindWait        Kind = "wait"
	KindLaunch      Kind = "launch"
	KindAnswer      Kind = "answer"
	KindTerminate   Kind = "terminate"
)

// Button identifies a pointer button for click actions.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Direction is a scroll direction.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// TerminateStatus is the final verdict carried by a terminate action.
type TerminateStatus string

const (
	StatusSuccess TerminateStatus = "success"
	StatusFail    TerminateStatus = "fail"
)

// Point is a screen position normalized to [0,1] on both axes. All
// coordinates are resolution-independent by the time they leave the decoder;
// conversion to pixels happens at the executor boundary.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Denormalize converts the point to pixel coordinates for the given screen
// size, truncating toward zero so the grid midpoint [500,500] lands on the
// exact center pixel (W/2, H/2). Inputs are clamped to [0,1] first, so the
// result always lands on the screen.
func (p Point) Denormalize(width, height int) (int, int) {
	x := clamp01(p.X)
	y := clamp01(p.Y)
	return int(x * float64(width)), int(y * float64(height))
}

// Grid converts the point back to the model's native [0,999] grid, used when
// replaying history to the model in its own coordinate system.
func (p Point) Grid() (int, int) {
	return int(math.Round(clamp01(p.X) * ScaleFactor)), int(math.Round(clamp01(p.Y) * ScaleFactor))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Action is one structured desktop operation decoded from a model response.
// Kind selects the variant; only the fields relevant to that kind are set.
type Action struct {
	Kind Kind `json:"action"`

	// Coordinate targets click, double_click and (optionally) scroll.
	Coordinate *Point `json:"coordinate,omitempty"`
	// StartCoordinate/EndCoordinate bound a drag.
	StartCoordinate *Point `json:"start_coordinate,omitempty"`
	EndCoordinate   *Point `json:"end_coordinate,omitempty"`

	Button    Button          `json:"button,omitempty"`
	Text      string          `json:"text,omitempty"`
	Key       string          `json:"key,omitempty"`
	Keys      []string        `json:"keys,omitempty"`
	Direction Direction       `json:"direction,omitempty"`
	Amount    int             `json:"amount,omitempty"`
	Duration  float64         `json:"duration,omitempty"`
	Status    TerminateStatus `json:"status,omitempty"`
}

// Terminal reports whether the action ends a session rather than touching
// the desktop.
func (a Action) Terminal() bool {
	return a.Kind == KindAnswer || a.Kind == KindTerminate
}

// Injects reports whether executing the action drives the shared desktop
// input surface. Wait and the terminal kinds never do.
func (a Action) Injects() bool {
	switch a.Kind {
	case KindWait, KindAnswer, KindTerminate:
		return false
	default:
		return true
	}
}

// Summary renders a one-line human-readable description, used when older
// history entries are compacted in the prompt window.
func (a Action) Summary() string {
	switch a.Kind {
	case KindClick, KindDoubleClick:
		gx, gy := a.Coordinate.Grid()
		return fmt.Sprintf("%s at [%d,%d] (%s)", a.Kind, gx, gy, a.Button)
	case KindType:
		return fmt.Sprintf("type %q", truncate(a.Text, 40))
	case KindDrag:
		sx, sy := a.StartCoordinate.Grid()
		ex, ey := a.EndCoordinate.Grid()
		return fmt.Sprintf("drag [%d,%d] -> [%d,%d]", sx, sy, ex, ey)
	case KindKeyPress:
		return fmt.Sprintf("press %s", a.Key)
	case KindHotkey:
		return fmt.Sprintf("hotkey %s", strings.Join(a.Keys, "+"))
	case KindScroll:
		return fmt.Sprintf("scroll %s by %d", a.Direction, a.Amount)
	case KindWait:
		return fmt.Sprintf("wait %.1fs", a.Duration)
	case KindLaunch:
		return fmt.Sprintf("launch %s", a.Text)
	case KindAnswer:
		return fmt.Sprintf("answer %q", truncate(a.Text, 40))
	case KindTerminate:
		return fmt.Sprintf("terminate (%s)", a.Status)
	default:
		return string(a.Kind)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Encode renders the action as the compact JSON payload the model itself
// emits, with coordinates converted back to the [0,999] grid. Decoding the
// result yields an equal Action, which is what history replay relies on.
func Encode(a Action) string {
	w := wireAction{
		Action:    string(a.Kind),
		Button:    string(a.Button),
		Text:      a.Text,
		Key:       a.Key,
		Keys:      a.Keys,
		Direction: string(a.Direction),
		Status:    string(a.Status),
	}
	if a.Coordinate != nil {
		gx, gy := a.Coordinate.Grid()
		w.Coordinate = []json.Number{gridNumber(gx), gridNumber(gy)}
	}
	if a.StartCoordinate != nil {
		gx, gy := a.StartCoordinate.Grid()
		w.StartCoordinate = []json.Number{gridNumber(gx), gridNumber(gy)}
	}
	if a.EndCoordinate != nil {
		gx, gy := a.EndCoordinate.Grid()
		w.EndCoordinate = []json.Number{gridNumber(gx), gridNumber(gy)}
	}
	if a.Amount != 0 {
		w.Amount = json.Number(fmt.Sprintf("%d", a.Amount))
	}
	if a.Duration != 0 {
		w.Duration = json.Number(fmt.Sprintf("%g", a.Duration))
	}

	out, err := json.Marshal(w)
	if err != nil {
		// wireAction contains only marshalable fields.
		panic(fmt.Sprintf("action encode: %v", err))
	}
	return string(out)
}

func gridNumber(v int) json.Number {
	return json.Number(fmt.Sprintf("%d", v))
}

// FormatResponse renders a full model-style response (thinking narration
// plus invoke payload) for one past step, in the exact tag format the model
// was trained on. Empty thinking gets a placeholder so the tags never
// propagate empty.
func FormatResponse(thinking string, a Action) string {
	if strings.TrimSpace(thinking) == "" {
		thinking = "(proceeding with action)"
	}
	payload := fmt.Sprintf(`{"name":"desktop_use","arguments":%s}`, Encode(a))
	return fmt.Sprintf("<thinking>\n%s\n</thinking>\n<invoke>\n%s\n</invoke>", thinking, payload)
}
