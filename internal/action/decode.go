// File: internal/action/decode.go
package action

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
)

// Prediction is one fully parsed model response: the free-text reasoning,
// the structured action, and the untouched raw text for logging/history.
type Prediction struct {
	Thinking string
	Action   Action
	Raw      string
}

var (
	thinkingRe = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)
	// The model occasionally emits a stray closing tag where the opening
	// <invoke> should be, so both forms are accepted.
	invokeRe = regexp.MustCompile(`(?s)</?invoke>\s*(\{.*?\})\s*</invoke>`)
)

// wireAction mirrors the JSON payload the model emits inside <invoke> tags.
// Coordinates stay raw here; interpretation (grid vs. normalized, boxes vs.
// points) happens in parseCoordinate.
type wireAction struct {
	Action          string        `json:"action"`
	Coordinate      []json.Number `json:"coordinate,omitempty"`
	StartCoordinate []json.Number `json:"start_coordinate,omitempty"`
	EndCoordinate   []json.Number `json:"end_coordinate,omitempty"`
	Button          string        `json:"button,omitempty"`
	Text            string        `json:"text,omitempty"`
	Key             string        `json:"key,omitempty"`
	Keys            []string      `json:"keys,omitempty"`
	Direction       string        `json:"direction,omitempty"`
	Amount          json.Number   `json:"amount,omitempty"`
	Duration        json.Number   `json:"duration,omitempty"`
	Status          string        `json:"status,omitempty"`
}

// wireEnvelope is the wrapped tool-call form:
// {"name":"desktop_use","arguments":{...}}.
type wireEnvelope struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Decode parses one raw model response into (thinking, action, raw).
//
// The response is expected to contain a <thinking> narration and at least
// one <invoke> JSON payload. When several payloads are present the most
// recent well-formed one is authoritative; earlier ones are treated as
// abandoned drafts. A response with no well-formed payload fails with
// *DecodeError -- the decoder never invents a default action.
func Decode(raw string) (Prediction, error) {
	text := strings.TrimSpace(raw)

	// Reasoning-tuned checkpoints close the block with </think> and skip
	// the opening tag entirely.
	if strings.Contains(text, "</think>") && !strings.Contains(text, "</thinking>") {
		text = "<thinking>" + strings.ReplaceAll(text, "</think>", "</thinking>")
	}

	pred := Prediction{Raw: raw}
	if m := thinkingRe.FindStringSubmatch(text); m != nil {
		pred.Thinking = strings.Trim(strings.TrimSpace(m[1]), `"`)
	}

	matches := invokeRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return pred, decodeErrorf("no action payload found in response")
	}

	var lastErr error
	for i := len(matches) - 1; i >= 0; i-- {
		act, err := decodePayload(matches[i][1])
		if err == nil {
			pred.Action = act
			return pred, nil
		}
		lastErr = err
	}
	if de, ok := lastErr.(*DecodeError); ok {
		return pred, de
	}
	return pred, &DecodeError{Reason: "no well-formed action payload", Cause: lastErr}
}

// decodePayload parses a single JSON payload, accepting both the wrapped
// tool-call envelope and the bare action object.
func decodePayload(payload string) (Action, error) {
	var env wireEnvelope
	body := []byte(payload)
	if err := json.Unmarshal(body, &env); err != nil {
		return Action{}, &DecodeError{Reason: "invalid JSON in action payload", Cause: err}
	}
	if len(env.Arguments) > 0 {
		body = env.Arguments
	}

	var w wireAction
	if err := json.Unmarshal(body, &w); err != nil {
		return Action{}, &DecodeError{Reason: "invalid JSON in action arguments", Cause: err}
	}
	return fromWire(w)
}

// fromWire validates the raw payload against the closed action grammar and
// produces a normalized Action.
func fromWire(w wireAction) (Action, error) {
	a := Action{Kind: Kind(w.Action)}

	switch a.Kind {
	case KindClick, KindDoubleClick:
		pt, err := parseCoordinate(w.Coordinate)
		if err != nil {
			return Action{}, err
		}
		if pt == nil {
			return Action{}, decodeErrorf("%s action requires a coordinate", a.Kind)
		}
		a.Coordinate = pt
		a.Button = Button(w.Button)
		if a.Button == "" {
			a.Button = ButtonLeft
		}
		switch a.Button {
		case ButtonLeft, ButtonRight, ButtonMiddle:
		default:
			return Action{}, decodeErrorf("unknown mouse button %q", w.Button)
		}

	case KindType:
		if w.Text == "" {
			return Action{}, decodeErrorf("type action requires text")
		}
		a.Text = w.Text

	case KindDrag:
		start, err := parseCoordinate(w.StartCoordinate)
		if err != nil {
			return Action{}, err
		}
		end, err := parseCoordinate(w.EndCoordinate)
		if err != nil {
			return Action{}, err
		}
		if start == nil || end == nil {
			return Action{}, decodeErrorf("drag action requires start_coordinate and end_coordinate")
		}
		a.StartCoordinate = start
		a.EndCoordinate = end

	case KindKeyPress:
		if w.Key == "" {
			return Action{}, decodeErrorf("key_press action requires a key")
		}
		a.Key = w.Key

	case KindHotkey:
		if len(w.Keys) == 0 {
			return Action{}, decodeErrorf("hotkey action requires keys")
		}
		a.Keys = w.Keys

	case KindScroll:
		switch Direction(w.Direction) {
		case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
			a.Direction = Direction(w.Direction)
		case "":
			return Action{}, decodeErrorf("scroll action requires a direction")
		default:
			return Action{}, decodeErrorf("unknown scroll direction %q", w.Direction)
		}
		a.Amount = 3
		if w.Amount != "" {
			n, err := w.Amount.Float64()
			if err != nil || n <= 0 {
				return Action{}, decodeErrorf("invalid scroll amount %q", w.Amount)
			}
			a.Amount = int(n)
		}
		// Target position is optional; without one the executor scrolls at
		// the current pointer position.
		pt, err := parseCoordinate(w.Coordinate)
		if err != nil {
			return Action{}, err
		}
		a.Coordinate = pt

	case KindWait:
		a.Duration = 1
		if w.Duration != "" {
			d, err := w.Duration.Float64()
			if err != nil || d <= 0 {
				return Action{}, decodeErrorf("invalid wait duration %q", w.Duration)
			}
			a.Duration = d
		}

	case KindLaunch:
		if w.Text == "" {
			return Action{}, decodeErrorf("launch action requires an app alias")
		}
		a.Text = w.Text

	case KindAnswer:
		if w.Text == "" {
			return Action{}, decodeErrorf("answer action requires text")
		}
		a.Text = w.Text

	case KindTerminate:
		switch TerminateStatus(w.Status) {
		case StatusSuccess, StatusFail:
			a.Status = TerminateStatus(w.Status)
		case "":
			return Action{}, decodeErrorf("terminate action requires a status")
		default:
			return Action{}, decodeErrorf("unknown terminate status %q", w.Status)
		}

	case "":
		return Action{}, decodeErrorf("action payload missing the action field")
	default:
		return Action{}, decodeErrorf("unknown action kind %q", w.Action)
	}

	return a, nil
}

// parseCoordinate interprets a raw coordinate array. Two elements are a
// point, four are a bounding box collapsed to its center. The grid check
// runs on the raw values, before any averaging: a payload with any value
// above 1.5, or made of whole numbers only, is grid-native and divided by
// ScaleFactor — [1,1] is the grid cell next to the origin, not the
// bottom-right corner. Fractional values within [0,1] pass through as
// already normalized. Out-of-range results are clamped rather than
// rejected, since a coordinate slightly off-grid still identifies a screen
// edge unambiguously.
func parseCoordinate(coord []json.Number) (*Point, error) {
	if len(coord) == 0 {
		return nil, nil
	}

	vals := make([]float64, len(coord))
	grid := false
	whole := true
	for i, n := range coord {
		f, err := n.Float64()
		if err != nil {
			return nil, &DecodeError{Reason: "non-numeric coordinate value", Cause: err}
		}
		vals[i] = f
		if f > 1.5 {
			grid = true
		}
		if f != math.Trunc(f) {
			whole = false
		}
	}

	var x, y float64
	switch len(vals) {
	case 2:
		x, y = vals[0], vals[1]
	case 4:
		x = (vals[0] + vals[2]) / 2
		y = (vals[1] + vals[3]) / 2
	default:
		return nil, decodeErrorf("coordinate must have 2 or 4 values, got %d", len(vals))
	}

	if grid || whole {
		x /= ScaleFactor
		y /= ScaleFactor
	}
	return &Point{X: clamp01(x), Y: clamp01(y)}, nil
}
