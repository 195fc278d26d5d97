// File: internal/mcp/tools.go
package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"os"

	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/action"
	"github.com/vistral/deskpilot/internal/session"
)

// toolDefinition is one entry in the tools/list response.
type toolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func toolDefinitions() []toolDefinition {
	return []toolDefinition{
		{
			Name:        "screenshot",
			Description: "Capture the current desktop screen and return it as a PNG image.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "predict_action",
			Description: "Send a captured screenshot and an instruction to the vision model, then execute the predicted desktop action.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"instruction": map[string]interface{}{
						"type":        "string",
						"description": "Natural-language description of the single action to take.",
					},
					"screenshot_path": map[string]interface{}{
						"type":        "string",
						"description": "Path of a PNG returned by the screenshot tool; the model reasons over this exact frame.",
					},
				},
				"required": []string{"instruction", "screenshot_path"},
			},
		},
		{
			Name:        "scroll_action",
			Description: "Ask the vision model where to scroll for an instruction, then scroll there in the caller's direction.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"instruction": map[string]interface{}{
						"type":        "string",
						"description": "What to look for or bring into view.",
					},
					"screenshot_path": map[string]interface{}{
						"type":        "string",
						"description": "Path of a PNG returned by the screenshot tool.",
					},
					"direction": map[string]interface{}{
						"type": "string",
						"enum": []string{"up", "down", "left", "right"},
					},
					"amount": map[string]interface{}{
						"type":        "integer",
						"description": "Scroll notches; defaults to 3.",
					},
				},
				"required": []string{"instruction", "screenshot_path", "direction"},
			},
		},
	}
}

type predictParams struct {
	Instruction    string `json:"instruction"`
	ScreenshotPath string `json:"screenshot_path"`
}

type scrollParams struct {
	Instruction    string `json:"instruction"`
	ScreenshotPath string `json:"screenshot_path"`
	Direction      string `json:"direction"`
	Amount         int    `json:"amount"`
}

// predictResult is the text payload of predict_action and scroll_action.
type predictResult struct {
	Thinking string        `json:"thinking,omitempty"`
	Action   action.Action `json:"predicted_action"`
	Executed bool          `json:"executed"`
	Detail   string        `json:"execution_result,omitempty"`
	// X/Y are the resolved pixel position, when the action has one.
	X *int `json:"x,omitempty"`
	Y *int `json:"y,omitempty"`
}

// ProtocolError is a failure that maps directly to a JSON-RPC error object:
// bad parameters, an unknown tool, or an internal failure carrying out one.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }

func protocolErrorf(code int, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (s *Server) handleScreenshot(ctx context.Context) (*toolResult, error) {
	frame, err := s.capturer.Capture(ctx)
	if err != nil {
		return nil, protocolErrorf(CodeInternalError, "screen capture failed: %v", err)
	}
	// The returned path is the handle later predict_action calls use, so
	// persistence is part of the tool's contract, not a debug artifact.
	path, err := s.store.Persist(frame)
	if err != nil {
		return nil, protocolErrorf(CodeInternalError, "persist screenshot: %v", err)
	}

	meta, err := json.MarshalToString(map[string]interface{}{
		"width": frame.Width, "height": frame.Height, "path": path,
	})
	if err != nil {
		return nil, protocolErrorf(CodeInternalError, "encode screenshot metadata: %v", err)
	}
	return &toolResult{Content: []interface{}{
		imageContent{
			Type:     "image",
			Data:     base64.StdEncoding.EncodeToString(frame.PNG),
			MimeType: "image/png",
		},
		textContent{Type: "text", Text: meta},
	}}, nil
}

func (s *Server) handlePredictAction(ctx context.Context, p predictParams) (*toolResult, error) {
	if p.Instruction == "" {
		return nil, protocolErrorf(CodeInvalidParams, "instruction is required")
	}
	if p.ScreenshotPath == "" {
		return nil, protocolErrorf(CodeInvalidParams, "screenshot_path is required")
	}

	pred, frame, err := s.predict(ctx, p.Instruction, p.ScreenshotPath)
	if err != nil {
		return nil, err
	}

	res := predictResult{Thinking: pred.Thinking, Action: pred.Action}

	// Scroll predictions report position only; the dedicated scroll_action
	// tool owns scrolling so the caller controls direction and amount.
	if pred.Action.Kind == action.KindScroll {
		res.Detail = "scroll target predicted; use scroll_action to execute"
		setPixels(&res, pred.Action.Coordinate, frame.Width, frame.Height)
		return textResult(res)
	}

	out, err := s.exec.Execute(ctx, pred.Action)
	if err != nil {
		return nil, protocolErrorf(CodeInternalError, "execution failed: %v", err)
	}
	res.Executed = out.Executed
	res.Detail = out.Detail
	setPixels(&res, pred.Action.Coordinate, frame.Width, frame.Height)
	return textResult(res)
}

func (s *Server) handleScrollAction(ctx context.Context, p scrollParams) (*toolResult, error) {
	if p.Instruction == "" {
		return nil, protocolErrorf(CodeInvalidParams, "instruction is required")
	}
	if p.ScreenshotPath == "" {
		return nil, protocolErrorf(CodeInvalidParams, "screenshot_path is required")
	}
	dir := action.Direction(p.Direction)
	switch dir {
	case action.DirectionUp, action.DirectionDown, action.DirectionLeft, action.DirectionRight:
	default:
		return nil, protocolErrorf(CodeInvalidParams, "direction must be one of up, down, left, right")
	}
	amount := p.Amount
	if amount <= 0 {
		amount = 3
	}

	prompt := fmt.Sprintf("Identify where on the screen to scroll for this goal, and respond with a scroll or click action at that position: %s", p.Instruction)
	pred, frame, err := s.predict(ctx, prompt, p.ScreenshotPath)
	if err != nil {
		return nil, err
	}

	// The model only contributes the target position; direction and amount
	// are the caller's.
	target := pred.Action.Coordinate
	scroll := action.Action{Kind: action.KindScroll, Direction: dir, Amount: amount, Coordinate: target}

	out, err := s.exec.Execute(ctx, scroll)
	if err != nil {
		return nil, protocolErrorf(CodeInternalError, "execution failed: %v", err)
	}

	res := predictResult{Thinking: pred.Thinking, Action: scroll, Executed: out.Executed, Detail: out.Detail}
	setPixels(&res, target, frame.Width, frame.Height)
	return textResult(res)
}

// predict runs one single-shot prediction over a previously captured frame.
// The caller names the frame by path, so the model reasons over the exact
// image the orchestrator inspected rather than whatever the screen shows by
// the time the call arrives.
func (s *Server) predict(ctx context.Context, instruction, screenshotPath string) (action.Prediction, *screenFrame, error) {
	frame, err := loadFrame(screenshotPath)
	if err != nil {
		return action.Prediction{}, nil, err
	}

	raw, err := s.client.Complete(ctx, session.Prompt(instruction, frame.PNG))
	if err != nil {
		return action.Prediction{}, nil, protocolErrorf(CodeInternalError, "model request failed: %v", err)
	}

	pred, err := action.Decode(raw)
	if err != nil {
		s.logger.Warn("Model response could not be decoded.", zap.Error(err))
		return action.Prediction{}, nil, protocolErrorf(CodeInternalError, "could not decode model response: %v", err)
	}
	return pred, frame, nil
}

// screenFrame is a frame read back from disk: the PNG bytes for the model
// and the geometry for pixel conversion.
type screenFrame struct {
	PNG    []byte
	Width  int
	Height int
}

func loadFrame(path string) (*screenFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, protocolErrorf(CodeInvalidParams, "screenshot file not found: %s", path)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, protocolErrorf(CodeInvalidParams, "screenshot %s is not a valid PNG: %v", path, err)
	}
	return &screenFrame{PNG: data, Width: cfg.Width, Height: cfg.Height}, nil
}

func setPixels(res *predictResult, pt *action.Point, width, height int) {
	if pt == nil {
		return
	}
	x, y := pt.Denormalize(width, height)
	res.X, res.Y = &x, &y
}
