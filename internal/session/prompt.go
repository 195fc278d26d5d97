// File: internal/session/prompt.go
package session

import (
	"fmt"
	"strings"

	"github.com/vistral/deskpilot/internal/action"
	"github.com/vistral/deskpilot/internal/llmclient"
)

// systemPrompt teaches the model the response contract: narrate inside
// <thinking> tags, then emit exactly one desktop_use payload inside <invoke>
// tags, with coordinates on the 0-999 grid.
const systemPrompt = `You are a desktop automation agent. You see the screen as an image and act through the desktop_use tool.

On every turn, first reason inside <thinking></thinking> tags, then emit exactly one action inside <invoke></invoke> tags as a JSON object:
<invoke>
{"name": "desktop_use", "arguments": {"action": "...", ...}}
</invoke>

Coordinates are integers on a 0-999 grid over the visible screen, [x, y] with the origin at the top-left.

Available actions:
- {"action": "click", "coordinate": [x, y], "button": "left"|"right"|"middle"}
- {"action": "double_click", "coordinate": [x, y]}
- {"action": "type", "text": "..."} - types into the focused element
- {"action": "drag", "start_coordinate": [x, y], "end_coordinate": [x, y]}
- {"action": "key_press", "key": "enter"} - a single named key
- {"action": "hotkey", "keys": ["ctrl", "c"]} - a chord
- {"action": "scroll", "direction": "up"|"down"|"left"|"right", "amount": n, "coordinate": [x, y]}
- {"action": "wait", "duration": seconds} - let the screen settle
- {"action": "launch", "text": "app-alias"} - start an application
- {"action": "answer", "text": "..."} - final answer to the user, ends the session
- {"action": "terminate", "status": "success"|"fail"} - ends the session

Take one action per turn. Prefer small verifiable steps. When the task is complete, answer or terminate.`

// Prompt assembles the conversation for a single prediction outside a
// running session, as the tool server does: no history, just the contract,
// the task and the current frame.
func Prompt(instruction string, screenshot []byte) []llmclient.Message {
	b := &promptBuilder{instruction: instruction}
	return b.build(&History{}, screenshot)
}

// promptBuilder assembles the chat conversation for one prediction: system
// contract, task statement with compacted older history, verbatim replay of
// the recent window, and the current screenshot.
type promptBuilder struct {
	instruction string
	window      int
}

func (b *promptBuilder) build(history *History, screenshot []byte) []llmclient.Message {
	messages := []llmclient.Message{
		llmclient.TextMessage(llmclient.RoleSystem, systemPrompt),
	}

	summaries, recent := history.Window(b.window)

	var task strings.Builder
	fmt.Fprintf(&task, "Task: %s", b.instruction)
	if len(summaries) > 0 {
		task.WriteString("\n\nEarlier actions (condensed):\n")
		for _, line := range summaries {
			task.WriteString("- " + line + "\n")
		}
	}
	messages = append(messages, llmclient.TextMessage(llmclient.RoleUser, task.String()))

	// Recent steps replay verbatim: the assistant's own response re-encoded
	// in its native tag format, then the execution feedback it received.
	for _, s := range recent {
		assistant := s.Raw
		if s.Action.Kind != "" {
			assistant = action.FormatResponse(s.Thinking, s.Action)
		}
		messages = append(messages, llmclient.TextMessage(llmclient.RoleAssistant, assistant))
		messages = append(messages, llmclient.TextMessage(llmclient.RoleUser,
			fmt.Sprintf("[EXECUTION RESULT] %s", s.Result)))
	}

	messages = append(messages, llmclient.Message{
		Role: llmclient.RoleUser,
		Parts: []llmclient.Part{
			{Text: "Current screen:"},
			{ImagePNG: screenshot},
		},
	})
	return messages
}
