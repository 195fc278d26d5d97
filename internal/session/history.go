// File: internal/session/history.go

// Package session drives the multi-step perceive-decide-act loop: capture,
// predict, execute, record, repeat, under explicit step and failure budgets.
package session

import (
	"fmt"

	"github.com/vistral/deskpilot/internal/action"
)

// Step is one completed loop iteration. Every attempted step is recorded,
// including ones that failed to decode or execute; the record is what the
// model sees of its own past.
type Step struct {
	Index    int
	Thinking string
	Action   action.Action
	Raw      string
	// Executed reports whether the action produced its effect.
	Executed bool
	// Result is the feedback line replayed to the model: the outcome detail
	// on success, the error description on failure.
	Result string
	// Failed marks decode or execution failures.
	Failed bool
	// Screenshot is the persisted frame path, when the store is enabled.
	Screenshot string
}

// History is the append-only step record of one session.
type History struct {
	steps []Step
}

// Append records a completed step.
func (h *History) Append(s Step) {
	s.Index = len(h.steps) + 1
	h.steps = append(h.steps, s)
}

// Len reports the number of recorded steps.
func (h *History) Len() int { return len(h.steps) }

// Steps returns a copy of the full record.
func (h *History) Steps() []Step {
	out := make([]Step, len(h.steps))
	copy(out, h.steps)
	return out
}

// Last returns the most recent step, or false when the history is empty.
func (h *History) Last() (Step, bool) {
	if len(h.steps) == 0 {
		return Step{}, false
	}
	return h.steps[len(h.steps)-1], true
}

// Window splits the record for prompting: everything older than the last k
// steps compacted to one-line summaries, the last k steps returned verbatim
// for full replay.
func (h *History) Window(k int) (summaries []string, recent []Step) {
	cut := len(h.steps) - k
	if k <= 0 {
		cut = len(h.steps)
	}
	if cut < 0 {
		cut = 0
	}
	for _, s := range h.steps[:cut] {
		line := fmt.Sprintf("step %d: %s", s.Index, s.Action.Summary())
		if s.Failed {
			line = fmt.Sprintf("step %d: FAILED: %s", s.Index, s.Result)
		}
		summaries = append(summaries, line)
	}
	recent = make([]Step, len(h.steps[cut:]))
	copy(recent, h.steps[cut:])
	return summaries, recent
}
