// File: internal/session/controller.go
package session

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/action"
	"github.com/vistral/deskpilot/internal/config"
	"github.com/vistral/deskpilot/internal/executor"
	"github.com/vistral/deskpilot/internal/llmclient"
	"github.com/vistral/deskpilot/internal/screen"
)

// State is the session lifecycle. Transitions only move forward:
// INIT -> RUNNING -> one of the terminal states.
type State string

const (
	StateInit    State = "INIT"
	StateRunning State = "RUNNING"
	StateDone    State = "DONE"
	StateFailed  State = "FAILED"
	StateAborted State = "ABORTED"
)

// FailureReason explains a FAILED terminal state.
type FailureReason string

const (
	ReasonTimeoutExceeded     FailureReason = "TimeoutExceeded"
	ReasonConsecutiveFailures FailureReason = "ConsecutiveFailures"
	ReasonModelUnavailable    FailureReason = "ModelUnavailable"
)

// duplicateClickRadius is the normalized distance under which two
// consecutive clicks count as the same click.
const duplicateClickRadius = 0.03

// ActionExecutor is the single-shot execution capability the controller
// drives. Satisfied by *executor.Executor.
type ActionExecutor interface {
	Execute(ctx context.Context, a action.Action) (executor.Outcome, error)
}

// Result is the final report of one session run.
type Result struct {
	ID     string
	State  State
	Reason FailureReason
	// Answer carries the text of a terminal answer action.
	Answer string
	// TerminateStatus carries the verdict of a terminal terminate action.
	TerminateStatus action.TerminateStatus
	Steps           []Step
}

// Controller runs the multi-step loop for one instruction. A controller is
// single-use: construct, Run once, read the result.
type Controller struct {
	client   llmclient.Client
	exec     ActionExecutor
	capturer screen.Capturer
	store    *screen.Store
	cfg      config.SessionConfig
	logger   *zap.Logger

	id      string
	state   State
	history *History
}

// NewController wires a session over its collaborators.
func NewController(client llmclient.Client, exec ActionExecutor, capturer screen.Capturer, store *screen.Store, cfg config.SessionConfig, logger *zap.Logger) *Controller {
	id := uuid.NewString()
	return &Controller{
		client:   client,
		exec:     exec,
		capturer: capturer,
		store:    store,
		cfg:      cfg,
		logger:   logger.Named("session").With(zap.String("session_id", id)),
		id:       id,
		state:    StateInit,
		history:  &History{},
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() State { return c.state }

// Run executes the loop until a terminal action, a budget is exhausted, or
// ctx is cancelled. The returned Result is always complete; the error is
// non-nil only alongside FAILED/ABORTED and explains the cause.
func (c *Controller) Run(ctx context.Context, instruction string) (*Result, error) {
	c.state = StateRunning
	c.logger.Info("Session started.",
		zap.String("instruction", instruction),
		zap.Int("max_steps", c.cfg.MaxSteps))

	builder := &promptBuilder{instruction: instruction, window: c.cfg.HistoryWindow}
	consecutive := 0

	for step := 1; step <= c.cfg.MaxSteps; step++ {
		if ctx.Err() != nil {
			return c.abort(ctx.Err())
		}

		frame, err := c.capturer.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.abort(ctx.Err())
			}
			consecutive++
			c.recordFailure(Step{Result: "screen capture failed: " + err.Error()})
			if consecutive >= c.cfg.MaxConsecutiveFailures {
				return c.fail(ReasonConsecutiveFailures, err)
			}
			continue
		}

		raw, err := c.client.Complete(ctx, builder.build(c.history, frame.PNG))
		if err != nil {
			if ctx.Err() != nil {
				return c.abort(ctx.Err())
			}
			var mue *llmclient.ModelUnavailableError
			if errors.As(err, &mue) {
				return c.fail(ReasonModelUnavailable, err)
			}
			consecutive++
			c.recordFailure(Step{Result: "model request failed: " + err.Error()})
			if consecutive >= c.cfg.MaxConsecutiveFailures {
				return c.fail(ReasonConsecutiveFailures, err)
			}
			continue
		}

		shot := c.store.Save(frame)

		pred, err := action.Decode(raw)
		if err != nil {
			consecutive++
			c.recordFailure(Step{Raw: raw, Thinking: pred.Thinking, Screenshot: shot,
				Result: "could not decode action: " + err.Error()})
			if consecutive >= c.cfg.MaxConsecutiveFailures {
				return c.fail(ReasonConsecutiveFailures, err)
			}
			continue
		}

		act := pred.Action
		if c.cfg.BlockDuplicates {
			if last, ok := c.history.Last(); ok && !last.Failed && duplicateOf(last.Action, act) {
				c.logger.Warn("Blocked repeated action; substituting wait.",
					zap.String("action", act.Summary()))
				act = action.Action{Kind: action.KindWait, Duration: 1}
			}
		}

		if act.Terminal() {
			c.history.Append(Step{
				Thinking: pred.Thinking, Action: act, Raw: raw,
				Executed: true, Result: act.Summary(), Screenshot: shot,
			})
			return c.finish(act)
		}

		out, err := c.exec.Execute(ctx, act)
		if err != nil {
			if ctx.Err() != nil {
				return c.abort(ctx.Err())
			}
			consecutive++
			c.recordFailure(Step{Thinking: pred.Thinking, Action: act, Raw: raw,
				Screenshot: shot, Result: err.Error()})
			if consecutive >= c.cfg.MaxConsecutiveFailures {
				return c.fail(ReasonConsecutiveFailures, err)
			}
			continue
		}

		consecutive = 0
		c.history.Append(Step{
			Thinking: pred.Thinking, Action: act, Raw: raw,
			Executed: out.Executed, Result: out.Detail, Screenshot: shot,
		})
		c.logger.Info("Step completed.",
			zap.Int("step", c.history.Len()),
			zap.String("action", act.Summary()),
			zap.String("result", out.Detail))
	}

	return c.fail(ReasonTimeoutExceeded, nil)
}

func (c *Controller) recordFailure(s Step) {
	s.Failed = true
	c.history.Append(s)
	c.logger.Warn("Step failed.", zap.Int("step", c.history.Len()), zap.String("result", s.Result))
}

func (c *Controller) finish(a action.Action) (*Result, error) {
	c.state = StateDone
	res := c.result()
	if a.Kind == action.KindAnswer {
		res.Answer = a.Text
	} else {
		res.TerminateStatus = a.Status
	}
	c.logger.Info("Session done.",
		zap.Int("steps", c.history.Len()),
		zap.String("terminal_action", string(a.Kind)))
	return res, nil
}

func (c *Controller) fail(reason FailureReason, cause error) (*Result, error) {
	c.state = StateFailed
	res := c.result()
	res.Reason = reason
	c.logger.Warn("Session failed.",
		zap.String("reason", string(reason)),
		zap.Int("steps", c.history.Len()),
		zap.Error(cause))
	if cause == nil {
		cause = errors.New(string(reason))
	}
	return res, cause
}

func (c *Controller) abort(cause error) (*Result, error) {
	c.state = StateAborted
	res := c.result()
	c.logger.Warn("Session aborted.", zap.Int("steps", c.history.Len()), zap.Error(cause))
	return res, cause
}

func (c *Controller) result() *Result {
	return &Result{ID: c.id, State: c.state, Steps: c.history.Steps()}
}

// duplicateOf reports whether next is an exact repeat of prev: a click
// within a small radius of the previous click, the same typed text, or the
// same launched alias. Repeats signal a stuck model; re-executing them
// re-triggers side effects without making progress.
func duplicateOf(prev, next action.Action) bool {
	if prev.Kind != next.Kind {
		return false
	}
	switch next.Kind {
	case action.KindClick, action.KindDoubleClick:
		if prev.Coordinate == nil || next.Coordinate == nil || prev.Button != next.Button {
			return false
		}
		dx := prev.Coordinate.X - next.Coordinate.X
		dy := prev.Coordinate.Y - next.Coordinate.Y
		return math.Hypot(dx, dy) < duplicateClickRadius
	case action.KindType:
		return prev.Text == next.Text
	case action.KindLaunch:
		return prev.Text == next.Text
	default:
		return false
	}
}
