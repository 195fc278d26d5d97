// File: internal/session/controller_test.go
package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/action"
	"github.com/vistral/deskpilot/internal/config"
	"github.com/vistral/deskpilot/internal/executor"
	"github.com/vistral/deskpilot/internal/llmclient"
	"github.com/vistral/deskpilot/internal/screen"
)

// scriptedClient returns canned responses in order, repeating the last one.
type scriptedClient struct {
	responses []string
	err       error
	calls     int
	lastSent  []llmclient.Message
}

func (c *scriptedClient) Complete(_ context.Context, messages []llmclient.Message) (string, error) {
	c.calls++
	c.lastSent = messages
	if c.err != nil {
		return "", c.err
	}
	i := c.calls - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

// fakeExecutor records executed actions; failures are scripted per call.
type fakeExecutor struct {
	executed []action.Action
	errs     []error
}

func (e *fakeExecutor) Execute(_ context.Context, a action.Action) (executor.Outcome, error) {
	e.executed = append(e.executed, a)
	if n := len(e.executed); n <= len(e.errs) && e.errs[n-1] != nil {
		return executor.Outcome{}, e.errs[n-1]
	}
	return executor.Outcome{Executed: true, Detail: "ok: " + a.Summary()}, nil
}

type fakeCapturer struct {
	err error
}

func (c *fakeCapturer) Capture(context.Context) (*screen.Frame, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &screen.Frame{PNG: []byte("png"), Width: 1920, Height: 1080, CapturedAt: time.Now()}, nil
}

func (c *fakeCapturer) Geometry(context.Context) (int, int, error) { return 1920, 1080, nil }

func clickResponse(gx, gy int) string {
	return fmt.Sprintf(`<thinking>next</thinking><invoke>{"action":"click","coordinate":[%d,%d]}</invoke>`, gx, gy)
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		MaxSteps:               25,
		HistoryWindow:          3,
		MaxConsecutiveFailures: 3,
		BlockDuplicates:        true,
	}
}

func newTestController(client llmclient.Client, exec ActionExecutor, cap screen.Capturer, cfg config.SessionConfig) *Controller {
	store := screen.NewStore(config.ScreenshotsConfig{Enabled: false}, zap.NewNop())
	return NewController(client, exec, cap, store, cfg, zap.NewNop())
}

func TestController_StepBudgetExhaustion(t *testing.T) {
	// A model that never terminates burns exactly max_steps steps, then the
	// session fails with TimeoutExceeded.
	client := &scriptedClient{responses: []string{
		clickResponse(100, 100), clickResponse(500, 500), clickResponse(900, 900),
	}}
	exec := &fakeExecutor{}
	cfg := testSessionConfig()
	cfg.MaxSteps = 3

	ctrl := newTestController(client, exec, &fakeCapturer{}, cfg)
	res, err := ctrl.Run(context.Background(), "open the settings")

	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ReasonTimeoutExceeded, res.Reason)
	assert.Len(t, res.Steps, 3)
	assert.Len(t, exec.executed, 3)
	assert.Equal(t, 3, client.calls)
}

func TestController_TerminateOnFirstResponse(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`<thinking>nothing to do</thinking><invoke>{"action":"terminate","status":"success"}</invoke>`,
	}}
	exec := &fakeExecutor{}

	ctrl := newTestController(client, exec, &fakeCapturer{}, testSessionConfig())
	res, err := ctrl.Run(context.Background(), "do nothing")

	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, action.StatusSuccess, res.TerminateStatus)
	assert.Len(t, res.Steps, 1)
	assert.Empty(t, exec.executed, "terminal actions bypass the executor")
}

func TestController_AnswerCarriesText(t *testing.T) {
	client := &scriptedClient{responses: []string{
		clickResponse(200, 300),
		`<thinking>found it</thinking><invoke>{"action":"answer","text":"The total is 42."}</invoke>`,
	}}
	exec := &fakeExecutor{}

	ctrl := newTestController(client, exec, &fakeCapturer{}, testSessionConfig())
	res, err := ctrl.Run(context.Background(), "find the total")

	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "The total is 42.", res.Answer)
	assert.Len(t, res.Steps, 2)
}

func TestController_ConsecutiveDecodeFailures(t *testing.T) {
	client := &scriptedClient{responses: []string{"I am not sure what to do here."}}
	exec := &fakeExecutor{}

	ctrl := newTestController(client, exec, &fakeCapturer{}, testSessionConfig())
	res, err := ctrl.Run(context.Background(), "do something")

	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ReasonConsecutiveFailures, res.Reason)
	assert.Len(t, res.Steps, 3, "one recorded failure per budgeted attempt")
	for _, s := range res.Steps {
		assert.True(t, s.Failed)
	}
}

func TestController_FailureCounterResetsOnSuccess(t *testing.T) {
	// fail, fail, success, fail, fail, success, ... never trips a budget of 3.
	client := &scriptedClient{responses: []string{
		"garbage", "garbage", clickResponse(100, 100),
		"garbage", "garbage", clickResponse(500, 500),
		`<invoke>{"action":"terminate","status":"success"}</invoke>`,
	}}
	exec := &fakeExecutor{}

	ctrl := newTestController(client, exec, &fakeCapturer{}, testSessionConfig())
	res, err := ctrl.Run(context.Background(), "persevere")

	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Len(t, res.Steps, 7)
}

func TestController_ExecutionFailuresCountAgainstBudget(t *testing.T) {
	client := &scriptedClient{responses: []string{
		clickResponse(100, 100), clickResponse(500, 500), clickResponse(900, 900),
	}}
	boom := errors.New("surface exploded")
	exec := &fakeExecutor{errs: []error{boom, boom, boom}}

	ctrl := newTestController(client, exec, &fakeCapturer{}, testSessionConfig())
	res, err := ctrl.Run(context.Background(), "click around")

	require.Error(t, err)
	assert.Equal(t, ReasonConsecutiveFailures, res.Reason)
	assert.Len(t, exec.executed, 3)
}

func TestController_ModelUnavailableFailsImmediately(t *testing.T) {
	client := &scriptedClient{err: &llmclient.ModelUnavailableError{Endpoint: "http://x", Err: errors.New("refused")}}
	exec := &fakeExecutor{}

	ctrl := newTestController(client, exec, &fakeCapturer{}, testSessionConfig())
	res, err := ctrl.Run(context.Background(), "anything")

	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ReasonModelUnavailable, res.Reason)
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, res.Steps)
}

func TestController_DuplicateClickSubstitutedWithWait(t *testing.T) {
	// Two near-identical clicks in a row: the repeat executes as a wait.
	client := &scriptedClient{responses: []string{
		clickResponse(500, 500),
		clickResponse(502, 501),
		`<invoke>{"action":"terminate","status":"success"}</invoke>`,
	}}
	exec := &fakeExecutor{}

	ctrl := newTestController(client, exec, &fakeCapturer{}, testSessionConfig())
	res, err := ctrl.Run(context.Background(), "click the same button twice")

	require.NoError(t, err)
	require.Len(t, exec.executed, 2)
	assert.Equal(t, action.KindClick, exec.executed[0].Kind)
	assert.Equal(t, action.KindWait, exec.executed[1].Kind, "repeat click must be blocked")
	assert.Equal(t, StateDone, res.State)
}

func TestController_DuplicateGuardDisabled(t *testing.T) {
	client := &scriptedClient{responses: []string{
		clickResponse(500, 500),
		clickResponse(500, 500),
		`<invoke>{"action":"terminate","status":"success"}</invoke>`,
	}}
	exec := &fakeExecutor{}
	cfg := testSessionConfig()
	cfg.BlockDuplicates = false

	ctrl := newTestController(client, exec, &fakeCapturer{}, cfg)
	_, err := ctrl.Run(context.Background(), "click twice")

	require.NoError(t, err)
	require.Len(t, exec.executed, 2)
	assert.Equal(t, action.KindClick, exec.executed[1].Kind)
}

func TestController_CancelledContextAborts(t *testing.T) {
	client := &scriptedClient{responses: []string{clickResponse(100, 100)}}
	exec := &fakeExecutor{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctrl := newTestController(client, exec, &fakeCapturer{}, testSessionConfig())
	res, err := ctrl.Run(ctx, "anything")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, res.State)
	assert.Empty(t, res.Steps)
}

func TestController_HistoryWindowCondensesOlderSteps(t *testing.T) {
	responses := make([]string, 0, 6)
	for i := 1; i <= 5; i++ {
		responses = append(responses, clickResponse(i*100, i*100))
	}
	responses = append(responses, `<invoke>{"action":"terminate","status":"success"}</invoke>`)
	client := &scriptedClient{responses: responses}
	exec := &fakeExecutor{}
	cfg := testSessionConfig()
	cfg.HistoryWindow = 2

	ctrl := newTestController(client, exec, &fakeCapturer{}, cfg)
	_, err := ctrl.Run(context.Background(), "walk the diagonal")
	require.NoError(t, err)

	// The final prompt (5 completed steps) condenses steps 1-3 and replays
	// steps 4-5 verbatim.
	var taskText string
	assistants := 0
	for _, m := range client.lastSent {
		for _, p := range m.Parts {
			if m.Role == llmclient.RoleUser && taskText == "" {
				taskText = p.Text
			}
		}
		if m.Role == llmclient.RoleAssistant {
			assistants++
		}
	}
	assert.Contains(t, taskText, "Earlier actions (condensed):")
	assert.Contains(t, taskText, "step 1: click at [100,100]")
	assert.Equal(t, 2, assistants, "only the window is replayed verbatim")
}
