// File: internal/mcp/server_test.go
package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/action"
	"github.com/vistral/deskpilot/internal/config"
	"github.com/vistral/deskpilot/internal/executor"
	"github.com/vistral/deskpilot/internal/llmclient"
	"github.com/vistral/deskpilot/internal/screen"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubClient struct {
	response string
	calls    int
}

func (c *stubClient) Complete(context.Context, []llmclient.Message) (string, error) {
	c.calls++
	return c.response, nil
}

type stubExecutor struct {
	executed []action.Action
}

func (e *stubExecutor) Execute(_ context.Context, a action.Action) (executor.Outcome, error) {
	e.executed = append(e.executed, a)
	return executor.Outcome{Executed: true, Detail: "ok: " + a.Summary()}, nil
}

type stubCapturer struct{}

func (stubCapturer) Capture(context.Context) (*screen.Frame, error) {
	return &screen.Frame{PNG: []byte("fake-png"), Width: 1920, Height: 1080, CapturedAt: time.Now()}, nil
}

func (stubCapturer) Geometry(context.Context) (int, int, error) { return 1920, 1080, nil }

type testHarness struct {
	server  *Server
	client  *stubClient
	exec    *stubExecutor
	shotDir string
}

func newHarness(t *testing.T, modelResponse string) *testHarness {
	t.Helper()
	client := &stubClient{response: modelResponse}
	exec := &stubExecutor{}
	shotDir := t.TempDir()
	store := screen.NewStore(config.ScreenshotsConfig{Enabled: false, Dir: shotDir}, zap.NewNop())
	server := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0},
		client, exec, stubCapturer{}, store, zap.NewNop())
	return &testHarness{server: server, client: client, exec: exec, shotDir: shotDir}
}

// writeScreenshot persists a real 1920x1080 PNG and returns its path, standing
// in for a prior screenshot tool call.
func (h *testHarness) writeScreenshot(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1920, 1080))))
	path := filepath.Join(h.shotDir, "frame.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func (h *testHarness) post(t *testing.T, body string) (*Response, int) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	if rec.Body.Len() == 0 {
		return nil, rec.Code
	}
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp, rec.Code
}

func TestServer_ToolsList(t *testing.T) {
	h := newHarness(t, "")
	resp, code := h.post(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	assert.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result struct {
		Tools []toolDefinition `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
		if tool.Name != "screenshot" {
			required, _ := tool.InputSchema["required"].([]interface{})
			assert.Contains(t, required, "screenshot_path", "%s must require a screenshot", tool.Name)
		}
	}
	assert.ElementsMatch(t, []string{"screenshot", "predict_action", "scroll_action"}, names)
	assert.Zero(t, h.client.calls, "listing tools must not hit the model")
}

func TestServer_Initialize(t *testing.T) {
	h := newHarness(t, "")
	resp, _ := h.post(t, `{"jsonrpc":"2.0","id":"init-1","method":"initialize"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, `"init-1"`, string(resp.ID))

	raw, _ := json.Marshal(resp.Result)
	assert.Contains(t, string(raw), protocolVersion)
}

func TestServer_NotificationGetsNoBody(t *testing.T) {
	h := newHarness(t, "")
	resp, code := h.post(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Nil(t, resp)
	assert.Equal(t, http.StatusAccepted, code)
}

func TestServer_IDLessRequestGetsGeneratedID(t *testing.T) {
	h := newHarness(t, "")
	resp, code := h.post(t, `{"jsonrpc":"2.0","method":"tools/list"}`)

	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp, "a request without an id still gets a reply")
	require.Nil(t, resp.Error)
	assert.NotEmpty(t, resp.ID)
	assert.NotEqual(t, "null", string(resp.ID))
}

func TestServer_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"unparseable body", `{not json`, CodeInvalidRequest},
		{"missing jsonrpc version", `{"id":1,"method":"tools/list"}`, CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, CodeMethodNotFound},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"format_disk"}}`, CodeMethodNotFound},
		{"missing tool name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, CodeInvalidParams},
		{"predict without instruction", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"predict_action","arguments":{}}}`, CodeInvalidParams},
		{"predict without screenshot_path", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"predict_action","arguments":{"instruction":"click ok"}}}`, CodeInvalidParams},
		{"scroll with bad direction", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"scroll_action","arguments":{"instruction":"x","screenshot_path":"/tmp/s.png","direction":"diagonal"}}}`, CodeInvalidParams},
	}

	h := newHarness(t, "")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := h.post(t, tc.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestServer_Screenshot(t *testing.T) {
	h := newHarness(t, "")
	resp, _ := h.post(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"screenshot"}}`)
	require.Nil(t, resp.Error)

	raw, _ := json.Marshal(resp.Result)
	body := string(raw)
	assert.Contains(t, body, base64.StdEncoding.EncodeToString([]byte("fake-png")))
	assert.Contains(t, body, `\"width\":1920`)
	// The path in the metadata must point at a real file, even though the
	// store's session toggle is off in this harness.
	assert.Contains(t, body, h.shotDir)
	entries, err := os.ReadDir(h.shotDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "screenshot_")
}

func TestServer_PredictActionExecutesClick(t *testing.T) {
	h := newHarness(t, `<thinking>点击测试按钮</thinking>`+
		`<invoke>{"name":"desktop_use","arguments":{"action":"click","coordinate":[500,500]}}</invoke>`)
	shot := h.writeScreenshot(t)

	resp, _ := h.post(t, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"predict_action","arguments":{"instruction":"点击测试按钮","screenshot_path":"`+shot+`"}}}`)
	require.Nil(t, resp.Error)

	require.Len(t, h.exec.executed, 1)
	assert.Equal(t, action.KindClick, h.exec.executed[0].Kind)

	raw, _ := json.Marshal(resp.Result)
	body := string(raw)
	assert.Contains(t, body, `\"executed\":true`)
	// Grid [500,500] on a 1920x1080 screen resolves to the center pixel.
	assert.Contains(t, body, `\"x\":960`)
	assert.Contains(t, body, `\"y\":540`)
}

func TestServer_PredictActionRejectsMissingScreenshotFile(t *testing.T) {
	h := newHarness(t, `<invoke>{"action":"click","coordinate":[500,500]}</invoke>`)

	resp, _ := h.post(t, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"predict_action","arguments":{"instruction":"click ok","screenshot_path":"/nonexistent/shot.png"}}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "not found")
	assert.Zero(t, h.client.calls, "a missing screenshot must fail before the model is called")
	assert.Empty(t, h.exec.executed)
}

func TestServer_PredictActionReportsScrollWithoutExecuting(t *testing.T) {
	h := newHarness(t, `<invoke>{"action":"scroll","direction":"down","coordinate":[500,800]}</invoke>`)
	shot := h.writeScreenshot(t)

	resp, _ := h.post(t, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"predict_action","arguments":{"instruction":"scroll the list","screenshot_path":"`+shot+`"}}}`)
	require.Nil(t, resp.Error)
	assert.Empty(t, h.exec.executed, "predict_action must not execute scrolls")

	raw, _ := json.Marshal(resp.Result)
	assert.Contains(t, string(raw), `\"executed\":false`)
	assert.Contains(t, string(raw), "scroll_action")
}

func TestServer_ScrollActionCallerOverridesModel(t *testing.T) {
	// The model suggests scrolling up; the caller asked for down by 5.
	h := newHarness(t, `<invoke>{"action":"scroll","direction":"up","amount":1,"coordinate":[100,200]}</invoke>`)
	shot := h.writeScreenshot(t)

	resp, _ := h.post(t, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"scroll_action","arguments":{"instruction":"find the footer","screenshot_path":"`+shot+`","direction":"down","amount":5}}}`)
	require.Nil(t, resp.Error)

	require.Len(t, h.exec.executed, 1)
	executed := h.exec.executed[0]
	assert.Equal(t, action.KindScroll, executed.Kind)
	assert.Equal(t, action.DirectionDown, executed.Direction)
	assert.Equal(t, 5, executed.Amount)
	require.NotNil(t, executed.Coordinate, "the model's target position is kept")
	gx, gy := executed.Coordinate.Grid()
	assert.Equal(t, 100, gx)
	assert.Equal(t, 200, gy)
}

func TestServer_Healthz(t *testing.T) {
	h := newHarness(t, "")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
