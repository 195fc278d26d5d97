// File: internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/config"
	"github.com/vistral/deskpilot/internal/llmclient"
	"github.com/vistral/deskpilot/internal/screen"
	"github.com/vistral/deskpilot/internal/session"
)

// Version is the server version reported by initialize, stamped at build
// time via -ldflags.
var Version = "dev"

const (
	serverName      = "deskpilot"
	protocolVersion = "2024-11-05"

	// requestTimeout bounds one tool call end to end, inference included.
	requestTimeout = 3 * time.Minute
	maxBodyBytes   = 4 << 20
)

// Server exposes the screenshot, predict_action and scroll_action tools
// over JSON-RPC 2.0 at POST /mcp.
type Server struct {
	logger   *zap.Logger
	addr     string
	client   llmclient.Client
	exec     session.ActionExecutor
	capturer screen.Capturer
	store    *screen.Store

	httpServer *http.Server
}

// NewServer wires the tool server over its collaborators.
func NewServer(cfg config.ServerConfig, client llmclient.Client, exec session.ActionExecutor, capturer screen.Capturer, store *screen.Store, logger *zap.Logger) *Server {
	s := &Server{
		logger:   logger.Named("mcp"),
		addr:     cfg.Addr(),
		client:   client,
		exec:     exec,
		capturer: capturer,
		store:    store,
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Post("/mcp", s.handleRPC)
	return r
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Tool server listening.", zap.String("addr", s.addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down tool server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeResponse(w, errorResponse(nil, CodeInvalidRequest, "could not parse request body"))
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		s.writeResponse(w, errorResponse(req.ID, CodeInvalidRequest, "not a JSON-RPC 2.0 request"))
		return
	}

	s.logger.Debug("Handling RPC.",
		zap.String("method", req.Method),
		zap.String("request_id", middleware.GetReqID(r.Context())))

	resp := s.dispatch(r.Context(), &req)
	if resp == nil {
		// Notification methods get an empty acknowledgement. Everything else
		// is answered, with a generated id when the request carried none.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeResponse(w, resp)
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]string{"name": serverName, "version": Version},
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return resultResponse(req.ID, map[string]interface{}{"tools": toolDefinitions()})
	case "tools/call":
		return s.dispatchToolCall(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "unknown method: "+req.Method)
	}
}

type toolCallParams struct {
	Name      string              `json:"name"`
	Arguments jsoniter.RawMessage `json:"arguments"`
}

func (s *Server) dispatchToolCall(ctx context.Context, req *Request) *Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "tools/call requires a tool name")
	}

	result, err := s.callTool(ctx, params)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			return errorResponse(req.ID, pe.Code, pe.Message)
		}
		s.logger.Error("Tool call failed.", zap.String("tool", params.Name), zap.Error(err))
		return errorResponse(req.ID, CodeInternalError, err.Error())
	}
	return resultResponse(req.ID, result)
}

func (s *Server) callTool(ctx context.Context, params toolCallParams) (*toolResult, error) {
	switch params.Name {
	case "screenshot":
		return s.handleScreenshot(ctx)
	case "predict_action":
		var p predictParams
		if len(params.Arguments) > 0 {
			if err := json.Unmarshal(params.Arguments, &p); err != nil {
				return nil, protocolErrorf(CodeInvalidParams, "invalid predict_action arguments: %v", err)
			}
		}
		return s.handlePredictAction(ctx, p)
	case "scroll_action":
		var p scrollParams
		if len(params.Arguments) > 0 {
			if err := json.Unmarshal(params.Arguments, &p); err != nil {
				return nil, protocolErrorf(CodeInvalidParams, "invalid scroll_action arguments: %v", err)
			}
		}
		return s.handleScrollAction(ctx, p)
	default:
		return nil, protocolErrorf(CodeMethodNotFound, "unknown tool: %s", params.Name)
	}
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to write RPC response.", zap.Error(err))
	}
}
