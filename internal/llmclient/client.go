// File: internal/llmclient/client.go

// Package llmclient talks to the vision-language model behind an
// OpenAI-compatible chat-completions endpoint. The model is an opaque
// capability: screenshots and text in, free-form text out.
package llmclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Role names for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part is one fragment of a message: text, or an inline PNG image.
type Part struct {
	Text     string
	ImagePNG []byte
}

// Message is one chat turn.
type Message struct {
	Role  string
	Parts []Part
}

// TextMessage builds a single-part text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

// Client is the inference capability the controller depends on.
type Client interface {
	// Complete sends the conversation and returns the model's raw text.
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ModelUnavailableError reports that the inference endpoint could not
// produce a response: unreachable, persistent server errors, or an
// authoritative rejection.
type ModelUnavailableError struct {
	Endpoint string
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model endpoint %s unavailable: %v", e.Endpoint, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// HTTPClient implements Client against an OpenAI-compatible server.
type HTTPClient struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	logger     *zap.Logger

	// maxElapsed bounds the retry window; shortened in tests.
	maxElapsed time.Duration
}

// NewHTTPClient builds a client from LLM configuration.
func NewHTTPClient(cfg config.LLMConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("llm"),
		maxElapsed: 2 * time.Minute,
	}
}

// Wire types for the chat-completions API.

type wireImageURL struct {
	URL string `json:"url"`
}

type wireContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the conversation with exponential-backoff retries on
// transient failures. Client-side errors (4xx other than 429) are permanent.
func (c *HTTPClient) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(c.buildRequest(messages))
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	var content string
	operation := func() error {
		var opErr error
		content, opErr = c.roundTrip(ctx, endpoint, body)
		return opErr
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
		backoff.WithMaxElapsedTime(c.maxElapsed),
	), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		// Permanent errors come back unwrapped; keep typed ones as-is and
		// fold exhausted transient failures into ModelUnavailableError.
		var mue *ModelUnavailableError
		if errors.As(err, &mue) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ModelUnavailableError{Endpoint: endpoint, Err: err}
	}
	return content, nil
}

func (c *HTTPClient) buildRequest(messages []Message) wireRequest {
	req := wireRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	for _, m := range messages {
		if len(m.Parts) == 1 && m.Parts[0].ImagePNG == nil {
			// Plain string content keeps the payload small and readable.
			req.Messages = append(req.Messages, wireMessage{Role: m.Role, Content: m.Parts[0].Text})
			continue
		}
		parts := make([]wireContentPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.ImagePNG != nil {
				parts = append(parts, wireContentPart{
					Type: "image_url",
					ImageURL: &wireImageURL{
						URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(p.ImagePNG),
					},
				})
				continue
			}
			parts = append(parts, wireContentPart{Type: "text", Text: p.Text})
		}
		req.Messages = append(req.Messages, wireMessage{Role: m.Role, Content: parts})
	}
	return req
}

func (c *HTTPClient) roundTrip(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Inference request failed; will retry.", zap.Error(err))
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Warn("Inference endpoint returned a transient error.",
			zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(payload))
	default:
		return "", backoff.Permanent(&ModelUnavailableError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(payload)),
		})
	}

	var wire wireResponse
	if err := json.Unmarshal(payload, &wire); err != nil {
		return "", backoff.Permanent(fmt.Errorf("malformed completion response: %w", err))
	}
	if wire.Error != nil {
		return "", backoff.Permanent(&ModelUnavailableError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("api error: %s", wire.Error.Message),
		})
	}
	if len(wire.Choices) == 0 {
		return "", backoff.Permanent(fmt.Errorf("completion response contained no choices"))
	}

	c.logger.Debug("Inference completed.",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_bytes", len(wire.Choices[0].Message.Content)))
	return wire.Choices[0].Message.Content, nil
}

func truncateBody(b []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
