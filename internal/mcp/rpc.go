// File: internal/mcp/rpc.go

// Package mcp exposes the agent's capabilities as tools over a JSON-RPC 2.0
// HTTP endpoint, so external orchestrators can drive single operations
// without owning the loop.
package mcp

import (
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const jsonrpcVersion = "2.0"

// JSON-RPC 2.0 error codes. Unparseable bodies map to CodeInvalidRequest.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a single JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      jsoniter.RawMessage `json:"id,omitempty"`
	Method  string              `json:"method"`
	Params  jsoniter.RawMessage `json:"params,omitempty"`
}

// Response is a single JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      jsoniter.RawMessage `json:"id"`
	Result  interface{}         `json:"result,omitempty"`
	Error   *ErrorObject        `json:"error,omitempty"`
}

// ErrorObject is the error member of a failed response.
type ErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ensureID backfills a generated id so responses always carry one, even when
// the request lost its own.
func ensureID(id jsoniter.RawMessage) jsoniter.RawMessage {
	if len(id) == 0 || string(id) == "null" {
		return jsoniter.RawMessage(`"` + uuid.NewString() + `"`)
	}
	return id
}

func resultResponse(id jsoniter.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: ensureID(id), Result: result}
}

func errorResponse(id jsoniter.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: ensureID(id), Error: &ErrorObject{Code: code, Message: message}}
}

// Tool-result content types, mirroring the MCP content envelope.

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageContent struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type toolResult struct {
	Content []interface{} `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

func textResult(v interface{}) (*toolResult, error) {
	text, err := json.MarshalToString(v)
	if err != nil {
		return nil, err
	}
	return &toolResult{Content: []interface{}{textContent{Type: "text", Text: text}}}, nil
}
