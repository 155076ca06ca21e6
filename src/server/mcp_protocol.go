package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"lsp-session-manager/src/internal/errors"
	"lsp-session-manager/src/utils/jsonutil"
)

const mcpProtocolVersion = "2025-06-18"

// ToolContent represents one content item of an MCP tool result
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the result of tools/call. Failures are reported in-band with
// IsError set so the client can show them to the model.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ToolDescriptor is one entry of tools/list
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// toolError is the JSON body of a failed tool call
type toolError struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Code     int    `json:"code"`
	Category string `json:"category"`
	Session string `json:"session,omitempty"`
	URI     string `json:"uri,omitempty"`
}

func jsonResult(v interface{}) *ToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("failed to encode result: %w", err))
	}
	return &ToolResult{Content: []ToolContent{{Type: "text", Text: string(data)}}}
}

// errorResult renders err as an isError result naming its kind
func errorResult(err error) *ToolResult {
	body := toolError{
		Error: err.Error(),
		Kind:  errors.KindOf(err).String(),
		Code:  errors.CodeOf(err),
	}
	body.Category = errors.GetErrorCodeCategory(body.Code)
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		body.Session = typed.Session
		body.URI = typed.URI
	}
	return &ToolResult{Content: []ToolContent{{Type: "text", Text: jsonutil.Pretty(body)}}, IsError: true}
}
