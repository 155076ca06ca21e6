package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"lsp-session-manager/src/internal/errors"
	"lsp-session-manager/src/utils/jsonutil"
)

// =============================================================================
// Tool arguments
// =============================================================================

type StartSessionArgs struct {
	Language      string   `json:"language,omitempty" jsonschema:"description=Language name such as typescript or python or go or rust or java or cpp" validate:"required_without=Command"`
	WorkspaceRoot string   `json:"workspace_root" jsonschema:"description=Workspace root as an absolute path or file:// URI" validate:"required"`
	Command       string   `json:"command,omitempty" jsonschema:"description=Language server executable used verbatim instead of the built-in table" validate:"required_without=Language"`
	Args          []string `json:"args,omitempty" jsonschema:"description=Arguments for the language server command"`
}

type SessionArgs struct {
	SessionID string `json:"session_id" jsonschema:"description=Session identifier returned by start_session" validate:"required"`
}

type NoArgs struct{}

type DocumentArgs struct {
	SessionID string `json:"session_id" jsonschema:"description=Session identifier returned by start_session" validate:"required"`
	URI       string `json:"uri" jsonschema:"description=Document URI (file://...) or absolute path" validate:"required"`
}

type OpenDocumentArgs struct {
	DocumentArgs
	Content    string `json:"content" jsonschema:"description=Full document text"`
	LanguageID string `json:"language_id,omitempty" jsonschema:"description=LSP language id; derived from the file extension when omitted"`
}

type UpdateDocumentArgs struct {
	DocumentArgs
	Content string `json:"content" jsonschema:"description=New full document text"`
}

type DiagnosticsArgs struct {
	DocumentArgs
	WaitMs int `json:"wait_ms,omitempty" jsonschema:"description=Wait up to this many milliseconds for diagnostics newer than the last change,minimum=0" validate:"gte=0"`
}

type PositionArgs struct {
	DocumentArgs
	Line      *uint32 `json:"line" jsonschema:"description=Zero-based line" validate:"required"`
	Character *uint32 `json:"character" jsonschema:"description=Zero-based character offset in the line" validate:"required"`
}

type ReferencesArgs struct {
	PositionArgs
	IncludeDeclaration *bool `json:"include_declaration,omitempty" jsonschema:"description=Include the declaration itself (default true)"`
}

type RenameArgs struct {
	PositionArgs
	NewName string `json:"new_name" jsonschema:"description=New name for the symbol" validate:"required"`
}

// =============================================================================
// Tool table
// =============================================================================

// mcpTool binds a tool name to its argument type and handler
type mcpTool struct {
	descriptor ToolDescriptor
	call       func(ctx context.Context, s *MCPServer, raw json.RawMessage) (interface{}, error)
}

var schemaReflector = &jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
	ExpandedStruct: true,
}

// newTool derives the input schema from A and decodes and validates arguments
// into a fresh A before running fn
func newTool[A any](name, description string, fn func(ctx context.Context, m *SessionManager, args *A) (interface{}, error)) *mcpTool {
	schema := schemaReflector.Reflect(new(A))
	schema.Version = ""
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("schema for %s: %v", name, err))
	}

	return &mcpTool{
		descriptor: ToolDescriptor{Name: name, Description: description, InputSchema: raw},
		call: func(ctx context.Context, s *MCPServer, rawArgs json.RawMessage) (interface{}, error) {
			args, err := jsonutil.Decode[A](rawArgs)
			if err != nil {
				return nil, errors.NewInvalidArgument("arguments", err.Error())
			}
			if err := s.validate.Struct(&args); err != nil {
				return nil, validationError(err)
			}
			return fn(ctx, s.manager, &args)
		},
	}
}

// validationError names the first offending field by its JSON name
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.NewInvalidArgument("arguments", err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return errors.NewInvalidArgument(fe.Field(), "is required")
	default:
		return errors.NewInvalidArgument(fe.Field(), fmt.Sprintf("failed %s validation", fe.Tag()))
	}
}

func buildTools() []*mcpTool {
	return []*mcpTool{
		newTool("start_session",
			"Start a language server for a workspace and complete the LSP handshake. Returns the session description including its id.",
			func(ctx context.Context, m *SessionManager, a *StartSessionArgs) (interface{}, error) {
				return m.StartSession(ctx, StartRequest{
					Language:      a.Language,
					WorkspaceRoot: a.WorkspaceRoot,
					Command:       a.Command,
					Args:          a.Args,
				})
			}),
		newTool("stop_session",
			"Shut down a language server session and remove it.",
			func(ctx context.Context, m *SessionManager, a *SessionArgs) (interface{}, error) {
				if err := m.StopSession(ctx, a.SessionID); err != nil {
					return nil, err
				}
				return map[string]string{"stopped": a.SessionID}, nil
			}),
		newTool("stop_all_sessions",
			"Stop every running session. Failures are reported but never stop the sweep.",
			func(ctx context.Context, m *SessionManager, _ *NoArgs) (interface{}, error) {
				n := m.Registry().Len()
				if err := m.StopAll(ctx); err != nil {
					return nil, err
				}
				return map[string]int{"stopped": n}, nil
			}),
		newTool("list_sessions",
			"List live sessions with their language and workspace root and whether the handshake completed.",
			func(ctx context.Context, m *SessionManager, _ *NoArgs) (interface{}, error) {
				return m.ListSessions(), nil
			}),
		newTool("open_document",
			"Open a document in a session at version 1. Re-opening replaces the tracked content.",
			func(ctx context.Context, m *SessionManager, a *OpenDocumentArgs) (interface{}, error) {
				return m.OpenDocument(ctx, a.SessionID, a.URI, a.Content, a.LanguageID)
			}),
		newTool("update_document",
			"Replace the full content of an open document and increment its version.",
			func(ctx context.Context, m *SessionManager, a *UpdateDocumentArgs) (interface{}, error) {
				return m.UpdateDocument(ctx, a.SessionID, a.URI, a.Content)
			}),
		newTool("close_document",
			"Close an open document.",
			func(ctx context.Context, m *SessionManager, a *DocumentArgs) (interface{}, error) {
				if err := m.CloseDocument(ctx, a.SessionID, a.URI); err != nil {
					return nil, err
				}
				return map[string]string{"closed": a.URI}, nil
			}),
		newTool("get_diagnostics",
			"Return the latest diagnostics the language server published for a document.",
			func(ctx context.Context, m *SessionManager, a *DiagnosticsArgs) (interface{}, error) {
				return m.Diagnostics(ctx, a.SessionID, a.URI, time.Duration(a.WaitMs)*time.Millisecond)
			}),
		newTool("get_completions",
			"Completion items at a zero-based position.",
			func(ctx context.Context, m *SessionManager, a *PositionArgs) (interface{}, error) {
				return m.Completion(ctx, a.SessionID, a.URI, *a.Line, *a.Character)
			}),
		newTool("get_hover",
			"Hover information at a zero-based position.",
			func(ctx context.Context, m *SessionManager, a *PositionArgs) (interface{}, error) {
				return m.Hover(ctx, a.SessionID, a.URI, *a.Line, *a.Character)
			}),
		newTool("go_to_definition",
			"Definition location(s) of the symbol at a zero-based position.",
			func(ctx context.Context, m *SessionManager, a *PositionArgs) (interface{}, error) {
				return m.Definition(ctx, a.SessionID, a.URI, *a.Line, *a.Character)
			}),
		newTool("find_references",
			"All references to the symbol at a zero-based position.",
			func(ctx context.Context, m *SessionManager, a *ReferencesArgs) (interface{}, error) {
				return m.References(ctx, a.SessionID, a.URI, *a.Line, *a.Character, a.IncludeDeclaration)
			}),
		newTool("rename_symbol",
			"Workspace edit that renames the symbol at a zero-based position. The edit is returned and not applied.",
			func(ctx context.Context, m *SessionManager, a *RenameArgs) (interface{}, error) {
				return m.Rename(ctx, a.SessionID, a.URI, *a.Line, *a.Character, a.NewName)
			}),
		newTool("format_document",
			"Text edits that format the whole document.",
			func(ctx context.Context, m *SessionManager, a *DocumentArgs) (interface{}, error) {
				return m.Format(ctx, a.SessionID, a.URI)
			}),
		newTool("get_symbols",
			"Symbols defined in a document.",
			func(ctx context.Context, m *SessionManager, a *DocumentArgs) (interface{}, error) {
				return m.Symbols(ctx, a.SessionID, a.URI)
			}),
	}
}

// toolNames lists the registered tool names in table order
func toolNames(tools []*mcpTool) string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.descriptor.Name)
	}
	return strings.Join(names, ", ")
}
