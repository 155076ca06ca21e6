package server

import (
	"context"
	"encoding/json"

	lsp "go.lsp.dev/protocol"

	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/internal/errors"
	"lsp-session-manager/src/utils"
	"lsp-session-manager/src/utils/lspconv"
)

// query sends one request on the session's connection. SessionNotFound and
// ConnectionLost are returned as errors. Server errors, timeouts and
// unreadable replies are logged and yield a nil result.
func (m *SessionManager) query(ctx context.Context, sessionID, method string, params interface{}) (json.RawMessage, bool, error) {
	sess, err := m.sessions.Get(sessionID)
	if err != nil {
		return nil, false, err
	}
	if !sess.Initialized() {
		common.LSPLogger.Warn("%s on session %s skipped: session is still initializing", method, sessionID)
		return nil, false, nil
	}

	if !sess.Capabilities().Supports(method) {
		common.LSPLogger.Debug("[%s] server did not advertise %s, sending it anyway", sess.Language, method)
	}

	ctx, cancel := common.WithBoundedTimeout(ctx, m.cfg.RequestTimeout(sess.Language))
	defer cancel()

	raw, err := sess.Conn.Call(ctx, method, params)
	if errors.IsConnectionLost(err) {
		return nil, false, withSession(err, sessionID)
	}
	if err != nil {
		common.LSPLogger.Warn("[%s] %s failed on session %s: %v", sess.Language, method, sessionID, err)
		return nil, false, nil
	}
	return raw, true, nil
}

func logDecodeFailure(method, sessionID string, err error) {
	common.LSPLogger.Warn("%s on session %s returned an unreadable result: %v", method, sessionID, err)
}

func positionParams(uri string, line, character uint32) lsp.TextDocumentPositionParams {
	return lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: utils.ToDocumentURI(uri)},
		Position:     lsp.Position{Line: line, Character: character},
	}
}

func documentIdentifier(uri string) lsp.TextDocumentIdentifier {
	return lsp.TextDocumentIdentifier{URI: utils.ToDocumentURI(uri)}
}

// Completion requests completions at a zero-based position
func (m *SessionManager) Completion(ctx context.Context, sessionID, uri string, line, character uint32) (*lspconv.CompletionResult, error) {
	raw, ok, err := m.query(ctx, sessionID, lsp.MethodTextDocumentCompletion, &lsp.CompletionParams{
		TextDocumentPositionParams: positionParams(uri, line, character),
	})
	if err != nil || !ok {
		return nil, err
	}
	result, derr := lspconv.DecodeCompletion(raw)
	if derr != nil {
		logDecodeFailure(lsp.MethodTextDocumentCompletion, sessionID, derr)
		return nil, nil
	}
	return result, nil
}

// Hover requests hover information; contents are returned as the server sent them
func (m *SessionManager) Hover(ctx context.Context, sessionID, uri string, line, character uint32) (*lspconv.HoverResult, error) {
	raw, ok, err := m.query(ctx, sessionID, lsp.MethodTextDocumentHover, &lsp.HoverParams{
		TextDocumentPositionParams: positionParams(uri, line, character),
	})
	if err != nil || !ok {
		return nil, err
	}
	result, derr := lspconv.DecodeHover(raw)
	if derr != nil {
		logDecodeFailure(lsp.MethodTextDocumentHover, sessionID, derr)
		return nil, nil
	}
	return result, nil
}

// Definition returns one location, several, or location links
func (m *SessionManager) Definition(ctx context.Context, sessionID, uri string, line, character uint32) (*lspconv.LocationsResult, error) {
	raw, ok, err := m.query(ctx, sessionID, lsp.MethodTextDocumentDefinition, &lsp.DefinitionParams{
		TextDocumentPositionParams: positionParams(uri, line, character),
	})
	if err != nil || !ok {
		return nil, err
	}
	result, derr := lspconv.DecodeLocations(raw)
	if derr != nil {
		logDecodeFailure(lsp.MethodTextDocumentDefinition, sessionID, derr)
		return nil, nil
	}
	return result, nil
}

// References finds usages; includeDeclaration defaults to true when nil
func (m *SessionManager) References(ctx context.Context, sessionID, uri string, line, character uint32, includeDeclaration *bool) ([]lsp.Location, error) {
	include := true
	if includeDeclaration != nil {
		include = *includeDeclaration
	}
	raw, ok, err := m.query(ctx, sessionID, lsp.MethodTextDocumentReferences, &lsp.ReferenceParams{
		TextDocumentPositionParams: positionParams(uri, line, character),
		Context:                    lsp.ReferenceContext{IncludeDeclaration: include},
	})
	if err != nil || !ok {
		return nil, err
	}
	if lspconv.IsNull(raw) {
		return nil, nil
	}
	result, derr := lspconv.DecodeLocationArray(raw)
	if derr != nil {
		logDecodeFailure(lsp.MethodTextDocumentReferences, sessionID, derr)
		return nil, nil
	}
	return result, nil
}

// Rename asks for the workspace edit renaming the symbol at the position.
// The edit is returned, never applied.
func (m *SessionManager) Rename(ctx context.Context, sessionID, uri string, line, character uint32, newName string) (*lsp.WorkspaceEdit, error) {
	raw, ok, err := m.query(ctx, sessionID, lsp.MethodTextDocumentRename, &lsp.RenameParams{
		TextDocumentPositionParams: positionParams(uri, line, character),
		NewName:                    newName,
	})
	if err != nil || !ok {
		return nil, err
	}
	result, derr := lspconv.DecodeWorkspaceEdit(raw)
	if derr != nil {
		logDecodeFailure(lsp.MethodTextDocumentRename, sessionID, derr)
		return nil, nil
	}
	return result, nil
}

// Format requests whole-document formatting edits
func (m *SessionManager) Format(ctx context.Context, sessionID, uri string) ([]lsp.TextEdit, error) {
	tabSize, insertSpaces := m.cfg.FormattingOptions()
	raw, ok, err := m.query(ctx, sessionID, lsp.MethodTextDocumentFormatting, &lsp.DocumentFormattingParams{
		TextDocument: documentIdentifier(uri),
		Options:      lsp.FormattingOptions{TabSize: tabSize, InsertSpaces: insertSpaces},
	})
	if err != nil || !ok {
		return nil, err
	}
	if lspconv.IsNull(raw) {
		return nil, nil
	}
	result, derr := lspconv.DecodeTextEdits(raw)
	if derr != nil {
		logDecodeFailure(lsp.MethodTextDocumentFormatting, sessionID, derr)
		return nil, nil
	}
	return result, nil
}

// Symbols returns the document's symbols, hierarchical or flat
func (m *SessionManager) Symbols(ctx context.Context, sessionID, uri string) (*lspconv.SymbolsResult, error) {
	raw, ok, err := m.query(ctx, sessionID, lsp.MethodTextDocumentDocumentSymbol, &lsp.DocumentSymbolParams{
		TextDocument: documentIdentifier(uri),
	})
	if err != nil || !ok {
		return nil, err
	}
	result, derr := lspconv.DecodeSymbols(raw)
	if derr != nil {
		logDecodeFailure(lsp.MethodTextDocumentDocumentSymbol, sessionID, derr)
		return nil, nil
	}
	return result, nil
}
