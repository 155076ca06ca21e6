package server

import (
	"context"
	"time"

	lsp "go.lsp.dev/protocol"

	"lsp-session-manager/src/internal/constants"
	"lsp-session-manager/src/internal/errors"
	"lsp-session-manager/src/internal/registry"
	"lsp-session-manager/src/server/documents"
	"lsp-session-manager/src/utils"
)

// wholeDocumentChange is a content change without a range, which replaces the
// full text. lsp.TextDocumentContentChangeEvent always serializes its range.
type wholeDocumentChange struct {
	Text string `json:"text"`
}

type didChangeParams struct {
	TextDocument   lsp.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []wholeDocumentChange               `json:"contentChanges"`
}

func documentURI(uri string) (string, error) {
	normalized := utils.NormalizeURI(uri)
	if normalized == "" {
		return "", errors.NewInvalidArgument("uri", "document uri is required")
	}
	return normalized, nil
}

// OpenDocument sends didOpen and then tracks the document at version 1. Opening
// an open document replaces it. Nothing is recorded when the notification
// fails. An empty languageID is derived from the extension.
func (m *SessionManager) OpenDocument(ctx context.Context, sessionID, uri, text, languageID string) (documents.State, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return documents.State{}, err
	}
	docURI, err := documentURI(uri)
	if err != nil {
		return documents.State{}, err
	}
	if languageID == "" {
		languageID = registry.LanguageIDForPath(docURI)
	}

	st := documents.State{URI: docURI, LanguageID: languageID, Version: 1, Text: text}
	err = sess.SyncDocuments(func() error {
		sess.Diagnostics.MarkStale(docURI)
		nerr := sess.Conn.Notify(ctx, lsp.MethodTextDocumentDidOpen, &lsp.DidOpenTextDocumentParams{
			TextDocument: lsp.TextDocumentItem{
				URI:        lsp.DocumentURI(docURI),
				LanguageID: lsp.LanguageIdentifier(languageID),
				Version:    st.Version,
				Text:       text,
			},
		})
		if nerr != nil {
			return nerr
		}
		sess.Documents.Commit(st)
		return nil
	})
	if err != nil {
		return documents.State{}, withSession(err, sessionID)
	}
	return st, nil
}

// UpdateDocument sends a whole-document didChange at the next version and
// records the new text once the notification is written
func (m *SessionManager) UpdateDocument(ctx context.Context, sessionID, uri, text string) (documents.State, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return documents.State{}, err
	}
	docURI, err := documentURI(uri)
	if err != nil {
		return documents.State{}, err
	}

	var st documents.State
	err = sess.SyncDocuments(func() error {
		var nerr error
		st, nerr = sess.Documents.Next(docURI, text)
		if nerr != nil {
			return nerr
		}
		sess.Diagnostics.MarkStale(docURI)
		nerr = sess.Conn.Notify(ctx, lsp.MethodTextDocumentDidChange, &didChangeParams{
			TextDocument: lsp.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: lsp.DocumentURI(docURI)},
				Version:                st.Version,
			},
			ContentChanges: []wholeDocumentChange{{Text: text}},
		})
		if nerr != nil {
			return nerr
		}
		sess.Documents.Commit(st)
		return nil
	})
	if err != nil {
		return documents.State{}, withSession(err, sessionID)
	}
	return st, nil
}

// CloseDocument forgets the document and its diagnostics and sends didClose
func (m *SessionManager) CloseDocument(ctx context.Context, sessionID, uri string) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	docURI, err := documentURI(uri)
	if err != nil {
		return err
	}

	err = sess.SyncDocuments(func() error {
		if !sess.Documents.IsOpen(docURI) {
			return errors.NewDocumentNotOpen(docURI)
		}
		cerr := sess.Conn.Notify(ctx, lsp.MethodTextDocumentDidClose, &lsp.DidCloseTextDocumentParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: lsp.DocumentURI(docURI)},
		})
		if cerr != nil {
			return cerr
		}
		if _, cerr = sess.Documents.Close(docURI); cerr != nil {
			return cerr
		}
		sess.Diagnostics.Clear(docURI)
		return nil
	})
	return withSession(err, sessionID)
}

// Diagnostics returns the latest diagnostics the server published for uri.
// With a positive wait it first waits, up to a cap, for diagnostics newer than
// the last open or update.
func (m *SessionManager) Diagnostics(ctx context.Context, sessionID, uri string, wait time.Duration) ([]lsp.Diagnostic, error) {
	sess, err := m.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	docURI, err := documentURI(uri)
	if err != nil {
		return nil, err
	}

	if wait <= 0 {
		return sess.Diagnostics.Get(docURI), nil
	}
	if wait > constants.MaxDiagnosticsWait {
		wait = constants.MaxDiagnosticsWait
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return sess.Diagnostics.Wait(waitCtx, docURI), nil
}

func withSession(err error, sessionID string) error {
	if err == nil {
		return nil
	}
	if typed, ok := err.(*errors.Error); ok {
		return typed.WithSession(sessionID)
	}
	return err
}
