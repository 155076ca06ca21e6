// Package diagnostics buffers the diagnostics language servers push with
// textDocument/publishDiagnostics so they can be served on request.
package diagnostics

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.lsp.dev/protocol"

	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/utils"
)

type entry struct {
	diags     []protocol.Diagnostic
	version   uint32
	published bool
	// fresh is closed once diagnostics newer than the last change arrived
	fresh chan struct{}
}

func newEntry() *entry {
	return &entry{fresh: make(chan struct{})}
}

func (e *entry) isFresh() bool {
	select {
	case <-e.fresh:
		return true
	default:
		return false
	}
}

// Store keeps the latest published diagnostics per document
type Store struct {
	language string
	mu       sync.Mutex
	entries  map[string]*entry
}

func NewStore(language string) *Store {
	return &Store{language: language, entries: make(map[string]*entry)}
}

// Handle is a notification handler; anything other than publishDiagnostics is ignored
func (s *Store) Handle(method string, params json.RawMessage) {
	if method != protocol.MethodTextDocumentPublishDiagnostics {
		return
	}
	var p protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		common.LSPLogger.Warn("[%s] dropping malformed publishDiagnostics: %v", s.language, err)
		return
	}
	s.Publish(p)
}

// Publish replaces the diagnostics of p.URI
func (s *Store) Publish(p protocol.PublishDiagnosticsParams) {
	key := utils.NormalizeURI(string(p.URI))
	diags := make([]protocol.Diagnostic, len(p.Diagnostics))
	copy(diags, p.Diagnostics)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = newEntry()
		s.entries[key] = e
	}
	e.diags = diags
	e.version = p.Version
	e.published = true
	if !e.isFresh() {
		close(e.fresh)
	}
	common.LSPLogger.Debug("[%s] %d diagnostics for %s", s.language, len(diags), key)
}

// Get returns a copy of the latest diagnostics for uri, never nil
func (s *Store) Get(uri string) []protocol.Diagnostic {
	key := utils.NormalizeURI(uri)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return []protocol.Diagnostic{}
	}
	out := make([]protocol.Diagnostic, len(e.diags))
	copy(out, e.diags)
	return out
}

// Published reports whether any diagnostics were ever received for uri
func (s *Store) Published(uri string) bool {
	key := utils.NormalizeURI(uri)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && e.published
}

// MarkStale records that uri changed; Wait blocks until the next publish.
// The previous diagnostics stay readable until then.
func (s *Store) MarkStale(uri string) {
	key := utils.NormalizeURI(uri)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		s.entries[key] = newEntry()
		return
	}
	if e.isFresh() {
		e.fresh = make(chan struct{})
	}
}

// Clear forgets uri and releases anyone waiting on it
func (s *Store) Clear(uri string) {
	key := utils.NormalizeURI(uri)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		if !e.isFresh() {
			close(e.fresh)
		}
		delete(s.entries, key)
	}
}

// Wait blocks until diagnostics newer than the last change to uri are
// published or ctx is done, then returns the current diagnostics
func (s *Store) Wait(ctx context.Context, uri string) []protocol.Diagnostic {
	key := utils.NormalizeURI(uri)

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = newEntry()
		s.entries[key] = e
	}
	fresh := e.fresh
	s.mu.Unlock()

	select {
	case <-fresh:
	case <-ctx.Done():
	}
	return s.Get(key)
}

// URIs lists the documents that have an entry, sorted
func (s *Store) URIs() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
