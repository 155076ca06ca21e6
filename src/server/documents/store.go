// Package documents tracks the text documents a session has opened on its
// language server.
package documents

import (
	"sort"
	"sync"

	"lsp-session-manager/src/internal/errors"
	"lsp-session-manager/src/utils"
)

// State is the tracked content of one open document
type State struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int32  `json:"version"`
	Text       string `json:"-"`
}

// Store holds the open documents of a single session. Keys are normalized URIs.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*State
}

func NewStore() *Store {
	return &Store{docs: make(map[string]*State)}
}

// Open records uri at version 1. Re-opening replaces the previous state.
func (s *Store) Open(uri, languageID, text string) State {
	key := utils.NormalizeURI(uri)
	st := &State{URI: key, LanguageID: languageID, Version: 1, Text: text}

	s.mu.Lock()
	s.docs[key] = st
	s.mu.Unlock()
	return *st
}

// Update replaces the text of an open document and bumps its version by one
func (s *Store) Update(uri, text string) (State, error) {
	key := utils.NormalizeURI(uri)

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.docs[key]
	if !ok {
		return State{}, errors.NewDocumentNotOpen(key)
	}
	st.Version++
	st.Text = text
	return *st, nil
}

// Next returns the state Update would produce without recording it
func (s *Store) Next(uri, text string) (State, error) {
	key := utils.NormalizeURI(uri)

	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.docs[key]
	if !ok {
		return State{}, errors.NewDocumentNotOpen(key)
	}
	next := *st
	next.Version++
	next.Text = text
	return next, nil
}

// Commit records st as the current state of st.URI
func (s *Store) Commit(st State) {
	st.URI = utils.NormalizeURI(st.URI)

	s.mu.Lock()
	s.docs[st.URI] = &st
	s.mu.Unlock()
}

// Close forgets an open document
func (s *Store) Close(uri string) (State, error) {
	key := utils.NormalizeURI(uri)

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.docs[key]
	if !ok {
		return State{}, errors.NewDocumentNotOpen(key)
	}
	delete(s.docs, key)
	return *st, nil
}

func (s *Store) Get(uri string) (State, bool) {
	key := utils.NormalizeURI(uri)

	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.docs[key]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// IsOpen reports whether uri is currently tracked
func (s *Store) IsOpen(uri string) bool {
	_, ok := s.Get(uri)
	return ok
}

// List returns a snapshot of every open document sorted by URI
func (s *Store) List() []State {
	s.mu.RLock()
	out := make([]State, 0, len(s.docs))
	for _, st := range s.docs {
		out = append(out, *st)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Reset drops every tracked document
func (s *Store) Reset() {
	s.mu.Lock()
	s.docs = make(map[string]*State)
	s.mu.Unlock()
}
