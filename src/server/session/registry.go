package session

import (
	"fmt"
	"sort"
	"sync"

	"lsp-session-manager/src/internal/errors"
)

// ActiveGauge receives the session count after every registry change
type ActiveGauge interface {
	SetActive(n int)
}

// Registry maps session identifiers to live sessions
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	gauge    ActiveGauge
}

func NewRegistry(gauge ActiveGauge) *Registry {
	return &Registry{sessions: make(map[string]*Session), gauge: gauge}
}

// Add registers s; identifiers are never reused
func (r *Registry) Add(s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("cannot register session without an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already registered", s.ID)
	}
	r.sessions[s.ID] = s
	r.report()
	return nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.NewSessionNotFound(id)
	}
	return s, nil
}

// Remove unregisters id and returns what was there
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.report()
	}
	return s, ok
}

// RemoveIf unregisters id only while it still maps to s
func (r *Registry) RemoveIf(id string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[id]; !ok || cur != s {
		return false
	}
	delete(r.sessions, id)
	r.report()
	return true
}

// List returns a snapshot ordered by creation time
func (r *Registry) List() []Info {
	all := r.All()
	out := make([]Info, 0, len(all))
	for _, s := range all {
		out = append(out, s.Info())
	}
	return out
}

// All returns the registered sessions ordered by creation time
func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// report must be called with mu held
func (r *Registry) report() {
	if r.gauge != nil {
		r.gauge.SetActive(len(r.sessions))
	}
}
