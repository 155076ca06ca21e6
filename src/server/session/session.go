// Package session defines a live language server session and the registry
// that owns all of them.
package session

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/server/capabilities"
	"lsp-session-manager/src/server/diagnostics"
	"lsp-session-manager/src/server/documents"
	"lsp-session-manager/src/server/process"
	"lsp-session-manager/src/server/protocol"
)

// Session is one language server process bound to one workspace root
type Session struct {
	ID            string
	Language      string
	WorkspaceRoot string
	WorkspacePath string
	Command       string
	Args          []string
	CreatedAt     time.Time

	Process     *process.ProcessInfo
	Conn        *protocol.Conn
	Documents   *documents.Store
	Diagnostics *diagnostics.Store

	initialized  atomic.Bool
	stopping     atomic.Bool
	capabilities atomic.Pointer[capabilities.Set]

	// held across store mutation and the matching notification write
	docMu sync.Mutex
}

// New creates an uninitialized session with a fresh identifier
func New(language, workspaceRoot, workspacePath, command string, args []string) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Language:      language,
		WorkspaceRoot: workspaceRoot,
		WorkspacePath: workspacePath,
		Command:       command,
		Args:          append([]string(nil), args...),
		CreatedAt:     time.Now(),
		Documents:     documents.NewStore(),
		Diagnostics:   diagnostics.NewStore(language),
	}
}

// SetCapabilities records what the server advertised during the handshake
func (s *Session) SetCapabilities(set *capabilities.Set) {
	s.capabilities.Store(set)
}

// Capabilities is nil until the handshake completes
func (s *Session) Capabilities() *capabilities.Set {
	return s.capabilities.Load()
}

// Initialized reports whether the initialize handshake has completed
func (s *Session) Initialized() bool {
	return s.initialized.Load()
}

// MarkInitialized flips the handshake flag once; it is never reset
func (s *Session) MarkInitialized() {
	s.initialized.Store(true)
}

// BeginStop reports whether the caller is the first to stop this session
func (s *Session) BeginStop() bool {
	return s.stopping.CompareAndSwap(false, true)
}

// Stopping reports whether a stop has begun
func (s *Session) Stopping() bool {
	return s.stopping.Load()
}

// SyncDocuments runs fn while holding the session's document lock so that a
// store change and its notification are ordered with respect to other changes
func (s *Session) SyncDocuments(fn func() error) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	return fn()
}

// HandleNotification routes server notifications into the session's stores
func (s *Session) HandleNotification(method string, params json.RawMessage) {
	switch method {
	case "textDocument/publishDiagnostics":
		s.Diagnostics.Handle(method, params)
	default:
		common.SessionLogger.Debug("[%s] session %s ignoring notification %s", s.Language, s.ID, method)
	}
}

// Info is the point-in-time description of a session returned by listings
type Info struct {
	ID            string    `json:"id"`
	Language      string    `json:"language"`
	WorkspaceRoot string    `json:"workspaceRoot"`
	Initialized   bool      `json:"initialized"`
	Command       string    `json:"command,omitempty"`
	Args          []string  `json:"args,omitempty"`
	PID           int       `json:"pid,omitempty"`
	OpenDocuments int       `json:"openDocuments"`
	ServerName    string    `json:"serverName,omitempty"`
	Features      []string  `json:"features,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s *Session) Info() Info {
	info := Info{
		ID:            s.ID,
		Language:      s.Language,
		WorkspaceRoot: s.WorkspaceRoot,
		Initialized:   s.Initialized(),
		Command:       s.Command,
		Args:          append([]string(nil), s.Args...),
		CreatedAt:     s.CreatedAt,
	}
	if s.Documents != nil {
		info.OpenDocuments = s.Documents.Len()
	}
	if s.Process != nil {
		info.PID = s.Process.Pid
	}
	if caps := s.Capabilities(); caps != nil {
		info.ServerName = caps.ServerName
		info.Features = caps.Methods()
	}
	return info
}
