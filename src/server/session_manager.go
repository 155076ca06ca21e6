package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lsp "go.lsp.dev/protocol"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"lsp-session-manager/src/config"
	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/internal/errors"
	"lsp-session-manager/src/internal/registry"
	"lsp-session-manager/src/internal/version"
	"lsp-session-manager/src/server/capabilities"
	"lsp-session-manager/src/server/metrics"
	"lsp-session-manager/src/server/process"
	"lsp-session-manager/src/server/protocol"
	"lsp-session-manager/src/server/session"
	"lsp-session-manager/src/utils"
)

const clientName = "lsp-session-manager"

// StartRequest describes a session to create. Command, when set, is used
// verbatim instead of the language table.
type StartRequest struct {
	Language      string
	WorkspaceRoot string
	Command       string
	Args          []string
}

// launchPlan is the resolved command line and per-language settings
type launchPlan struct {
	language    string
	command     string
	args        []string
	env         map[string]string
	initOptions map[string]interface{}
}

// SessionManager owns every language server session: it starts and stops the
// processes, tracks their documents and translates operations into LSP requests
type SessionManager struct {
	cfg       *config.Config
	sessions  *session.Registry
	processes process.ProcessManager
	metrics   *metrics.Metrics

	// exit monitors and connection watchers
	watchers sync.WaitGroup
}

// ManagerOption customizes a SessionManager
type ManagerOption func(*SessionManager)

func WithProcessManager(pm process.ProcessManager) ManagerOption {
	return func(m *SessionManager) { m.processes = pm }
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *SessionManager) { m.metrics = mt }
}

// NewSessionManager creates a manager with no sessions. A nil config selects
// the built-in language table only.
func NewSessionManager(cfg *config.Config, opts ...ManagerOption) *SessionManager {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	m := &SessionManager{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.processes == nil {
		m.processes = process.NewLSPProcessManager(cfg.ShutdownTimeout())
	}
	m.sessions = session.NewRegistry(m.metrics)
	return m
}

// Registry exposes the session registry
func (m *SessionManager) Registry() *session.Registry {
	return m.sessions
}

func (m *SessionManager) ListSessions() []session.Info {
	return m.sessions.List()
}

// StartSession spawns a language server for the workspace, registers it and
// completes the initialize handshake before returning
func (m *SessionManager) StartSession(ctx context.Context, req StartRequest) (*session.Info, error) {
	plan, err := m.resolveLaunch(req)
	if err != nil {
		m.metrics.SessionStarted(registry.NormalizeLanguage(req.Language), "unsupported")
		return nil, err
	}

	rootURI, rootPath, err := utils.WorkspaceRootURI(req.WorkspaceRoot)
	if err != nil {
		return nil, errors.NewInvalidArgument("workspaceRoot", err.Error())
	}

	if len(plan.env) > 0 {
		plan.env = substituteWorkingDir(plan.env, rootPath)
	}

	sess := session.New(plan.language, rootURI, rootPath, plan.command, plan.args)
	common.SessionLogger.Info("Starting %s session %s for %s (%s)", plan.language, sess.ID, rootURI,
		strings.TrimSpace(plan.command+" "+strings.Join(plan.args, " ")))

	proc, err := m.processes.StartProcess(process.Spec{
		Language: plan.language,
		Command:  plan.command,
		Args:     plan.args,
		Dir:      rootPath,
		Env:      plan.env,
	})
	if err != nil {
		m.metrics.SessionStarted(plan.language, "spawn_failed")
		return nil, errors.NewInitializationFailed(plan.language, err).WithSession(sess.ID)
	}
	sess.Process = proc
	sess.Conn = protocol.NewConn(plan.language, proc.Stdin, proc.Stdout,
		protocol.WithNotificationHandler(sess.HandleNotification),
		protocol.WithCallObserver(func(method string, elapsed time.Duration, err error) {
			m.metrics.ObserveRequest(plan.language, method, elapsed, err)
		}),
	)
	sess.Conn.Start()

	// Registered before the handshake so a crash during it is observed and cleaned up
	if err := m.sessions.Add(sess); err != nil {
		m.kill(sess, err)
		return nil, errors.NewInitializationFailed(plan.language, err).WithSession(sess.ID)
	}
	m.watch(sess)

	if err := m.handshake(ctx, sess, plan); err != nil {
		m.metrics.SessionStarted(plan.language, "init_failed")
		if m.sessions.RemoveIf(sess.ID, sess) {
			m.metrics.SessionEnded(plan.language, "init_failed")
		}
		m.kill(sess, err)
		common.SessionLogger.Error("Session %s (%s) failed to initialize: %v", sess.ID, plan.language, err)
		return nil, errors.NewInitializationFailed(plan.language, err).WithSession(sess.ID)
	}

	sess.MarkInitialized()
	m.metrics.SessionStarted(plan.language, "ok")
	common.SessionLogger.Info("Session %s ready (%s, PID %d)", sess.ID, plan.language, proc.Pid)

	info := sess.Info()
	return &info, nil
}

// resolveLaunch picks the command line: explicit override, then configured
// server, then the built-in table
func (m *SessionManager) resolveLaunch(req StartRequest) (*launchPlan, error) {
	language := registry.NormalizeLanguage(req.Language)
	if language == "" && req.Command == "" {
		return nil, errors.NewInvalidArgument("language", "a language or a command is required")
	}
	if language == "" {
		language = filepath.Base(req.Command)
	}

	plan := &launchPlan{language: language}
	builtin, hasBuiltin := registry.GetLanguageByName(language)
	configured, hasConfigured := m.cfg.ServerFor(language)

	switch {
	case req.Command != "":
		plan.command = req.Command
		plan.args = append([]string(nil), req.Args...)
	case hasConfigured:
		plan.command = configured.Command
		plan.args = append([]string(nil), configured.Args...)
	case hasBuiltin:
		plan.command = builtin.DefaultCommand
		plan.args = append([]string(nil), builtin.DefaultArgs...)
	default:
		return nil, errors.NewUnsupportedLanguage(language)
	}
	if req.Command == "" && len(req.Args) > 0 {
		plan.args = append([]string(nil), req.Args...)
	}

	if hasBuiltin {
		plan.initOptions = builtin.GetInitOptions()
		plan.env = builtin.EnvironmentVars
	}
	if hasConfigured {
		if len(configured.InitializationOptions) > 0 {
			plan.initOptions = configured.InitializationOptions
		}
		if len(configured.Env) > 0 {
			plan.env = configured.Env
		}
	}
	return plan, nil
}

// handshake sends initialize, waits for the result and sends initialized
func (m *SessionManager) handshake(ctx context.Context, sess *session.Session, plan *launchPlan) error {
	ctx, cancel := common.WithBoundedTimeout(ctx, m.cfg.InitializeTimeout(sess.Language))
	defer cancel()

	raw, err := sess.Conn.Call(ctx, lsp.MethodInitialize, initializeParams(sess, plan.initOptions))
	if err != nil {
		return err
	}
	common.SessionLogger.Debug("Session %s initialize result: %s", sess.ID, common.SanitizeForLog(string(raw)))

	caps, err := capabilities.Parse(raw, sess.Command)
	if err != nil {
		return errors.NewProtocolError(sess.Language, "malformed initialize result", err)
	}
	sess.SetCapabilities(caps)

	return sess.Conn.Notify(ctx, lsp.MethodInitialized, &lsp.InitializedParams{})
}

func substituteWorkingDir(env map[string]string, dir string) map[string]string {
	info := registry.LanguageInfo{EnvironmentVars: env}
	return info.GetEnvironmentWithWorkingDir(dir)
}

// initializeParams declares a conservative client: no dynamic registration, no
// applyEdit, no resource operations
func initializeParams(sess *session.Session, initOptions map[string]interface{}) map[string]interface{} {
	params := map[string]interface{}{
		"processId": os.Getpid(),
		"clientInfo": lsp.ClientInfo{
			Name:    clientName,
			Version: version.GetVersion(),
		},
		"rootUri":  sess.WorkspaceRoot,
		"rootPath": sess.WorkspacePath,
		"workspaceFolders": []lsp.WorkspaceFolder{
			{URI: sess.WorkspaceRoot, Name: filepath.Base(sess.WorkspacePath)},
		},
		"capabilities": map[string]interface{}{
			"workspace": map[string]interface{}{
				"applyEdit": false,
				"workspaceEdit": map[string]interface{}{
					"documentChanges":    false,
					"resourceOperations": []string{},
				},
				"configuration":    true,
				"workspaceFolders": true,
			},
			"textDocument": map[string]interface{}{
				"synchronization": map[string]interface{}{
					"dynamicRegistration": false,
					"willSave":            false,
					"willSaveWaitUntil":   false,
					"didSave":             false,
				},
				"publishDiagnostics": map[string]interface{}{
					"relatedInformation": true,
					"versionSupport":     true,
				},
				"completion": map[string]interface{}{
					"dynamicRegistration": false,
					"completionItem": map[string]interface{}{
						"snippetSupport":      false,
						"documentationFormat": []string{"markdown", "plaintext"},
					},
				},
				"hover": map[string]interface{}{
					"dynamicRegistration": false,
					"contentFormat":       []string{"markdown", "plaintext"},
				},
				"definition": map[string]interface{}{
					"dynamicRegistration": false,
					"linkSupport":         true,
				},
				"references": map[string]interface{}{
					"dynamicRegistration": false,
				},
				"documentSymbol": map[string]interface{}{
					"dynamicRegistration":               false,
					"hierarchicalDocumentSymbolSupport": true,
				},
				"rename": map[string]interface{}{
					"dynamicRegistration": false,
					"prepareSupport":      false,
				},
				"formatting": map[string]interface{}{
					"dynamicRegistration": false,
				},
			},
			"window": map[string]interface{}{
				"workDoneProgress": false,
			},
		},
	}
	if len(initOptions) > 0 {
		params["initializationOptions"] = initOptions
	}
	return params
}

// watch removes the session once its process exits or its connection dies,
// whichever is first
func (m *SessionManager) watch(sess *session.Session) {
	m.watchers.Add(2)

	go func() {
		defer m.watchers.Done()
		m.processes.MonitorProcess(sess.Process, func(exitErr error) {
			cause := exitErr
			if cause == nil {
				cause = fmt.Errorf("language server exited")
			}
			sess.Conn.Close(fmt.Errorf("process exited: %w", cause))
			m.forget(sess, "crashed")
			m.processes.CleanupProcess(sess.Process)
		})
	}()

	go func() {
		defer m.watchers.Done()
		select {
		case <-sess.Conn.Done():
		case <-sess.Process.Exited():
			return
		}
		if sess.Stopping() {
			return
		}
		select {
		case <-sess.Process.Exited():
			return
		default:
		}
		common.SessionLogger.Warn("Session %s lost its connection: %v", sess.ID, sess.Conn.Err())
		m.forget(sess, "crashed")
		m.kill(sess, sess.Conn.Err())
	}()
}

// forget unregisters a session that went away on its own
func (m *SessionManager) forget(sess *session.Session, reason string) {
	if !m.sessions.RemoveIf(sess.ID, sess) {
		return
	}
	if !sess.Stopping() {
		common.SessionLogger.Warn("Session %s (%s) removed: language server is gone", sess.ID, sess.Language)
		m.metrics.SessionEnded(sess.Language, reason)
	}
}

// kill terminates the process without the shutdown sequence
func (m *SessionManager) kill(sess *session.Session, cause error) {
	sess.BeginStop()
	if err := m.processes.StopProcess(sess.Process, nil); err != nil {
		common.SessionLogger.Error("Failed to kill session %s: %v", sess.ID, err)
	}
	if cause == nil {
		cause = fmt.Errorf("session terminated")
	}
	sess.Conn.Close(cause)
}

// StopSession shuts the session's server down and removes it
func (m *SessionManager) StopSession(ctx context.Context, id string) error {
	sess, ok := m.sessions.Remove(id)
	if !ok {
		return errors.NewSessionNotFound(id)
	}
	return m.stop(ctx, sess)
}

func (m *SessionManager) stop(ctx context.Context, sess *session.Session) error {
	if !sess.BeginStop() {
		return nil
	}
	common.SessionLogger.Info("Stopping session %s (%s)", sess.ID, sess.Language)

	err := m.processes.StopProcess(sess.Process, &shutdownSender{ctx: ctx, sess: sess})
	sess.Conn.Close(fmt.Errorf("session %s stopped", sess.ID))
	sess.Documents.Reset()
	m.metrics.SessionEnded(sess.Language, "stopped")

	if err != nil {
		return errors.Wrap(errors.OperationFailed, "stop", err).WithSession(sess.ID).WithLanguage(sess.Language)
	}
	return nil
}

// StopAll stops every session concurrently. A failure never prevents the
// remaining sessions from being stopped; all failures are combined.
func (m *SessionManager) StopAll(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, sess := range m.sessions.All() {
		sess := sess
		g.Go(func() error {
			if !m.sessions.RemoveIf(sess.ID, sess) {
				return nil
			}
			if err := m.stop(ctx, sess); err != nil {
				common.SessionLogger.Error("Failed to stop session %s: %v", sess.ID, err)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Close stops every session and waits for their watchers to finish
func (m *SessionManager) Close(ctx context.Context) error {
	err := m.StopAll(ctx)

	done := make(chan struct{})
	go func() {
		m.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("waiting for session watchers: %w", ctx.Err()))
	}
	return err
}

// lookup returns a session that has completed its handshake
func (m *SessionManager) lookup(id string) (*session.Session, error) {
	sess, err := m.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if !sess.Initialized() {
		return nil, errors.New(errors.OperationFailed, "", "session is still initializing").WithSession(id)
	}
	return sess, nil
}

// shutdownSender runs the LSP shutdown sequence over a session's connection
type shutdownSender struct {
	ctx  context.Context
	sess *session.Session
}

func (s *shutdownSender) SendShutdownRequest(ctx context.Context) error {
	ctx, cancel := mergeDeadline(ctx, s.ctx)
	defer cancel()
	_, err := s.sess.Conn.Call(ctx, lsp.MethodShutdown, nil)
	return err
}

func (s *shutdownSender) SendExitNotification(ctx context.Context) error {
	ctx, cancel := mergeDeadline(ctx, s.ctx)
	defer cancel()
	return s.sess.Conn.Notify(ctx, lsp.MethodExit, nil)
}

// mergeDeadline cancels ctx as soon as outer is done
func mergeDeadline(ctx, outer context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	if outer == nil {
		return merged, cancel
	}
	stop := context.AfterFunc(outer, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
