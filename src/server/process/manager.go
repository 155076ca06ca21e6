package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/internal/constants"
)

// Spec describes a language server process to launch
type Spec struct {
	Language string
	Command  string
	Args     []string
	Dir      string
	Env      map[string]string
}

// ProcessInfo holds information about a running LSP server process
type ProcessInfo struct {
	Cmd      *exec.Cmd
	Stdin    io.WriteCloser
	Stdout   io.ReadCloser
	Language string
	Pid      int

	stderr     io.ReadCloser
	stderrDone chan struct{}

	exited  chan struct{}
	exitErr error

	intentionalStop atomic.Bool
	cleanupOnce     sync.Once
}

// Exited is closed once the process has been reaped
func (p *ProcessInfo) Exited() <-chan struct{} {
	return p.exited
}

// ExitErr returns the wait status; only meaningful after Exited is closed
func (p *ProcessInfo) ExitErr() error {
	<-p.exited
	return p.exitErr
}

// IntentionalStop reports whether StopProcess was called for this process
func (p *ProcessInfo) IntentionalStop() bool {
	return p.intentionalStop.Load()
}

func (p *ProcessInfo) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// ShutdownSender sends the LSP shutdown sequence on behalf of StopProcess
type ShutdownSender interface {
	SendShutdownRequest(ctx context.Context) error
	SendExitNotification(ctx context.Context) error
}

// ProcessManager interface for LSP server process lifecycle management
type ProcessManager interface {
	StartProcess(spec Spec) (*ProcessInfo, error)
	StopProcess(info *ProcessInfo, sender ShutdownSender) error
	MonitorProcess(info *ProcessInfo, onExit func(error))
	CleanupProcess(info *ProcessInfo)
}

// LSPProcessManager implements ProcessManager for LSP server processes
type LSPProcessManager struct {
	shutdownTimeout time.Duration
}

// NewLSPProcessManager creates a process manager that waits shutdownTimeout for a
// graceful exit before killing. Zero selects the default.
func NewLSPProcessManager(shutdownTimeout time.Duration) *LSPProcessManager {
	if shutdownTimeout <= 0 {
		shutdownTimeout = constants.ProcessShutdownTimeout
	}
	return &LSPProcessManager{shutdownTimeout: shutdownTimeout}
}

// StartProcess launches the server with private stdin/stdout pipes. Stderr is
// drained to the debug log and never parsed.
func (pm *LSPProcessManager) StartProcess(spec Spec) (*ProcessInfo, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("no command configured for %s", spec.Language)
	}

	cmd := exec.Command(common.ResolveExecutable(spec.Command), spec.Args...)
	cmd.Dir = workingDir(spec.Dir)
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(spec.Env)...)
	}
	configureCommand(cmd)

	// Pipes are created by hand so that Wait never closes our ends; the
	// connection reader sees EOF only after draining everything the server wrote.
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdinR, stdoutW, stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return nil, fmt.Errorf("failed to start LSP server %q: %w", spec.Command, err)
	}
	// The child holds its own copies
	closeAll(stdinR, stdoutW, stderrW)

	info := &ProcessInfo{
		Cmd:        cmd,
		Stdin:      stdinW,
		Stdout:     stdoutR,
		Language:   spec.Language,
		Pid:        cmd.Process.Pid,
		stderr:     stderrR,
		stderrDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}

	go info.drainStderr()
	go func() {
		info.exitErr = cmd.Wait()
		close(info.exited)
	}()

	common.LSPLogger.Info("Started LSP server process for %s: PID %d (%s)", spec.Language, info.Pid, cmd.Dir)
	return info, nil
}

// StopProcess sends the shutdown sequence, waits for a graceful exit and kills
// the process if it does not leave in time. A nil sender kills immediately.
func (pm *LSPProcessManager) StopProcess(info *ProcessInfo, sender ShutdownSender) error {
	if info == nil {
		return nil
	}
	info.intentionalStop.Store(true)

	if sender != nil && !info.hasExited() {
		sendShutdown(sender)
	}

	var stopErr error
	if info.Cmd != nil && info.Cmd.Process != nil {
		grace := pm.shutdownTimeout
		if sender == nil {
			// Nothing was asked to exit, so there is nothing to wait for
			grace = 0
		}
		select {
		case <-info.exited:
		case <-time.After(grace):
			common.LSPLogger.Debug("LSP server %s did not exit within %v, force killing", info.Language, grace)
			killProcess(info)
			select {
			case <-info.exited:
			case <-time.After(constants.ShutdownRequestTimeout):
				stopErr = fmt.Errorf("LSP server %s (PID %d) did not terminate after kill", info.Language, info.Pid)
			}
		}
	}

	pm.CleanupProcess(info)
	return stopErr
}

// MonitorProcess blocks until the process exits and then calls onExit
func (pm *LSPProcessManager) MonitorProcess(info *ProcessInfo, onExit func(error)) {
	if info == nil || info.exited == nil {
		common.LSPLogger.Error("MonitorProcess called with nil process info")
		if onExit != nil {
			onExit(fmt.Errorf("invalid process info"))
		}
		return
	}

	<-info.exited
	err := info.exitErr

	switch {
	case info.IntentionalStop():
		common.LSPLogger.Debug("LSP server %s (PID %d) stopped: %v", info.Language, info.Pid, err)
	case err != nil:
		common.LSPLogger.Error("LSP server %s (PID %d) exited unexpectedly: %v", info.Language, info.Pid, err)
	default:
		common.LSPLogger.Warn("LSP server %s (PID %d) exited without being stopped", info.Language, info.Pid)
	}

	if onExit != nil {
		onExit(err)
	}
}

// CleanupProcess closes the parent's pipe ends. Safe to call more than once.
func (pm *LSPProcessManager) CleanupProcess(info *ProcessInfo) {
	if info == nil {
		return
	}
	info.cleanupOnce.Do(func() {
		closeAll(info.Stdin, info.Stdout)
		if info.stderr != nil && info.hasExited() {
			// Let the drainer see EOF first when it can
			select {
			case <-info.stderrDone:
			case <-time.After(100 * time.Millisecond):
			}
		}
		closeAll(info.stderr)
	})
}

func (p *ProcessInfo) drainStderr() {
	defer close(p.stderrDone)
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), constants.LSPResponseBufferSize)
	for scanner.Scan() {
		common.LSPLogger.Debug("[%s stderr] %s", p.Language, common.SanitizeForLog(scanner.Text()))
	}
}

func sendShutdown(sender ShutdownSender) {
	shutdownCtx, shutdownCancel := common.CreateContext(constants.ShutdownRequestTimeout)
	defer shutdownCancel()
	if err := sender.SendShutdownRequest(shutdownCtx); err != nil {
		common.LSPLogger.Debug("shutdown request failed: %v", err)
	}

	exitCtx, exitCancel := common.CreateContext(constants.ExitNotifyTimeout)
	defer exitCancel()
	if err := sender.SendExitNotification(exitCtx); err != nil {
		common.LSPLogger.Debug("exit notification failed: %v", err)
	}
}

func workingDir(dir string) string {
	if dir != "" && common.DirExists(dir) {
		return platformPath(dir)
	}
	return common.CurrentDir()
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
}
