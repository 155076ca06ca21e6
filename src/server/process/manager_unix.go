//go:build !windows
// +build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"lsp-session-manager/src/internal/common"
)

// configureCommand puts the server in its own process group so that helpers it
// spawns are killed with it
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcess(info *ProcessInfo) {
	if info.Cmd == nil || info.Cmd.Process == nil {
		return
	}
	err := syscall.Kill(-info.Pid, syscall.SIGKILL)
	if err != nil {
		err = info.Cmd.Process.Kill()
	}
	if err != nil && !isExpectedKillError(err) {
		common.LSPLogger.Debug("Failed to kill LSP server %s: %v", info.Language, err)
	}
}

func isExpectedKillError(err error) bool {
	return errors.Is(err, syscall.ESRCH) ||
		errors.Is(err, syscall.ECHILD) ||
		errors.Is(err, os.ErrProcessDone)
}

func platformPath(p string) string {
	return p
}
