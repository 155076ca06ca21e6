//go:build windows
// +build windows

package process

import (
	"os/exec"

	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/utils"
)

func configureCommand(cmd *exec.Cmd) {}

// killProcess terminates the server; Windows has no signal to ask politely
func killProcess(info *ProcessInfo) {
	if info.Cmd == nil || info.Cmd.Process == nil {
		return
	}
	if err := info.Cmd.Process.Kill(); err != nil {
		common.LSPLogger.Debug("Process kill for %s returned: %v", info.Language, err)
	}
}

// platformPath expands 8.3 short names so servers see the same paths clients send
func platformPath(p string) string {
	return utils.LongPath(p)
}
