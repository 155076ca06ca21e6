package common

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var windowsShimExts = []string{".cmd", ".bat", ".exe"}

// candidates lists the names worth probing on PATH for command. npm installs
// node-based servers on Windows as .cmd shims, so the bare name alone misses them.
func candidates(command string) []string {
	if runtime.GOOS != "windows" {
		return []string{command}
	}
	ext := strings.ToLower(filepath.Ext(command))
	for _, e := range windowsShimExts {
		if ext == e {
			return []string{command}
		}
	}
	out := []string{command}
	for _, e := range windowsShimExts {
		out = append(out, command+e)
	}
	return out
}

func lookPath(command string) (string, bool) {
	for _, name := range candidates(command) {
		if p, err := exec.LookPath(name); err == nil {
			return p, true
		}
	}
	return "", false
}

// ResolveExecutable returns the PATH location of command. Paths containing a
// separator and unresolvable names come back unchanged so exec reports the
// real error.
func ResolveExecutable(command string) string {
	if command == "" || filepath.Base(command) != command {
		return command
	}
	if p, ok := lookPath(command); ok {
		return p
	}
	return command
}

func HasExecutable(command string) bool {
	if command == "" {
		return false
	}
	_, ok := lookPath(command)
	return ok
}
