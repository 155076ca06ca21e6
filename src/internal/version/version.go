// Package version reports what build of lsp-session-manager is running.
//
// Release builds stamp the variables below with
//
//	-ldflags "-X lsp-session-manager/src/internal/version.Version=... -X ...GitCommit=..."
//
// Untagged builds fall back to the VCS revision embedded by the go tool.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "0.3.0"
	GitCommit = ""
	BuildDate = ""
)

func GetVersion() string {
	return Version
}

func commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				if len(s.Value) > 12 {
					return s.Value[:12]
				}
				return s.Value
			}
		}
	}
	return "unknown"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// GetFullVersionInfo is the one-line banner printed by `version --verbose`
func GetFullVersionInfo() string {
	return fmt.Sprintf("lsp-session-manager %s (commit: %s, built: %s, %s %s/%s)",
		Version, commit(), orUnknown(BuildDate), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
