package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const appDirName = ".lsp-session-manager"

// AppDirEnvVar relocates the application directory (config file location)
const AppDirEnvVar = "LSP_SESSION_MANAGER_HOME"

// GetAppDir returns $LSP_SESSION_MANAGER_HOME, else ~/.lsp-session-manager,
// else a directory of that name under the working directory
func GetAppDir() string {
	if dir := os.Getenv(AppDirEnvVar); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, appDirName)
	}
	return filepath.Join(CurrentDir(), appDirName)
}

// ExpandPath replaces a leading ~ with the user's home directory
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path, fmt.Errorf("cannot expand %s: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}

// CurrentDir returns the process working directory, or the temp dir if it vanished
func CurrentDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return os.TempDir()
}

func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
