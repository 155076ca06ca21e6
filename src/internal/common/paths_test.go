package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv(AppDirEnvVar, "")
	assert.Equal(t, filepath.Join(home, appDirName), GetAppDir())

	custom := t.TempDir()
	t.Setenv(AppDirEnvVar, custom)
	assert.Equal(t, custom, GetAppDir())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ExpandPath("~/sub/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sub", "config.yaml"), got)

	for _, p := range []string{"/etc/hosts", "relative/path", "~user/x", ""} {
		got, err = ExpandPath(p)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestCurrentDir(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, CurrentDir())
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("hello"), 0644))

	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(f))
	assert.True(t, FileExists(f))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))

	data, err := ReadFile(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = ReadFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestResolveExecutable(t *testing.T) {
	assert.Equal(t, "/abs/path/server", ResolveExecutable("/abs/path/server"))
	assert.Equal(t, "definitely-not-a-real-binary-xyz", ResolveExecutable("definitely-not-a-real-binary-xyz"))
	assert.False(t, HasExecutable("definitely-not-a-real-binary-xyz"))
}
