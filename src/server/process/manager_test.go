package process

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func requireCommands(t *testing.T, names ...string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests use POSIX tools")
	}
	for _, n := range names {
		if _, err := exec.LookPath(n); err != nil {
			t.Skipf("%s not available: %v", n, err)
		}
	}
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendShutdownRequest(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSender) SendExitNotification(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestNewLSPProcessManagerDefaults(t *testing.T) {
	pm := NewLSPProcessManager(0)
	require.NotNil(t, pm)
	assert.Greater(t, pm.shutdownTimeout, time.Duration(0))

	pm = NewLSPProcessManager(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, pm.shutdownTimeout)
}

func TestStartProcessErrors(t *testing.T) {
	pm := NewLSPProcessManager(time.Second)

	_, err := pm.StartProcess(Spec{Language: "go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command configured")

	_, err = pm.StartProcess(Spec{Language: "go", Command: "definitely-not-a-real-lsp-binary-xyz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestStartProcessPipesRoundTrip(t *testing.T) {
	requireCommands(t, "cat")
	pm := NewLSPProcessManager(time.Second)

	info, err := pm.StartProcess(Spec{Language: "test", Command: "cat", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Greater(t, info.Pid, 0)

	_, err = io.WriteString(info.Stdin, "ping\n")
	require.NoError(t, err)

	line, err := bufio.NewReader(info.Stdout).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ping\n", line)

	// Closing stdin makes cat exit on its own
	sender := &mockSender{}
	sender.On("SendShutdownRequest", mock.Anything).Return(nil).Once()
	sender.On("SendExitNotification", mock.Anything).
		Run(func(mock.Arguments) { _ = info.Stdin.Close() }).
		Return(nil).Once()

	require.NoError(t, pm.StopProcess(info, sender))
	sender.AssertExpectations(t)
	assert.True(t, info.IntentionalStop())

	select {
	case <-info.Exited():
	default:
		t.Fatal("process should have exited")
	}
}

func TestStopProcessKillsUnresponsiveServer(t *testing.T) {
	requireCommands(t, "sleep")
	pm := NewLSPProcessManager(100 * time.Millisecond)

	info, err := pm.StartProcess(Spec{Language: "test", Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	sender := &mockSender{}
	sender.On("SendShutdownRequest", mock.Anything).Return(errors.New("no reply")).Once()
	sender.On("SendExitNotification", mock.Anything).Return(nil).Once()

	start := time.Now()
	require.NoError(t, pm.StopProcess(info, sender))
	sender.AssertExpectations(t)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Error(t, info.ExitErr())
}

func TestStopProcessNilAndRepeated(t *testing.T) {
	requireCommands(t, "sleep")
	pm := NewLSPProcessManager(100 * time.Millisecond)
	assert.NoError(t, pm.StopProcess(nil, nil))

	info, err := pm.StartProcess(Spec{Language: "test", Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	require.NoError(t, pm.StopProcess(info, nil))
	require.NoError(t, pm.StopProcess(info, nil))
	pm.CleanupProcess(info)
}

func TestMonitorProcessReportsUnexpectedExit(t *testing.T) {
	requireCommands(t, "sh")
	pm := NewLSPProcessManager(time.Second)

	info, err := pm.StartProcess(Spec{
		Language: "test",
		Command:  "sh",
		Args:     []string{"-c", "echo boom >&2; exit 3"},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go pm.MonitorProcess(info, func(err error) { done <- err })

	select {
	case err := <-done:
		var exitErr *exec.ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 3, exitErr.ExitCode())
		assert.False(t, info.IntentionalStop())
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not observe exit")
	}

	// Stdout reaches EOF once the child is gone
	_, err = io.ReadAll(info.Stdout)
	assert.NoError(t, err)
	pm.CleanupProcess(info)
}

func TestMonitorProcessNilInfo(t *testing.T) {
	pm := NewLSPProcessManager(time.Second)
	var got error
	pm.MonitorProcess(nil, func(err error) { got = err })
	assert.Error(t, got)
}

func TestStartProcessEnvironment(t *testing.T) {
	requireCommands(t, "sh")
	pm := NewLSPProcessManager(time.Second)

	info, err := pm.StartProcess(Spec{
		Language: "test",
		Command:  "sh",
		Args:     []string{"-c", "echo $LSP_TEST_VALUE"},
		Env:      map[string]string{"LSP_TEST_VALUE": "configured"},
	})
	require.NoError(t, err)

	out, err := io.ReadAll(info.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "configured\n", string(out))
	require.NoError(t, pm.StopProcess(info, nil))
}

func TestEnvListSorted(t *testing.T) {
	got := envList(map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, []string{"A=1", "B=2"}, got)
}

func TestWorkingDirFallsBack(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, workingDir(dir))
	assert.NotEmpty(t, workingDir("/no/such/dir/anywhere"))
}
