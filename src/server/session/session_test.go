package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lsp-session-manager/src/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingGauge struct {
	mu     sync.Mutex
	values []int
}

func (g *recordingGauge) SetActive(n int) {
	g.mu.Lock()
	g.values = append(g.values, n)
	g.mu.Unlock()
}

func (g *recordingGauge) last() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.values) == 0 {
		return -1
	}
	return g.values[len(g.values)-1]
}

func newTestSession(lang string) *Session {
	return New(lang, "file:///tmp/proj", "/tmp/proj", "fake-ls", []string{"--stdio"})
}

func TestNewSessionDefaults(t *testing.T) {
	s := newTestSession("typescript")
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.Initialized())
	assert.NotNil(t, s.Documents)
	assert.NotNil(t, s.Diagnostics)

	other := newTestSession("typescript")
	assert.NotEqual(t, s.ID, other.ID)

	s.MarkInitialized()
	assert.True(t, s.Initialized())
}

func TestBeginStopOnce(t *testing.T) {
	s := newTestSession("go")
	assert.True(t, s.BeginStop())
	assert.False(t, s.BeginStop())
	assert.True(t, s.Stopping())
}

func TestInfoJSONKeys(t *testing.T) {
	s := newTestSession("python")
	s.Documents.Open("file:///tmp/proj/a.py", "python", "x = 1")

	raw, err := json.Marshal(s.Info())
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, s.ID, m["id"])
	assert.Equal(t, "python", m["language"])
	assert.Equal(t, "file:///tmp/proj", m["workspaceRoot"])
	assert.Equal(t, false, m["initialized"])
	assert.Equal(t, 1.0, m["openDocuments"])
}

func TestHandleNotificationRoutesDiagnostics(t *testing.T) {
	s := newTestSession("typescript")
	params := json.RawMessage(`{"uri":"file:///tmp/proj/a.ts","diagnostics":[{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}},"message":"bad"}]}`)

	s.HandleNotification("textDocument/publishDiagnostics", params)
	s.HandleNotification("$/progress", json.RawMessage(`{}`))

	got := s.Diagnostics.Get("file:///tmp/proj/a.ts")
	require.Len(t, got, 1)
	assert.Equal(t, "bad", got[0].Message)
}

func TestSyncDocumentsPropagatesError(t *testing.T) {
	s := newTestSession("go")
	err := s.SyncDocuments(func() error { return fmt.Errorf("boom") })
	assert.EqualError(t, err, "boom")
}

func TestRegistryAddGetRemove(t *testing.T) {
	g := &recordingGauge{}
	r := NewRegistry(g)
	s := newTestSession("go")

	require.NoError(t, r.Add(s))
	assert.Error(t, r.Add(s))
	assert.Error(t, r.Add(nil))
	assert.Equal(t, 1, g.last())

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	removed, ok := r.Remove(s.ID)
	assert.True(t, ok)
	assert.Same(t, s, removed)
	assert.Equal(t, 0, g.last())

	_, ok = r.Remove(s.ID)
	assert.False(t, ok)

	_, err = r.Get(s.ID)
	require.Error(t, err)
	assert.True(t, errors.IsSessionNotFound(err))
}

func TestRegistryRemoveIfChecksIdentity(t *testing.T) {
	r := NewRegistry(nil)
	s := newTestSession("go")
	require.NoError(t, r.Add(s))

	impostor := &Session{ID: s.ID}
	assert.False(t, r.RemoveIf(s.ID, impostor))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.RemoveIf(s.ID, s))
	assert.False(t, r.RemoveIf(s.ID, s))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryListOrderedSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	first := newTestSession("go")
	second := newTestSession("python")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.MarkInitialized()

	require.NoError(t, r.Add(second))
	require.NoError(t, r.Add(first))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.False(t, list[0].Initialized)
	assert.True(t, list[1].Initialized)

	r.Remove(first.ID)
	assert.Len(t, list, 2)
	assert.Len(t, r.List(), 1)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(&recordingGauge{})
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newTestSession("go")
			assert.NoError(t, r.Add(s))
			_ = r.List()
			_, err := r.Get(s.ID)
			assert.NoError(t, err)
			assert.True(t, r.RemoveIf(s.ID, s))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
