package documents

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"lsp-session-manager/src/internal/errors"
)

const testURI = "file:///tmp/proj/a.ts"

func TestOpenStartsAtVersionOne(t *testing.T) {
	s := NewStore()
	st := s.Open(testURI, "typescript", "let x = 1;")

	assert.Equal(t, testURI, st.URI)
	assert.Equal(t, int32(1), st.Version)
	assert.Equal(t, "typescript", st.LanguageID)
	assert.Equal(t, "let x = 1;", st.Text)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.IsOpen(testURI))
}

func TestReopenOverwrites(t *testing.T) {
	s := NewStore()
	s.Open(testURI, "typescript", "a")
	_, err := s.Update(testURI, "b")
	require.NoError(t, err)

	st := s.Open(testURI, "typescript", "c")
	assert.Equal(t, int32(1), st.Version)

	got, ok := s.Get(testURI)
	require.True(t, ok)
	assert.Equal(t, "c", got.Text)
	assert.Equal(t, 1, s.Len())
}

func TestUpdateIncrementsVersion(t *testing.T) {
	s := NewStore()
	s.Open(testURI, "typescript", "a")

	st, err := s.Update(testURI, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(2), st.Version)
	assert.Equal(t, "b", st.Text)

	st, err = s.Update(testURI, "c")
	require.NoError(t, err)
	assert.Equal(t, int32(3), st.Version)
}

func TestNextDoesNotRecordUntilCommit(t *testing.T) {
	s := NewStore()
	s.Open(testURI, "typescript", "a")

	next, err := s.Next(testURI, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.Version)

	next, err = s.Next(testURI, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.Version)
	got, _ := s.Get(testURI)
	assert.Equal(t, int32(1), got.Version)
	assert.Equal(t, "a", got.Text)

	s.Commit(next)
	got, _ = s.Get(testURI)
	assert.Equal(t, int32(2), got.Version)
	assert.Equal(t, "b", got.Text)

	_, err = s.Next("file:///tmp/proj/missing.ts", "x")
	assert.True(t, errors.IsDocumentNotOpen(err))
}

func TestUpdateAndCloseRequireOpen(t *testing.T) {
	s := NewStore()

	_, err := s.Update(testURI, "x")
	require.Error(t, err)
	assert.True(t, errors.IsDocumentNotOpen(err))

	_, err = s.Close(testURI)
	require.Error(t, err)
	assert.True(t, errors.IsDocumentNotOpen(err))
}

func TestCloseRemoves(t *testing.T) {
	s := NewStore()
	s.Open(testURI, "typescript", "a")

	st, err := s.Close(testURI)
	require.NoError(t, err)
	assert.Equal(t, testURI, st.URI)
	assert.False(t, s.IsOpen(testURI))
	assert.Equal(t, 0, s.Len())

	_, err = s.Close(testURI)
	assert.True(t, errors.IsDocumentNotOpen(err))
}

func TestEquivalentURIsShareState(t *testing.T) {
	s := NewStore()
	s.Open("file:///tmp/proj/../proj/a.ts", "typescript", "a")

	_, ok := s.Get("/tmp/proj/a.ts")
	assert.True(t, ok)
	_, err := s.Update(testURI, "b")
	assert.NoError(t, err)
}

func TestListSortedSnapshot(t *testing.T) {
	s := NewStore()
	s.Open("file:///tmp/proj/b.go", "go", "")
	s.Open("file:///tmp/proj/a.go", "go", "")

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "file:///tmp/proj/a.go", list[0].URI)
	assert.Equal(t, "file:///tmp/proj/b.go", list[1].URI)

	s.Reset()
	assert.Len(t, list, 2)
	assert.Empty(t, s.List())
}

func TestConcurrentUpdatesCountExactly(t *testing.T) {
	s := NewStore()
	s.Open(testURI, "typescript", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(testURI, fmt.Sprint(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, ok := s.Get(testURI)
	require.True(t, ok)
	assert.Equal(t, int32(51), st.Version)
}

// The version always equals one plus the number of accepted updates since the
// last open, and operations on closed documents are always rejected.
func TestVersionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore()
		uris := []string{"file:///w/a.go", "file:///w/b.go", "file:///w/c.go"}
		model := map[string]int32{}

		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 60).Draw(t, "ops")
		for i, op := range ops {
			u := rapid.SampledFrom(uris).Draw(t, fmt.Sprintf("uri%d", i))
			switch op {
			case 0:
				s.Open(u, "go", "")
				model[u] = 1
			case 1:
				st, err := s.Update(u, "x")
				if v, ok := model[u]; ok {
					if err != nil {
						t.Fatalf("update of open document failed: %v", err)
					}
					model[u] = v + 1
					if st.Version != v+1 {
						t.Fatalf("version %d, want %d", st.Version, v+1)
					}
				} else if !errors.IsDocumentNotOpen(err) {
					t.Fatalf("expected DocumentNotOpen, got %v", err)
				}
			case 2:
				_, err := s.Close(u)
				if _, ok := model[u]; ok {
					if err != nil {
						t.Fatalf("close of open document failed: %v", err)
					}
					delete(model, u)
				} else if !errors.IsDocumentNotOpen(err) {
					t.Fatalf("expected DocumentNotOpen, got %v", err)
				}
			}
		}

		if s.Len() != len(model) {
			t.Fatalf("store has %d documents, model has %d", s.Len(), len(model))
		}
		for u, v := range model {
			st, ok := s.Get(u)
			if !ok || st.Version != v {
				t.Fatalf("%s: got %+v, want version %d", u, st, v)
			}
		}
	})
}
