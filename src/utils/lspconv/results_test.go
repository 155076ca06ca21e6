package lspconv

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loc = `{"uri":"file:///a.go","range":{"start":{"line":1,"character":2},"end":{"line":1,"character":5}}}`

func TestDecodeLocationsShapes(t *testing.T) {
	single, err := DecodeLocations(json.RawMessage(loc))
	require.NoError(t, err)
	assert.Equal(t, LocationSingle, single.Shape)
	require.Equal(t, 1, single.Len())
	assert.Equal(t, "file:///a.go", string(single.Locations[0].URI))
	assert.Equal(t, uint32(2), single.Locations[0].Range.Start.Character)

	arr, err := DecodeLocations(json.RawMessage("[" + loc + "," + loc + "]"))
	require.NoError(t, err)
	assert.Equal(t, LocationArray, arr.Shape)
	assert.Equal(t, 2, arr.Len())

	link := `[{"targetUri":"file:///b.go","targetRange":{"start":{"line":0,"character":0},"end":{"line":3,"character":0}},"targetSelectionRange":{"start":{"line":1,"character":0},"end":{"line":1,"character":4}}}]`
	links, err := DecodeLocations(json.RawMessage(link))
	require.NoError(t, err)
	assert.Equal(t, LocationLinks, links.Shape)
	require.Equal(t, 1, links.Len())
	assert.Equal(t, "file:///b.go", string(links.Links[0].TargetURI))

	empty, err := DecodeLocations(json.RawMessage("[]"))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	none, err := DecodeLocations(json.RawMessage("null"))
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, 0, none.Len())

	_, err = DecodeLocations(json.RawMessage(`"nope"`))
	assert.Error(t, err)
}

func TestLocationsMarshalKeepsShape(t *testing.T) {
	single, err := DecodeLocations(json.RawMessage(loc))
	require.NoError(t, err)
	out, err := json.Marshal(single)
	require.NoError(t, err)
	assert.JSONEq(t, loc, string(out))

	empty, err := DecodeLocations(json.RawMessage("[]"))
	require.NoError(t, err)
	out, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestDecodeCompletion(t *testing.T) {
	list, err := DecodeCompletion(json.RawMessage(`{"isIncomplete":true,"items":[{"label":"Println"}]}`))
	require.NoError(t, err)
	assert.True(t, list.List)
	assert.True(t, list.IsIncomplete)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Println", list.Items[0].Label)

	out, err := json.Marshal(list)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"isIncomplete":true`)

	bare, err := DecodeCompletion(json.RawMessage(`[{"label":"a"},{"label":"b"}]`))
	require.NoError(t, err)
	assert.False(t, bare.List)
	assert.Len(t, bare.Items, 2)

	none, err := DecodeCompletion(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDecodeHoverKeepsContents(t *testing.T) {
	tests := []string{
		`{"contents":"plain string"}`,
		`{"contents":[{"language":"go","value":"func F()"},"doc"]}`,
		`{"contents":{"kind":"markdown","value":"**F**"},"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}}`,
	}
	for _, in := range tests {
		h, err := DecodeHover(json.RawMessage(in))
		require.NoError(t, err, in)
		var orig struct {
			Contents json.RawMessage `json:"contents"`
		}
		require.NoError(t, json.Unmarshal([]byte(in), &orig))
		assert.JSONEq(t, string(orig.Contents), string(h.Contents))
	}

	h, err := DecodeHover(json.RawMessage("null"))
	require.NoError(t, err)
	assert.Nil(t, h)

	_, err = DecodeHover(json.RawMessage(`{"range":null}`))
	assert.Error(t, err)
}

func TestDecodeSymbols(t *testing.T) {
	hier := `[{"name":"Foo","kind":12,"range":{"start":{"line":0,"character":0},"end":{"line":2,"character":1}},"selectionRange":{"start":{"line":0,"character":5},"end":{"line":0,"character":8}},"children":[{"name":"x","kind":13,"range":{"start":{"line":1,"character":1},"end":{"line":1,"character":2}},"selectionRange":{"start":{"line":1,"character":1},"end":{"line":1,"character":2}}}]}]`
	s, err := DecodeSymbols(json.RawMessage(hier))
	require.NoError(t, err)
	assert.True(t, s.Hierarchical)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "Foo", s.Symbols[0].Name)
	assert.Len(t, s.Symbols[0].Children, 1)

	flat := `[{"name":"Foo","kind":12,"location":` + loc + `}]`
	f, err := DecodeSymbols(json.RawMessage(flat))
	require.NoError(t, err)
	assert.False(t, f.Hierarchical)
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "file:///a.go", string(f.Information[0].Location.URI))

	empty, err := DecodeSymbols(json.RawMessage("[]"))
	require.NoError(t, err)
	out, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestDecodeEdits(t *testing.T) {
	edits, err := DecodeTextEdits(json.RawMessage(`[{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}},"newText":"\t"}]`))
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "\t", edits[0].NewText)

	none, err := DecodeTextEdits(json.RawMessage("null"))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	we, err := DecodeWorkspaceEdit(json.RawMessage(`{"changes":{"file:///a.go":[{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":3}},"newText":"Bar"}]}}`))
	require.NoError(t, err)
	require.NotNil(t, we)
	assert.Len(t, we.Changes, 1)

	refs, err := DecodeLocationArray(json.RawMessage("null"))
	require.NoError(t, err)
	assert.NotNil(t, refs)
	assert.Empty(t, refs)
}
