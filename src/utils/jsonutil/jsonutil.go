package jsonutil

import (
	"bytes"
	"encoding/json"
)

// Decode unmarshals raw into T. Empty input and null decode to the zero value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}
	err := json.Unmarshal(trimmed, &out)
	return out, err
}

// Pretty renders v as indented JSON, falling back to compact output
func Pretty(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		b, _ = json.Marshal(v)
	}
	return string(b)
}
