// Package lspconv decodes the polymorphic result shapes language servers return.
package lspconv

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.lsp.dev/protocol"
)

// LocationShape records which of the allowed definition result shapes a server used
type LocationShape int

const (
	LocationSingle LocationShape = iota
	LocationArray
	LocationLinks
)

// LocationsResult is Location | Location[] | LocationLink[]
type LocationsResult struct {
	Shape     LocationShape
	Locations []protocol.Location
	Links     []protocol.LocationLink
}

// Len returns the number of targets regardless of shape
func (r *LocationsResult) Len() int {
	if r == nil {
		return 0
	}
	if r.Shape == LocationLinks {
		return len(r.Links)
	}
	return len(r.Locations)
}

// MarshalJSON renders the result in the shape the server returned
func (r *LocationsResult) MarshalJSON() ([]byte, error) {
	switch r.Shape {
	case LocationSingle:
		if len(r.Locations) == 0 {
			return []byte("null"), nil
		}
		return json.Marshal(r.Locations[0])
	case LocationLinks:
		return json.Marshal(nonNil(r.Links))
	default:
		return json.Marshal(nonNil(r.Locations))
	}
}

// CompletionResult is CompletionList | CompletionItem[]
type CompletionResult struct {
	// List is true when the server returned a CompletionList
	List         bool
	IsIncomplete bool
	Items        []protocol.CompletionItem
}

func (r *CompletionResult) MarshalJSON() ([]byte, error) {
	items := nonNil(r.Items)
	if !r.List {
		return json.Marshal(items)
	}
	return json.Marshal(protocol.CompletionList{IsIncomplete: r.IsIncomplete, Items: items})
}

// HoverResult keeps the contents verbatim: MarkedString | MarkedString[] | MarkupContent
type HoverResult struct {
	Contents json.RawMessage `json:"contents"`
	Range    *protocol.Range `json:"range,omitempty"`
}

// SymbolsResult is DocumentSymbol[] | SymbolInformation[]
type SymbolsResult struct {
	Hierarchical bool
	Symbols      []protocol.DocumentSymbol
	Information  []protocol.SymbolInformation
}

func (r *SymbolsResult) Len() int {
	if r == nil {
		return 0
	}
	if r.Hierarchical {
		return len(r.Symbols)
	}
	return len(r.Information)
}

func (r *SymbolsResult) MarshalJSON() ([]byte, error) {
	if r.Hierarchical {
		return json.Marshal(nonNil(r.Symbols))
	}
	return json.Marshal(nonNil(r.Information))
}

// IsNull reports whether raw is absent or the JSON null literal
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// DecodeLocations decodes a definition-style result. null yields (nil, nil).
func DecodeLocations(raw json.RawMessage) (*LocationsResult, error) {
	if IsNull(raw) {
		return nil, nil
	}
	switch firstByte(raw) {
	case '{':
		var loc protocol.Location
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, fmt.Errorf("decode location: %w", err)
		}
		return &LocationsResult{Shape: LocationSingle, Locations: []protocol.Location{loc}}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode locations: %w", err)
		}
		if len(items) > 0 && hasKey(items[0], "targetUri") {
			var links []protocol.LocationLink
			if err := json.Unmarshal(raw, &links); err != nil {
				return nil, fmt.Errorf("decode location links: %w", err)
			}
			return &LocationsResult{Shape: LocationLinks, Links: links}, nil
		}
		var locs []protocol.Location
		if err := json.Unmarshal(raw, &locs); err != nil {
			return nil, fmt.Errorf("decode locations: %w", err)
		}
		return &LocationsResult{Shape: LocationArray, Locations: locs}, nil
	default:
		return nil, fmt.Errorf("unexpected location result: %.40s", string(raw))
	}
}

// DecodeLocationArray decodes a references-style Location[] result
func DecodeLocationArray(raw json.RawMessage) ([]protocol.Location, error) {
	if IsNull(raw) {
		return []protocol.Location{}, nil
	}
	var locs []protocol.Location
	if err := json.Unmarshal(raw, &locs); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return nonNil(locs), nil
}

// DecodeCompletion decodes CompletionList | CompletionItem[]. null yields (nil, nil).
func DecodeCompletion(raw json.RawMessage) (*CompletionResult, error) {
	if IsNull(raw) {
		return nil, nil
	}
	switch firstByte(raw) {
	case '{':
		var list protocol.CompletionList
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode completion list: %w", err)
		}
		return &CompletionResult{List: true, IsIncomplete: list.IsIncomplete, Items: nonNil(list.Items)}, nil
	case '[':
		var items []protocol.CompletionItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode completion items: %w", err)
		}
		return &CompletionResult{Items: nonNil(items)}, nil
	default:
		return nil, fmt.Errorf("unexpected completion result: %.40s", string(raw))
	}
}

// DecodeHover decodes a hover result keeping contents as sent. null yields (nil, nil).
func DecodeHover(raw json.RawMessage) (*HoverResult, error) {
	if IsNull(raw) {
		return nil, nil
	}
	var hover HoverResult
	if err := json.Unmarshal(raw, &hover); err != nil {
		return nil, fmt.Errorf("decode hover: %w", err)
	}
	if IsNull(hover.Contents) {
		return nil, fmt.Errorf("hover result without contents")
	}
	return &hover, nil
}

// DecodeSymbols decodes DocumentSymbol[] | SymbolInformation[]. null yields (nil, nil).
func DecodeSymbols(raw json.RawMessage) (*SymbolsResult, error) {
	if IsNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode symbols: %w", err)
	}
	if len(items) > 0 && hasKey(items[0], "location") {
		var info []protocol.SymbolInformation
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("decode symbol information: %w", err)
		}
		return &SymbolsResult{Information: info}, nil
	}
	var symbols []protocol.DocumentSymbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, fmt.Errorf("decode document symbols: %w", err)
	}
	return &SymbolsResult{Hierarchical: true, Symbols: nonNil(symbols)}, nil
}

// DecodeTextEdits decodes a formatting result. null yields an empty slice.
func DecodeTextEdits(raw json.RawMessage) ([]protocol.TextEdit, error) {
	if IsNull(raw) {
		return []protocol.TextEdit{}, nil
	}
	var edits []protocol.TextEdit
	if err := json.Unmarshal(raw, &edits); err != nil {
		return nil, fmt.Errorf("decode text edits: %w", err)
	}
	return nonNil(edits), nil
}

// DecodeWorkspaceEdit decodes a rename result. null yields (nil, nil).
func DecodeWorkspaceEdit(raw json.RawMessage) (*protocol.WorkspaceEdit, error) {
	if IsNull(raw) {
		return nil, nil
	}
	var edit protocol.WorkspaceEdit
	if err := json.Unmarshal(raw, &edit); err != nil {
		return nil, fmt.Errorf("decode workspace edit: %w", err)
	}
	return &edit, nil
}

func hasKey(raw json.RawMessage, key string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	_, ok := obj[key]
	return ok
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
