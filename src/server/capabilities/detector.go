// Package capabilities records which features a language server advertised in
// its initialize result.
package capabilities

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	lsp "go.lsp.dev/protocol"
)

type ServerCapabilities struct {
	CompletionProvider         interface{} `json:"completionProvider,omitempty"`
	HoverProvider              interface{} `json:"hoverProvider,omitempty"`
	DefinitionProvider         interface{} `json:"definitionProvider,omitempty"`
	ReferencesProvider         interface{} `json:"referencesProvider,omitempty"`
	RenameProvider             interface{} `json:"renameProvider,omitempty"`
	DocumentFormattingProvider interface{} `json:"documentFormattingProvider,omitempty"`
	DocumentSymbolProvider     interface{} `json:"documentSymbolProvider,omitempty"`
}

// Set is the parsed capability set of one server
type Set struct {
	ServerName string
	caps       ServerCapabilities
}

// Parse reads the capabilities out of an initialize result. Servers known to
// under-report get their core text document features filled in.
func Parse(result json.RawMessage, serverCommand string) (*Set, error) {
	var initResponse struct {
		Capabilities ServerCapabilities `json:"capabilities"`
		ServerInfo   *struct {
			Name string `json:"name"`
		} `json:"serverInfo,omitempty"`
	}
	if err := json.Unmarshal(result, &initResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal initialize result: %w", err)
	}

	caps := initResponse.Capabilities
	command := strings.ToLower(serverCommand)
	if strings.Contains(command, "jdtls") || strings.Contains(command, "omnisharp") {
		fill(&caps.DefinitionProvider)
		fill(&caps.ReferencesProvider)
		fill(&caps.HoverProvider)
		fill(&caps.DocumentSymbolProvider)
		fill(&caps.CompletionProvider)
	}

	set := &Set{caps: caps}
	if initResponse.ServerInfo != nil {
		set.ServerName = initResponse.ServerInfo.Name
	}
	return set, nil
}

func fill(provider *interface{}) {
	if *provider == nil {
		*provider = true
	}
}

func (s *Set) providers() map[string]interface{} {
	return map[string]interface{}{
		lsp.MethodTextDocumentCompletion:     s.caps.CompletionProvider,
		lsp.MethodTextDocumentHover:          s.caps.HoverProvider,
		lsp.MethodTextDocumentDefinition:     s.caps.DefinitionProvider,
		lsp.MethodTextDocumentReferences:     s.caps.ReferencesProvider,
		lsp.MethodTextDocumentRename:         s.caps.RenameProvider,
		lsp.MethodTextDocumentFormatting:     s.caps.DocumentFormattingProvider,
		lsp.MethodTextDocumentDocumentSymbol: s.caps.DocumentSymbolProvider,
	}
}

// Supports reports whether the server advertised method. Methods outside the
// query set are always considered supported.
func (s *Set) Supports(method string) bool {
	if s == nil {
		return true
	}
	provider, known := s.providers()[method]
	if !known {
		return true
	}
	return isSupported(provider)
}

// Methods lists the advertised query methods in sorted order
func (s *Set) Methods() []string {
	if s == nil {
		return nil
	}
	var out []string
	for method, provider := range s.providers() {
		if isSupported(provider) {
			out = append(out, method)
		}
	}
	sort.Strings(out)
	return out
}

func isSupported(capability interface{}) bool {
	switch v := capability.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		// Options objects, even empty ones, mean supported
		return true
	}
}
