package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	lsp "go.lsp.dev/protocol"
	"go.uber.org/goleak"

	"lsp-session-manager/src/config"
	"lsp-session-manager/src/server/protocol"
)

const (
	fakeServerEnv = "LSP_SESSION_FAKE_SERVER"
	fakeModeEnv   = "LSP_SESSION_FAKE_MODE"

	// hover lines with special behavior
	lineHoverError     = 99
	lineHoverCrash     = 98
	lineHoverHang      = 97
	lineHoverMalformed = 96
)

func TestMain(m *testing.M) {
	if os.Getenv(fakeServerEnv) == "1" {
		os.Exit(runFakeLanguageServer(os.Stdin, os.Stdout, os.Getenv(fakeModeEnv)))
	}
	goleak.VerifyTestMain(m)
}

// fakeConfig points the "fake" language at this test binary acting as a
// language server in the given mode
func fakeConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.Servers["fake"] = &config.ServerConfig{
		Command: exe,
		Args:    []string{"-test.run=^$"},
		Env:     map[string]string{fakeServerEnv: "1", fakeModeEnv: mode},
	}
	cfg.Timeouts = config.TimeoutConfig{
		Request:    3 * time.Second,
		Initialize: 10 * time.Second,
		Shutdown:   2 * time.Second,
	}
	return cfg
}

type fakeServer struct {
	mode   string
	out    io.Writer
	mu     sync.Mutex
	nextID int32
}

func (f *fakeServer) send(msg jsonrpc2.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = protocol.WriteMessage(f.out, msg)
}

func (f *fakeServer) writeRaw(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = f.out.Write(protocol.EncodeFrame([]byte(body)))
}

func (f *fakeServer) reply(id jsonrpc2.ID, result interface{}, err error) {
	resp, _ := jsonrpc2.NewResponse(id, result, err)
	f.send(resp)
}

func (f *fakeServer) notify(method string, params interface{}) {
	n, _ := jsonrpc2.NewNotification(method, params)
	f.send(n)
}

func (f *fakeServer) request(method string, params interface{}) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID + 1000
	f.mu.Unlock()
	call, _ := jsonrpc2.NewCall(jsonrpc2.NewNumberID(id), method, params)
	f.send(call)
}

func runFakeLanguageServer(in io.Reader, out io.Writer, mode string) int {
	f := &fakeServer{mode: mode, out: out}
	r := bufio.NewReader(in)
	for {
		body, err := protocol.ReadFrame(r)
		if err != nil {
			return 0
		}
		msg, err := jsonrpc2.DecodeMessage(body)
		if err != nil {
			continue
		}
		switch m := msg.(type) {
		case *jsonrpc2.Call:
			f.handleCall(m)
		case *jsonrpc2.Notification:
			if f.handleNotification(m) {
				return 0
			}
		}
	}
}

type fakePosition struct {
	TextDocument struct {
		URI string `json:"uri"`
	} `json:"textDocument"`
	Position struct {
		Line      uint32 `json:"line"`
		Character uint32 `json:"character"`
	} `json:"position"`
	Context struct {
		IncludeDeclaration bool `json:"includeDeclaration"`
	} `json:"context"`
	NewName string `json:"newName"`
	Options struct {
		TabSize      uint32 `json:"tabSize"`
		InsertSpaces bool   `json:"insertSpaces"`
	} `json:"options"`
}

func fakeRange(line uint32) lsp.Range {
	return lsp.Range{
		Start: lsp.Position{Line: line, Character: 0},
		End:   lsp.Position{Line: line, Character: 3},
	}
}

func (f *fakeServer) handleCall(call *jsonrpc2.Call) {
	var p fakePosition
	_ = json.Unmarshal(call.Params(), &p)
	uri := lsp.DocumentURI(p.TextDocument.URI)

	switch call.Method() {
	case lsp.MethodInitialize:
		fmt.Fprintln(os.Stderr, "fake language server starting")
		switch f.mode {
		case "crash-on-init":
			os.Exit(2)
		case "reject-init":
			f.reply(call.ID(), nil, jsonrpc2.NewError(jsonrpc2.InternalError, "init rejected"))
		case "hang-init":
		default:
			f.reply(call.ID(), map[string]interface{}{
				"capabilities": map[string]interface{}{"hoverProvider": true, "textDocumentSync": 1},
				"serverInfo":   map[string]interface{}{"name": "fake"},
			}, nil)
		}

	case lsp.MethodShutdown:
		f.reply(call.ID(), nil, nil)

	case lsp.MethodTextDocumentHover:
		switch p.Position.Line {
		case lineHoverError:
			f.reply(call.ID(), nil, jsonrpc2.NewError(jsonrpc2.InternalError, "hover exploded"))
		case lineHoverCrash:
			os.Exit(3)
		case lineHoverHang:
		case lineHoverMalformed:
			callID := call.ID()
			id, _ := json.Marshal(&callID)
			f.writeRaw(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":{"contents":`, id))
		default:
			f.reply(call.ID(), map[string]interface{}{
				"contents": map[string]interface{}{
					"kind":  "markdown",
					"value": fmt.Sprintf("hover %d:%d", p.Position.Line, p.Position.Character),
				},
			}, nil)
		}

	case lsp.MethodTextDocumentCompletion:
		f.reply(call.ID(), map[string]interface{}{
			"isIncomplete": false,
			"items":        []map[string]interface{}{{"label": "fooBar"}, {"label": "fooBaz"}},
		}, nil)

	case lsp.MethodTextDocumentDefinition:
		if p.Position.Line == 0 {
			f.reply(call.ID(), lsp.Location{URI: uri, Range: fakeRange(5)}, nil)
			return
		}
		f.reply(call.ID(), []lsp.LocationLink{{
			TargetURI:            uri,
			TargetRange:          fakeRange(7),
			TargetSelectionRange: fakeRange(7),
		}}, nil)

	case lsp.MethodTextDocumentReferences:
		locs := []lsp.Location{{URI: uri, Range: fakeRange(9)}}
		if p.Context.IncludeDeclaration {
			locs = append(locs, lsp.Location{URI: uri, Range: fakeRange(1)})
		}
		f.reply(call.ID(), locs, nil)

	case lsp.MethodTextDocumentRename:
		f.reply(call.ID(), map[string]interface{}{
			"changes": map[string]interface{}{
				string(uri): []lsp.TextEdit{{Range: fakeRange(p.Position.Line), NewText: p.NewName}},
			},
		}, nil)

	case lsp.MethodTextDocumentFormatting:
		f.reply(call.ID(), []lsp.TextEdit{{
			Range:   fakeRange(0),
			NewText: fmt.Sprintf("tab=%d spaces=%v", p.Options.TabSize, p.Options.InsertSpaces),
		}}, nil)

	case lsp.MethodTextDocumentDocumentSymbol:
		f.reply(call.ID(), []lsp.DocumentSymbol{{
			Name:           "main",
			Kind:           lsp.SymbolKindFunction,
			Range:          fakeRange(0),
			SelectionRange: fakeRange(0),
			Children: []lsp.DocumentSymbol{{
				Name:           "inner",
				Kind:           lsp.SymbolKindVariable,
				Range:          fakeRange(1),
				SelectionRange: fakeRange(1),
			}},
		}}, nil)

	default:
		f.reply(call.ID(), nil, jsonrpc2.NewError(jsonrpc2.MethodNotFound, call.Method()))
	}
}

type fakeDidChange struct {
	TextDocument struct {
		URI     string `json:"uri"`
		Version int32  `json:"version"`
	} `json:"textDocument"`
	ContentChanges []map[string]interface{} `json:"contentChanges"`
}

// handleNotification reports whether the server should exit
func (f *fakeServer) handleNotification(n *jsonrpc2.Notification) bool {
	switch n.Method() {
	case lsp.MethodInitialized:
		f.request(lsp.MethodWorkspaceConfiguration, map[string]interface{}{
			"items": []map[string]interface{}{{"section": "fake"}},
		})
		f.notify(lsp.MethodWindowLogMessage, map[string]interface{}{"type": 3, "message": "fake ready"})

	case lsp.MethodTextDocumentDidOpen:
		var p lsp.DidOpenTextDocumentParams
		_ = json.Unmarshal(n.Params(), &p)
		f.publish(p.TextDocument.URI, p.TextDocument.Version,
			fmt.Sprintf("v%d %s: %s", p.TextDocument.Version, p.TextDocument.LanguageID, p.TextDocument.Text))

	case lsp.MethodTextDocumentDidChange:
		var p fakeDidChange
		_ = json.Unmarshal(n.Params(), &p)
		msg := "no changes"
		if len(p.ContentChanges) == 1 {
			if _, hasRange := p.ContentChanges[0]["range"]; hasRange {
				msg = "unexpected range"
			} else {
				msg = fmt.Sprintf("v%d: %v", p.TextDocument.Version, p.ContentChanges[0]["text"])
			}
		}
		f.publish(lsp.DocumentURI(p.TextDocument.URI), p.TextDocument.Version, msg)

	case lsp.MethodTextDocumentDidClose:
		var p lsp.DidCloseTextDocumentParams
		_ = json.Unmarshal(n.Params(), &p)
		f.notify(lsp.MethodTextDocumentPublishDiagnostics, lsp.PublishDiagnosticsParams{URI: p.TextDocument.URI, Diagnostics: []lsp.Diagnostic{}})

	case lsp.MethodExit:
		return f.mode != "ignore-exit"
	}
	return false
}

func (f *fakeServer) publish(uri lsp.DocumentURI, version int32, message string) {
	f.notify(lsp.MethodTextDocumentPublishDiagnostics, lsp.PublishDiagnosticsParams{
		URI:     uri,
		Version: uint32(version),
		Diagnostics: []lsp.Diagnostic{{
			Range:    fakeRange(0),
			Severity: lsp.DiagnosticSeverityWarning,
			Source:   "fake",
			Message:  message,
		}},
	})
}
