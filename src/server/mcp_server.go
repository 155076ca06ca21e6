package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.lsp.dev/jsonrpc2"

	"lsp-session-manager/src/config"
	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/internal/constants"
	"lsp-session-manager/src/internal/registry"
	versionpkg "lsp-session-manager/src/internal/version"
)

// MCPServer exposes the session manager as MCP tools over newline-delimited
// JSON-RPC on stdio
type MCPServer struct {
	manager  *SessionManager
	validate *validator.Validate
	tools    []*mcpTool
	index    map[string]*mcpTool

	ctx    context.Context
	cancel context.CancelFunc

	inflight sync.WaitGroup
	writeMu  sync.Mutex
	stopOnce sync.Once
}

func NewMCPServer(manager *SessionManager) *MCPServer {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	tools := buildTools()
	index := make(map[string]*mcpTool, len(tools))
	for _, t := range tools {
		index[t.descriptor.Name] = t
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MCPServer{
		manager:  manager,
		validate: v,
		tools:    tools,
		index:    index,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Tools returns the tools/list descriptors
func (s *MCPServer) Tools() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.descriptor)
	}
	return out
}

// CallTool runs one tool. Tool failures come back as an isError result; the
// error return is reserved for unknown tools.
func (s *MCPServer) CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error) {
	tool, ok := s.index[name]
	if !ok {
		return nil, jsonrpc2.Errorf(jsonrpc2.InvalidParams, "unknown tool: %s", name)
	}

	start := time.Now()
	result, err := tool.call(ctx, s, args)
	if err != nil {
		common.MCPLogger.Warn("tool %s failed after %v: %v", name, time.Since(start), err)
		return errorResult(err), nil
	}
	common.MCPLogger.Debug("tool %s completed in %v", name, time.Since(start))
	return jsonResult(result), nil
}

// Run serves requests from input until EOF, then stops every session
func (s *MCPServer) Run(input io.Reader, output io.Writer) error {
	defer s.Stop()

	common.MCPLogger.Info("MCP server ready (tools: %s)", toolNames(s.tools))

	// One JSON-RPC message per line
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, constants.MCPScannerInitialBuffer), constants.MCPScannerMaxBuffer)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, err := jsonrpc2.DecodeMessage([]byte(line))
		if err != nil {
			common.MCPLogger.Error("decode error: %v", err)
			continue
		}

		switch m := msg.(type) {
		case *jsonrpc2.Call:
			if m.Method() == "tools/call" {
				// Tool calls may block on language servers; answer them independently
				s.inflight.Add(1)
				go func(call *jsonrpc2.Call) {
					defer s.inflight.Done()
					s.reply(output, call.ID(), s.handleCall(call))
				}(m)
				continue
			}
			s.reply(output, m.ID(), s.handleCall(m))
		case *jsonrpc2.Notification:
			common.MCPLogger.Debug("notification %s", m.Method())
		case *jsonrpc2.Response:
			common.MCPLogger.Debug("ignoring response from client")
		}
	}

	s.inflight.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("input scan error: %w", err)
	}
	return nil
}

type callOutcome struct {
	result interface{}
	err    error
}

func (s *MCPServer) handleCall(call *jsonrpc2.Call) callOutcome {
	switch call.Method() {
	case "initialize":
		return callOutcome{result: s.initializeResult()}
	case "ping":
		return callOutcome{result: map[string]interface{}{}}
	case "tools/list":
		return callOutcome{result: toolsListResult{Tools: s.Tools()}}
	case "tools/call":
		var params toolCallParams
		if err := json.Unmarshal(call.Params(), &params); err != nil || params.Name == "" {
			return callOutcome{err: jsonrpc2.NewError(jsonrpc2.InvalidParams, "tools/call requires a tool name")}
		}
		result, err := s.CallTool(s.ctx, params.Name, params.Arguments)
		return callOutcome{result: result, err: err}
	default:
		return callOutcome{err: jsonrpc2.Errorf(jsonrpc2.MethodNotFound, "method not found: %s", call.Method())}
	}
}

func (s *MCPServer) reply(w io.Writer, id jsonrpc2.ID, out callOutcome) {
	resp, err := jsonrpc2.NewResponse(id, out.result, out.err)
	if err != nil {
		common.MCPLogger.Error("encode error: %v", err)
		resp, _ = jsonrpc2.NewResponse(id, nil, jsonrpc2.NewError(jsonrpc2.InternalError, err.Error()))
	}
	data, err := json.Marshal(resp)
	if err != nil {
		common.MCPLogger.Error("encode error: %v", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		common.MCPLogger.Error("write error: %v", err)
	}
}

func (s *MCPServer) initializeResult() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": mcpProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{
				"listChanged": false,
			},
		},
		"serverInfo": map[string]interface{}{
			"name":    clientName,
			"version": versionpkg.GetVersion(),
		},
		"_meta": map[string]interface{}{
			clientName: map[string]interface{}{
				"supportedLanguages":  registry.GetLanguageNames(),
				"configuredLanguages": s.manager.cfg.Languages(),
			},
		},
	}
}

// Stop cancels outstanding tool calls and stops every session
func (s *MCPServer) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		ctx, cancel := common.CreateContext(s.manager.cfg.ShutdownTimeout() + 2*constants.ShutdownRequestTimeout)
		defer cancel()
		if err := s.manager.Close(ctx); err != nil {
			common.MCPLogger.Error("Error stopping sessions: %v", err)
		}
	})
}

// RunMCPServer serves MCP on stdin/stdout until stdin closes or ctx is done
func RunMCPServer(ctx context.Context, cfg *config.Config, opts ...ManagerOption) error {
	manager := NewSessionManager(cfg, opts...)
	srv := NewMCPServer(manager)

	go func() {
		select {
		case <-ctx.Done():
			srv.Stop()
			_ = os.Stdin.Close()
		case <-srv.ctx.Done():
		}
	}()

	return srv.Run(os.Stdin, os.Stdout)
}
