package constants

import "time"

// Budget is the pair of timeouts applied to a language server when the
// configuration does not override them.
type Budget struct {
	Initialize time.Duration
	Request    time.Duration
}

var defaultBudget = Budget{Initialize: 15 * time.Second, Request: 30 * time.Second}

// jdtls and pyright index the workspace during initialize
var languageBudgets = map[string]Budget{
	"java":       {Initialize: 60 * time.Second, Request: 60 * time.Second},
	"python":     {Initialize: 30 * time.Second, Request: 30 * time.Second},
	"go":         {Initialize: 15 * time.Second, Request: 15 * time.Second},
	"typescript": {Initialize: 15 * time.Second, Request: 15 * time.Second},
	"javascript": {Initialize: 15 * time.Second, Request: 15 * time.Second},
}

// BudgetFor returns the built-in timeouts for a normalized language name
func BudgetFor(language string) Budget {
	if b, ok := languageBudgets[language]; ok {
		return b
	}
	return defaultBudget
}

func GetRequestTimeout(language string) time.Duration {
	return BudgetFor(language).Request
}

func GetInitializeTimeout(language string) time.Duration {
	return BudgetFor(language).Initialize
}

// Shutdown sequence
const (
	// ShutdownRequestTimeout bounds the polite "shutdown" request
	ShutdownRequestTimeout = 2 * time.Second
	// ExitNotifyTimeout bounds writing the "exit" notification
	ExitNotifyTimeout = 1 * time.Second
	// ProcessShutdownTimeout is how long a server may linger after exit before it is killed
	ProcessShutdownTimeout = 5 * time.Second
	WriteTimeout           = 10 * time.Second
)

// Framing limits for the server pipes and the MCP stdio transport
const (
	LSPResponseBufferSize        = 1 << 20
	MaxMessageSize               = 64 << 20
	MaxConsecutiveProtocolErrors = 32

	MCPScannerInitialBuffer = 64 << 10
	MCPScannerMaxBuffer     = 16 << 20
)

// MaxDiagnosticsWait caps get_diagnostics wait_ms
const MaxDiagnosticsWait = 10 * time.Second

const (
	DefaultTabSize      = 4
	DefaultInsertSpaces = true
)
