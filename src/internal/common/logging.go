package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

var logLevelNames = map[LogLevel]string{
	LogDebug: "debug",
	LogInfo:  "info",
	LogWarn:  "warn",
	LogError: "error",
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogDebug:
		return zapcore.DebugLevel
	case LogWarn:
		return zapcore.WarnLevel
	case LogError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel converts a config/flag value into a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogDebug, nil
	case "", "info":
		return LogInfo, nil
	case "warn", "warning":
		return LogWarn, nil
	case "error":
		return LogError, nil
	default:
		return LogInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// DebugEnvVar turns on debug logging at startup when set to true
const DebugEnvVar = "LSP_SESSION_DEBUG"

var (
	baseMu    sync.RWMutex
	baseLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base      = newBaseLogger(os.Stderr)
)

func init() {
	if EnvEnabled(DebugEnvVar) {
		baseLevel.SetLevel(zapcore.DebugLevel)
	}
}

// newBaseLogger builds the shared zap logger. Output never goes to stdout:
// stdout is reserved for the MCP protocol stream.
func newBaseLogger(w io.Writer) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), baseLevel)
	return zap.New(core)
}

func currentBase() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// SetLogLevel sets the minimum level for every logger
func SetLogLevel(level LogLevel) {
	baseLevel.SetLevel(level.zapLevel())
}

// GetLogLevel returns the current minimum level
func GetLogLevel() LogLevel {
	switch baseLevel.Level() {
	case zapcore.DebugLevel:
		return LogDebug
	case zapcore.WarnLevel:
		return LogWarn
	case zapcore.ErrorLevel:
		return LogError
	default:
		return LogInfo
	}
}

// SetLogOutput redirects all loggers to w and returns a function restoring the previous sink
func SetLogOutput(w io.Writer) func() {
	baseMu.Lock()
	prev := base
	base = newBaseLogger(w)
	baseMu.Unlock()

	return func() {
		baseMu.Lock()
		base = prev
		baseMu.Unlock()
	}
}

// SyncLoggers flushes buffered log entries
func SyncLoggers() {
	_ = currentBase().Sync()
}

// SafeLogger provides STDIO-safe logging that only writes to stderr
type SafeLogger struct {
	prefix string
}

// NewSafeLogger creates a new safe logger with the given prefix
func NewSafeLogger(prefix string) *SafeLogger {
	return &SafeLogger{prefix: prefix}
}

func (l *SafeLogger) sugar() *zap.SugaredLogger {
	return currentBase().Named(l.prefix).Sugar()
}

// Debug logs a debug message
func (l *SafeLogger) Debug(format string, args ...interface{}) {
	l.sugar().Debugf(format, args...)
}

// Info logs an info message
func (l *SafeLogger) Info(format string, args ...interface{}) {
	l.sugar().Infof(format, args...)
}

// Warn logs a warning message
func (l *SafeLogger) Warn(format string, args ...interface{}) {
	l.sugar().Warnf(format, args...)
}

// Error logs an error message
func (l *SafeLogger) Error(format string, args ...interface{}) {
	l.sugar().Errorf(format, args...)
}

// Zap exposes the underlying structured logger for callers that want fields
func (l *SafeLogger) Zap() *zap.Logger {
	return currentBase().Named(l.prefix)
}

// Global logger instances for convenience
var (
	LSPLogger     = NewSafeLogger("LSP")
	SessionLogger = NewSafeLogger("Session")
	MCPLogger     = NewSafeLogger("MCP")
	CLILogger     = NewSafeLogger("CLI")
)

const maxLoggedPayload = 200

// SanitizeForLog renders v as a single line and truncates long payloads
func SanitizeForLog(v interface{}) string {
	if v == nil {
		return ""
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case []byte:
		s = string(val)
	case error:
		s = val.Error()
	default:
		s = fmt.Sprintf("%v", val)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxLoggedPayload {
		s = s[:maxLoggedPayload] + "..."
	}
	return s
}
