package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/internal/constants"
	"lsp-session-manager/src/internal/registry"
)

// Config contains the session manager configuration
type Config struct {
	Servers     map[string]*ServerConfig `yaml:"servers,omitempty"`
	Timeouts    TimeoutConfig            `yaml:"timeouts,omitempty"`
	Formatting  FormattingConfig         `yaml:"formatting,omitempty"`
	LogLevel    string                   `yaml:"log_level,omitempty"`
	MetricsAddr string                   `yaml:"metrics_addr,omitempty"`
}

// ServerConfig overrides the built-in language table for one language
type ServerConfig struct {
	Command               string                 `yaml:"command"`
	Args                  []string               `yaml:"args"`
	LanguageID            string                 `yaml:"language_id,omitempty"`
	InitializationOptions map[string]interface{} `yaml:"initialization_options,omitempty"`
	Env                   map[string]string      `yaml:"env,omitempty"`
}

// TimeoutConfig overrides the per-language defaults when non-zero
type TimeoutConfig struct {
	Request    time.Duration `yaml:"request,omitempty"`
	Initialize time.Duration `yaml:"initialize,omitempty"`
	Shutdown   time.Duration `yaml:"shutdown,omitempty"`
}

// FormattingConfig holds the options sent with textDocument/formatting
type FormattingConfig struct {
	TabSize      int   `yaml:"tab_size,omitempty"`
	InsertSpaces *bool `yaml:"insert_spaces,omitempty"`
}

// NewConfig returns an empty configuration; every language falls back to the built-in table
func NewConfig() *Config {
	return &Config{Servers: make(map[string]*ServerConfig)}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	expanded, err := common.ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := common.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Servers == nil {
		config.Servers = make(map[string]*ServerConfig)
	}

	// Language keys are matched case-insensitively, aliases included
	normalized := make(map[string]*ServerConfig, len(config.Servers))
	for language, sc := range config.Servers {
		normalized[registry.NormalizeLanguage(language)] = sc
	}
	config.Servers = normalized

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads path when given, else the default config file when it
// exists, else an empty configuration. An explicit path that fails to load is an error.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return LoadConfig(path)
	}

	defaultPath := GetDefaultConfigPath()
	if !common.FileExists(defaultPath) {
		return NewConfig(), nil
	}
	config, err := LoadConfig(defaultPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", defaultPath, err)
	}
	return config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateDefaultConfig writes the default configuration to path
func GenerateDefaultConfig(path string) error {
	return SaveConfig(GetDefaultConfig(), path)
}

func validateConfig(config *Config) error {
	for language, serverConfig := range config.Servers {
		if serverConfig == nil || serverConfig.Command == "" {
			return fmt.Errorf("command is required for language %s", language)
		}
	}

	if config.Timeouts.Request < 0 || config.Timeouts.Initialize < 0 || config.Timeouts.Shutdown < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if config.Formatting.TabSize < 0 {
		return fmt.Errorf("formatting.tab_size must not be negative")
	}

	if _, err := common.ParseLogLevel(config.LogLevel); err != nil {
		return err
	}

	return nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	return filepath.Join(common.GetAppDir(), "config.yaml")
}

// GetDefaultConfig returns a configuration mirroring the built-in language table
func GetDefaultConfig() *Config {
	config := NewConfig()
	for _, lang := range registry.GetSupportedLanguages() {
		config.Servers[lang.Name] = &ServerConfig{
			Command: lang.DefaultCommand,
			Args:    append([]string{}, lang.DefaultArgs...),
		}
	}
	config.LogLevel = common.LogInfo.String()
	return config
}

// ServerFor returns the configured override for language, if any
func (c *Config) ServerFor(language string) (*ServerConfig, bool) {
	if c == nil || c.Servers == nil {
		return nil, false
	}
	sc, ok := c.Servers[registry.NormalizeLanguage(language)]
	return sc, ok && sc != nil
}

// Languages returns the sorted languages with a configured override
func (c *Config) Languages() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Servers))
	for language := range c.Servers {
		out = append(out, language)
	}
	sort.Strings(out)
	return out
}

// RequestTimeout returns the configured request timeout or the language default
func (c *Config) RequestTimeout(language string) time.Duration {
	if c != nil && c.Timeouts.Request > 0 {
		return c.Timeouts.Request
	}
	return constants.GetRequestTimeout(registry.NormalizeLanguage(language))
}

// InitializeTimeout returns the configured handshake timeout or the language default
func (c *Config) InitializeTimeout(language string) time.Duration {
	if c != nil && c.Timeouts.Initialize > 0 {
		return c.Timeouts.Initialize
	}
	return constants.GetInitializeTimeout(registry.NormalizeLanguage(language))
}

// ShutdownTimeout returns how long to wait for a server process to exit after shutdown
func (c *Config) ShutdownTimeout() time.Duration {
	if c != nil && c.Timeouts.Shutdown > 0 {
		return c.Timeouts.Shutdown
	}
	return constants.ProcessShutdownTimeout
}

// FormattingOptions returns the tab size and insert-spaces flag for formatting requests
func (c *Config) FormattingOptions() (tabSize uint32, insertSpaces bool) {
	tabSize, insertSpaces = constants.DefaultTabSize, constants.DefaultInsertSpaces
	if c == nil {
		return
	}
	if c.Formatting.TabSize > 0 {
		tabSize = uint32(c.Formatting.TabSize)
	}
	if c.Formatting.InsertSpaces != nil {
		insertSpaces = *c.Formatting.InsertSpaces
	}
	return
}
