package configloader

import (
	"lsp-session-manager/src/config"
	"lsp-session-manager/src/internal/common"
)

// Load reads the configuration for a server run and applies its log level.
// verbose forces debug logging regardless of the file.
func Load(configPath string, verbose bool) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	level, err := common.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		// validated on load; only reachable for hand-built configs
		level = common.LogInfo
	}
	if verbose {
		level = common.LogDebug
	}
	common.SetLogLevel(level)

	if len(cfg.Servers) > 0 {
		common.CLILogger.Debug("Loaded server overrides for: %v", cfg.Languages())
	}
	return cfg, nil
}

// MustLoadOrEmpty is used by informational commands that should never fail on a bad config
func MustLoadOrEmpty(configPath string) *config.Config {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		common.CLILogger.Warn("Ignoring config: %v", err)
		return config.NewConfig()
	}
	return cfg
}
