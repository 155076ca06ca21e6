package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/server"
	"lsp-session-manager/src/server/metrics"
	"lsp-session-manager/src/utils/configloader"
)

// RunMCPServer serves MCP on stdio until stdin closes or a shutdown signal arrives
func RunMCPServer(ctx context.Context, configPath, metricsAddr string, verbose bool) error {
	cfg, err := configloader.Load(configPath, verbose)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer common.SyncLoggers()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []server.ManagerOption
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	if metricsAddr != "" {
		mt := metrics.New()
		opts = append(opts, server.WithMetrics(mt))
		go func() {
			if err := mt.Serve(ctx, metricsAddr); err != nil {
				common.CLILogger.Error("Metrics endpoint stopped: %v", err)
			}
		}()
	}

	common.CLILogger.Info("Starting MCP server (config languages: %v)", cfg.Languages())
	return server.RunMCPServer(ctx, cfg, opts...)
}
