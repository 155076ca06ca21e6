package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lsp-session-manager/src/config"
	"lsp-session-manager/src/internal/common"
	versionpkg "lsp-session-manager/src/internal/version"
	"lsp-session-manager/src/utils/configloader"
)

// CLI Constants
const (
	CmdMCP        = "mcp"
	CmdLanguages  = "languages"
	CmdConfig     = "config"
	CmdConfigInit = "init"
	CmdVersion    = "version"

	FlagConfig      = "config"
	FlagVerbose     = "verbose"
	FlagMetricsAddr = "metrics-addr"
	FlagForce       = "force"
	FlagOut         = "out"
)

// CLI Variables
var (
	configPath  string
	verbose     bool
	metricsAddr string
	force       bool
	outPath     string
)

// Root command
var rootCmd = &cobra.Command{
	Use:   "lsp-session-manager",
	Short: "Language server sessions for AI assistants over MCP",
	Long: `lsp-session-manager starts language servers on demand, keeps one session per
workspace and exposes their code intelligence as Model Context Protocol tools.

QUICK START:
  lsp-session-manager mcp                  # Serve MCP on stdio
  lsp-session-manager languages            # Show the built-in language table
  lsp-session-manager config init          # Write a default configuration file

Use 'lsp-session-manager <command> --help' for detailed command information.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command definitions
var (
	mcpCmd = &cobra.Command{
		Use:   CmdMCP,
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server on stdin/stdout.

Every tool call is served by a language server session started with the
start_session tool. All sessions are shut down when stdin closes or the
process receives SIGINT or SIGTERM.

Logs are written to stderr; stdout carries only the protocol stream.

Usage Examples:
  lsp-session-manager mcp
  lsp-session-manager mcp --config custom.yaml --verbose
  lsp-session-manager mcp --metrics-addr 127.0.0.1:9464`,
		RunE: runMCPCmd,
	}

	languagesCmd = &cobra.Command{
		Use:   CmdLanguages,
		Short: "List supported languages and their server commands",
		Long: `Print every built-in language with the command that start_session launches for it.
Entries from the configuration file take priority and are marked as configured.`,
		RunE: runLanguagesCmd,
	}

	configCmd = &cobra.Command{
		Use:   CmdConfig,
		Short: "Manage the configuration file",
		RunE:  func(cmd *cobra.Command, args []string) error { return cmd.Help() },
	}

	configInitCmd = &cobra.Command{
		Use:   CmdConfigInit,
		Short: "Write a default configuration file",
		Long: `Write a configuration file mirroring the built-in language table.

Examples:
  lsp-session-manager config init
  lsp-session-manager config init --out ./lsp-sessions.yaml --force`,
		RunE: runConfigInitCmd,
	}

	versionCmd = &cobra.Command{
		Use:   CmdVersion,
		Short: "Show version information",
		Long: `Display version information.

Examples:
  lsp-session-manager version              # Show version number
  lsp-session-manager version --verbose    # Show detailed build information`,
		RunE: runVersionCmd,
	}
)

func init() {
	mcpCmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file path (optional)")
	mcpCmd.Flags().BoolVarP(&verbose, FlagVerbose, "v", false, "Enable debug logging")
	mcpCmd.Flags().StringVar(&metricsAddr, FlagMetricsAddr, "", "Serve Prometheus metrics on this address (disabled when empty)")

	languagesCmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file path (optional)")

	configInitCmd.Flags().StringVarP(&outPath, FlagOut, "o", "", "Output path (defaults to the user config location)")
	configInitCmd.Flags().BoolVarP(&force, FlagForce, "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)

	versionCmd.Flags().BoolVarP(&verbose, FlagVerbose, "v", false, "Show detailed version information")

	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func runMCPCmd(cmd *cobra.Command, args []string) error {
	return RunMCPServer(cmd.Context(), configPath, metricsAddr, verbose)
}

func runLanguagesCmd(cmd *cobra.Command, args []string) error {
	printLanguages(cmd.OutOrStdout(), configloader.MustLoadOrEmpty(configPath))
	return nil
}

func runConfigInitCmd(cmd *cobra.Command, args []string) error {
	path := outPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if common.FileExists(path) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.GenerateDefaultConfig(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}

func runVersionCmd(cmd *cobra.Command, args []string) error {
	if verbose {
		fmt.Fprintln(cmd.OutOrStdout(), versionpkg.GetFullVersionInfo())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "lsp-session-manager %s\n", versionpkg.GetVersion())
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
