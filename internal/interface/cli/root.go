package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/neilberkman/gptmcp/internal/core/config"
	"github.com/neilberkman/gptmcp/internal/core/logging"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	logLevel    string
	version     = "dev"
	versionInfo string
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(v, commit, date string) {
	version = v
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", v, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gpt-mcp",
	Short: "MCP server for OpenAI GPT models",
	Long: `gpt-mcp - ask OpenAI GPT models from any MCP client

Exposes askGPT plus session tools over the Model Context Protocol on stdio.
Sessions keep multi-turn context in memory with size, token and idle limits.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to the MCP server if no subcommand specified
		return mcpCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads the effective configuration and builds the stderr logger.
// --log-level wins over the config file and environment.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Path != "" {
		logger.Debug("loaded config file", slog.String("path", cfg.Path))
	}
	return cfg, logger, nil
}
