package cli

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/neilberkman/gptmcp/internal/core/config"
	"github.com/neilberkman/gptmcp/internal/core/format"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the configuration gpt-mcp would run with, after applying the config
file, .env and environment variables. The API key is redacted.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// effectiveConfig is the printable form of config.Config
type effectiveConfig struct {
	ConfigFile     string               `toml:"config_file"`
	APIKey         string               `toml:"api_key"`
	BaseURL        string               `toml:"base_url"`
	MaxRetries     int                  `toml:"max_retries"`
	LogLevel       string               `toml:"log_level"`
	CustomTemplate bool                 `toml:"custom_template"`
	Session        config.SessionConfig `toml:"session"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	return writeConfig(cmd.OutOrStdout(), cfg)
}

func writeConfig(w io.Writer, cfg *config.Config) error {
	view := effectiveConfig{
		ConfigFile:     cfg.Path,
		APIKey:         redact(cfg.APIKey),
		BaseURL:        cfg.BaseURL,
		MaxRetries:     cfg.MaxRetries,
		LogLevel:       cfg.LogLevel,
		CustomTemplate: cfg.AnswerTemplate != format.DefaultAnswerTemplate,
		Session:        cfg.Session,
	}
	if view.ConfigFile == "" {
		view.ConfigFile = "(none)"
	}
	if err := toml.NewEncoder(w).Encode(view); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// redact keeps a short prefix so users can tell which key is active
func redact(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 8:
		return "****"
	default:
		return key[:3] + "****" + key[len(key)-4:]
	}
}
