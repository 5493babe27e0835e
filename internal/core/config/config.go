package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/neilberkman/gptmcp/internal/core/format"
	"github.com/neilberkman/gptmcp/internal/core/session"
)

// ErrMissingAPIKey is returned by Validate when no OpenAI key is configured
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY environment variable is required")

type Config struct {
	APIKey         string        `toml:"-"`
	BaseURL        string        `toml:"base_url"`
	MaxRetries     int           `toml:"max_retries"`
	LogLevel       string        `toml:"log_level"`
	Session        SessionConfig `toml:"session"`
	AnswerTemplate string        `toml:"-"` // from output_template.txt
	Path           string        `toml:"-"` // config file actually read, if any
}

type SessionConfig struct {
	MaxTokens   int     `toml:"max_tokens"`
	MaxMessages int     `toml:"max_messages"`
	ExpiryHours float64 `toml:"expiry_hours"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		MaxRetries: 2,
		LogLevel:   "info",
		Session: SessionConfig{
			MaxTokens:   session.DefaultMaxTokens,
			MaxMessages: session.DefaultMaxMessages,
			ExpiryHours: session.DefaultExpiry.Hours(),
		},
		AnswerTemplate: format.DefaultAnswerTemplate,
	}
}

// DefaultPath returns ~/.config/gpt-mcp/config.toml, or "" without a home dir
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gpt-mcp", "config.toml")
}

// Load builds the configuration from defaults, the TOML file at path (or
// the default path), output_template.txt next to it, a .env file in the
// working directory and finally environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath()
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", path, err)
			}
			cfg.Path = path
		}

		// If custom template exists, use it
		templatePath := filepath.Join(filepath.Dir(path), "output_template.txt")
		if data, err := os.ReadFile(templatePath); err == nil {
			cfg.AnswerTemplate = string(data)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("GPT_MCP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks the settings needed to talk to the upstream API
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

// Limits converts the session section to store limits
func (c *Config) Limits() session.Limits {
	return session.Limits{
		MaxTokens:   c.Session.MaxTokens,
		MaxMessages: c.Session.MaxMessages,
		Expiry:      time.Duration(c.Session.ExpiryHours * float64(time.Hour)),
	}
}
