package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/devricklin/discord-relay/internal/infra/gemini"
)

// EnvPrefix is the prefix of environment overrides, e.g. RELAY_MODEL
const EnvPrefix = "RELAY_"

// Config represents application configuration
type Config struct {
	// Generation backend
	Model                  string `koanf:"model"`
	BaseURL                string `koanf:"base_url"`
	GenerateTimeoutSeconds int    `koanf:"generate_timeout_seconds"`

	// Reply journal, empty disables
	JournalPath          string `koanf:"journal_path"`
	JournalRetentionDays int    `koanf:"journal_retention_days"` // 0 keeps everything

	// Status API listen address, empty disables
	StatusAddr string `koanf:"status_addr"`

	// Persona prompts YAML
	PromptsPath string `koanf:"prompts_path"`

	// Cancel a reply still settling when a newer message arrives
	SupersedePending bool `koanf:"supersede_pending"`

	// Debug mode
	Debug bool `koanf:"debug"`

	// Credentials, from the environment only
	DiscordToken string `koanf:"-"`
	GoogleAPIKey string `koanf:"-"`
}

// DefaultConfig returns the configuration used when nothing overrides it
func DefaultConfig() *Config {
	journalPath := ""
	if homeDir, err := os.UserHomeDir(); err == nil {
		journalPath = filepath.Join(homeDir, ".discord-relay", "replies.db")
	}

	return &Config{
		Model:                  gemini.DefaultModel,
		BaseURL:                gemini.DefaultBaseURL,
		GenerateTimeoutSeconds: 30,
		JournalPath:            journalPath,
		JournalRetentionDays:   30,
		StatusAddr:             "127.0.0.1:9876",
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (RELAY_*) and the credentials.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// Overlay environment variables: RELAY_STATUS_ADDR -> status_addr, etc.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.JournalPath = expandHome(cfg.JournalPath)
	cfg.PromptsPath = expandHome(cfg.PromptsPath)

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")

	return cfg, nil
}

// Validate checks that the configuration can start the relay
func (c *Config) Validate() error {
	if c.DiscordToken == "" || c.GoogleAPIKey == "" {
		return &ConfigError{Field: "credentials", Message: "DISCORD_TOKEN or GOOGLE_API_KEY not found"}
	}
	if c.Model == "" {
		return &ConfigError{Field: "model", Message: "is required"}
	}
	if c.GenerateTimeoutSeconds <= 0 {
		return &ConfigError{Field: "generate_timeout_seconds", Message: "must be positive"}
	}
	if c.JournalRetentionDays < 0 {
		return &ConfigError{Field: "journal_retention_days", Message: "must not be negative"}
	}
	return nil
}

// JournalRetention returns the journal retention as a duration
func (c *Config) JournalRetention() time.Duration {
	return time.Duration(c.JournalRetentionDays) * 24 * time.Hour
}

// GenerateTimeout returns the generation timeout as a duration
func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

// ConfigError is a fatal configuration problem
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "credentials" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
