package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.chatsync/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Auth    ConfigAuth    `toml:"auth"`
}

// ConfigDefault holds general engine settings.
type ConfigDefault struct {
	BaseURL      string  `toml:"base_url"`
	UserID       string  `toml:"user_id"`
	PollInterval string  `toml:"poll_interval"`
	RateLimit    float64 `toml:"rate_limit"`
	LogLevel     string  `toml:"log_level"`
	LogFormat    string  `toml:"log_format"`
}

// ConfigAuth holds the bearer token.
type ConfigAuth struct {
	Token string `toml:"token"`
}

// pollInterval parses the configured interval; zero means the engine default.
func (c *Config) pollInterval() (time.Duration, error) {
	if c.Default.PollInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Default.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", c.Default.PollInterval, err)
	}
	return d, nil
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.chatsync, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".chatsync")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns a zero-value Config.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// envOverrides maps config keys to the environment variables that override
// them. Overrides are never written back to disk.
var envOverrides = []struct {
	key, env string
}{
	{"default.base_url", "CHATSYNC_BASE_URL"},
	{"default.user_id", "CHATSYNC_USER_ID"},
	{"auth.token", "CHATSYNC_TOKEN"},
}

// overridingEnv returns the variable overriding key, or "" when none is set.
func overridingEnv(key string) string {
	for _, o := range envOverrides {
		if o.key == key && os.Getenv(o.env) != "" {
			return o.env
		}
	}
	return ""
}

// loadEffectiveConfig is loadConfig with CHATSYNC_* environment overrides.
func loadEffectiveConfig() (*Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	for _, o := range envOverrides {
		if v := os.Getenv(o.env); v != "" {
			if err := setConfigValue(cfg, o.key, v); err != nil {
				return nil, fmt.Errorf("%s: %w", o.env, err)
			}
		}
	}
	return cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "default.base_url").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.base_url)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "default":
		switch field {
		case "base_url":
			cfg.Default.BaseURL = value
		case "user_id":
			cfg.Default.UserID = value
		case "poll_interval":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("poll_interval must be a duration such as 30s: %w", err)
			}
			cfg.Default.PollInterval = value
		case "rate_limit":
			rps, err := strconv.ParseFloat(value, 64)
			if err != nil || rps < 0 {
				return fmt.Errorf("rate_limit must be a non-negative number of requests per second")
			}
			cfg.Default.RateLimit = rps
		case "log_level":
			switch value {
			case "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("log_level must be one of debug, info, warn, error")
			}
			cfg.Default.LogLevel = value
		case "log_format":
			if value != "json" && value != "text" {
				return fmt.Errorf("log_format must be json or text")
			}
			cfg.Default.LogFormat = value
		default:
			return fmt.Errorf("unknown field %q in section [default]", field)
		}
	case "auth":
		switch field {
		case "token":
			cfg.Auth.Token = value
		default:
			return fmt.Errorf("unknown field %q in section [auth]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: default, auth)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Conversation sync CLI",
	Long:  "Command-line client for a conversation/message API.\nList and manage conversations, send messages and watch for changes.",
}

func main() {
	// .env in the working directory may provide CHATSYNC_* overrides.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
