package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Prismer-AI/Prismer/sdk/chatsync"
	"github.com/spf13/cobra"
)

var configShowRaw bool

func init() {
	configShowCmd.Flags().BoolVar(&configShowRaw, "raw", false, "Print the config file as stored")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// configEntry is one effective setting and where its value came from.
type configEntry struct {
	Key    string
	Value  string
	Source string
}

// configEntries lists every setting of the effective config. Source is
// "file", "default" or the environment variable that overrode the file.
func configEntries(file, effective *Config) []configEntry {
	rateLimit := ""
	if effective.Default.RateLimit > 0 {
		rateLimit = strconv.FormatFloat(effective.Default.RateLimit, 'f', -1, 64)
	}
	rows := []struct {
		key, value, fileValue, fallback string
	}{
		{"default.base_url", effective.Default.BaseURL, file.Default.BaseURL, chatsync.DefaultBaseURL},
		{"default.user_id", effective.Default.UserID, file.Default.UserID, "me"},
		{"default.poll_interval", effective.Default.PollInterval, file.Default.PollInterval, chatsync.DefaultPollInterval.String()},
		{"default.rate_limit", rateLimit, rateLimit, "off"},
		{"default.log_level", effective.Default.LogLevel, file.Default.LogLevel, "warn"},
		{"default.log_format", effective.Default.LogFormat, file.Default.LogFormat, "text"},
		{"auth.token", effective.Auth.Token, file.Auth.Token, ""},
	}

	entries := make([]configEntry, 0, len(rows))
	for _, r := range rows {
		e := configEntry{Key: r.key, Value: r.value, Source: "file"}
		switch {
		case overridingEnv(r.key) != "":
			e.Source = "env " + overridingEnv(r.key)
		case r.fileValue == "":
			e.Value, e.Source = r.fallback, "default"
		}
		if r.key == "auth.token" && e.Value != "" {
			e.Value = maskKey(e.Value)
		}
		entries = append(entries, e)
	}
	return entries
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage chatsync configuration",
	Long:  "View or modify the chatsync CLI configuration stored in ~/.chatsync/config.toml.\nCHATSYNC_BASE_URL, CHATSYNC_USER_ID and CHATSYNC_TOKEN override the file.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration and where each value comes from",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if configShowRaw {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read config file: %w", err)
			}
			fmt.Print(string(data))
			return nil
		}

		file, err := loadConfig()
		if err != nil {
			return err
		}
		effective, err := loadEffectiveConfig()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Printf("Config file: %s (not created; run 'chatsync init')\n\n", path)
		} else {
			fmt.Printf("Config file: %s\n\n", path)
		}
		for _, e := range configEntries(file, effective) {
			fmt.Printf("%-22s = %-32s [%s]\n", e.Key, valueOrDefault(e.Value, "(unset)"), e.Source)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: chatsync config set default.poll_interval 15s",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		shown := value
		if key == "auth.token" {
			shown = maskKey(value)
		}
		fmt.Printf("Set %s = %s\n", key, shown)
		if env := overridingEnv(key); env != "" {
			fail("Note: %s is set and overrides this value.", env)
		}
		return nil
	},
}
