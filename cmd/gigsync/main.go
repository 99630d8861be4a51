package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gigmarket/gigsync"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.gigsync/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Watch   ConfigWatch   `toml:"watch"`
}

// ConfigDefault holds general client settings.
type ConfigDefault struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ConfigWatch holds settings for the long-running watch command.
type ConfigWatch struct {
	HistoryLimit int    `toml:"history_limit"`
	MetricsAddr  string `toml:"metrics_addr"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.gigsync, creating it if needed.
func configDir() (string, error) {
	if dir := os.Getenv("GIGSYNC_HOME"); dir != "" {
		return dir, os.MkdirAll(dir, 0o700)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".gigsync")
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

func statePath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.toml"), nil
}

// loadConfig reads the config file and applies GIGSYNC_* overrides from the
// environment or a .env file in the working directory. A missing file yields
// a zero-value Config.
func loadConfig() (*Config, error) {
	_ = godotenv.Load()
	cfg, err := readConfigFile()
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// readConfigFile reads the config file alone, without environment overrides.
func readConfigFile() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}

// envOverrides maps environment variables onto config keys.
var envOverrides = []struct {
	env   string
	key   string
	apply func(*Config, string)
}{
	{"GIGSYNC_BASE_URL", "default.base_url", func(c *Config, v string) { c.Default.BaseURL = v }},
	{"GIGSYNC_METRICS_ADDR", "watch.metrics_addr", func(c *Config, v string) { c.Watch.MetricsAddr = v }},
}

// applyEnvOverrides sets every key whose variable is present and returns
// those keys as "key (VAR)".
func applyEnvOverrides(cfg *Config) []string {
	var applied []string
	for _, o := range envOverrides {
		if v := os.Getenv(o.env); v != "" {
			o.apply(cfg, v)
			applied = append(applied, o.key+" ("+o.env+")")
		}
	}
	return applied
}

// withDefaults fills unset keys with the values the client falls back to.
func withDefaults(cfg Config) Config {
	if cfg.Default.BaseURL == "" {
		cfg.Default.BaseURL = gigsync.DefaultBaseURL
	}
	if cfg.Default.TimeoutSeconds == 0 {
		cfg.Default.TimeoutSeconds = int(gigsync.DefaultTimeout / time.Second)
	}
	if cfg.Watch.HistoryLimit == 0 {
		cfg.Watch.HistoryLimit = gigsync.DefaultHistoryLimit
	}
	return cfg
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
		case "timeout_seconds":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("timeout_seconds must be a non-negative integer")
			}
			cfg.Default.TimeoutSeconds = n
		default:
			return fmt.Errorf("unknown field %q in section [default]", field)
		}
	case "watch":
		switch field {
		case "history_limit":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("history_limit must be a non-negative integer")
			}
			cfg.Watch.HistoryLimit = n
		case "metrics_addr":
			cfg.Watch.MetricsAddr = value
		default:
			return fmt.Errorf("unknown field %q in section [watch]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: default, watch)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gigsync",
	Short: "Marketplace chat sync CLI",
	Long:  "Command-line interface for the gigsync client.\nInspect conversations, send messages and watch realtime chat events.",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
