package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage gigsync configuration",
	Long:  "View or modify the gigsync CLI configuration stored in ~/.gigsync/config.toml (or $GIGSYNC_HOME).",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration in effect",
	Long:  "Print the values commands will use: the config file, then GIGSYNC_* environment overrides, then built-in defaults.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		path, err := configPath()
		if err != nil {
			return err
		}
		cfg, err := readConfigFile()
		if err != nil {
			return err
		}
		overridden := applyEnvOverrides(cfg)
		return writeEffectiveConfig(cmd.OutOrStdout(), path, cfg, overridden)
	},
}

// writeEffectiveConfig prints cfg with defaults filled in, headed by where
// the values came from.
func writeEffectiveConfig(w io.Writer, path string, cfg *Config, overridden []string) error {
	data, err := toml.Marshal(withDefaults(*cfg))
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "# file: %s\n", path)
	} else {
		fmt.Fprintf(w, "# file: %s (not found, defaults in use)\n", path)
	}
	for _, o := range overridden {
		fmt.Fprintf(w, "# overridden by environment: %s\n", o)
	}
	_, err = w.Write(data)
	return err
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file using dot notation.\nExample: gigsync config set default.base_url https://api.example.com",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		// Environment overrides stay out of the saved file.
		cfg, err := readConfigFile()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}
