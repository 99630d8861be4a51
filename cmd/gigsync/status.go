package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gigmarket/gigsync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	Long:  "Display the current configuration, whether a token is stored, and the live unread count.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		state, err := loadState()
		if err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:     %s\n", valueOrDefault(cfg.Default.BaseURL, gigsync.DefaultBaseURL+" (default)"))
		if cfg.Watch.MetricsAddr != "" {
			fmt.Printf("  Metrics addr: %s\n", cfg.Watch.MetricsAddr)
		}

		fmt.Println()
		fmt.Println("Auth:")
		token := state.Token
		if v := os.Getenv("GIGSYNC_TOKEN"); v != "" {
			token = v
		}
		if token != "" {
			fmt.Printf("  Token:        %s\n", maskKey(token))
		} else {
			fmt.Println("  Token:        (not set)")
		}
		fmt.Printf("  User ID:      %s\n", valueOrDefault(state.ViewerID, "(not set)"))
		fmt.Printf("  Viewed jobs:  %d\n", len(state.ViewedJobs))

		if token == "" {
			return nil
		}

		env, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Println()
		fmt.Println("Live status:")
		n, err := env.client.Unread.Count(ctx)
		if err != nil {
			fmt.Printf("  Error fetching unread count: %v\n", apiError(err))
			return nil
		}
		fmt.Printf("  Unread:       %d\n", n)
		return nil
	},
}
