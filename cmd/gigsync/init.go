package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initUserID string

func init() {
	initCmd.Flags().StringVar(&initUserID, "user", "", "your user id, used to tell your own messages apart")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <token>",
	Short: "Store an auth token in ~/.gigsync/state.toml",
	Long:  "Initialize gigsync by storing the platform auth token in the local state file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := loadState()
		if err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}

		state.Token = args[0]
		if initUserID != "" {
			state.ViewerID = initUserID
		}
		if err := state.Save(); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}

		fmt.Printf("Token saved to %s\n", state.Path())
		return nil
	},
}
