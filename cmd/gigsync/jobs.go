package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	jobsCmd.AddCommand(jobsViewedCmd)
	rootCmd.AddCommand(jobsCmd)
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job helpers",
}

var jobsViewedCmd = &cobra.Command{
	Use:   "viewed [job-id]",
	Short: "Record a guest job view, or list recorded views",
	Long:  "Record that a job was viewed. Each job is only counted once per machine.\nWithout an argument, list the recorded job ids.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := loadState()
		if err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}

		if len(args) == 0 {
			if jsonOutput {
				return printJSON(state.ViewedJobs)
			}
			for _, id := range state.ViewedJobs {
				fmt.Printf("%s  %s\n", id, state.ViewedTimes[id])
			}
			return nil
		}

		if !state.MarkJobViewed(args[0]) {
			fmt.Printf("Job %s already viewed\n", args[0])
			return nil
		}
		if err := state.Save(); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
		fmt.Printf("Recorded view of job %s\n", args[0])
		return nil
	},
}
