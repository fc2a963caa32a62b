package main

import (
	"fmt"

	"github.com/2beens/runcoach/internal/coach"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new runs from Strava into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *coach.Service) error {
			stored, err := service.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d new runs\n", stored)
			return nil
		})
	},
}

var reportRefresh bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the training report over all cached runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *coach.Service) error {
			rep, err := service.TrainingReport(cmd.Context(), reportRefresh)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		})
	},
}

var (
	adherencePlanID string
	adherenceFull   bool
)

var adherenceCmd = &cobra.Command{
	Use:   "adherence",
	Short: "Compare cached runs with a training plan, the active one by default",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *coach.Service) error {
			result, err := service.Adherence(cmd.Context(), adherencePlanID)
			if err != nil {
				return err
			}
			if !adherenceFull {
				result = result.Latest()
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportRefresh, "refresh", false, "sync with Strava before building the report")
	adherenceCmd.Flags().StringVar(&adherencePlanID, "plan", "", "plan id, the active plan when empty")
	adherenceCmd.Flags().BoolVar(&adherenceFull, "full", false, "list every completed and missed workout")

	rootCmd.AddCommand(syncCmd, reportCmd, adherenceCmd)
}
