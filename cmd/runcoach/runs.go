package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/2beens/runcoach/internal/coach"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect cached runs",
}

var runsLimit int

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *coach.Service) error {
			details, err := service.CachedRuns(cmd.Context(), runsLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"runs":  details,
				"count": len(details),
			})
		})
	},
}

var (
	recentDays  int
	recentLimit int
)

var runsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Fetch recent activities straight from Strava",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *coach.Service) error {
			activities, err := service.RecentActivities(cmd.Context(), recentDays, recentLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), activities)
		})
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a run from the local cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		return withService(cmd.Context(), func(service *coach.Service) error {
			if err := service.DeleteRun(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %d\n", id)
			return nil
		})
	},
}

func parseRunID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid run id %q", value)
	}
	if id <= 0 {
		return 0, fmt.Errorf("run id must be > 0")
	}
	return id, nil
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 0, "max runs to list, all when 0")
	runsRecentCmd.Flags().IntVar(&recentDays, "days", 7, "days to look back")
	runsRecentCmd.Flags().IntVar(&recentLimit, "limit", 10, "max activities")

	runsCmd.AddCommand(runsListCmd, runsRecentCmd, runsDeleteCmd)
	rootCmd.AddCommand(runsCmd)
}
