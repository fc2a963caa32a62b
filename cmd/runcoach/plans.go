package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/2beens/runcoach/internal/coach"
	"github.com/2beens/runcoach/internal/plans"
	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage training plans",
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored plans, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *coach.Service) error {
			summaries, err := service.ListPlans(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"plans": summaries,
				"count": len(summaries),
			})
		})
	},
}

var plansGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a stored plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *coach.Service) error {
			plan, err := service.GetPlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), plan)
		})
	},
}

var savePlanID string

var plansSaveCmd = &cobra.Command{
	Use:   "save <file|->",
	Short: "Store a plan from a JSON file, or stdin with -",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		plan := &plans.Plan{}
		if err := json.Unmarshal(raw, plan); err != nil {
			return fmt.Errorf("invalid plan json: %w", err)
		}

		return withService(cmd.Context(), func(service *coach.Service) error {
			id, err := service.SavePlan(cmd.Context(), plan, savePlanID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved plan %s\n", id)
			return nil
		})
	},
}

var plansUpdateCmd = &cobra.Command{
	Use:   "update <id> <file|->",
	Short: "Deep merge a partial JSON object into a stored plan",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[1])
		if err != nil {
			return err
		}
		var partial map[string]any
		if err := json.Unmarshal(raw, &partial); err != nil {
			return fmt.Errorf("invalid updates json: %w", err)
		}

		return withService(cmd.Context(), func(service *coach.Service) error {
			plan, err := service.UpdatePlan(cmd.Context(), args[0], partial)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), plan)
		})
	},
}

var plansDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(service *coach.Service) error {
			if err := service.DeletePlan(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted plan %s\n", args[0])
			return nil
		})
	},
}

func readInput(cmd *cobra.Command, source string) ([]byte, error) {
	if source == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(source)
}

func init() {
	plansSaveCmd.Flags().StringVar(&savePlanID, "id", "", "plan id, generated when empty")

	plansCmd.AddCommand(plansListCmd, plansGetCmd, plansSaveCmd, plansUpdateCmd, plansDeleteCmd)
	rootCmd.AddCommand(plansCmd)
}
