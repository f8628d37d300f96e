package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plan-engine/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFrom(cmd).DatabasePath
		if err := database.RunMigrations(path); err != nil {
			return err
		}
		fmt.Printf("Database %s is up to date.\n", path)
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect and manage stored plans",
}

var planShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Print a user's plan as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		snap, err := a.Plan(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap.Plan)
	},
}

var planValidateCmd = &cobra.Command{
	Use:   "validate <user-id>",
	Short: "Check a user's plan against the plan rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		outcome, version, err := a.ValidatePlan(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if outcome.Accepted {
			fmt.Printf("Plan version %d is valid.\n", version)
			return nil
		}
		return fmt.Errorf("plan version %d is invalid: %w", version, outcome.Err())
	},
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user's plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		if err := a.DeletePlan(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted plan of %s.\n", args[0])
		return nil
	},
}

var (
	usageDays        int
	cleanupOlderThan int
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Report and clean up agent usage metrics",
}

var metricsUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Print daily token usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		usage, err := a.Usage(cmd.Context(), usageDays)
		if err != nil {
			return err
		}
		if len(usage) == 0 {
			fmt.Println("No agent calls recorded.")
			return nil
		}
		fmt.Printf("%-10s  %10s  %10s  %6s  %8s\n", "DATE", "PROMPT", "COMPLETION", "CALLS", "FAILURES")
		for _, u := range usage {
			fmt.Printf("%-10s  %10d  %10d  %6d  %8d\n", u.Date, u.TotalPrompt, u.TotalCompletion, u.TotalExecution, u.Failures)
		}
		return nil
	},
}

var metricsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old metrics and request records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		res, err := a.Cleanup(cmd.Context(), cleanupOlderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d metric records and %d request records.\n", res.Metrics, res.Requests)
		return nil
	},
}

func init() {
	planCmd.AddCommand(planShowCmd, planValidateCmd, planDeleteCmd)

	metricsUsageCmd.Flags().IntVar(&usageDays, "days", 7, "Number of days to report")
	metricsCleanupCmd.Flags().IntVar(&cleanupOlderThan, "older-than", 30, "Keep records of the last N days")
	metricsCmd.AddCommand(metricsUsageCmd, metricsCleanupCmd)
}
