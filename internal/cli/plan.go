package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	planGraphFile string
	planOutFile   string
	planNoRefresh bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what an apply would change",
	Long: `Compares the desired graph against recorded state and prints an
execution plan. Nothing is changed; the plan shows what apply would do.

Recorded attributes are refreshed against live provider reality first, so
drift surfaces as updates or replacements in the plan.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planGraphFile, "graph", "g", defaultGraphFile, "Desired-state graph file")
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan as JSON to a file")
	planCmd.Flags().BoolVar(&planNoRefresh, "no-refresh", false, "Skip the pre-plan refresh")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	graph, err := loadGraph(planGraphFile)
	if err != nil {
		return err
	}
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	eng.SkipRefresh = planNoRefresh

	plan, err := eng.Plan(ctx, graph)
	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}

	renderPlan(plan)

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write plan file: %w", err)
		}
		fmt.Printf("\nPlan written to %s\n", planOutFile)
	}
	return nil
}
