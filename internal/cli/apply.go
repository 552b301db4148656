package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/statecraft-io/statecraft/internal/engine"
	"github.com/statecraft-io/statecraft/internal/ir"
)

var (
	applyGraphFile   string
	applyAutoApprove bool
	applyNoRefresh   bool
	applyParallelism int
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the changes required to reach the desired graph",
	Long: `Plans against recorded state and executes the resulting actions in
dependency order over a bounded worker pool.

A failing action cancels everything that depends on it; unrelated branches
keep running. Progress is committed into state as each action completes, so
an interrupted apply never loses work that already happened.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyGraphFile, "graph", "g", defaultGraphFile, "Desired-state graph file")
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval")
	applyCmd.Flags().BoolVar(&applyNoRefresh, "no-refresh", false, "Skip the pre-plan refresh")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "Maximum concurrent actions (0 = default)")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	graph, err := loadGraph(applyGraphFile)
	if err != nil {
		return err
	}
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	eng.SkipRefresh = applyNoRefresh
	eng.Parallelism = applyParallelism

	plan, err := eng.Plan(ctx, graph)
	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}
	renderPlan(plan)
	if !plan.Changes() {
		return nil
	}

	if !applyAutoApprove {
		if !confirm("\nDo you want to perform these actions?") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}
	fmt.Println()

	result, err := eng.ApplyWithCallback(ctx, plan, printApplyEvent)
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	fmt.Printf("\nApply complete: %d created, %d updated, %d destroyed.\n",
		result.Created, result.Updated, result.Destroyed)
	if result.Failed > 0 || result.Cancelled > 0 {
		return fmt.Errorf("%d action(s) failed, %d cancelled", result.Failed, result.Cancelled)
	}
	return nil
}

func printApplyEvent(event engine.ApplyEvent) {
	switch event.Status {
	case "started":
		fmt.Printf("%s: %s...\n", event.Address, presentTense(event.Kind))
	case "applied":
		fmt.Printf("%s%s: %s (%s)%s\n", colorGreen, event.Address, pastTense(event.Kind),
			event.Duration.Round(time.Millisecond), colorReset)
	case "failed":
		fmt.Printf("%s%s: failed: %v%s\n", colorRed, event.Address, event.Error, colorReset)
	case "cancelled":
		fmt.Printf("%s%s: cancelled%s\n", colorYellow, event.Address, colorReset)
	}
}

func presentTense(kind ir.ActionKind) string {
	switch kind {
	case ir.ActionCreate:
		return "creating"
	case ir.ActionUpdate:
		return "updating"
	case ir.ActionDestroy:
		return "destroying"
	case ir.ActionReplace:
		return "replacing"
	}
	return string(kind)
}

func pastTense(kind ir.ActionKind) string {
	switch kind {
	case ir.ActionCreate:
		return "created"
	case ir.ActionUpdate:
		return "updated"
	case ir.ActionDestroy:
		return "destroyed"
	case ir.ActionReplace:
		return "replaced"
	}
	return string(kind)
}
