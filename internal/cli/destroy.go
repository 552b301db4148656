package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/statecraft-io/statecraft/internal/ir"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Destroy every managed resource",
	Long: `Plans against an empty desired graph, so every recorded resource is
scheduled for destruction in reverse dependency order.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}

	plan, err := eng.Plan(ctx, &ir.Graph{})
	if err != nil {
		return fmt.Errorf("destroy plan failed: %w", err)
	}
	renderPlan(plan)
	if !plan.Changes() {
		return nil
	}

	if !destroyAutoApprove {
		if !confirm("\nDo you really want to destroy all managed resources?") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}
	fmt.Println()

	result, err := eng.ApplyWithCallback(ctx, plan, printApplyEvent)
	if err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}
	fmt.Printf("\nDestroy complete: %d destroyed.\n", result.Destroyed)
	if result.Failed > 0 || result.Cancelled > 0 {
		return fmt.Errorf("%d action(s) failed, %d cancelled", result.Failed, result.Cancelled)
	}
	return nil
}
