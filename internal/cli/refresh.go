package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reconcile recorded state with live provider reality",
	Long: `Re-reads every managed resource from its provider and updates the
recorded attributes. Resources that no longer exist are dropped from state,
so the next plan proposes recreating them. No resource is ever created or
destroyed by refresh.`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	snap, err := eng.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	fmt.Printf("Refresh complete. State at serial %d with %d resource(s).\n",
		snap.Serial, len(snap.Resources))
	return nil
}
