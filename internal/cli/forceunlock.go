package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var forceUnlockCmd = &cobra.Command{
	Use:   "force-unlock LOCK_ID",
	Short: "Release a stuck state lock",
	Long: `Releases the state lock regardless of who holds it. Only use this
when the holding process is known to be dead; unlocking a live apply lets a
second writer corrupt state.`,
	Args: cobra.ExactArgs(1),
	RunE: runForceUnlock,
}

func runForceUnlock(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	if err := eng.ForceUnlock(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("force-unlock failed: %w", err)
	}
	fmt.Println("State lock released.")
	return nil
}
