package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "statecraft",
	Short: "Declarative infrastructure state reconciliation",
	Long: `Statecraft reconciles a desired resource graph against recorded state.

It provides:
  • Plans that show exactly what will change before anything does
  • Dependency-ordered parallel apply with bounded concurrency
  • Versioned state with optimistic locking and lease-based state locks
  • Drift detection against live provider reality`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(forceUnlockCmd)
	rootCmd.AddCommand(versionCmd)
}
