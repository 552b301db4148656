package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the statecraft version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("statecraft %s %s/%s\n", Version, runtime.GOOS, runtime.GOARCH)
	},
}
