package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var outputCmd = &cobra.Command{
	Use:   "output [NAME]",
	Short: "Show output values recorded in state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOutput,
}

func runOutput(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	snap, err := eng.Pull(cmd.Context())
	if err != nil {
		return err
	}

	if len(args) == 1 {
		out, ok := snap.Outputs[args[0]]
		if !ok {
			return fmt.Errorf("no output named %q", args[0])
		}
		fmt.Printf("%v\n", out.Value)
		return nil
	}

	if len(snap.Outputs) == 0 {
		fmt.Println("No outputs recorded. Run apply first.")
		return nil
	}
	names := make([]string, 0, len(snap.Outputs))
	for name := range snap.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out := snap.Outputs[name]
		if out.Sensitive {
			fmt.Printf("%s = (sensitive)\n", name)
			continue
		}
		fmt.Printf("%s = %v\n", name, out.Value)
	}
	return nil
}
