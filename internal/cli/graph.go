package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/statecraft-io/statecraft/internal/engine"
)

var graphGraphFile string

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the expanded resource graph in execution order",
	Long: `Expands count and for_each, resolves dependencies and prints every
resource instance in the order apply would start it. Useful for checking why
two resources are ordered the way they are.`,
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringVarP(&graphGraphFile, "graph", "g", defaultGraphFile, "Desired-state graph file")
}

func runGraph(cmd *cobra.Command, args []string) error {
	graph, err := loadGraph(graphGraphFile)
	if err != nil {
		return err
	}
	resources, err := engine.Expand(graph.Resources)
	if err != nil {
		return err
	}
	eng, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	snap, err := eng.Pull(cmd.Context())
	if err != nil {
		return err
	}
	dag, err := engine.BuildDAG(resources, snap)
	if err != nil {
		return err
	}

	for _, addr := range dag.Order() {
		deps := dag.Dependencies(addr)
		if len(deps) == 0 {
			fmt.Println(addr)
			continue
		}
		fmt.Printf("%s (after", addr)
		for _, dep := range deps {
			fmt.Printf(" %s", dep)
		}
		fmt.Println(")")
	}
	return nil
}
