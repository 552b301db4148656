package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and modify recorded state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every managed resource address",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show ADDRESS",
	Short: "Show the recorded attributes of one resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateMvCmd = &cobra.Command{
	Use:   "mv FROM TO",
	Short: "Rename a resource in state without touching the real object",
	Args:  cobra.ExactArgs(2),
	RunE:  runStateMv,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm ADDRESS",
	Short: "Forget a resource without destroying it",
	Long: `Removes the record at ADDRESS from state. The real object keeps
existing and simply becomes unmanaged.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateRm,
}

var statePullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Print the raw state snapshot as JSON",
	RunE:  runStatePull,
}

var statePushForce bool

var statePushCmd = &cobra.Command{
	Use:   "push FILE",
	Short: "Upload a locally edited state snapshot",
	Long: `Replaces the persisted snapshot with the one in FILE. Without
--force the push is refused on a lineage mismatch or a serial regression.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatePush,
}

var stateVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List retained point-in-time state versions",
	RunE:  runStateVersions,
}

func init() {
	statePushCmd.Flags().BoolVar(&statePushForce, "force", false, "Overwrite regardless of lineage and serial")

	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateMvCmd)
	stateCmd.AddCommand(stateRmCmd)
	stateCmd.AddCommand(statePullCmd)
	stateCmd.AddCommand(statePushCmd)
	stateCmd.AddCommand(stateVersionsCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	snap, err := eng.Pull(cmd.Context())
	if err != nil {
		return err
	}
	addrs := make([]string, 0, len(snap.Resources))
	for _, rec := range snap.Resources {
		addrs = append(addrs, rec.Address.String())
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		fmt.Println(a)
	}
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	addr, err := ir.ParseAddress(args[0])
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
	rec := snap.Resource(addr)
	if rec == nil {
		return fmt.Errorf("no resource at %s", addr)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStateMv(cmd *cobra.Command, args []string) error {
	from, err := ir.ParseAddress(args[0])
	if err != nil {
		return err
	}
	to, err := ir.ParseAddress(args[1])
	if err != nil {
		return err
	}
	eng, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	if err := eng.Move(cmd.Context(), from, to); err != nil {
		return err
	}
	fmt.Printf("Moved %s to %s.\n", from, to)
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	addr, err := ir.ParseAddress(args[0])
	if err != nil {
		return err
	}
	eng, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	if err := eng.Remove(cmd.Context(), addr); err != nil {
		return err
	}
	fmt.Printf("Removed %s from state. The real object is now unmanaged.\n", addr)
	return nil
}

func runStatePull(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	snap, err := eng.Pull(cmd.Context())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStatePush(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	var snap ir.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", args[0], err)
	}
	eng, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	if err := eng.Push(cmd.Context(), &snap, statePushForce); err != nil {
		return err
	}
	fmt.Printf("State pushed at serial %d.\n", snap.Serial)
	return nil
}

func runStateVersions(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	versioned, ok := eng.Store().Backend().(state.Versioned)
	if !ok {
		return fmt.Errorf("the configured backend does not retain state versions")
	}
	versions, err := versioned.Versions(cmd.Context())
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Println("No state versions retained yet.")
		return nil
	}
	for _, v := range versions {
		fmt.Printf("%-24s serial %-6d %s\n", v.ID, v.Serial, v.Created.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}
