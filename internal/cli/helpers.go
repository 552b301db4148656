package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/statecraft-io/statecraft/internal/engine"
	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/provider"
	"github.com/statecraft-io/statecraft/internal/state"
)

const (
	workspaceDir     = ".statecraft"
	defaultGraphFile = "graph.yaml"

	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

// loadBackendConfig reads .statecraft/backend.json from the working
// directory, falling back to a local JSON state file when no backend has
// been configured.
func loadBackendConfig(wd string) (*state.BackendConfig, error) {
	path := filepath.Join(wd, workspaceDir, "backend.json")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &state.BackendConfig{
			Type:   "local",
			Config: map[string]string{"path": filepath.Join(wd, workspaceDir, "state.json")},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backend config: %w", err)
	}
	var cfg state.BackendConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse backend config %s: %w", path, err)
	}
	return &cfg, nil
}

// newEngine wires up registry, backend, store and lock manager for the
// current working directory.
func newEngine(ctx context.Context) (*engine.Engine, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := loadBackendConfig(wd)
	if err != nil {
		return nil, err
	}
	backend, err := state.NewBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state backend: %w", err)
	}
	store := state.NewStore(backend)
	locks := state.NewLockManager(backend)
	return engine.New(provider.NewRegistry(), store, locks), nil
}

// loadGraph parses a desired-state graph file. Resource addresses are
// derived later, during expansion.
func loadGraph(path string) (*ir.Graph, error) {
	if path == "" {
		path = defaultGraphFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file %s: %w", path, err)
	}
	var graph ir.Graph
	if err := yaml.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("failed to parse graph file %s: %w", path, err)
	}
	return &graph, nil
}

// renderPlan prints the plan's changes and summary in apply order.
func renderPlan(plan *ir.Plan) {
	if !plan.Changes() {
		fmt.Println("No changes. Recorded state matches the desired graph.")
		return
	}

	fmt.Println("Statecraft will perform the following actions:")
	fmt.Println()
	for _, action := range plan.Actions {
		var symbol, color string
		switch action.Kind {
		case ir.ActionCreate:
			symbol, color = "+", colorGreen
		case ir.ActionDestroy:
			symbol, color = "-", colorRed
		case ir.ActionReplace:
			symbol, color = "-/+", colorRed
		case ir.ActionUpdate:
			symbol, color = "~", colorYellow
		default:
			continue
		}
		fmt.Printf("  %s%-3s%s %s\n", color, symbol, colorReset, action.Address)
		renderDiff(action)
	}

	fmt.Printf("\nPlan: %d to create, %d to update, %d to replace, %d to destroy.\n",
		plan.Summary.Create, plan.Summary.Update, plan.Summary.Replace, plan.Summary.Destroy)

	for _, warning := range plan.Warnings {
		fmt.Printf("\n%sWarning:%s %s\n", colorYellow, colorReset, warning)
	}
}

func renderDiff(action *ir.Action) {
	keys := make([]string, 0, len(action.Diff))
	for k := range action.Diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		d := action.Diff[k]
		switch {
		case d.Computed:
			fmt.Printf("        %s: %v\n", k, d.After)
		case action.Kind == ir.ActionCreate:
			fmt.Printf("        %s: %v\n", k, d.After)
		case action.Kind == ir.ActionDestroy:
			fmt.Printf("        %s: %v -> (destroyed)\n", k, d.Before)
		case d.ForcesReplacement:
			fmt.Printf("        %s: %v -> %v (forces replacement)\n", k, d.Before, d.After)
		default:
			fmt.Printf("        %s: %v -> %v\n", k, d.Before, d.After)
		}
	}
}

// confirm asks the user for a yes/no answer on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s\n  Only 'yes' will be accepted: ", prompt)
	var answer string
	fmt.Scanln(&answer)
	return answer == "yes"
}
