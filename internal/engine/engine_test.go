package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/provider"
	"github.com/statecraft-io/statecraft/internal/state"
	sdk "github.com/statecraft-io/statecraft/pkg/provider"
	"github.com/statecraft-io/statecraft/providers/mem"
	"github.com/stretchr/testify/require"
)

// newTestEngine wires an engine against a throwaway local backend. Lock
// waiting is disabled so contention bugs fail fast instead of stalling the
// test.
func newTestEngine(t *testing.T) (*Engine, *provider.Registry) {
	t.Helper()
	backend := state.NewLocalBackend(filepath.Join(t.TempDir(), "state.json"))
	reg := provider.NewRegistry()
	eng := New(reg, state.NewStore(backend), state.NewLockManager(backend))
	eng.LockTimeout = 0
	return eng, reg
}

func memResource(name string, attrs map[string]any) *ir.Resource {
	return &ir.Resource{
		Type:       "mem_object",
		Name:       name,
		Provider:   "mem",
		Attributes: attrs,
	}
}

func graphOf(resources ...*ir.Resource) *ir.Graph {
	return &ir.Graph{Resources: resources}
}

// failingReadProvider refuses every read, for exercising refresh failure
// paths.
type failingReadProvider struct{}

func (p *failingReadProvider) Schema(typ string) (sdk.Schema, error) {
	return sdk.Schema{Computed: []string{"id"}}, nil
}

func (p *failingReadProvider) Diff(ctx context.Context, typ string, prior, desired map[string]any) (map[string]*ir.AttributeDiff, error) {
	schema, _ := p.Schema(typ)
	return sdk.DefaultDiff(schema, prior, desired), nil
}

func (p *failingReadProvider) Create(ctx context.Context, typ string, attrs map[string]any) (string, map[string]any, error) {
	return "", nil, errors.New("mem: backend unreachable")
}

func (p *failingReadProvider) Read(ctx context.Context, typ, id string, current map[string]any) (bool, map[string]any, error) {
	return false, nil, errors.New("mem: backend unreachable")
}

func (p *failingReadProvider) Update(ctx context.Context, typ, id string, attrs map[string]any) (map[string]any, error) {
	return nil, errors.New("mem: backend unreachable")
}

func (p *failingReadProvider) Delete(ctx context.Context, typ, id string) error {
	return errors.New("mem: backend unreachable")
}

// recordingProvider wraps the mem provider and records the order of
// mutating calls, for asserting replace ordering.
type recordingProvider struct {
	*mem.Provider
	mu  sync.Mutex
	ops []string
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{Provider: mem.New()}
}

func (p *recordingProvider) record(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
}

func (p *recordingProvider) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.ops...)
}

func (p *recordingProvider) Create(ctx context.Context, typ string, attrs map[string]any) (string, map[string]any, error) {
	id, out, err := p.Provider.Create(ctx, typ, attrs)
	if err == nil {
		p.record("create " + id)
	}
	return id, out, err
}

func (p *recordingProvider) Update(ctx context.Context, typ, id string, attrs map[string]any) (map[string]any, error) {
	p.record("update " + id)
	return p.Provider.Update(ctx, typ, id, attrs)
}

func (p *recordingProvider) Delete(ctx context.Context, typ, id string) error {
	p.record("delete " + id)
	return p.Provider.Delete(ctx, typ, id)
}

// unlockFailingBackend swallows the lock record so releasing always fails.
type unlockFailingBackend struct {
	state.Backend
}

func (b *unlockFailingBackend) Unlock(ctx context.Context, id string, force bool) error {
	return errors.New("lock record gone")
}

func TestEngine_ReleaseFailureDoesNotFailOperation(t *testing.T) {
	backend := &unlockFailingBackend{Backend: state.NewLocalBackend(filepath.Join(t.TempDir(), "state.json"))}
	eng := New(provider.NewRegistry(), state.NewStore(backend), state.NewLockManager(backend))
	eng.LockTimeout = 0

	// The work itself succeeded; a failed release is logged, not surfaced.
	_, err := eng.Refresh(context.Background())
	require.NoError(t, err)
}

// opKinds strips the object ids from recorded operations.
func opKinds(ops []string) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = strings.Fields(op)[0]
	}
	return out
}
