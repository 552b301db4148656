// Package mem implements an in-memory provider backed by a real (process
// local) object store. Unlike null, objects have live attributes that can be
// read back, drifted and imported, which is what the refresher and the
// import operation exercise in tests and local experiments.
package mem

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/pkg/provider"
)

type object struct {
	typ   string
	attrs map[string]any
}

// Provider stores objects keyed by their generated id.
type Provider struct {
	mu      sync.Mutex
	objects map[string]*object
}

func New() *Provider {
	return &Provider{objects: make(map[string]*object)}
}

func (p *Provider) Schema(typ string) (provider.Schema, error) {
	return provider.Schema{
		RequiresReplacement: []string{"zone"},
		Computed:            []string{"id"},
	}, nil
}

func (p *Provider) Diff(ctx context.Context, typ string, prior, desired map[string]any) (map[string]*ir.AttributeDiff, error) {
	schema, err := p.Schema(typ)
	if err != nil {
		return nil, err
	}
	return provider.DefaultDiff(schema, prior, desired), nil
}

func (p *Provider) Create(ctx context.Context, typ string, attrs map[string]any) (string, map[string]any, error) {
	if fail, ok := attrs["fail_create"].(bool); ok && fail {
		return "", nil, fmt.Errorf("mem: create refused for type %s", typ)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := "mem-" + uuid.NewString()[:8]
	stored := ir.CopyAttributes(attrs)
	if stored == nil {
		stored = map[string]any{}
	}
	stored["id"] = id
	p.objects[id] = &object{typ: typ, attrs: stored}
	return id, ir.CopyAttributes(stored), nil
}

func (p *Provider) Read(ctx context.Context, typ, id string, current map[string]any) (bool, map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	obj, ok := p.objects[id]
	if !ok {
		return false, nil, nil
	}
	return true, ir.CopyAttributes(obj.attrs), nil
}

func (p *Provider) Update(ctx context.Context, typ, id string, attrs map[string]any) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	obj, ok := p.objects[id]
	if !ok {
		return nil, fmt.Errorf("mem: object %s not found", id)
	}
	stored := ir.CopyAttributes(attrs)
	if stored == nil {
		stored = map[string]any{}
	}
	stored["id"] = id
	obj.attrs = stored
	return ir.CopyAttributes(stored), nil
}

func (p *Provider) Delete(ctx context.Context, typ, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, id)
	return nil
}

// Seed inserts an object directly, bypassing Create. Used to model
// infrastructure that exists before it is imported.
func (p *Provider) Seed(id, typ string, attrs map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored := ir.CopyAttributes(attrs)
	if stored == nil {
		stored = map[string]any{}
	}
	stored["id"] = id
	p.objects[id] = &object{typ: typ, attrs: stored}
}

// Drift mutates a live attribute out-of-band, simulating a change made
// outside the engine.
func (p *Provider) Drift(id, key string, value any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objects[id]
	if !ok {
		return false
	}
	obj.attrs[key] = value
	return true
}

// Destroy removes a live object out-of-band.
func (p *Provider) Destroy(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, id)
}
