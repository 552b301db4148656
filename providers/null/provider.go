// Package null implements a provider that manages nothing. Its resources
// exist only in state, which makes it useful for wiring dependencies and for
// tests. Changing the triggers attribute forces a replace.
package null

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/pkg/provider"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Schema(typ string) (provider.Schema, error) {
	if typ != "null_resource" {
		return provider.Schema{}, fmt.Errorf("null provider does not support type %q", typ)
	}
	return provider.Schema{
		RequiresReplacement: []string{"triggers"},
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
	if _, err := p.Schema(typ); err != nil {
		return "", nil, err
	}
	id := "null-" + uuid.NewString()[:8]
	result := ir.CopyAttributes(attrs)
	if result == nil {
		result = map[string]any{}
	}
	result["id"] = id
	return id, result, nil
}

func (p *Provider) Read(ctx context.Context, typ, id string, current map[string]any) (bool, map[string]any, error) {
	// Nothing real backs a null resource; whatever state records is reality.
	return true, ir.CopyAttributes(current), nil
}

func (p *Provider) Update(ctx context.Context, typ, id string, attrs map[string]any) (map[string]any, error) {
	result := ir.CopyAttributes(attrs)
	if result == nil {
		result = map[string]any{}
	}
	result["id"] = id
	return result, nil
}

func (p *Provider) Delete(ctx context.Context, typ, id string) error {
	return nil
}
