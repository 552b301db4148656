package null

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_TriggersForceReplacement(t *testing.T) {
	p := New()
	ctx := context.Background()

	prior := map[string]any{"triggers": map[string]any{"rev": "1"}, "id": "null-abc"}
	desired := map[string]any{"triggers": map[string]any{"rev": "2"}}

	diff, err := p.Diff(ctx, "null_resource", prior, desired)
	require.NoError(t, err)
	require.Contains(t, diff, "triggers")
	assert.True(t, diff["triggers"].ForcesReplacement)
}

func TestProvider_UnsupportedType(t *testing.T) {
	p := New()
	_, err := p.Schema("mem_object")
	assert.Error(t, err)
}

func TestProvider_ReadEchoesState(t *testing.T) {
	p := New()
	ctx := context.Background()

	id, out, err := p.Create(ctx, "null_resource", map[string]any{"note": "x"})
	require.NoError(t, err)
	assert.Equal(t, id, out["id"])

	exists, attrs, err := p.Read(ctx, "null_resource", id, out)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, out, attrs)
}
