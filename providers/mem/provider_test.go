package mem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Lifecycle(t *testing.T) {
	p := New()
	ctx := context.Background()

	id, out, err := p.Create(ctx, "mem_object", map[string]any{"size": "small"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, out["id"])

	exists, attrs, err := p.Read(ctx, "mem_object", id, nil)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "small", attrs["size"])

	out, err = p.Update(ctx, "mem_object", id, map[string]any{"size": "large"})
	require.NoError(t, err)
	assert.Equal(t, "large", out["size"])
	assert.Equal(t, id, out["id"], "update never changes the id")

	require.NoError(t, p.Delete(ctx, "mem_object", id))
	exists, _, err = p.Read(ctx, "mem_object", id, nil)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProvider_CreateFailureInjection(t *testing.T) {
	p := New()
	_, _, err := p.Create(context.Background(), "mem_object", map[string]any{"fail_create": true})
	require.Error(t, err)
}

func TestProvider_OutOfBandHelpers(t *testing.T) {
	p := New()
	ctx := context.Background()

	p.Seed("mem-ext", "mem_object", map[string]any{"size": "small"})
	exists, attrs, err := p.Read(ctx, "mem_object", "mem-ext", nil)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "small", attrs["size"])

	require.True(t, p.Drift("mem-ext", "size", "huge"))
	_, attrs, err = p.Read(ctx, "mem_object", "mem-ext", nil)
	require.NoError(t, err)
	assert.Equal(t, "huge", attrs["size"])
	assert.False(t, p.Drift("mem-missing", "size", "x"))

	p.Destroy("mem-ext")
	exists, _, err = p.Read(ctx, "mem_object", "mem-ext", nil)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProvider_ReadReturnsACopy(t *testing.T) {
	p := New()
	ctx := context.Background()

	id, _, err := p.Create(ctx, "mem_object", map[string]any{"size": "small"})
	require.NoError(t, err)

	_, attrs, err := p.Read(ctx, "mem_object", id, nil)
	require.NoError(t, err)
	attrs["size"] = "mutated"

	_, again, err := p.Read(ctx, "mem_object", id, nil)
	require.NoError(t, err)
	assert.Equal(t, "small", again["size"])
}
