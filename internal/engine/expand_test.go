package engine

import (
	"testing"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_Single(t *testing.T) {
	out, err := Expand([]*ir.Resource{memResource("a", nil)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ir.Addr("mem_object", "a"), out[0].Addr)
}

func TestExpand_Count(t *testing.T) {
	res := memResource("web", map[string]any{"hostname": "web-${count.index}"})
	res.Count = 3

	out, err := Expand([]*ir.Resource{res})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, inst := range out {
		assert.Equal(t, ir.Addr("mem_object", "web").Indexed(i), inst.Addr)
	}
	assert.Equal(t, "web-0", out[0].Attributes["hostname"])
	assert.Equal(t, "web-2", out[2].Attributes["hostname"])

	// Clones must not share attribute maps.
	out[0].Attributes["hostname"] = "mutated"
	assert.Equal(t, "web-1", out[1].Attributes["hostname"])
}

func TestExpand_ForEach(t *testing.T) {
	res := memResource("record", map[string]any{"name": "${each.key}", "target": "${each.value}"})
	res.ForEach = map[string]any{"www": "10.0.0.1", "api": "10.0.0.2"}

	out, err := Expand([]*ir.Resource{res})
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Keys expand in sorted order so plans are stable.
	assert.Equal(t, ir.Addr("mem_object", "record").Keyed("api"), out[0].Addr)
	assert.Equal(t, ir.Addr("mem_object", "record").Keyed("www"), out[1].Addr)
	assert.Equal(t, "api", out[0].Attributes["name"])
	assert.Equal(t, "10.0.0.2", out[0].Attributes["target"])
}

func TestExpand_CountAndForEachConflict(t *testing.T) {
	res := memResource("bad", nil)
	res.Count = 2
	res.ForEach = map[string]any{"x": 1}

	_, err := Expand([]*ir.Resource{res})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestExpand_MissingTypeOrName(t *testing.T) {
	_, err := Expand([]*ir.Resource{{Type: "mem_object", Provider: "mem"}})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestExpand_DuplicateAddress(t *testing.T) {
	_, err := Expand([]*ir.Resource{memResource("a", nil), memResource("a", nil)})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
