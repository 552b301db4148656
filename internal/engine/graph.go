package engine

import (
	"sort"
	"strings"

	"github.com/statecraft-io/statecraft/internal/ir"
)

// DAG is the dependency graph over expanded resource addresses. Ordering is
// deterministic: Kahn's algorithm with a lexicographically sorted frontier.
type DAG struct {
	nodes map[ir.Address]*dagNode
	order []ir.Address
}

type dagNode struct {
	addr     ir.Address
	edges    []ir.Address // addresses this node depends on
	revEdges []ir.Address // addresses that depend on this node
}

// BuildDAG constructs the dependency graph from expanded resources,
// resolving explicit depends_on entries and implicit ref:// attribute
// references. A depends_on naming an unexpanded base address (type.name)
// depends on every instance of that resource. A reference may also name a
// record that exists only in snap; it creates no edge, but it is not
// dangling. A reference that resolves to neither a desired resource nor a
// recorded one is a fatal ConfigurationError, as is a cycle.
func BuildDAG(resources []*ir.Resource, snap *ir.Snapshot) (*DAG, error) {
	dag := &DAG{nodes: make(map[ir.Address]*dagNode, len(resources))}

	instances := make(map[ir.Address][]ir.Address) // base address -> expanded instances
	for _, res := range resources {
		dag.nodes[res.Addr] = &dagNode{addr: res.Addr}
		base := ir.Addr(res.Addr.Type, res.Addr.Name)
		instances[base] = append(instances[base], res.Addr)
	}

	resolve := func(target ir.Address) []ir.Address {
		if _, ok := dag.nodes[target]; ok {
			return []ir.Address{target}
		}
		if target.Kind == ir.NoIndex {
			return instances[target]
		}
		return nil
	}

	recorded := func(target ir.Address) bool {
		if snap == nil {
			return false
		}
		if snap.Resource(target) != nil {
			return true
		}
		if target.Kind == ir.NoIndex {
			for _, rec := range snap.Resources {
				if rec.Address.Type == target.Type && rec.Address.Name == target.Name {
					return true
				}
			}
		}
		return false
	}

	for _, res := range resources {
		node := dag.nodes[res.Addr]

		for _, dep := range res.DependsOn {
			target, err := ir.ParseAddress(dep)
			if err != nil {
				return nil, configErrorf("resource %s: bad depends_on entry: %v", res.Addr, err)
			}
			targets := resolve(target)
			if len(targets) == 0 && !recorded(target) {
				return nil, configErrorf("resource %s: depends_on references undeclared resource %s", res.Addr, target)
			}
			for _, addr := range targets {
				if addr != res.Addr {
					node.edges = append(node.edges, addr)
				}
			}
		}

		for _, ref := range ExtractRefs(res.Attributes) {
			target, _, err := ParseRef(ref)
			if err != nil {
				return nil, configErrorf("resource %s: %v", res.Addr, err)
			}
			targets := resolve(target)
			if len(targets) == 0 && !recorded(target) {
				return nil, configErrorf("resource %s: reference to undeclared resource %s", res.Addr, target)
			}
			for _, addr := range targets {
				if addr != res.Addr {
					node.edges = append(node.edges, addr)
				}
			}
		}

		node.edges = dedupe(node.edges)
	}

	for addr, node := range dag.nodes {
		for _, dep := range node.edges {
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, addr)
		}
	}

	order, err := dag.topoSort()
	if err != nil {
		return nil, err
	}
	dag.order = order
	return dag, nil
}

// Order returns addresses in dependency-respecting creation order.
func (d *DAG) Order() []ir.Address {
	return d.order
}

// Dependencies returns the direct dependencies of addr.
func (d *DAG) Dependencies(addr ir.Address) []ir.Address {
	if node, ok := d.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// TransitiveDeps returns every address addr transitively depends on.
func (d *DAG) TransitiveDeps(addr ir.Address) []ir.Address {
	seen := make(map[ir.Address]bool)
	var walk func(a ir.Address)
	walk = func(a ir.Address) {
		node, ok := d.nodes[a]
		if !ok {
			return
		}
		for _, dep := range node.edges {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(addr)
	out := make([]ir.Address, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sortAddrs(out)
	return out
}

// topoSort runs Kahn's algorithm with a sorted frontier so the result is
// stable across runs.
func (d *DAG) topoSort() ([]ir.Address, error) {
	inDegree := make(map[ir.Address]int, len(d.nodes))
	for addr, node := range d.nodes {
		inDegree[addr] = len(node.edges)
	}

	var frontier []ir.Address
	for addr, deg := range inDegree {
		if deg == 0 {
			frontier = append(frontier, addr)
		}
	}
	sortAddrs(frontier)

	var sorted []ir.Address
	for len(frontier) > 0 {
		addr := frontier[0]
		frontier = frontier[1:]
		sorted = append(sorted, addr)

		var released []ir.Address
		for _, dependent := range d.nodes[addr].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		sortAddrs(released)
		frontier = append(frontier, released...)
	}

	if len(sorted) != len(d.nodes) {
		var stuck []string
		for addr, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, addr.String())
			}
		}
		sort.Strings(stuck)
		return nil, configErrorf("dependency cycle detected involving: %s", strings.Join(stuck, ", "))
	}
	return sorted, nil
}

// refPrefix marks a string attribute value as a reference to another
// resource's attribute: ref://<address>/<attribute>. References create
// implicit dependency edges and are resolved against live state during
// apply.
const refPrefix = "ref://"

// ExtractRefs walks a value and collects every ref:// string in it.
func ExtractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, refPrefix) {
			refs = append(refs, val)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			refs = append(refs, ExtractRefs(val[k])...)
		}
	case []any:
		for _, item := range val {
			refs = append(refs, ExtractRefs(item)...)
		}
	}
	return refs
}

// ParseRef splits ref://<address>/<attribute> into its parts.
func ParseRef(ref string) (ir.Address, string, error) {
	var zero ir.Address
	if !strings.HasPrefix(ref, refPrefix) {
		return zero, "", configErrorf("not a reference: %q", ref)
	}
	rest := ref[len(refPrefix):]
	slash := strings.LastIndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return zero, "", configErrorf("malformed reference %q: expected ref://address/attribute", ref)
	}
	addr, err := ir.ParseAddress(rest[:slash])
	if err != nil {
		return zero, "", configErrorf("malformed reference %q: %v", ref, err)
	}
	return addr, rest[slash+1:], nil
}

func dedupe(addrs []ir.Address) []ir.Address {
	seen := make(map[ir.Address]bool, len(addrs))
	var out []ir.Address
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func sortAddrs(addrs []ir.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].String() < addrs[j].String()
	})
}
