package graph

import (
	"fmt"
	"sort"
)

// Node is a container of parameters. Name is the lookup key used in every
// serialized file and must be unique within a graph.
type Node struct {
	Name       string
	Type       string
	Enabled    bool
	Parameters []*Parameter
}

// NewNode returns an enabled node owning params.
func NewNode(name string, params ...*Parameter) *Node {
	return &Node{Name: name, Enabled: true, Parameters: params}
}

// Parameter finds a parameter by identifier. Returns nil if not found.
func (n *Node) Parameter(id string) *Parameter {
	for _, p := range n.Parameters {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Graph is the parametric node graph of one material.
type Graph struct {
	Name  string
	Nodes []*Node
}

// New returns a graph with the given nodes.
func New(name string, nodes ...*Node) *Graph {
	return &Graph{Name: name, Nodes: nodes}
}

// Loaded reports whether node discovery produced any nodes.
func (g *Graph) Loaded() bool {
	return g != nil && len(g.Nodes) > 0
}

// Node finds a node by name. Returns nil if not found.
func (g *Graph) Node(name string) *Node {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Ref addresses one parameter of one node.
type Ref struct {
	Node  *Node
	Param *Parameter
}

// String returns "node/identifier".
func (r Ref) String() string {
	if r.Node == nil || r.Param == nil {
		return "<nil>"
	}
	return r.Node.Name + "/" + r.Param.ID
}

// Lookup resolves a node name and identifier.
func (g *Graph) Lookup(node, id string) (Ref, error) {
	n := g.Node(node)
	if n == nil {
		return Ref{}, fmt.Errorf("node %q not found", node)
	}
	p := n.Parameter(id)
	if p == nil {
		return Ref{}, fmt.Errorf("parameter %q not found on node %q", id, node)
	}
	return Ref{Node: n, Param: p}, nil
}

// Enabled returns every enabled parameter of every enabled node in
// traversal order.
func (g *Graph) Enabled() []Ref {
	var refs []Ref
	for _, n := range g.Nodes {
		if !n.Enabled {
			continue
		}
		for _, p := range n.Parameters {
			if p.IsEnabled() {
				refs = append(refs, Ref{Node: n, Param: p})
			}
		}
	}
	return refs
}

// EnabledChannelCount counts enabled sub-channels across enabled parameters.
func (g *Graph) EnabledChannelCount() int {
	total := 0
	for _, r := range g.Enabled() {
		total += len(r.Param.EnabledChannels())
	}
	return total
}

// Snapshot maps node name to identifier to serialized value.
type Snapshot map[string]map[string]any

// Snapshot serializes every non-linked parameter of every node, enabled or
// not. Parameters whose kind cannot be serialized are skipped.
func (g *Graph) Snapshot() Snapshot {
	snap := make(Snapshot, len(g.Nodes))
	for _, n := range g.Nodes {
		values := make(map[string]any, len(n.Parameters))
		for _, p := range n.Parameters {
			if p.Linked {
				continue
			}
			v, err := p.JSONValue()
			if err != nil {
				continue
			}
			values[p.ID] = v
		}
		snap[n.Name] = values
	}
	return snap
}

// AsMap converts the snapshot into a plain map[string]any tree.
func (s Snapshot) AsMap() map[string]any {
	out := make(map[string]any, len(s))
	for node, values := range s {
		m := make(map[string]any, len(values))
		for id, v := range values {
			m[id] = v
		}
		out[node] = m
	}
	return out
}

// NodeNames returns the snapshot's node names sorted.
func (s Snapshot) NodeNames() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SnapshotFromMap is the inverse of AsMap for decoded JSON/structpb trees.
func SnapshotFromMap(m map[string]any) (Snapshot, error) {
	snap := make(Snapshot, len(m))
	for node, raw := range m {
		values, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("snapshot node %q: expected object, got %T", node, raw)
		}
		snap[node] = values
	}
	return snap, nil
}

// Apply assigns every value of the snapshot whose node and identifier exist
// in the graph. Mismatches are returned as skipped refs rather than errors.
func (g *Graph) Apply(s Snapshot) (skipped []string) {
	for node, values := range s {
		n := g.Node(node)
		for id, raw := range values {
			if n == nil {
				skipped = append(skipped, node+"/"+id)
				continue
			}
			p := n.Parameter(id)
			if p == nil || p.Linked {
				skipped = append(skipped, node+"/"+id)
				continue
			}
			if err := p.SetJSONValue(raw); err != nil {
				skipped = append(skipped, node+"/"+id)
			}
		}
	}
	sort.Strings(skipped)
	return skipped
}

// Values is a captured set of current values, keyed like a Snapshot.
type Values map[string]map[string]Vec3

// Capture records the current value of every parameter.
func (g *Graph) Capture() Values {
	vals := make(Values, len(g.Nodes))
	for _, n := range g.Nodes {
		m := make(map[string]Vec3, len(n.Parameters))
		for _, p := range n.Parameters {
			m[p.ID] = p.Current
		}
		vals[n.Name] = m
	}
	return vals
}

// Restore re-applies values recorded by Capture.
func (g *Graph) Restore(vals Values) {
	for _, n := range g.Nodes {
		m, ok := vals[n.Name]
		if !ok {
			continue
		}
		for _, p := range n.Parameters {
			if v, ok := m[p.ID]; ok {
				p.Current = v
			}
		}
	}
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{Name: g.Name, Nodes: make([]*Node, len(g.Nodes))}
	for i, n := range g.Nodes {
		cn := &Node{Name: n.Name, Type: n.Type, Enabled: n.Enabled, Parameters: make([]*Parameter, len(n.Parameters))}
		for j, p := range n.Parameters {
			cn.Parameters[j] = p.Clone()
		}
		c.Nodes[i] = cn
	}
	return c
}
