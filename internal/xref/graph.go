// Package xref indexes code and data references of an ARM64 image.
//
// A Graph is filled by a single writer (normally Builder), sealed, and then
// queried concurrently. Queries never rescan memory.
package xref

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zboralski/offscan/internal/memory"
)

// ErrSealed is returned when mutating a sealed graph.
var ErrSealed = errors.New("xref: graph is sealed")

// NodeKind classifies a graph node.
type NodeKind int

const (
	NodeUnknown NodeKind = iota
	NodeFunction
	NodeData
	NodeString
	NodeConstant
	NodeExternal
)

func (k NodeKind) String() string {
	switch k {
	case NodeFunction:
		return "function"
	case NodeData:
		return "data"
	case NodeString:
		return "string"
	case NodeConstant:
		return "constant"
	case NodeExternal:
		return "external"
	}
	return "unknown"
}

// EdgeKind classifies a reference.
type EdgeKind int

const (
	EdgeCall EdgeKind = iota
	EdgeJump
	EdgeReference
	EdgeData
	EdgeString
	EdgeConstant
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeCall:
		return "call"
	case EdgeJump:
		return "jump"
	case EdgeReference:
		return "ref"
	case EdgeData:
		return "data"
	case EdgeString:
		return "string"
	case EdgeConstant:
		return "const"
	}
	return fmt.Sprintf("EdgeKind(%d)", int(k))
}

// IsControlFlow reports whether the edge transfers control.
func (k EdgeKind) IsControlFlow() bool {
	return k == EdgeCall || k == EdgeJump
}

// Node is an addressable entity in the index.
type Node struct {
	Address memory.Address
	Name    string
	Kind    NodeKind
}

// Edge records that the instruction at From references To.
type Edge struct {
	From memory.Address
	To   memory.Address
	Kind EdgeKind
}

// Graph is an append-only reference index with adjacency keyed by address.
type Graph struct {
	nodes  map[memory.Address]Node
	out    map[memory.Address][]Edge
	in     map[memory.Address][]Edge
	edges  int
	sealed bool
}

// NewGraph returns an empty, unsealed graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[memory.Address]Node),
		out:   make(map[memory.Address][]Edge),
		in:    make(map[memory.Address][]Edge),
	}
}

// AddNode registers n. A node already present keeps its kind but takes a
// name if it had none.
func (g *Graph) AddNode(n Node) error {
	if g.sealed {
		return ErrSealed
	}
	if old, ok := g.nodes[n.Address]; ok {
		if old.Name == "" && n.Name != "" {
			old.Name = n.Name
			g.nodes[n.Address] = old
		}
		return nil
	}
	g.nodes[n.Address] = n
	return nil
}

// AddEdge appends e. The endpoints need not have nodes.
func (g *Graph) AddEdge(e Edge) error {
	if g.sealed {
		return ErrSealed
	}
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
	g.edges++
	return nil
}

// Seal ends the construction phase. Later AddNode/AddEdge calls fail.
func (g *Graph) Seal() { g.sealed = true }

// Sealed reports whether construction has ended.
func (g *Graph) Sealed() bool { return g.sealed }

// Node returns the node registered at addr.
func (g *Graph) Node(addr memory.Address) (Node, bool) {
	n, ok := g.nodes[addr]
	return n, ok
}

// ReferencesTo returns the edges whose target is addr. The slice is shared;
// callers must not modify it.
func (g *Graph) ReferencesTo(addr memory.Address) []Edge {
	return g.in[addr]
}

// ReferencesFrom returns the edges whose source is addr. The slice is
// shared; callers must not modify it.
func (g *Graph) ReferencesFrom(addr memory.Address) []Edge {
	return g.out[addr]
}

// Callers returns the sources of control-flow edges into addr.
func (g *Graph) Callers(addr memory.Address) []memory.Address {
	var out []memory.Address
	for _, e := range g.in[addr] {
		if e.Kind.IsControlFlow() {
			out = append(out, e.From)
		}
	}
	return out
}

// Calls reports whether a control-flow edge runs from one address to the
// other.
func (g *Graph) Calls(from, to memory.Address) bool {
	for _, e := range g.out[from] {
		if e.To == to && e.Kind.IsControlFlow() {
			return true
		}
	}
	return false
}

// NodeCount returns the number of registered nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.edges }

// Nodes returns all nodes sorted by address.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Stats summarizes edge kinds.
func (g *Graph) Stats() map[EdgeKind]int {
	st := make(map[EdgeKind]int)
	for _, edges := range g.out {
		for _, e := range edges {
			st[e.Kind]++
		}
	}
	return st
}
