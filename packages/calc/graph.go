package calc

import (
	"slices"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// CycleError is a circular chain of formula references. the path starts
// and ends at the same location.
type CycleError struct {
	Path []grid.Location
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Path))
	for i, loc := range e.Path {
		names[i] = loc.String()
	}
	return strings.Join(names, " -> ")
}

// From returns the same cycle walked from loc back to loc. locations not on
// the cycle get the path unchanged.
func (e *CycleError) From(loc grid.Location) *CycleError {
	if len(e.Path) < 2 {
		return e
	}
	ring := e.Path[:len(e.Path)-1]
	idx := slices.Index(ring, loc)
	if idx < 0 {
		return e
	}
	path := make([]grid.Location, 0, len(e.Path))
	path = append(path, ring[idx:]...)
	path = append(path, ring[:idx]...)
	path = append(path, loc)
	return &CycleError{Path: path}
}

// DependencyNode is a formula cell in the graph
type DependencyNode struct {
	Location grid.Location

	Precedents map[grid.Location]struct{} // formula cells this cell reads
	Dependents map[grid.Location]struct{} // formula cells reading this cell
}

// DependencyGraph holds the formula cells of one evaluation pass, minus the
// cells caught in cycles
type DependencyGraph struct {
	nodes map[grid.Location]*DependencyNode

	// Cycles lists every cycle cell in location order, each with the
	// shortest cycle walked from its own location
	Cycles []CellCycle
}

// CellCycle pairs a cycle cell with its error
type CellCycle struct {
	Location grid.Location
	Err      *CycleError
}

// NewDependencyGraph creates an empty graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{nodes: make(map[grid.Location]*DependencyNode)}
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(loc grid.Location) *DependencyNode {
	if node, ok := dg.nodes[loc]; ok {
		return node
	}
	node := &DependencyNode{
		Location:   loc,
		Precedents: make(map[grid.Location]struct{}),
		Dependents: make(map[grid.Location]struct{}),
	}
	dg.nodes[loc] = node
	return node
}

// GetNode retrieves a node if it exists
func (dg *DependencyGraph) GetNode(loc grid.Location) (*DependencyNode, bool) {
	node, ok := dg.nodes[loc]
	return node, ok
}

// AddDependency records that from reads to
func (dg *DependencyGraph) AddDependency(from, to grid.Location) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)
	fromNode.Precedents[to] = struct{}{}
	toNode.Dependents[from] = struct{}{}
}

// GetDirectPrecedents returns the cells loc reads, in location order
func (dg *DependencyGraph) GetDirectPrecedents(loc grid.Location) []grid.Location {
	node, ok := dg.nodes[loc]
	if !ok {
		return nil
	}
	return sortedKeys(node.Precedents)
}

// GetDirectDependents returns the cells reading loc, in location order
func (dg *DependencyGraph) GetDirectDependents(loc grid.Location) []grid.Location {
	node, ok := dg.nodes[loc]
	if !ok {
		return nil
	}
	return sortedKeys(node.Dependents)
}

// NodeCount returns the number of nodes in the graph
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// Layers partitions the graph so that every cell comes after all of its
// precedents. cells within one layer never depend on each other. each
// layer is sorted by column, then row.
func (dg *DependencyGraph) Layers() [][]grid.Location {
	remaining := make(map[grid.Location]int, len(dg.nodes))
	var current []grid.Location
	for loc, node := range dg.nodes {
		remaining[loc] = len(node.Precedents)
		if len(node.Precedents) == 0 {
			current = append(current, loc)
		}
	}

	var layers [][]grid.Location
	for len(current) > 0 {
		slices.SortFunc(current, compareLocations)
		layers = append(layers, current)

		var next []grid.Location
		for _, loc := range current {
			for dep := range dg.nodes[loc].Dependents {
				remaining[dep]--
				if remaining[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}
	return layers
}

func sortedKeys(set map[grid.Location]struct{}) []grid.Location {
	out := make([]grid.Location, 0, len(set))
	for loc := range set {
		out = append(out, loc)
	}
	slices.SortFunc(out, compareLocations)
	return out
}

func compareLocations(a, b grid.Location) int {
	if a.Col != b.Col {
		return a.Col - b.Col
	}
	return a.Row - b.Row
}

// BuildDependencyGraph collects the formula cells of ws, compiling any that
// have no compiled form yet. cells on a cycle, meaning every member of a
// strongly connected component with more than one cell and every cell
// reading itself, go to Cycles. the rest join the graph, with an edge
// towards each formula cell they read that is not on a cycle.
func BuildDependencyGraph(ws *grid.Worksheet, compile func(*grid.Cell)) *DependencyGraph {
	var formulas []grid.Location
	for _, loc := range ws.Locations() {
		cell, ok := ws.Lookup(loc)
		if !ok {
			continue
		}
		if strings.HasPrefix(cell.Formula(), "=") && cell.PythonFormula() == "" {
			compile(cell)
		}
		if cell.PythonFormula() != "" {
			formulas = append(formulas, loc)
		}
	}

	edges := make(map[grid.Location][]grid.Location, len(formulas))
	for _, loc := range formulas {
		var deps []grid.Location
		for _, dep := range ws.Get(loc).Dependencies() {
			if cell, ok := ws.Lookup(dep); ok && cell.PythonFormula() != "" {
				deps = append(deps, dep)
			}
		}
		slices.SortFunc(deps, compareLocations)
		edges[loc] = slices.Compact(deps)
	}

	onCycle := make(map[grid.Location]map[grid.Location]bool)
	for _, component := range stronglyConnected(formulas, edges) {
		if len(component) == 1 && !slices.Contains(edges[component[0]], component[0]) {
			continue
		}
		members := make(map[grid.Location]bool, len(component))
		for _, loc := range component {
			members[loc] = true
			onCycle[loc] = members
		}
	}

	graph := NewDependencyGraph()
	for _, loc := range formulas {
		if members, ok := onCycle[loc]; ok {
			graph.Cycles = append(graph.Cycles, CellCycle{
				Location: loc,
				Err:      &CycleError{Path: shortestCycle(loc, edges, members)},
			})
			continue
		}
		graph.GetOrCreateNode(loc)
		for _, dep := range edges[loc] {
			if _, ok := onCycle[dep]; !ok {
				graph.AddDependency(loc, dep)
			}
		}
	}
	return graph
}

// stronglyConnected returns the strongly connected components of the graph
// given by edges (Tarjan)
func stronglyConnected(nodes []grid.Location, edges map[grid.Location][]grid.Location) [][]grid.Location {
	t := &tarjan{
		edges:   edges,
		index:   make(map[grid.Location]int, len(nodes)),
		low:     make(map[grid.Location]int, len(nodes)),
		onStack: make(map[grid.Location]bool),
	}
	for _, loc := range nodes {
		if _, seen := t.index[loc]; !seen {
			t.connect(loc)
		}
	}
	return t.components
}

type tarjan struct {
	edges      map[grid.Location][]grid.Location
	next       int
	index      map[grid.Location]int
	low        map[grid.Location]int
	stack      []grid.Location
	onStack    map[grid.Location]bool
	components [][]grid.Location
}

func (t *tarjan) connect(v grid.Location) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.edges[v] {
		if _, seen := t.index[w]; !seen {
			t.connect(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.onStack[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}

	if t.low[v] != t.index[v] {
		return
	}
	var component []grid.Location
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		delete(t.onStack, w)
		component = append(component, w)
		if w == v {
			break
		}
	}
	t.components = append(t.components, component)
}

// shortestCycle walks breadth first from loc through members until it gets
// back to loc. the path starts and ends at loc.
func shortestCycle(loc grid.Location, edges map[grid.Location][]grid.Location, members map[grid.Location]bool) []grid.Location {
	prev := make(map[grid.Location]grid.Location)
	queue := []grid.Location{loc}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range edges[v] {
			if !members[w] {
				continue
			}
			if w == loc {
				var back []grid.Location
				for x := v; x != loc; x = prev[x] {
					back = append(back, x)
				}
				slices.Reverse(back)
				path := append([]grid.Location{loc}, back...)
				return append(path, loc)
			}
			if _, seen := prev[w]; seen {
				continue
			}
			prev[w] = v
			queue = append(queue, w)
		}
	}
	return []grid.Location{loc, loc}
}
