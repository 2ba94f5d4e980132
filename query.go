package thicket

import (
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar"

	"github.com/jward/thicket/internal/graph"
)

// GraphView is the read-only query surface over nodes and edges. Every method
// holds the store's run gate in shared mode, so queries run concurrently with
// each other and wait while a run is invalidating or parsing.
type GraphView struct {
	store *graph.Store
}

// NewGraphView wraps s. Engines hand out views through Engine.Graph.
func NewGraphView(s *graph.Store) GraphView {
	return GraphView{store: s}
}

// Node looks a node up by id.
func (v GraphView) Node(id ID) (Node, bool) {
	defer v.store.ReadGate()()
	return v.store.Node(id)
}

// NodeByName looks a node up by kind and fully qualified name.
func (v GraphView) NodeByName(kind, name string) (Node, bool) {
	defer v.store.ReadGate()()
	return v.store.NodeByKindName(kind, name)
}

// NodesNamed returns every node called name, whatever its kind.
func (v GraphView) NodesNamed(name string) []Node {
	defer v.store.ReadGate()()
	return v.store.NodesByName(name)
}

// Nodes returns every node of kind; an empty kind means all nodes.
func (v GraphView) Nodes(kind string) []Node {
	defer v.store.ReadGate()()
	return v.store.Nodes(kind)
}

// Edge looks an edge up by id.
func (v GraphView) Edge(id ID) (Edge, bool) {
	defer v.store.ReadGate()()
	return v.store.Edge(id)
}

// Edges returns every edge of kind; an empty kind means all edges.
func (v GraphView) Edges(kind string) []Edge {
	defer v.store.ReadGate()()
	return v.store.Edges(kind)
}

// EdgesFrom returns the outgoing edges of a node.
func (v GraphView) EdgesFrom(id ID) []Edge {
	defer v.store.ReadGate()()
	return v.store.EdgesFrom(id)
}

// EdgesTo returns the incoming edges of a node.
func (v GraphView) EdgesTo(id ID) []Edge {
	defer v.store.ReadGate()()
	return v.store.EdgesTo(id)
}

// Contributors returns the files that currently retain a node or edge.
func (v GraphView) Contributors(id ID) []string {
	defer v.store.ReadGate()()
	return v.store.Contributors(id)
}

// Stats summarises the graph.
func (v GraphView) Stats() Stats {
	defer v.store.ReadGate()()
	return v.store.Stats()
}

// --- Search ---

// Pagination controls offset+limit paging on search results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// PagedResult wraps a page of results with the total match count.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int
}

// Find performs glob search on qualified names, optionally restricted to
// kinds. '*' matches within one '/'-separated segment and '**' across
// segments; an empty pattern matches everything. Results are ordered by name,
// then kind.
func (v GraphView) Find(pattern string, kinds []string, page Pagination) (*PagedResult[Node], error) {
	page = page.normalize()
	wantKind := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		wantKind[k] = true
	}

	release := v.store.ReadGate()
	all := v.store.Nodes("")
	release()

	var matches []Node
	for _, n := range all {
		if len(wantKind) > 0 && !wantKind[n.Kind] {
			continue
		}
		if pattern != "" {
			ok, err := doublestar.Match(pattern, n.Name)
			if err != nil {
				return nil, fmt.Errorf("find: pattern %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		matches = append(matches, n)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Name != matches[j].Name {
			return matches[i].Name < matches[j].Name
		}
		return matches[i].Kind < matches[j].Kind
	})

	items := []Node{}
	if page.Offset < len(matches) {
		end := min(page.Offset+page.Limit, len(matches))
		items = matches[page.Offset:end]
	}
	return &PagedResult[Node]{Items: items, TotalCount: len(matches)}, nil
}

// --- Detail ---

// NodeDetail bundles a node with its edges, locations and contributors. One
// call replaces four separate lookups.
type NodeDetail struct {
	Node         Node
	Outgoing     []Edge
	Incoming     []Edge
	Locations    []Location
	Contributors []string
}

// Detail returns the NodeDetail for id, or false if no such node exists.
func (v GraphView) Detail(id ID) (*NodeDetail, bool) {
	defer v.store.ReadGate()()
	n, ok := v.store.Node(id)
	if !ok {
		return nil, false
	}
	d := &NodeDetail{
		Node:         n,
		Outgoing:     v.store.EdgesFrom(id),
		Incoming:     v.store.EdgesTo(id),
		Locations:    v.store.LocationsOf(id),
		Contributors: v.store.Contributors(id),
	}
	return d, true
}

// --- Traversal ---

// Direction selects which edges a traversal follows.
type Direction int

const (
	Outgoing Direction = iota // source -> target
	Incoming                  // target -> source
)

// maxTraversalDepth caps Reachable.
const maxTraversalDepth = 100

// Subgraph is the part of the graph reachable from a root.
type Subgraph struct {
	Root  ID
	Nodes []ReachedNode // root first, then by depth and id
	Edges []Edge        // edges between reached nodes that the walk followed, by id
	Depth int           // deepest level reached (may be < maxDepth if the graph is shallow)
}

// ReachedNode is a node with its distance from the root.
type ReachedNode struct {
	Node  Node
	Depth int
}

// Reachable walks edges of the given kinds (all kinds when empty) from root
// breadth-first up to maxDepth. maxDepth of 0 returns only the root; it is
// capped at 100. Returns nil, nil if root is not a node.
func (v GraphView) Reachable(root ID, dir Direction, kinds []string, maxDepth int) (*Subgraph, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("reachable: maxDepth must be non-negative, got %d", maxDepth)
	}
	maxDepth = min(maxDepth, maxTraversalDepth)
	wantKind := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		wantKind[k] = true
	}

	defer v.store.ReadGate()()
	rootNode, ok := v.store.Node(root)
	if !ok {
		return nil, nil
	}

	result := &Subgraph{Root: root}
	visited := map[ID]int{root: 0}
	edgeSeen := make(map[ID]bool)
	type bfsEntry struct {
		id    ID
		depth int
	}
	queue := []bfsEntry{{id: root, depth: 0}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= maxDepth {
			continue
		}

		var edges []Edge
		if dir == Outgoing {
			edges = v.store.EdgesFrom(current.id)
		} else {
			edges = v.store.EdgesTo(current.id)
		}
		for _, e := range edges {
			if len(wantKind) > 0 && !wantKind[e.Kind] {
				continue
			}
			next := e.TargetID
			if dir == Incoming {
				next = e.SourceID
			}
			if !edgeSeen[e.ID] {
				edgeSeen[e.ID] = true
				result.Edges = append(result.Edges, e)
			}
			if _, seen := visited[next]; seen {
				continue
			}
			depth := current.depth + 1
			visited[next] = depth
			result.Depth = max(result.Depth, depth)
			queue = append(queue, bfsEntry{id: next, depth: depth})
		}
	}

	result.Nodes = append(result.Nodes, ReachedNode{Node: rootNode, Depth: 0})
	var rest []ReachedNode
	for id, depth := range visited {
		if id == root {
			continue
		}
		if n, ok := v.store.Node(id); ok {
			rest = append(rest, ReachedNode{Node: n, Depth: depth})
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Depth != rest[j].Depth {
			return rest[i].Depth < rest[j].Depth
		}
		return rest[i].Node.ID < rest[j].Node.ID
	})
	result.Nodes = append(result.Nodes, rest...)
	sort.Slice(result.Edges, func(i, j int) bool { return result.Edges[i].ID < result.Edges[j].ID })
	if result.Edges == nil {
		result.Edges = []Edge{}
	}
	return result, nil
}
