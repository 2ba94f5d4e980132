package graph

import "sort"

// Reads below take only the write lock in shared mode, never the run gate, so
// a front end may call them mid-run. Public facades wrap them with ReadGate.

// Node returns the node with id.
func (s *Store) Node(id ID) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nr, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(nr.node), true
}

// NodeByKindName returns the node keyed by (kind, name).
func (s *Store) NodeByKindName(kind, name string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nodeIndex[nodeKey{kind, name}]
	if !ok {
		return Node{}, false
	}
	return cloneNode(s.nodes[id].node), true
}

// NodesByName returns every node with the qualified name, ordered by ID.
func (s *Store) NodesByName(name string) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesLocked(s.byName[name].sorted())
}

// Nodes returns every node ordered by ID. An empty kind matches all kinds.
func (s *Store) Nodes(kind string) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodes))
	for _, nr := range s.nodes {
		if kind == "" || nr.node.Kind == kind {
			out = append(out, cloneNode(nr.node))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) nodesLocked(ids []ID) []Node {
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneNode(s.nodes[id].node))
	}
	return out
}

// Contributors returns the files currently retaining a node or edge, sorted.
func (s *Store) Contributors(id ID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if nr, ok := s.nodes[id]; ok {
		return sortedContributors(nr.contributors)
	}
	if er, ok := s.edges[id]; ok {
		return sortedContributors(er.contributors)
	}
	return nil
}

// Edge returns the edge with id.
func (s *Store) Edge(id ID) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	er, ok := s.edges[id]
	if !ok {
		return Edge{}, false
	}
	return er.edge, true
}

// Edges returns every edge ordered by ID. An empty kind matches all kinds.
func (s *Store) Edges(kind string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edge, 0, len(s.edges))
	for _, er := range s.edges {
		if kind == "" || er.edge.Kind == kind {
			out = append(out, er.edge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EdgesFrom returns the edges whose source is id, ordered by ID.
func (s *Store) EdgesFrom(id ID) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesLocked(s.edgesFrom[id].sorted())
}

// EdgesTo returns the edges whose target is id, ordered by ID.
func (s *Store) EdgesTo(id ID) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesLocked(s.edgesTo[id].sorted())
}

func (s *Store) edgesLocked(ids []ID) []Edge {
	out := make([]Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.edges[id].edge)
	}
	return out
}

// Location returns the location with id.
func (s *Store) Location(id ID) (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[id]
	if !ok {
		return Location{}, false
	}
	return *loc, true
}

// LocationsOf returns every location annotating owner, ordered by ID.
func (s *Store) LocationsOf(owner ID) []Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locationsLocked(s.locByOwn[owner].sorted())
}

// LocationsInFile returns every location in path, ordered by ID.
func (s *Store) LocationsInFile(path string) []Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locationsLocked(s.locByFile[path].sorted())
}

// LocationsAt returns the locations in path whose span contains (line, col),
// narrowest span first.
func (s *Store) LocationsAt(path string, line, col int) []Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Location
	for id := range s.locByFile[path] {
		loc := s.locations[id]
		if loc.Span.Contains(line, col) {
			out = append(out, *loc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		li, ci := out[i].Span.size()
		lj, cj := out[j].Span.size()
		if li != lj {
			return li < lj
		}
		if ci != cj {
			return ci < cj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) locationsLocked(ids []ID) []Location {
	out := make([]Location, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.locations[id])
	}
	return out
}

// Errors returns every error record ordered by ID. An empty path matches all files.
func (s *Store) Errors(path string) []ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ErrorRecord, 0, len(s.errors))
	for _, e := range s.errors {
		if path == "" || e.File == path {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// File returns the record for path.
func (s *Store) File(path string) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[path]
	if !ok {
		return File{}, false
	}
	return rec.export(), true
}

// Files returns every file record ordered by path.
func (s *Store) Files() []File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]File, 0, len(s.files))
	for _, rec := range s.files {
		out = append(out, rec.export())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (r *fileRecord) export() File {
	return File{
		ID:          r.id,
		Path:        r.path,
		Signature:   r.signature,
		Contributed: r.ids.sorted(),
		Sealed:      r.sealed,
	}
}

// KindOf reports what id refers to.
func (s *Store) KindOf(id ID) EntityKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.nodes[id] != nil:
		return EntityNode
	case s.edges[id] != nil:
		return EntityEdge
	case s.locations[id] != nil:
		return EntityLocation
	case s.errors[id] != nil:
		return EntityError
	}
	for _, rec := range s.files {
		if rec.id == id {
			return EntityFile
		}
	}
	return EntityNone
}

// Stats returns entity counts and the last issued ID.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Nodes:     len(s.nodes),
		Edges:     len(s.edges),
		Locations: len(s.locations),
		Errors:    len(s.errors),
		Files:     len(s.files),
		LastID:    s.ids.Peek(),
	}
}

func cloneNode(n Node) Node {
	n.Attributes = copyAttributes(n.Attributes)
	return n
}
