package graph

import (
	"fmt"
	"sort"
)

// Snapshot is a complete, deterministic copy of a Store generation. Every
// slice is sorted, so two snapshots of equal stores compare equal.
type Snapshot struct {
	LastID        ID
	Files         []File
	Nodes         []Node
	Attributes    []Attribute
	Edges         []Edge
	Locations     []Location
	Errors        []ErrorRecord
	Contributions []Contribution
}

// Attribute is one key of one file's attribute map for a node.
type Attribute struct {
	NodeID ID
	File   string
	Key    string
	Value  string
}

// Contribution records that File retains the node or edge EntityID.
type Contribution struct {
	EntityID ID
	File     string
}

// Snapshot copies the current generation.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() *Snapshot {
	snap := &Snapshot{LastID: s.ids.Peek()}

	for _, rec := range s.files {
		snap.Files = append(snap.Files, rec.export())
	}
	for id, nr := range s.nodes {
		snap.Nodes = append(snap.Nodes, cloneNode(nr.node))
		for file, attrs := range nr.attrsByFile {
			for k, v := range attrs {
				snap.Attributes = append(snap.Attributes, Attribute{NodeID: id, File: file, Key: k, Value: v})
			}
		}
		for file := range nr.contributors {
			snap.Contributions = append(snap.Contributions, Contribution{EntityID: id, File: file})
		}
	}
	for id, er := range s.edges {
		snap.Edges = append(snap.Edges, er.edge)
		for file := range er.contributors {
			snap.Contributions = append(snap.Contributions, Contribution{EntityID: id, File: file})
		}
	}
	for _, loc := range s.locations {
		snap.Locations = append(snap.Locations, *loc)
	}
	for _, e := range s.errors {
		snap.Errors = append(snap.Errors, *e)
	}
	snap.sortRows()
	return snap
}

// Delta holds what changed since the previous Commit. Paths and Entities
// name the files and the nodes or edges whose rows must be replaced; Rows
// carries their current rows. A path or entity with no row was removed.
type Delta struct {
	Paths    []string
	Entities []ID
	Rows     *Snapshot
}

// deltaLocked builds a Delta from the dirty sets. Per-file rows (file
// record, attributes, contributions, locations, errors) come from each dirty
// file's contributed set.
func (s *Store) deltaLocked() *Delta {
	d := &Delta{Rows: &Snapshot{LastID: s.ids.Peek()}}
	rows := d.Rows

	for path := range s.dirtyFiles {
		d.Paths = append(d.Paths, path)
	}
	sort.Strings(d.Paths)
	d.Entities = s.dirtyEntities.sorted()

	for _, id := range d.Entities {
		if nr, ok := s.nodes[id]; ok {
			rows.Nodes = append(rows.Nodes, cloneNode(nr.node))
		} else if er, ok := s.edges[id]; ok {
			rows.Edges = append(rows.Edges, er.edge)
		}
	}

	for _, path := range d.Paths {
		rec, ok := s.files[path]
		if !ok {
			continue
		}
		rows.Files = append(rows.Files, rec.export())
		for id := range rec.ids {
			switch {
			case s.locations[id] != nil:
				rows.Locations = append(rows.Locations, *s.locations[id])
			case s.errors[id] != nil:
				rows.Errors = append(rows.Errors, *s.errors[id])
			case s.nodes[id] != nil:
				rows.Contributions = append(rows.Contributions, Contribution{EntityID: id, File: path})
				for k, v := range s.nodes[id].attrsByFile[path] {
					rows.Attributes = append(rows.Attributes, Attribute{NodeID: id, File: path, Key: k, Value: v})
				}
			case s.edges[id] != nil:
				rows.Contributions = append(rows.Contributions, Contribution{EntityID: id, File: path})
			}
		}
	}
	rows.sortRows()
	return d
}

// sortRows puts every slice in its canonical order.
func (snap *Snapshot) sortRows() {
	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].Path < snap.Files[j].Path })
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })
	sort.Slice(snap.Attributes, func(i, j int) bool {
		a, b := snap.Attributes[i], snap.Attributes[j]
		if a.NodeID != b.NodeID {
			return a.NodeID < b.NodeID
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Key < b.Key
	})
	sort.Slice(snap.Edges, func(i, j int) bool { return snap.Edges[i].ID < snap.Edges[j].ID })
	sort.Slice(snap.Contributions, func(i, j int) bool {
		a, b := snap.Contributions[i], snap.Contributions[j]
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.File < b.File
	})
	sort.Slice(snap.Locations, func(i, j int) bool { return snap.Locations[i].ID < snap.Locations[j].ID })
	sort.Slice(snap.Errors, func(i, j int) bool { return snap.Errors[i].ID < snap.Errors[j].ID })
}

// Restore replaces the current generation with snap and advances the
// allocator past snap.LastID. On error the store is left empty.
func (s *Store) Restore(snap *Snapshot) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
	s.ids.Reset()
	if snap == nil {
		return nil
	}
	if err := s.restoreLocked(snap); err != nil {
		s.clear()
		s.ids.Reset()
		return fmt.Errorf("graph: restore: %w", err)
	}
	s.ids.Advance(snap.LastID)
	return nil
}

func (s *Store) restoreLocked(snap *Snapshot) error {
	for _, f := range snap.Files {
		rec := &fileRecord{id: f.ID, path: f.Path, signature: f.Signature, ids: make(idSet), sealed: f.Sealed}
		for _, id := range f.Contributed {
			rec.ids[id] = struct{}{}
		}
		s.files[f.Path] = rec
	}

	for _, n := range snap.Nodes {
		s.nodes[n.ID] = &nodeRecord{
			node:         Node{ID: n.ID, Kind: n.Kind, Name: n.Name},
			attrsByFile:  make(map[string]map[string]string),
			contributors: make(map[string]struct{}),
		}
		s.nodeIndex[nodeKey{n.Kind, n.Name}] = n.ID
		addToIndex(s.byName, n.Name, n.ID)
	}
	for _, a := range snap.Attributes {
		nr, ok := s.nodes[a.NodeID]
		if !ok {
			return fmt.Errorf("attribute %q of node %d: %w", a.Key, a.NodeID, ErrDanglingReference)
		}
		own := nr.attrsByFile[a.File]
		if own == nil {
			own = make(map[string]string)
			nr.attrsByFile[a.File] = own
		}
		own[a.Key] = a.Value
	}
	for _, nr := range s.nodes {
		nr.node.Attributes = mergeAttributes(nr.attrsByFile)
	}

	for _, e := range snap.Edges {
		if s.nodes[e.SourceID] == nil || s.nodes[e.TargetID] == nil {
			return fmt.Errorf("edge %d: %w", e.ID, ErrDanglingReference)
		}
		s.edges[e.ID] = &edgeRecord{edge: e, contributors: make(map[string]struct{})}
		s.edgeIndex[edgeKey{e.Kind, e.SourceID, e.TargetID}] = e.ID
		addToIndex(s.edgesFrom, e.SourceID, e.ID)
		addToIndex(s.edgesTo, e.TargetID, e.ID)
	}

	for _, c := range snap.Contributions {
		switch {
		case s.nodes[c.EntityID] != nil:
			s.nodes[c.EntityID].contributors[c.File] = struct{}{}
		case s.edges[c.EntityID] != nil:
			s.edges[c.EntityID].contributors[c.File] = struct{}{}
		default:
			return fmt.Errorf("contribution of %s to %d: %w", c.File, c.EntityID, ErrDanglingReference)
		}
	}

	for _, loc := range snap.Locations {
		if s.nodes[loc.OwnerID] == nil && s.edges[loc.OwnerID] == nil {
			return fmt.Errorf("location %d: %w", loc.ID, ErrDanglingReference)
		}
		l := loc
		s.locations[l.ID] = &l
		addToIndex(s.locByFile, l.File, l.ID)
		addToIndex(s.locByOwn, l.OwnerID, l.ID)
	}

	for _, e := range snap.Errors {
		rec := e
		if e.Span != nil {
			sp := *e.Span
			rec.Span = &sp
		}
		s.errors[rec.ID] = &rec
	}
	return nil
}
