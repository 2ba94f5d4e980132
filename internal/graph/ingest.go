package graph

import (
	"fmt"
	"sort"
)

// Client is the ingestion surface a language front end uses to populate the
// graph. Every call names the file it is attributed to. Implementations must
// be safe for concurrent use.
type Client interface {
	// ReportNode upserts the node keyed by (kind, name) and merges attrs into
	// the file's attribute map for it.
	ReportNode(file, kind, name string, attrs map[string]string) (ID, error)

	// ReportEdge upserts the edge keyed by (kind, source, target). Both
	// endpoints must already exist.
	ReportEdge(file, kind string, source, target ID) (ID, error)

	// ReportLocation records a span of file annotating owner, a node or edge.
	// Locations are never deduplicated.
	ReportLocation(file string, owner ID, span Span) (ID, error)

	// ReportError records a diagnostic against file. It never fails.
	ReportError(file, message string, span *Span) ID

	// FinishFile seals the set of IDs file contributed.
	FinishFile(file string) error
}

var _ Client = (*Store)(nil)

// RegisterFile creates or refreshes the record for path with its content
// signature. Ingestion against an unregistered path creates the record on
// demand with an empty signature.
func (s *Store) RegisterFile(path, signature string) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.fileLocked(path)
	rec.signature = signature
	return rec.id
}

func (s *Store) fileLocked(path string) *fileRecord {
	rec, ok := s.files[path]
	if !ok {
		rec = &fileRecord{id: s.ids.Next(), path: path, ids: make(idSet)}
		s.files[path] = rec
	}
	s.dirtyFiles[path] = struct{}{}
	return rec
}

// ReportNode implements Client.
func (s *Store) ReportNode(file, kind, name string, attrs map[string]string) (ID, error) {
	if kind == "" || name == "" {
		return 0, fmt.Errorf("graph: report node %q/%q: %w", kind, name, ErrEmptyName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.fileLocked(file)
	key := nodeKey{kind, name}
	id, ok := s.nodeIndex[key]
	if !ok {
		id = s.ids.Next()
		s.nodes[id] = &nodeRecord{
			node:         Node{ID: id, Kind: kind, Name: name},
			attrsByFile:  make(map[string]map[string]string),
			contributors: make(map[string]struct{}),
		}
		s.nodeIndex[key] = id
		addToIndex(s.byName, name, id)
	}
	nr := s.nodes[id]
	s.retainNodeLocked(nr, rec)
	s.dirtyEntities[id] = struct{}{}

	if len(attrs) > 0 {
		own := nr.attrsByFile[file]
		if own == nil {
			own = make(map[string]string, len(attrs))
			nr.attrsByFile[file] = own
		}
		for k, v := range attrs {
			own[k] = v
		}
		nr.node.Attributes = mergeAttributes(nr.attrsByFile)
	}
	return id, nil
}

// ReportEdge implements Client.
func (s *Store) ReportEdge(file, kind string, source, target ID) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.nodes[source]
	if !ok {
		return 0, fmt.Errorf("graph: report edge %s: source %d: %w", kind, source, ErrDanglingReference)
	}
	dst, ok := s.nodes[target]
	if !ok {
		return 0, fmt.Errorf("graph: report edge %s: target %d: %w", kind, target, ErrDanglingReference)
	}

	rec := s.fileLocked(file)
	key := edgeKey{kind, source, target}
	id, ok := s.edgeIndex[key]
	if !ok {
		id = s.ids.Next()
		s.edges[id] = &edgeRecord{
			edge:         Edge{ID: id, Kind: kind, SourceID: source, TargetID: target},
			contributors: make(map[string]struct{}),
		}
		s.edgeIndex[key] = id
		addToIndex(s.edgesFrom, source, id)
		addToIndex(s.edgesTo, target, id)
		s.dirtyEntities[id] = struct{}{}
	}
	s.retainEdgeLocked(s.edges[id], rec)
	s.retainNodeLocked(src, rec)
	s.retainNodeLocked(dst, rec)
	return id, nil
}

// ReportLocation implements Client.
func (s *Store) ReportLocation(file string, owner ID, span Span) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var retain func(*fileRecord)
	if nr, ok := s.nodes[owner]; ok {
		retain = func(rec *fileRecord) { s.retainNodeLocked(nr, rec) }
	} else if er, ok := s.edges[owner]; ok {
		retain = func(rec *fileRecord) {
			s.retainEdgeLocked(er, rec)
			s.retainNodeLocked(s.nodes[er.edge.SourceID], rec)
			s.retainNodeLocked(s.nodes[er.edge.TargetID], rec)
		}
	} else {
		return 0, fmt.Errorf("graph: report location in %s: owner %d: %w", file, owner, ErrDanglingReference)
	}

	rec := s.fileLocked(file)
	retain(rec)

	id := s.ids.Next()
	s.locations[id] = &Location{ID: id, FileID: rec.id, File: file, Span: span, OwnerID: owner}
	addToIndex(s.locByFile, file, id)
	addToIndex(s.locByOwn, owner, id)
	rec.ids[id] = struct{}{}
	return id, nil
}

// ReportError implements Client.
func (s *Store) ReportError(file, message string, span *Span) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.fileLocked(file)
	id := s.ids.Next()
	var sp *Span
	if span != nil {
		c := *span
		sp = &c
	}
	s.errors[id] = &ErrorRecord{ID: id, FileID: rec.id, File: file, Message: message, Span: sp}
	rec.ids[id] = struct{}{}
	return id
}

// FinishFile implements Client.
func (s *Store) FinishFile(file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fileLocked(file).sealed = true
	return nil
}

// Sealed reports whether file has a sealed record.
func (s *Store) Sealed(file string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[file]
	return ok && rec.sealed
}

func (s *Store) retainNodeLocked(nr *nodeRecord, rec *fileRecord) {
	nr.contributors[rec.path] = struct{}{}
	rec.ids[nr.node.ID] = struct{}{}
}

func (s *Store) retainEdgeLocked(er *edgeRecord, rec *fileRecord) {
	er.contributors[rec.path] = struct{}{}
	rec.ids[er.edge.ID] = struct{}{}
}

func sortedContributors(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
