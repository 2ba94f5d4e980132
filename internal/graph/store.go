package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type nodeKey struct {
	kind string
	name string
}

type edgeKey struct {
	kind   string
	source ID
	target ID
}

type idSet map[ID]struct{}

func (s idSet) sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type nodeRecord struct {
	node         Node // Attributes holds the effective merge
	attrsByFile  map[string]map[string]string
	contributors map[string]struct{}
}

type edgeRecord struct {
	edge         Edge
	contributors map[string]struct{}
}

type fileRecord struct {
	id        ID
	path      string
	signature string
	ids       idSet
	sealed    bool
}

// SnapshotSink receives a full snapshot at every Commit.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
}

// DeltaSink is a SnapshotSink that can apply only what changed since its
// last save. Commit sends it a full snapshot first, and again after a Reset,
// a Restore that was not followed by MarkSynced, or a failed save.
type DeltaSink interface {
	SnapshotSink
	SaveDelta(ctx context.Context, d *Delta) error
}

// Store is the in-memory graph database and the only writer of project state.
//
// Two locks guard it. mu serializes every mutation (single writer) and is
// held shared by plain reads. gate is the run gate: an indexing run holds it
// exclusively between BeginRun and EndRun, and read facades hold it shared via
// ReadGate, so they never observe a partially invalidated or partially
// populated graph.
type Store struct {
	gate sync.RWMutex
	mu   sync.RWMutex

	ids  *Allocator
	sink SnapshotSink

	nodes     map[ID]*nodeRecord
	nodeIndex map[nodeKey]ID
	byName    map[string]idSet

	edges     map[ID]*edgeRecord
	edgeIndex map[edgeKey]ID
	edgesFrom map[ID]idSet
	edgesTo   map[ID]idSet

	locations map[ID]*Location
	locByFile map[string]idSet
	locByOwn  map[ID]idSet

	errors map[ID]*ErrorRecord

	files map[string]*fileRecord

	// Changes since the last successful Commit.
	dirtyFiles    map[string]struct{}
	dirtyEntities idSet
	fullSave      bool
}

// Option configures a Store.
type Option func(*Store)

// WithAllocator makes the Store issue IDs from a.
func WithAllocator(a *Allocator) Option {
	return func(s *Store) {
		s.ids = a
	}
}

// WithSink persists the graph at every Commit. A DeltaSink receives only the
// rows changed since its last successful save.
func WithSink(sink SnapshotSink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

// NewStore creates an empty Store with a fresh Allocator.
func NewStore(opts ...Option) *Store {
	s := &Store{ids: NewAllocator()}
	for _, opt := range opts {
		opt(s)
	}
	s.clear()
	return s
}

func (s *Store) clear() {
	s.nodes = make(map[ID]*nodeRecord)
	s.nodeIndex = make(map[nodeKey]ID)
	s.byName = make(map[string]idSet)
	s.edges = make(map[ID]*edgeRecord)
	s.edgeIndex = make(map[edgeKey]ID)
	s.edgesFrom = make(map[ID]idSet)
	s.edgesTo = make(map[ID]idSet)
	s.locations = make(map[ID]*Location)
	s.locByFile = make(map[string]idSet)
	s.locByOwn = make(map[ID]idSet)
	s.errors = make(map[ID]*ErrorRecord)
	s.files = make(map[string]*fileRecord)
	s.resetDirtyLocked()
	s.fullSave = true
}

func (s *Store) resetDirtyLocked() {
	s.dirtyFiles = make(map[string]struct{})
	s.dirtyEntities = make(idSet)
}

// MarkSynced records that the sink already holds the current generation, as
// it does right after restoring from it. The next Commit sends a delta.
func (s *Store) MarkSynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetDirtyLocked()
	s.fullSave = false
}

// Allocator returns the Store's ID allocator.
func (s *Store) Allocator() *Allocator {
	return s.ids
}

// SetSink replaces the snapshot sink. A nil sink makes Commit a no-op.
func (s *Store) SetSink(sink SnapshotSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Reset discards every entity and restarts the allocator, starting a new
// generation. Both happen under both locks.
func (s *Store) Reset() {
	s.gate.Lock()
	defer s.gate.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	s.ids.Reset()
}

// BeginRun takes the run gate exclusively. Readers using ReadGate block until EndRun.
func (s *Store) BeginRun() {
	s.gate.Lock()
}

// EndRun releases the run gate.
func (s *Store) EndRun() {
	s.gate.Unlock()
}

// ReadGate takes the run gate in shared mode and returns its release function.
func (s *Store) ReadGate() (release func()) {
	s.gate.RLock()
	return s.gate.RUnlock
}

// Commit marks the end of a run. With a sink configured, the current
// generation is handed to it: as a Delta of the files and entities touched
// since the last Commit when the sink is a DeltaSink that is in sync, as a
// full Snapshot otherwise.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	sink := s.sink
	if sink == nil {
		s.mu.Unlock()
		return nil
	}
	ds, incremental := sink.(DeltaSink)
	incremental = incremental && !s.fullSave
	var (
		snap  *Snapshot
		delta *Delta
	)
	if incremental {
		delta = s.deltaLocked()
	} else {
		snap = s.snapshotLocked()
	}
	s.resetDirtyLocked()
	s.fullSave = false
	s.mu.Unlock()

	var err error
	if incremental {
		err = ds.SaveDelta(ctx, delta)
	} else {
		err = sink.SaveSnapshot(ctx, snap)
	}
	if err != nil {
		// The sink's contents are unknown now; resend everything next time.
		s.mu.Lock()
		s.fullSave = true
		s.mu.Unlock()
		return fmt.Errorf("graph: commit: %w", err)
	}
	return nil
}

// ErrorCount returns the number of error records currently held.
func (s *Store) ErrorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.errors)
}

// InvalidateFile removes everything path contributed. Locations and errors it
// owns are deleted; nodes and edges lose path as a contributor and are deleted
// once no contributor remains. Returns false if path has no file record.
func (s *Store) InvalidateFile(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.files[path]
	if !ok {
		return false
	}
	s.dirtyFiles[path] = struct{}{}

	var nodeIDs, edgeIDs []ID
	for id := range rec.ids {
		switch {
		case s.locations[id] != nil:
			s.deleteLocation(id)
		case s.errors[id] != nil:
			delete(s.errors, id)
		case s.edges[id] != nil:
			edgeIDs = append(edgeIDs, id)
		case s.nodes[id] != nil:
			nodeIDs = append(nodeIDs, id)
		}
	}

	// Edges before nodes so no edge outlives an endpoint.
	for _, id := range edgeIDs {
		s.dirtyEntities[id] = struct{}{}
		er := s.edges[id]
		delete(er.contributors, path)
		if len(er.contributors) == 0 {
			s.deleteEdge(id)
		}
	}
	for _, id := range nodeIDs {
		s.dirtyEntities[id] = struct{}{}
		nr := s.nodes[id]
		delete(nr.contributors, path)
		if _, had := nr.attrsByFile[path]; had {
			delete(nr.attrsByFile, path)
			nr.node.Attributes = mergeAttributes(nr.attrsByFile)
		}
		if len(nr.contributors) == 0 {
			s.deleteNode(id)
		}
	}

	delete(s.files, path)
	return true
}

func (s *Store) deleteLocation(id ID) {
	loc := s.locations[id]
	delete(s.locations, id)
	removeFromIndex(s.locByFile, loc.File, id)
	removeFromIndex(s.locByOwn, loc.OwnerID, id)
}

func (s *Store) deleteEdge(id ID) {
	er := s.edges[id]
	e := er.edge
	delete(s.edges, id)
	delete(s.edgeIndex, edgeKey{e.Kind, e.SourceID, e.TargetID})
	removeFromIndex(s.edgesFrom, e.SourceID, id)
	removeFromIndex(s.edgesTo, e.TargetID, id)
}

func (s *Store) deleteNode(id ID) {
	nr := s.nodes[id]
	n := nr.node
	delete(s.nodes, id)
	delete(s.nodeIndex, nodeKey{n.Kind, n.Name})
	removeFromIndex(s.byName, n.Name, id)
}

func removeFromIndex[K comparable](index map[K]idSet, key K, id ID) {
	set := index[key]
	if set == nil {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, key)
	}
}

func addToIndex[K comparable](index map[K]idSet, key K, id ID) {
	set := index[key]
	if set == nil {
		set = make(idSet)
		index[key] = set
	}
	set[id] = struct{}{}
}

// mergeAttributes overlays per-file attribute maps in ascending path order,
// so the lexically last contributing file wins a key conflict.
func mergeAttributes(byFile map[string]map[string]string) map[string]string {
	if len(byFile) == 0 {
		return nil
	}
	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	merged := make(map[string]string)
	for _, p := range paths {
		for k, v := range byFile[p] {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func copyAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
