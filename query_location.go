package thicket

import (
	"github.com/jward/thicket/internal/graph"
)

// LocationView is the read-only query surface over locations, error records
// and file records. Like GraphView it holds the run gate in shared mode.
type LocationView struct {
	store *graph.Store
}

// NewLocationView wraps s. Engines hand out views through Engine.Locations.
func NewLocationView(s *graph.Store) LocationView {
	return LocationView{store: s}
}

// Location looks a location up by id.
func (v LocationView) Location(id ID) (Location, bool) {
	defer v.store.ReadGate()()
	return v.store.Location(id)
}

// Of returns every location annotating a node or edge.
func (v LocationView) Of(owner ID) []Location {
	defer v.store.ReadGate()()
	return v.store.LocationsOf(owner)
}

// InFile returns every location in path.
func (v LocationView) InFile(path string) []Location {
	defer v.store.ReadGate()()
	return v.store.LocationsInFile(path)
}

// At returns the locations in path whose span contains the 1-based (line,
// col), narrowest first.
func (v LocationView) At(path string, line, col int) []Location {
	defer v.store.ReadGate()()
	return v.store.LocationsAt(path, line, col)
}

// NodesAt resolves the locations at (line, col) to the nodes they annotate,
// narrowest first. Locations on edges contribute the edge's source node.
func (v LocationView) NodesAt(path string, line, col int) []Node {
	defer v.store.ReadGate()()
	seen := make(map[ID]bool)
	var out []Node
	for _, loc := range v.store.LocationsAt(path, line, col) {
		id := loc.OwnerID
		if e, ok := v.store.Edge(id); ok {
			id = e.SourceID
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if n, ok := v.store.Node(id); ok {
			out = append(out, n)
		}
	}
	return out
}

// Errors returns error records for path; an empty path means all files.
func (v LocationView) Errors(path string) []ErrorRecord {
	defer v.store.ReadGate()()
	return v.store.Errors(path)
}

// ErrorCount returns the number of error records.
func (v LocationView) ErrorCount() int {
	defer v.store.ReadGate()()
	return v.store.ErrorCount()
}

// File returns the record for path.
func (v LocationView) File(path string) (File, bool) {
	defer v.store.ReadGate()()
	return v.store.File(path)
}

// Files returns every file record, ordered by path.
func (v LocationView) Files() []File {
	defer v.store.ReadGate()()
	return v.store.Files()
}
