package graph

// Graph domain types

type Node struct {
	ID         ID
	Kind       string
	Name       string // fully qualified
	Attributes map[string]string
}

type Edge struct {
	ID       ID
	Kind     string
	SourceID ID
	TargetID ID
}

// Span is a 1-based, inclusive source range.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Contains reports whether (line, col) falls inside the span.
func (s Span) Contains(line, col int) bool {
	if line < s.StartLine || line > s.EndLine {
		return false
	}
	if line == s.StartLine && col < s.StartCol {
		return false
	}
	if line == s.EndLine && col > s.EndCol {
		return false
	}
	return true
}

// size orders spans so the narrowest enclosing one wins position lookups.
func (s Span) size() (lines, cols int) {
	return s.EndLine - s.StartLine, s.EndCol - s.StartCol
}

type Location struct {
	ID      ID
	FileID  ID
	File    string
	Span    Span
	OwnerID ID // node or edge this location annotates
}

type ErrorRecord struct {
	ID      ID
	FileID  ID
	File    string
	Message string
	Span    *Span
}

// File is the bookkeeping record for one processed file.
type File struct {
	ID          ID
	Path        string
	Signature   string
	Contributed []ID // sorted
	Sealed      bool
}

// EntityKind distinguishes what an ID refers to.
type EntityKind int

const (
	EntityNone EntityKind = iota
	EntityNode
	EntityEdge
	EntityLocation
	EntityError
	EntityFile
)

func (k EntityKind) String() string {
	switch k {
	case EntityNode:
		return "node"
	case EntityEdge:
		return "edge"
	case EntityLocation:
		return "location"
	case EntityError:
		return "error"
	case EntityFile:
		return "file"
	default:
		return "none"
	}
}

// Stats summarises store contents.
type Stats struct {
	Nodes     int
	Edges     int
	Locations int
	Errors    int
	Files     int
	LastID    ID
}
