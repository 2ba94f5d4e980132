package thicket

import (
	"time"

	"github.com/jward/thicket/internal/graph"
)

// Public type aliases for the graph types exposed by the views and the
// ingestion protocol. External consumers use these names; no conversion is
// needed.

type ID = graph.ID
type Node = graph.Node
type Edge = graph.Edge
type Span = graph.Span
type Location = graph.Location
type ErrorRecord = graph.ErrorRecord
type File = graph.File
type Stats = graph.Stats
type Client = graph.Client

// Completion summarises one finished run.
type Completion struct {
	RunID          string
	FilesProcessed int
	Elapsed        time.Duration // parsing phase only
	ErrorCount     int
	Added          int
	Updated        int
	Removed        int
}

// ElapsedSeconds returns Elapsed in seconds.
func (c Completion) ElapsedSeconds() float64 {
	return c.Elapsed.Seconds()
}

// State is the engine's position in its run cycle.
type State int32

const (
	StateIdle State = iota
	StateDiffing
	StateInvalidating
	StateParsing
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiffing:
		return "diffing"
	case StateInvalidating:
		return "invalidating"
	case StateParsing:
		return "parsing"
	case StateReporting:
		return "reporting"
	default:
		return "unknown"
	}
}
