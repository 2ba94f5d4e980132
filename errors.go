package thicket

import (
	"errors"

	"github.com/jward/thicket/internal/detect"
	"github.com/jward/thicket/internal/graph"
)

// ParseFailurePrefix starts the message of every error record standing in
// for a file that could not be parsed.
const ParseFailurePrefix = graph.ParseFailurePrefix

// ErrRunInProgress is returned when Index, Reset or Restore is called while
// another run holds the engine.
var ErrRunInProgress = errors.New("thicket: indexing run in progress")

// FileAccessError reports that project files could not be enumerated. It is
// fatal for the run; use errors.As to inspect it.
type FileAccessError = detect.AccessError

// Sentinel errors surfaced by the ingestion protocol.
var (
	ErrDanglingReference = graph.ErrDanglingReference
	ErrEmptyName         = graph.ErrEmptyName
	ErrAllocatorOverflow = graph.ErrAllocatorOverflow
)
