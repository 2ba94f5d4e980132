package graph

import "errors"

// ParseFailurePrefix starts the message of every error record standing in
// for a file, or part of one, that could not be parsed.
const ParseFailurePrefix = "parse failure: "

var (
	// ErrDanglingReference is returned when an edge or location refers to an
	// entity the store does not hold.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrAllocatorOverflow is the panic value (wrapped) raised when the ID space
	// is exhausted.
	ErrAllocatorOverflow = errors.New("id allocator overflow")

	// ErrEmptyName is returned when a node is reported without a kind or name.
	ErrEmptyName = errors.New("node kind and name must be non-empty")
)
