package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLINode is a JSON-friendly node representation.
type CLINode struct {
	ID         int64             `json:"id"`
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Files      []string          `json:"files,omitempty"`
}

// CLIEdge is a JSON-friendly edge with endpoint names resolved.
type CLIEdge struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	SourceID   int64  `json:"source_id"`
	SourceName string `json:"source_name,omitempty"`
	TargetID   int64  `json:"target_id"`
	TargetName string `json:"target_name,omitempty"`
}

// CLILocation is a JSON-friendly location. Lines and columns are 1-based.
type CLILocation struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
	OwnerID   int64  `json:"owner_id"`
}

// CLIError is a JSON-friendly error record.
type CLIError struct {
	File    string `json:"file"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Col     int    `json:"col,omitempty"`
}

// CLINodeDetail is a node with its edges and locations.
type CLINodeDetail struct {
	Node      CLINode       `json:"node"`
	Outgoing  []CLIEdge     `json:"outgoing"`
	Incoming  []CLIEdge     `json:"incoming"`
	Locations []CLILocation `json:"locations"`
}

// CLIStats is a JSON-friendly graph summary.
type CLIStats struct {
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
	Locations int    `json:"locations"`
	Errors    int    `json:"errors"`
	Files     int    `json:"files"`
	SavedAt   string `json:"saved_at,omitempty"`
}

// CLICompletion is a JSON-friendly run report.
type CLICompletion struct {
	RunID          string  `json:"run_id"`
	FilesProcessed int     `json:"files_processed"`
	Added          int     `json:"added"`
	Updated        int     `json:"updated"`
	Removed        int     `json:"removed"`
	ErrorCount     int     `json:"error_count"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}
