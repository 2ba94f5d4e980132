package store

import (
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/jward/thicket/internal/graph"
)

// marshalAttributes converts an attribute map to JSON text for storage.
func marshalAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(attrs)
	return string(b)
}

// unmarshalAttributes converts JSON text back to a map. Empty maps come back
// as nil, matching graph.Node.
func unmarshalAttributes(s string) map[string]string {
	if s == "" || s == "null" || s == "{}" {
		return nil
	}
	var attrs map[string]string
	_ = json.Unmarshal([]byte(s), &attrs)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// spanArgs returns the four span columns, NULL for a missing span.
func spanArgs(sp *graph.Span) []any {
	if sp == nil {
		return []any{nil, nil, nil, nil}
	}
	return []any{sp.StartLine, sp.StartCol, sp.EndLine, sp.EndCol}
}

// scanSpan builds a span from nullable columns; nil when all are NULL.
func scanSpan(sl, sc, el, ec sql.NullInt64) *graph.Span {
	if !sl.Valid && !sc.Valid && !el.Valid && !ec.Valid {
		return nil
	}
	return &graph.Span{
		StartLine: int(sl.Int64),
		StartCol:  int(sc.Int64),
		EndLine:   int(el.Int64),
		EndCol:    int(ec.Int64),
	}
}

func formatID(id graph.ID) string {
	return strconv.FormatInt(int64(id), 10)
}

func parseID(s string) (graph.ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return graph.ID(v), err
}
