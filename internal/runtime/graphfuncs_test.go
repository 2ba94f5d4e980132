package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thicket/internal/graph"
)

func newGraphRuntime(t *testing.T) (*graph.Store, *Runtime) {
	t.Helper()
	s := graph.NewStore()
	return s, NewRuntime(s, "")
}

func TestReportFunctions_FromParsedSource(t *testing.T) {
	t.Parallel()
	s, rt := newGraphRuntime(t)

	script := `
tree := parse_src(src, "go")
root := tree.RootNode()
matches := query("(function_declaration name: (identifier) @name) @func", root)
assert(len(matches) == 2, 'expected 2 functions, got {len(matches)}')

ids := []
for _, m := range matches {
    id := report_node("function", "main." + node_text(m["name"]), {"exported": "true"})
    report_location(id, m["func"])
    ids.append(id)
}

e := report_edge("calls", ids[0], ids[1])
assert(e != nil, "edge should be created")

missing := report_edge("calls", ids[0], 99999)
assert(missing == nil, "dangling edge should return nil")

sp := node_span(matches[0]["name"])
assert(sp["start_line"] == 5, "start_line")
assert(sp["start_col"] == 6, "start_col")
assert(sp["end_line"] == 5, "end_line")
assert(sp["end_col"] == 10, "end_col")
`
	err := rt.RunSource(context.Background(), script, map[string]any{
		"src":       goTestSource,
		"file_path": "main.go",
	})
	require.NoError(t, err)

	nodes := s.Nodes("function")
	require.Len(t, nodes, 2)
	assert.Equal(t, "main.Greet", nodes[0].Name)
	assert.Equal(t, "true", nodes[0].Attributes["exported"])

	assert.Len(t, s.Edges("calls"), 1)

	locs := s.LocationsOf(nodes[0].ID)
	require.Len(t, locs, 1)
	assert.Equal(t, "main.go", locs[0].File)
	assert.Equal(t, graph.Span{StartLine: 5, StartCol: 1, EndLine: 7, EndCol: 1}, locs[0].Span)

	errs := s.Errors("main.go")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "dangling reference")
}

func TestReportLocation_IntSpanAndErrors(t *testing.T) {
	t.Parallel()
	s, rt := newGraphRuntime(t)

	script := `
id := report_node("symbol", "Foo")
loc := report_location(id, 1, 2, 3, 4)
assert(loc > id, "location id after node id")

bad := report_location(424242, {"start_line": 1, "start_col": 1, "end_line": 1, "end_col": 2})
assert(bad == nil, "unknown owner returns nil")

err_id := report_error("unexpected token", 2, 1, 2, 5)
assert(err_id > 0, "error id")
report_error("no span")
`
	err := rt.RunSource(context.Background(), script, map[string]any{"file_path": "a.txt"})
	require.NoError(t, err)

	foo, ok := s.NodeByKindName("symbol", "Foo")
	require.True(t, ok)
	locs := s.LocationsOf(foo.ID)
	require.Len(t, locs, 1)
	assert.Equal(t, graph.Span{StartLine: 1, StartCol: 2, EndLine: 3, EndCol: 4}, locs[0].Span)

	errs := s.Errors("a.txt")
	require.Len(t, errs, 3)
	require.NotNil(t, errs[1].Span)
	assert.Equal(t, graph.Span{StartLine: 2, StartCol: 1, EndLine: 2, EndCol: 5}, *errs[1].Span)
	assert.Nil(t, errs[2].Span)
}

func TestReportError_WithSpanMapArgument(t *testing.T) {
	t.Parallel()
	s, rt := newGraphRuntime(t)

	script := `report_error("bad", {"start_line": 3, "start_col": 1, "end_line": 3, "end_col": 9})`
	require.NoError(t, rt.RunSource(context.Background(), script, map[string]any{"file_path": "x.go"}))

	errs := s.Errors("x.go")
	require.Len(t, errs, 1)
	require.NotNil(t, errs[0].Span)
	assert.Equal(t, 3, errs[0].Span.StartLine)
	assert.Equal(t, 9, errs[0].Span.EndCol)
}

func TestFindNode(t *testing.T) {
	t.Parallel()
	s, rt := newGraphRuntime(t)
	_, err := s.ReportNode("other.go", "type", "pkg.Server", map[string]string{"shape": "struct"})
	require.NoError(t, err)

	script := `
n := find_node("type", "pkg.Server")
assert(n != nil, "node should be found")
assert(n["attributes"]["shape"] == "struct", "shape attribute")
assert(find_node("type", "pkg.Missing") == nil, "missing node is nil")
`
	require.NoError(t, rt.RunSource(context.Background(), script, map[string]any{"file_path": "main.go"}))
}

func TestReportNode_EmptyNameFailsScript(t *testing.T) {
	t.Parallel()
	_, rt := newGraphRuntime(t)

	err := rt.RunSource(context.Background(), `report_node("function", "")`, map[string]any{"file_path": "a.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report_node")
}

func TestReportFunctions_AbsentWithoutClient(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")

	err := rt.RunSource(context.Background(), `report_node("function", "Foo")`, nil)
	require.Error(t, err)
}
