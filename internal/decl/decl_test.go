package decl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thicket/internal/graph"
)

func TestParse_NodesEdgesAndErrors(t *testing.T) {
	t.Parallel()
	s := graph.NewStore()

	Parse("b.txt", []byte(`# comment
node symbol Bar visibility=public

edge uses symbol:Bar symbol:Foo
error something odd
`), s)

	bar, ok := s.NodeByKindName("symbol", "Bar")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"visibility": "public"}, bar.Attributes)
	foo, ok := s.NodeByKindName("symbol", "Foo")
	require.True(t, ok)

	edges := s.EdgesFrom(bar.ID)
	require.Len(t, edges, 1)
	assert.Equal(t, "uses", edges[0].Kind)
	assert.Equal(t, foo.ID, edges[0].TargetID)

	barLocs := s.LocationsOf(bar.ID)
	require.Len(t, barLocs, 1)
	assert.Equal(t, graph.Span{StartLine: 2, StartCol: 1, EndLine: 2, EndCol: 33}, barLocs[0].Span)
	edgeLocs := s.LocationsOf(edges[0].ID)
	require.Len(t, edgeLocs, 1)
	assert.Equal(t, 4, edgeLocs[0].Span.StartLine)

	errs := s.Errors("b.txt")
	require.Len(t, errs, 1)
	assert.Equal(t, "something odd", errs[0].Message)
	require.NotNil(t, errs[0].Span)
	assert.Equal(t, 5, errs[0].Span.StartLine)
}

func TestParse_MalformedLinesBecomeErrors(t *testing.T) {
	t.Parallel()
	s := graph.NewStore()

	Parse("bad.txt", []byte(`node symbol
edge uses Bar Foo
node symbol X noequals
frobnicate x
node symbol Good
`), s)

	errs := s.Errors("bad.txt")
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0].Message, "expected kind and name")
	assert.Contains(t, errs[1].Message, "kind:name")
	assert.Contains(t, errs[2].Message, "key=value")
	assert.Contains(t, errs[3].Message, "unknown directive")

	_, ok := s.NodeByKindName("symbol", "Good")
	assert.True(t, ok)
}

func TestFrontEnd_ParseFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(a, []byte("node symbol Foo\n"), 0o644))
	missing := filepath.Join(dir, "missing.txt")

	s := graph.NewStore()
	require.NoError(t, New().ParseFiles(context.Background(), []string{a, missing}, nil, s))

	assert.True(t, s.Sealed(a))
	assert.True(t, s.Sealed(missing))
	errs := s.Errors(missing)
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0].Message, graph.ParseFailurePrefix), errs[0].Message)
}

func TestFrontEnd_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().ParseFiles(ctx, []string{"a.txt"}, nil, graph.NewStore())
	assert.ErrorIs(t, err, context.Canceled)
}
