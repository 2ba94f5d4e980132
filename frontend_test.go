package thicket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thicket/internal/graph"
)

// recordingFrontEnd finishes every file it is given and remembers them.
type recordingFrontEnd struct {
	mu    sync.Mutex
	files []string
}

func (r *recordingFrontEnd) ParseFiles(_ context.Context, files, _ []string, client Client) error {
	r.mu.Lock()
	r.files = append(r.files, files...)
	r.mu.Unlock()
	for _, f := range files {
		if err := client.FinishFile(f); err != nil {
			return err
		}
	}
	return nil
}

func TestMux_RoutesByExtension(t *testing.T) {
	t.Parallel()
	goFE := &recordingFrontEnd{}
	txtFE := &recordingFrontEnd{}
	m := NewMux().Handle(goFE, ".go").Handle(txtFE, "txt", ".GRAPH")
	assert.Equal(t, []string{".go", ".graph", ".txt"}, m.Extensions())

	s := graph.NewStore()
	files := []string{"a.go", "b.txt", "c.graph", "D.GO"}
	require.NoError(t, m.ParseFiles(context.Background(), files, nil, s))

	sort.Strings(goFE.files)
	sort.Strings(txtFE.files)
	assert.Equal(t, []string{"D.GO", "a.go"}, goFE.files)
	assert.Equal(t, []string{"b.txt", "c.graph"}, txtFE.files)
	for _, f := range files {
		assert.True(t, s.Sealed(f), f)
	}
	assert.Zero(t, s.ErrorCount())
}

func TestMux_UnknownExtensionIsParseFailure(t *testing.T) {
	t.Parallel()
	m := NewMux().Handle(&recordingFrontEnd{}, ".go")
	s := graph.NewStore()

	require.NoError(t, m.ParseFiles(context.Background(), []string{"notes.md"}, nil, s))
	assert.True(t, s.Sealed("notes.md"))
	errs := s.Errors("notes.md")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, ParseFailurePrefix)
}

func TestMux_LaterRegistrationWins(t *testing.T) {
	t.Parallel()
	first := &recordingFrontEnd{}
	second := &recordingFrontEnd{}
	m := NewMux().Handle(first, ".txt").Handle(second, ".txt")

	require.NoError(t, m.ParseFiles(context.Background(), []string{"a.txt"}, nil, graph.NewStore()))
	assert.Empty(t, first.files)
	assert.Equal(t, []string{"a.txt"}, second.files)
}

func TestMux_PropagatesFrontEndError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	other := &recordingFrontEnd{}
	m := NewMux().
		Handle(FrontEndFunc(func(context.Context, []string, []string, Client) error { return boom }), ".a").
		Handle(other, ".b")

	s := graph.NewStore()
	err := m.ParseFiles(context.Background(), []string{"x.a", "y.b"}, nil, s)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"y.b"}, other.files)
	assert.True(t, s.Sealed("y.b"))
}

func TestMux_PanicBecomesError(t *testing.T) {
	t.Parallel()
	other := &recordingFrontEnd{}
	m := NewMux().
		Handle(FrontEndFunc(func(context.Context, []string, []string, Client) error { panic("grammar exploded") }), ".a").
		Handle(other, ".b")

	s := graph.NewStore()
	err := m.ParseFiles(context.Background(), []string{"x.a", "y.b"}, nil, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: grammar exploded")
	assert.True(t, s.Sealed("y.b"))
	assert.False(t, s.Sealed("x.a"))
}
