package thicket

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jward/thicket/internal/decl"
	"github.com/jward/thicket/internal/runtime"
	"github.com/jward/thicket/scripts"
)

// benchGoSource is a Go file with types, methods and same-package calls,
// enough to exercise every query in the Go extraction script.
const benchGoSource = `package bench

import (
	"fmt"
	"strings"
)

type Store interface {
	Get(key string) (string, bool)
	Put(key, value string)
}

type memStore struct {
	items map[string]string
}

func (m *memStore) Get(key string) (string, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *memStore) Put(key, value string) {
	m.items[normalize(key)] = value
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func describe(key string) string {
	return fmt.Sprintf("key %q", normalize(key))
}

func NewStore() Store {
	describe("init")
	return &memStore{items: make(map[string]string)}
}
`

// writeBenchProject writes n copies of benchGoSource into dir, each in its
// own package so no two files share nodes.
func writeBenchProject(b *testing.B, dir string, n int) []string {
	b.Helper()
	paths := make([]string, n)
	for i := range n {
		src := fmt.Sprintf("package bench%d%s", i, benchGoSource[len("package bench"):])
		paths[i] = filepath.Join(dir, fmt.Sprintf("bench%d.go", i))
		if err := os.WriteFile(paths[i], []byte(src), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return paths
}

func newBenchEngine(dir string) *Engine {
	fe := NewMux().
		Handle(runtime.NewScriptFrontEnd("", runtime.WithScriptsFS(scripts.FS)), runtime.Extensions()...).
		Handle(decl.New(), decl.Extensions...)
	return New(Config{SourceRoots: []string{dir}, SourceExtensions: runtime.Extensions()}, fe)
}

// BenchmarkIndex_Fresh measures a full run over 20 Go files.
func BenchmarkIndex_Fresh(b *testing.B) {
	ctx := context.Background()
	dir := b.TempDir()
	writeBenchProject(b, dir, 20)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := newBenchEngine(dir)
		if _, err := e.Index(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkIndex_OneFileChanged measures an incremental run in which one of
// 20 files changed.
func BenchmarkIndex_OneFileChanged(b *testing.B) {
	ctx := context.Background()
	dir := b.TempDir()
	paths := writeBenchProject(b, dir, 20)
	e := newBenchEngine(dir)
	if _, err := e.Index(ctx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		src := fmt.Sprintf("package bench0%s\n// rev %d\n", benchGoSource[len("package bench"):], i)
		if err := os.WriteFile(paths[0], []byte(src), 0o644); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		c, err := e.Index(ctx)
		if err != nil {
			b.Fatal(err)
		}
		if c.FilesProcessed != 1 {
			b.Fatalf("FilesProcessed = %d, want 1", c.FilesProcessed)
		}
	}
}

// BenchmarkNodesAt measures position lookup on an indexed project.
func BenchmarkNodesAt(b *testing.B) {
	ctx := context.Background()
	dir := b.TempDir()
	paths := writeBenchProject(b, dir, 20)
	e := newBenchEngine(dir)
	if _, err := e.Index(ctx); err != nil {
		b.Fatal(err)
	}
	locs := e.Locations()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Line 22 is inside memStore.Put.
		if nodes := locs.NodesAt(paths[i%len(paths)], 22, 3); len(nodes) == 0 {
			b.Fatal("no nodes at position")
		}
	}
}
