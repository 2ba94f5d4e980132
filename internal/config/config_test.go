package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProject_Missing(t *testing.T) {
	t.Parallel()
	p, err := LoadProject(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Project{}, p)
}

func TestLoadProject_ResolvesRelativePaths(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFile), []byte(`
source_roots: [src, /abs/lib]
include_roots: [include]
source_extensions: [.go, .py]
search_paths: [third_party]
database: .thicket/graph.db
workers: 3
`), 0o644))

	p, err := LoadProject(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "src"), "/abs/lib"}, p.SourceRoots)
	assert.Equal(t, []string{filepath.Join(dir, "include")}, p.IncludeRoots)
	assert.Equal(t, []string{".go", ".py"}, p.SourceExtensions)
	assert.Nil(t, p.IncludeExtensions)
	assert.Equal(t, []string{filepath.Join(dir, "third_party")}, p.SearchPaths)
	assert.Equal(t, filepath.Join(dir, ".thicket", "graph.db"), p.Database)
	assert.Equal(t, 3, p.Workers)
}

func TestLoadProject_Malformed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFile), []byte("source_roots: {"), 0o644))

	_, err := LoadProject(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestGlobal_SaveAndLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "thicket", "global.yaml")

	g, err := LoadGlobal(path)
	require.NoError(t, err)
	assert.Empty(t, g.SearchPaths)

	require.NoError(t, SaveGlobal(path, Global{SearchPaths: []string{"/usr/include"}}))
	g, err = LoadGlobal(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/include"}, g.SearchPaths)
}

func TestGlobalPath_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := GlobalPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "thicket", "global.yaml"), path)
}
