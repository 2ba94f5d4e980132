package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thicket"
	"github.com/jward/thicket/internal/config"
	"github.com/jward/thicket/internal/graph"
	"github.com/jward/thicket/internal/metrics"
)

// =============================================================================
// Path resolution
// =============================================================================

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	assert.Equal(t, root, findRepoRoot(root))
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_ProjectFileMarksRoot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, projectFileName), []byte("{}\n"), 0o644))
	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))

	assert.Equal(t, root, findRepoRoot(sub))
}

func TestFindRepoRoot_NoMarker(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	assert.Equal(t, dir, findRepoRoot(dir))
}

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	got, err := resolveTargetDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveTargetDir([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	_, err = resolveTargetDir([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "directory not found")
}

func TestResolveDBPath(t *testing.T) {
	root := "/repo"
	assert.Equal(t, filepath.Join(root, ".thicket", "index.db"), resolveDBPath(root, ""))
	assert.Equal(t, "/data/x.db", resolveDBPath(root, "/data/x.db"))

	flagDB = "custom.db"
	t.Cleanup(func() { flagDB = "" })
	assert.Equal(t, filepath.Join(root, "custom.db"), resolveDBPath(root, "/data/x.db"))
	flagDB = "/abs/custom.db"
	assert.Equal(t, "/abs/custom.db", resolveDBPath(root, ""))
}

// =============================================================================
// Project configuration
// =============================================================================

func TestLoadProject_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()

	p, err := loadProject(root)
	require.NoError(t, err)
	assert.Equal(t, []string{root}, p.cfg.SourceRoots)
	assert.ElementsMatch(t, defaultExtensions(), p.cfg.SourceExtensions)
	assert.Equal(t, filepath.Join(root, ".thicket", "index.db"), p.dbPath)
	assert.Empty(t, p.scriptsDir)
}

func TestLoadProject_FilesMerged(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	globalPath, err := config.GlobalPath()
	require.NoError(t, err)
	require.NoError(t, config.SaveGlobal(globalPath, config.Global{SearchPaths: []string{"/usr/include"}}))

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, projectFileName), []byte(`source_roots: [src]
include_roots: [include]
source_extensions: [.go]
search_paths: [third_party]
database: state/graph.db
workers: 3
`), 0o644))

	p, err := loadProject(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "src")}, p.cfg.SourceRoots)
	assert.Equal(t, []string{filepath.Join(root, "include")}, p.cfg.IncludeRoots)
	assert.Equal(t, []string{".go"}, p.cfg.SourceExtensions)
	assert.Equal(t, []string{filepath.Join(root, "third_party")}, p.cfg.ProjectSearchPaths)
	assert.Equal(t, []string{"/usr/include"}, p.cfg.GlobalSearchPaths)
	assert.Equal(t, filepath.Join(root, "state", "graph.db"), p.dbPath)
	assert.Equal(t, 3, p.workers)
}

func TestLoadProject_FlagsOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, projectFileName), []byte("workers: 3\n"), 0o644))

	flagWorkers = 7
	flagScriptsDir = "/opt/scripts"
	t.Cleanup(func() {
		flagWorkers = 0
		flagScriptsDir = ""
	})

	p, err := loadProject(root)
	require.NoError(t, err)
	assert.Equal(t, 7, p.workers)
	assert.Equal(t, "/opt/scripts", p.scriptsDir)
}

func TestLoadProject_BadFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, projectFileName), []byte("source_roots: [unterminated\n"), 0o644))

	_, err := loadProject(root)
	assert.ErrorContains(t, err, "config: parse")
}

// =============================================================================
// Sessions
// =============================================================================

func TestOpenStore_MissingWithoutCreate(t *testing.T) {
	t.Parallel()
	_, err := openStore(filepath.Join(t.TempDir(), "none.db"), false)
	assert.ErrorContains(t, err, "run 'thicket index' first")
}

func TestOpenSession_IndexesAndSaves(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("node symbol Foo\n"), 0o644))

	p := project{
		root:   root,
		dbPath: filepath.Join(root, ".thicket", "index.db"),
		cfg:    thicket.Config{SourceRoots: []string{root}, SourceExtensions: defaultExtensions()},
	}
	sess, err := openSession(context.Background(), p, newLogger(false))
	require.NoError(t, err)
	c, err := sess.engine.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.FilesProcessed)
	require.NoError(t, sess.Close())

	st, err := openStore(p.dbPath, false)
	require.NoError(t, err)
	defer st.Close()
	snap, err := st.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "Foo", snap.Nodes[0].Name)
}

// =============================================================================
// Node resolution
// =============================================================================

func newTestView(t *testing.T) thicket.GraphView {
	t.Helper()
	s := graph.NewStore()
	_, err := s.ReportNode("a.txt", "symbol", "Foo", nil)
	require.NoError(t, err)
	_, err = s.ReportNode("a.txt", "package", "Foo", nil)
	require.NoError(t, err)
	_, err = s.ReportNode("a.txt", "symbol", "Bar", nil)
	require.NoError(t, err)
	require.NoError(t, s.FinishFile("a.txt"))
	return thicket.NewGraphView(s)
}

func TestResolveNodes(t *testing.T) {
	t.Parallel()
	v := newTestView(t)

	nodes, err := resolveNodes(v, "Foo", nil)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	nodes, err = resolveNodes(v, "Foo", []string{"package"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "package", nodes[0].Kind)

	bar, err := resolveNode(v, "Bar")
	require.NoError(t, err)
	byID, err := resolveNode(v, "#"+strconv.FormatInt(int64(bar.ID), 10))
	require.NoError(t, err)
	assert.Equal(t, bar, byID)

	_, err = resolveNode(v, "Foo")
	assert.ErrorContains(t, err, "ambiguous")
	_, err = resolveNode(v, "Nope")
	assert.ErrorContains(t, err, "not found")
	_, err = resolveNodes(v, "#x", nil)
	assert.ErrorContains(t, err, "invalid node id")
}

func TestParsePositionArg(t *testing.T) {
	t.Parallel()
	n, err := parsePositionArg("12", "line")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = parsePositionArg("0", "line")
	assert.ErrorContains(t, err, "start at 1")
	_, err = parsePositionArg("x", "col")
	assert.ErrorContains(t, err, "positive integer")
}

// =============================================================================
// Output
// =============================================================================

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("xml"), `invalid format "xml"`)
}

func TestWriteResult_JSONEnvelope(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	total := 3
	require.NoError(t, writeResult(&buf, "json", CLIResult{
		Command:    "find",
		Results:    []CLINode{{ID: 1, Kind: "symbol", Name: "Foo"}},
		TotalCount: &total,
	}))

	var got struct {
		Command    string    `json:"command"`
		Results    []CLINode `json:"results"`
		TotalCount int       `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "find", got.Command)
	assert.Equal(t, 3, got.TotalCount)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "Foo", got.Results[0].Name)
}

func TestWriteResult_TextNodesWithFooter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	total := 5
	require.NoError(t, writeResult(&buf, "text", CLIResult{
		Command:    "find",
		Results:    []CLINode{{ID: 7, Kind: "symbol", Name: "pkg/Foo", Attributes: map[string]string{"b": "2", "a": "1"}}},
		TotalCount: &total,
	}))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "pkg/Foo")
	assert.Contains(t, out, "a=1 b=2")
	assert.Contains(t, out, "Showing 1 of 5 results")
}

func TestWriteResult_TextErrors(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, "text", CLIResult{
		Command: "errors",
		Results: []CLIError{
			{File: "/p/a.go", Message: "bad", Line: 3, Col: 4},
			{File: "/p/b.go", Message: "parse failure: boom"},
		},
	}))
	assert.Equal(t, "/p/a.go:3:4: bad\n/p/b.go: parse failure: boom\n", buf.String())
}

func TestWriteResult_TextDetail(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, "text", CLIResult{
		Command: "node",
		Results: []CLINodeDetail{{
			Node:      CLINode{ID: 1, Kind: "symbol", Name: "Foo", Files: []string{"/p/a.txt"}},
			Incoming:  []CLIEdge{{ID: 4, Kind: "calls", SourceID: 2, SourceName: "Bar", TargetID: 1, TargetName: "Foo"}},
			Locations: []CLILocation{{File: "/p/a.txt", StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 15, OwnerID: 1}},
		}},
	}))

	out := buf.String()
	assert.Contains(t, out, "symbol Foo (#1)")
	assert.Contains(t, out, "Files: /p/a.txt")
	assert.Contains(t, out, "/p/a.txt:1:1")
	assert.Contains(t, out, "Incoming:")
	assert.Contains(t, out, "Bar (#2)")
	assert.NotContains(t, out, "Outgoing:")
}

func TestWriteResult_TextUnsupported(t *testing.T) {
	t.Parallel()
	err := writeResult(&bytes.Buffer{}, "text", CLIResult{Results: 42})
	assert.ErrorContains(t, err, "unsupported result type")
}

func TestCompletionToCLI(t *testing.T) {
	t.Parallel()
	c := completionToCLI(thicket.Completion{RunID: "r", FilesProcessed: 2, Added: 1, Updated: 1, ErrorCount: 3})
	assert.Equal(t, CLICompletion{RunID: "r", FilesProcessed: 2, Added: 1, Updated: 1, ErrorCount: 3}, c)

	var buf bytes.Buffer
	formatCompletionText(&buf, c)
	assert.Equal(t, "run r: 2 files (+1 ~1 -0), 3 errors, 0.000s\n", buf.String())
}

func TestNewMetricsServer_ServesRecorder(t *testing.T) {
	t.Parallel()
	srv := newMetricsServer(":0", metrics.NewRecorder().Handler())
	assert.Equal(t, ":0", srv.Addr)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "thicket_files_parsed_total")

	resp, err = http.Get(ts.URL + "/other")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
