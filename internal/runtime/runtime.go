package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/thicket/internal/graph"
)

// DefaultScriptCacheSize bounds the number of script sources kept in memory.
const DefaultScriptCacheSize = 64

// Runtime evaluates extraction scripts. Scripts see the tree-sitter host
// functions, the ingestion protocol bound to the file being extracted, and a
// log object. A Runtime is not safe for concurrent use; the script front end
// gives each worker its own.
type Runtime struct {
	client     graph.Client
	scriptsDir string
	fsys       fs.FS
	trees      *treeSet
	cache      *lru.Cache[string, string]
	logger     *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts, and resolves script imports, from fsys
// instead of scriptsDir.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithScriptCache shares a script source cache between runtimes.
func WithScriptCache(cache *lru.Cache[string, string]) RuntimeOption {
	return func(r *Runtime) {
		r.cache = cache
	}
}

// WithRuntimeLogger routes the script log object to logger.
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// NewScriptCache returns an LRU cache for script sources.
func NewScriptCache(size int) *lru.Cache[string, string] {
	if size <= 0 {
		size = DefaultScriptCacheSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		// Only returned for a non-positive size.
		panic(fmt.Sprintf("runtime: script cache: %v", err))
	}
	return c
}

// NewRuntime creates a Runtime that reports into client and loads scripts
// from scriptsDir. client may be nil, in which case the report_* globals are
// not defined.
func NewRuntime(client graph.Client, scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		client:     client,
		scriptsDir: scriptsDir,
		trees:      newTreeSet(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewScriptCache(DefaultScriptCacheSize)
	}
	return r
}

// RunScript evaluates the script at scriptPath. extraGlobals are added to
// the standard ones; a string "file_path" is the file every report_* call is
// attributed to.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource evaluates source as if it were a script file.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

// ExtractFile runs the extraction script for path's language against path.
func (r *Runtime) ExtractFile(ctx context.Context, path string, searchPaths []string) error {
	lang, ok := LanguageForFile(path)
	if !ok {
		return fmt.Errorf("runtime: no language for %s", path)
	}
	paths := make([]object.Object, 0, len(searchPaths))
	for _, p := range searchPaths {
		paths = append(paths, object.NewString(p))
	}
	base := filepath.Base(path)
	return r.RunScript(ctx, ExtractionScriptPath(lang), map[string]any{
		"file_path":    path,
		"file_name":    base,
		"file_stem":    strings.TrimSuffix(base, filepath.Ext(base)),
		"language":     lang,
		"search_paths": object.NewList(paths),
	})
}

// eval runs source and then closes every tree it parsed.
func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	defer r.trees.release()

	file, _ := extraGlobals["file_path"].(string)
	globals := r.buildGlobals(file, label, extraGlobals)
	opts := make([]risor.Option, 0, len(globals)+1)
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter resolves script imports from the same place scripts are
// loaded from. Imported modules see the same globals. Returns nil when there
// is nowhere to import from.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript returns a script's source through the cache. With an fs.FS
// configured, path is taken relative to its root; otherwise relative paths
// resolve against scriptsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	key, read := r.scriptLocation(path)
	if src, ok := r.cache.Get(key); ok {
		return src, nil
	}
	data, err := read()
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", path, err)
	}
	r.cache.Add(key, string(data))
	return string(data), nil
}

// scriptLocation returns the cache key for path and a reader for it.
func (r *Runtime) scriptLocation(path string) (string, func() ([]byte, error)) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		return "fs:" + fsPath, func() ([]byte, error) { return fs.ReadFile(r.fsys, fsPath) }
	}
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(r.scriptsDir, path)
	}
	return "disk:" + full, func() ([]byte, error) { return os.ReadFile(full) }
}

// ExtractionScriptPath returns the path to a language's extraction script.
func ExtractionScriptPath(language string) string {
	return filepath.Join("extract", language+".risor")
}

// buildGlobals assembles the globals for one evaluation; extra wins on name
// clashes.
func (r *Runtime) buildGlobals(file, label string, extra map[string]any) map[string]any {
	globals := syntaxGlobals(r.trees)
	globals["log"] = mustProxy(&scriptLog{logger: r.logger.With("script", label, "file", file)})

	// Ingestion host functions. Risor cannot construct Go structs, so spans
	// and attributes travel as maps and are converted Go-side.
	if r.client != nil {
		globals["report_node"] = makeReportNodeFn(r.client, file)
		globals["report_edge"] = makeReportEdgeFn(r.client, file)
		globals["report_location"] = makeReportLocationFn(r.client, file)
		globals["report_error"] = makeReportErrorFn(r.client, file)
		if finder, ok := r.client.(nodeFinder); ok {
			globals["find_node"] = makeFindNodeFn(finder)
		}
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
