package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	goruntime "runtime"
	"runtime/debug"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jward/thicket/internal/graph"
)

// ScriptFrontEnd extracts files with the Risor script for their language.
// Files are processed by a bounded pool of workers, each with its own
// Runtime so tree-sitter state is never shared between goroutines. All
// writes go through the graph.Client, which serializes them.
type ScriptFrontEnd struct {
	scriptsDir string
	fsys       fs.FS
	workers    int
	cache      *lru.Cache[string, string]
	logger     *slog.Logger
}

// FrontEndOption configures a ScriptFrontEnd.
type FrontEndOption func(*ScriptFrontEnd)

// WithScriptsFS loads scripts from fsys instead of scriptsDir.
func WithScriptsFS(fsys fs.FS) FrontEndOption {
	return func(f *ScriptFrontEnd) {
		f.fsys = fsys
	}
}

// WithWorkers bounds parallel extraction. Values below 1 mean one worker per CPU.
func WithWorkers(n int) FrontEndOption {
	return func(f *ScriptFrontEnd) {
		f.workers = n
	}
}

// WithFrontEndLogger sets the logger for per-file failures and script log output.
func WithFrontEndLogger(logger *slog.Logger) FrontEndOption {
	return func(f *ScriptFrontEnd) {
		f.logger = logger
	}
}

// NewScriptFrontEnd creates a front end loading scripts from scriptsDir.
func NewScriptFrontEnd(scriptsDir string, opts ...FrontEndOption) *ScriptFrontEnd {
	f := &ScriptFrontEnd{
		scriptsDir: scriptsDir,
		logger:     slog.Default(),
		cache:      NewScriptCache(DefaultScriptCacheSize),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.workers < 1 {
		f.workers = goruntime.NumCPU()
	}
	return f
}

// Handles reports whether path has an extraction script.
func (f *ScriptFrontEnd) Handles(path string) bool {
	_, ok := LanguageForFile(path)
	return ok
}

// ParseFiles extracts every file into client. A failing or panicking file
// gets a parse failure error record and the remaining files still run. Every file that
// is started is finished. Only context cancellation is returned.
func (f *ScriptFrontEnd) ParseFiles(ctx context.Context, files, searchPaths []string, client graph.Client) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f.extract(gctx, path, searchPaths, client)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (f *ScriptFrontEnd) extract(ctx context.Context, path string, searchPaths []string, client graph.Client) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("extract panicked", "file", path, "panic", r, "stack", string(debug.Stack()))
			client.ReportError(path, fmt.Sprintf("%spanic: %v", graph.ParseFailurePrefix, r), nil)
		}
		if err := client.FinishFile(path); err != nil {
			f.logger.Warn("finish file", "file", path, "error", err)
		}
	}()

	opts := []RuntimeOption{WithScriptCache(f.cache), WithRuntimeLogger(f.logger)}
	if f.fsys != nil {
		opts = append(opts, WithRuntimeFS(f.fsys))
	}
	rt := NewRuntime(client, f.scriptsDir, opts...)

	if err := rt.ExtractFile(ctx, path, searchPaths); err != nil {
		f.logger.Warn("extract failed", "file", path, "error", err)
		client.ReportError(path, fmt.Sprintf("%s%v", graph.ParseFailurePrefix, err), nil)
	}
}
