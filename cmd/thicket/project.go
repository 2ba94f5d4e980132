package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jward/thicket"
	"github.com/jward/thicket/internal/config"
	"github.com/jward/thicket/internal/decl"
	"github.com/jward/thicket/internal/metrics"
	"github.com/jward/thicket/internal/runtime"
	"github.com/jward/thicket/internal/store"
	"github.com/jward/thicket/scripts"
)

const projectFileName = config.ProjectFile

// project is the resolved configuration for one repository: project file,
// global file and flags merged.
type project struct {
	root       string
	dbPath     string
	scriptsDir string
	workers    int
	cfg        thicket.Config
}

// loadProject merges the project file in root, the global file and the
// command-line flags. Without configured source roots the repository root
// itself is indexed.
func loadProject(root string) (project, error) {
	pc, err := config.LoadProject(root)
	if err != nil {
		return project{}, err
	}

	var global config.Global
	if path, err := config.GlobalPath(); err != nil {
		slog.Debug("no global config location", "error", err)
	} else if global, err = config.LoadGlobal(path); err != nil {
		return project{}, err
	}

	p := project{
		root:       root,
		dbPath:     resolveDBPath(root, pc.Database),
		scriptsDir: pc.ScriptsDir,
		workers:    pc.Workers,
		cfg: thicket.Config{
			SourceRoots:        pc.SourceRoots,
			IncludeRoots:       pc.IncludeRoots,
			SourceExtensions:   pc.SourceExtensions,
			IncludeExtensions:  pc.IncludeExtensions,
			ProjectSearchPaths: pc.SearchPaths,
			GlobalSearchPaths:  global.SearchPaths,
		},
	}
	if flagScriptsDir != "" {
		abs, err := filepath.Abs(flagScriptsDir)
		if err != nil {
			return project{}, fmt.Errorf("resolving scripts dir %q: %w", flagScriptsDir, err)
		}
		p.scriptsDir = abs
	}
	if flagWorkers > 0 {
		p.workers = flagWorkers
	}
	if len(p.cfg.SourceRoots) == 0 {
		p.cfg.SourceRoots = []string{root}
	}
	if len(p.cfg.SourceExtensions) == 0 {
		p.cfg.SourceExtensions = defaultExtensions()
	}
	return p, nil
}

// defaultExtensions lists every extension some front end handles.
func defaultExtensions() []string {
	return append(runtime.Extensions(), decl.Extensions...)
}

// newFrontEnd routes script languages to the Risor front end and
// declaration files to the decl front end.
func newFrontEnd(p project, logger *slog.Logger) *thicket.Mux {
	opts := []runtime.FrontEndOption{
		runtime.WithWorkers(p.workers),
		runtime.WithFrontEndLogger(logger),
	}
	if p.scriptsDir == "" {
		opts = append(opts, runtime.WithScriptsFS(scripts.FS))
	}
	return thicket.NewMux().
		Handle(runtime.NewScriptFrontEnd(p.scriptsDir, opts...), runtime.Extensions()...).
		Handle(decl.New(decl.WithLogger(logger)), decl.Extensions...)
}

// session is an engine bound to its snapshot database.
type session struct {
	engine  *thicket.Engine
	store   *store.Store
	metrics *metrics.Recorder
}

// openSession opens (creating if needed) the database for p and builds an
// engine that saves a snapshot at the end of every run.
func openSession(ctx context.Context, p project, logger *slog.Logger, opts ...thicket.Option) (*session, error) {
	st, err := openStore(p.dbPath, true)
	if err != nil {
		return nil, err
	}
	rec := metrics.NewRecorder()
	opts = append([]thicket.Option{
		thicket.WithLogger(logger),
		thicket.WithSnapshotStore(st),
		thicket.WithMetrics(rec),
	}, opts...)
	eng := thicket.New(p.cfg, newFrontEnd(p, logger), opts...)
	logger.DebugContext(ctx, "session opened", "db", p.dbPath, "roots", p.cfg.SourceRoots)
	return &session{engine: eng, store: st, metrics: rec}, nil
}

// Close releases the database.
func (s *session) Close() error {
	return s.store.Close()
}

// openStore opens the database at dbPath. With create unset a missing
// database is an error pointing at 'thicket index'.
func openStore(dbPath string, create bool) (*store.Store, error) {
	if create {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
		}
	} else if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'thicket index' first)", dbPath)
	}
	st, err := store.NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
