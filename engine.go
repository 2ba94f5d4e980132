package thicket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jward/thicket/internal/detect"
	"github.com/jward/thicket/internal/graph"
	"github.com/jward/thicket/internal/metrics"
	"github.com/jward/thicket/internal/store"
)

// Config lists what the Engine indexes. Source and include roots carry their
// own extension filters; an empty filter accepts every file.
type Config struct {
	SourceRoots       []string
	IncludeRoots      []string
	SourceExtensions  []string
	IncludeExtensions []string

	// ProjectSearchPaths come first in the search paths handed to the front
	// end, GlobalSearchPaths last.
	ProjectSearchPaths []string
	GlobalSearchPaths  []string
}

// SnapshotStore persists graph generations across sessions.
type SnapshotStore interface {
	graph.SnapshotSink
	LoadSnapshot(ctx context.Context) (*graph.Snapshot, error)
	Clear(ctx context.Context) error
}

// Engine orchestrates indexing runs: change detection, selective
// invalidation, parsing through a FrontEnd, and completion reporting.
type Engine struct {
	cfg       Config
	frontEnd  FrontEnd
	graph     *graph.Store
	detector  *detect.Detector
	snapshots SnapshotStore
	metrics   *metrics.Recorder
	logger    *slog.Logger
	handlers  []func(Completion)

	running atomic.Bool
	state   atomic.Int32
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the Engine's logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCompletionHandler registers fn to receive every Completion. Handlers run
// synchronously, in registration order, before Index returns.
func WithCompletionHandler(fn func(Completion)) Option {
	return func(e *Engine) {
		e.handlers = append(e.handlers, fn)
	}
}

// WithMetrics records run metrics into r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithSnapshotStore persists the graph at the end of every run and enables
// Restore.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(e *Engine) {
		e.snapshots = s
	}
}

// WithStore uses g instead of a fresh graph store.
func WithStore(g *graph.Store) Option {
	return func(e *Engine) {
		e.graph = g
	}
}

// New creates an idle Engine with an empty graph.
func New(cfg Config, fe FrontEnd, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		frontEnd: fe,
		logger:   slog.Default(),
		detector: detect.New(detect.Config{
			SourceRoots:       cfg.SourceRoots,
			IncludeRoots:      cfg.IncludeRoots,
			SourceExtensions:  cfg.SourceExtensions,
			IncludeExtensions: cfg.IncludeExtensions,
		}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.graph == nil {
		e.graph = graph.NewStore()
	}
	if e.snapshots != nil {
		e.graph.SetSink(e.snapshots)
	}
	return e
}

// State returns the current run state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.logger.Debug("engine state", "state", s.String())
}

// Graph returns a read-only view of nodes and edges.
func (e *Engine) Graph() GraphView {
	return GraphView{store: e.graph}
}

// Locations returns a read-only view of locations, error records and files.
func (e *Engine) Locations() LocationView {
	return LocationView{store: e.graph}
}

// acquire takes the one-run-at-a-time lock without blocking.
func (e *Engine) acquire() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	return nil
}

func (e *Engine) release() {
	e.running.Store(false)
}

// Index runs one incremental indexing pass. It fails fast with
// ErrRunInProgress if another run is active. A *FileAccessError means the
// project could not be enumerated; the graph is then untouched.
func (e *Engine) Index(ctx context.Context) (Completion, error) {
	if err := e.acquire(); err != nil {
		e.recordOutcome(metrics.OutcomeRejected, 0, 0)
		return Completion{}, err
	}
	defer e.release()
	defer e.setState(StateIdle)

	start := time.Now()
	comp, err := e.run(ctx, uuid.NewString())
	if err != nil {
		e.recordOutcome(metrics.OutcomeFailed, 0, 0)
		return Completion{}, err
	}
	e.recordOutcome(metrics.OutcomeCompleted, time.Since(start), comp.Elapsed)
	e.emit(comp)
	return comp, nil
}

func (e *Engine) run(ctx context.Context, runID string) (Completion, error) {
	log := e.logger.With("run_id", runID)
	comp := Completion{RunID: runID}

	e.setState(StateDiffing)
	if !e.detector.HasRoots() {
		log.Debug("no source roots configured")
		comp.ErrorCount = e.graph.ErrorCount()
		return comp, nil
	}
	scan, err := e.detector.Scan(ctx)
	if err != nil {
		return Completion{}, fmt.Errorf("thicket: scan: %w", err)
	}
	diff := e.detector.Diff(scan)
	comp.Added, comp.Updated, comp.Removed = len(diff.Added), len(diff.Updated), len(diff.Removed)
	log.Debug("diff", "added", comp.Added, "updated", comp.Updated, "removed", comp.Removed, "unchanged", len(diff.Unchanged))
	if e.metrics != nil {
		e.metrics.FilesChanged(comp.Added, comp.Updated, comp.Removed)
	}

	elapsed, failed, err := e.invalidateAndParse(ctx, log, diff, scan)
	if err != nil {
		return Completion{}, err
	}

	e.setState(StateReporting)
	comp.FilesProcessed = len(diff.WorkList())
	comp.Elapsed = elapsed
	comp.ErrorCount = e.graph.ErrorCount()

	// Files the front end could not finish are left out of the committed
	// scan so the next run parses them again.
	for _, path := range failed {
		delete(scan, path)
	}
	// The in-memory graph now matches scan even if persisting it fails.
	e.detector.Commit(scan)
	if err := e.graph.Commit(ctx); err != nil {
		return Completion{}, fmt.Errorf("thicket: %w", err)
	}
	if e.metrics != nil {
		st := e.graph.Stats()
		e.metrics.GraphSize(metrics.GraphSize{
			Nodes: st.Nodes, Edges: st.Edges, Locations: st.Locations, Errors: st.Errors, Files: st.Files,
		})
	}
	log.Info("indexing complete",
		"files", comp.FilesProcessed,
		"elapsed", comp.Elapsed,
		"errors", comp.ErrorCount,
	)
	return comp, nil
}

// invalidateAndParse runs the Invalidating and Parsing phases under the run
// gate. It returns the wall-clock time of the parsing phase and the work-list
// files the Engine had to seal itself. Only context cancellation fails the
// run; any other front-end failure, panics included, becomes a parse failure
// record on each unfinished file.
func (e *Engine) invalidateAndParse(ctx context.Context, log *slog.Logger, diff detect.Diff, scan detect.Scan) (time.Duration, []string, error) {
	e.graph.BeginRun()
	defer e.graph.EndRun()

	e.setState(StateInvalidating)
	for _, path := range diff.Invalidated() {
		e.graph.InvalidateFile(path)
	}

	e.setState(StateParsing)
	work := diff.WorkList()
	if len(work) == 0 {
		return 0, nil, nil
	}

	start := time.Now()
	for _, path := range work {
		e.graph.RegisterFile(path, scan[path].Hash)
	}
	parseErr := e.parse(ctx, work)
	if parseErr != nil {
		log.Warn("front end failed", "error", parseErr)
	}
	failed := e.sealUnfinished(log, work, parseErr)
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return 0, nil, fmt.Errorf("thicket: parse: %w", err)
	}
	return elapsed, failed, nil
}

// parse hands the work list to the front end. A panic is returned as an
// error so it cannot escape with the run gate held.
func (e *Engine) parse(ctx context.Context, work []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.frontEnd.ParseFiles(ctx, work, e.searchPaths(), e.graph)
}

// sealUnfinished records a parse failure for every work-list file the front
// end did not finish, then seals it. The file's signature is dropped so a
// restored session does not treat it as up to date. It returns the files it
// sealed.
func (e *Engine) sealUnfinished(log *slog.Logger, work []string, cause error) []string {
	reason := "front end did not finish the file"
	if cause != nil {
		reason = cause.Error()
	}
	var sealed []string
	for _, path := range work {
		if e.graph.Sealed(path) {
			continue
		}
		log.Warn("unfinished file", "file", path, "reason", reason)
		e.graph.RegisterFile(path, "")
		e.graph.ReportError(path, ParseFailurePrefix+reason, nil)
		if err := e.graph.FinishFile(path); err != nil {
			log.Error("seal file", "file", path, "error", err)
		}
		sealed = append(sealed, path)
	}
	return sealed
}

// searchPaths returns project search paths, source roots, include roots and
// global search paths, keeping the first occurrence of each.
func (e *Engine) searchPaths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{
		e.cfg.ProjectSearchPaths,
		e.cfg.SourceRoots,
		e.cfg.IncludeRoots,
		e.cfg.GlobalSearchPaths,
	} {
		for _, p := range group {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) emit(c Completion) {
	for _, fn := range e.handlers {
		fn(c)
	}
}

func (e *Engine) recordOutcome(outcome string, total, parse time.Duration) {
	if e.metrics != nil {
		e.metrics.RunFinished(outcome, total, parse)
	}
}

// Reset clears storage: the graph and its allocator, the change snapshot, and
// the persisted snapshot when one is configured. The next Index treats every
// file as added.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	e.graph.Reset()
	e.detector.Clear()
	if e.snapshots != nil {
		if err := e.snapshots.Clear(ctx); err != nil {
			return fmt.Errorf("thicket: reset: %w", err)
		}
	}
	e.logger.Info("storage cleared")
	return nil
}

// Restore loads the persisted snapshot into the graph and primes change
// detection from its file records, so the next Index only processes what
// changed since that snapshot. It reports whether anything was restored.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	if e.snapshots == nil {
		return false, nil
	}
	if err := e.acquire(); err != nil {
		return false, err
	}
	defer e.release()

	snap, err := e.snapshots.LoadSnapshot(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("thicket: restore: %w", err)
	}
	if err := e.graph.Restore(snap); err != nil {
		e.detector.Clear()
		return false, fmt.Errorf("thicket: restore: %w", err)
	}
	// The graph now mirrors the snapshot store, so the next Commit only
	// writes what the run changes.
	e.graph.MarkSynced()

	hashes := make(map[string]string, len(snap.Files))
	for _, f := range snap.Files {
		if f.Signature != "" {
			hashes[f.Path] = f.Signature
		}
	}
	e.detector.Prime(hashes)
	e.logger.Info("snapshot restored", "files", len(hashes), "last_id", int64(snap.LastID))
	return true, nil
}
