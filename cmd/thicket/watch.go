package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jward/thicket"
	"github.com/jward/thicket/internal/watch"
)

var (
	flagMetricsAddr string
	flagDebounce    time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index, then re-index whenever files change",
	Long:  "Runs an index pass, then watches the source and include roots and runs an incremental pass after each burst of changes. With --metrics-addr, Prometheus metrics are served at /metrics.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", watch.DefaultDebounce, "quiet period before a change burst triggers a run")
	addFrontEndFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return outputError("watch", err)
	}
	proj, err := loadProject(findRepoRoot(targetDir))
	if err != nil {
		return outputError("watch", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	sess, err := openSession(ctx, proj, logger, thicket.WithCompletionHandler(func(c thicket.Completion) {
		if err := outputResult(CLIResult{Command: "watch", Results: completionToCLI(c)}); err != nil {
			logger.Error("write completion", "error", err)
		}
	}))
	if err != nil {
		return outputError("watch", err)
	}
	defer sess.Close()

	if _, err := sess.engine.Restore(ctx); err != nil {
		return outputError("watch", err)
	}
	if _, err := sess.engine.Index(ctx); err != nil {
		return outputError("watch", fmt.Errorf("indexing: %w", err))
	}

	roots := append(append([]string{}, proj.cfg.SourceRoots...), proj.cfg.IncludeRoots...)
	w, err := watch.New(roots, func(ctx context.Context, paths []string) {
		logger.Debug("change burst", "paths", len(paths))
		if _, err := sess.engine.Index(ctx); err != nil && ctx.Err() == nil {
			logger.Error("incremental run failed", "error", err)
		}
	}, watch.WithDebounce(flagDebounce), watch.WithLogger(logger))
	if err != nil {
		return outputError("watch", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	if flagMetricsAddr != "" {
		srv := newMetricsServer(flagMetricsAddr, sess.metrics.Handler())
		g.Go(func() error {
			logger.Info("serving metrics", "addr", flagMetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	logger.Info("watching", "roots", roots)
	if err := g.Wait(); err != nil {
		return outputError("watch", err)
	}
	return nil
}

// newMetricsServer serves h at /metrics.
func newMetricsServer(addr string, h http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
