package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagDB      string
	flagFormat  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "thicket",
	Short:         "Incremental source code graph indexer",
	Long:          "Thicket indexes source files into a graph of symbols, edges and locations, re-parsing only what changed since the last run.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		slog.SetDefault(newLogger(flagVerbose))
		return nil
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .thicket/index.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log run phases at debug level")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(queryCmd)
}

// newLogger returns a text logger on stderr, so stdout stays reserved for
// command output.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

var (
	flagForce      bool
	flagScriptsDir string
	flagWorkers    int
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a project incrementally",
	Long:  "Detects files changed since the last run, re-parses them and saves the resulting graph to the SQLite database.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "clear stored state and reindex from scratch")
	addFrontEndFlags(indexCmd)
}

// addFrontEndFlags registers the flags shared by commands that parse files.
func addFrontEndFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load extraction scripts from disk path instead of embedded")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel extraction workers (default: one per CPU)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return outputError("index", err)
	}
	proj, err := loadProject(findRepoRoot(targetDir))
	if err != nil {
		return outputError("index", err)
	}

	ctx := cmd.Context()
	sess, err := openSession(ctx, proj, slog.Default())
	if err != nil {
		return outputError("index", err)
	}
	defer sess.Close()

	if flagForce {
		if err := sess.engine.Reset(ctx); err != nil {
			return outputError("index", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", proj.dbPath)
	} else if _, err := sess.engine.Restore(ctx); err != nil {
		return outputError("index", err)
	}

	comp, err := sess.engine.Index(ctx)
	if err != nil {
		return outputError("index", fmt.Errorf("indexing: %w", err))
	}

	fmt.Fprintf(os.Stderr, "Indexed %s in %s (parse: %s, files: %d, errors: %d)\n",
		proj.root,
		time.Since(start).Round(time.Millisecond),
		comp.Elapsed.Round(time.Millisecond),
		comp.FilesProcessed,
		comp.ErrorCount,
	)
	fmt.Fprintf(os.Stderr, "Database: %s\n", proj.dbPath)

	return outputResult(CLIResult{Command: "index", Results: completionToCLI(comp)})
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory or a
// project file. Returns startDir if neither is found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		if _, err := os.Stat(filepath.Join(dir, projectFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag, the project
// file, or the default, in that order.
func resolveDBPath(repoRoot, configured string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	if configured != "" {
		return configured
	}
	return filepath.Join(repoRoot, ".thicket", "index.db")
}
