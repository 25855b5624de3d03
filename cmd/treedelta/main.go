package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"treedelta/internal/compare"
	"treedelta/internal/config"
	"treedelta/internal/ignore"
	"treedelta/internal/incremental"
	"treedelta/internal/progress"
	"treedelta/internal/snapshot"
	"treedelta/internal/tree"
	"treedelta/internal/watch"
)

// Exit codes: 0 no changes, 1 changes detected, 2 errors.
const (
	exitChanges = 1
	exitError   = 2
)

// errChanges makes status-style commands exit with exitChanges.
var errChanges = errors.New("changes detected")

type options struct {
	configPath string
	workers    int
	verbose    bool
	quiet      bool
	progress   bool
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", config.DefaultPath, "Config file path")
	fs.IntVarP(&o.workers, "workers", "w", 0, "Number of hashing goroutines (default from config, else 2x CPUs)")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "Log debug output")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "Log errors only")
	fs.BoolVar(&o.progress, "progress", false, "Show a progress bar while hashing")
}

// env is what every command needs after flags and config are resolved.
type env struct {
	cfg      *config.Config
	logger   *logrus.Logger
	store    *snapshot.Store
	detector *compare.Detector
	out      io.Writer
}

func (o *options) load(out io.Writer) (*env, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	switch {
	case o.verbose:
		logger.SetLevel(logrus.DebugLevel)
	case o.quiet:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	workers := runtime.NumCPU() * 2
	if cfg.Workers > 0 {
		workers = cfg.Workers
	}
	if o.workers > 0 {
		workers = o.workers
	}

	dir, err := cfg.SnapshotDir()
	if err != nil {
		return nil, err
	}
	store, err := snapshot.NewStore(dir, snapshot.WithFormat(cfg.Format()), snapshot.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	detectorOpts := []compare.Option{
		compare.WithIgnorePatterns(cfg.Exclude...),
		compare.WithWorkers(workers),
		compare.WithLogger(logger),
	}
	if o.progress {
		detectorOpts = append(detectorOpts, compare.WithProgress(progress.New(0, os.Stderr)))
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		detector: compare.NewDetector(store, detectorOpts...),
		out:      out,
	}, nil
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "treedelta",
		Short: "Detect file changes between directory scans using a Merkle DAG",
		Long: `treedelta hashes a directory tree into a Merkle DAG, keeps a snapshot
per project, and reports which files were added, removed or modified
since the last snapshot.

Exit codes: 0 no changes, 1 changes detected, 2 errors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd.PersistentFlags())

	scanCmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "Build the DAG for a directory and save it as the project snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			export, err := cmd.Flags().GetString("export")
			if err != nil {
				return err
			}
			return runScan(e, args[0], export)
		},
	}
	scanCmd.Flags().String("export", "", "Also write the tree to this file (.json or .msgpack)")

	statusCmd := &cobra.Command{
		Use:   "status <directory>",
		Short: "Report changes since the last snapshot without saving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			manifestDiff, err := cmd.Flags().GetBool("manifest-diff")
			if err != nil {
				return err
			}
			return runStatus(e, args[0], manifestDiff)
		},
	}
	statusCmd.Flags().Bool("manifest-diff", false, "Print a unified diff of the file manifests")

	checkCmd := &cobra.Command{
		Use:   "check <directory>",
		Short: "Quickly check whether anything changed since the last snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runCheck(e, args[0])
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update <directory>",
		Short: "List files to re-index and remove, then advance the snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			auto, err := cmd.Flags().GetBool("auto")
			if err != nil {
				return err
			}
			return runUpdate(e, args[0], auto)
		},
	}
	updateCmd.Flags().Bool("auto", false, "Skip when the snapshot is younger than auto_reindex_after")

	statsCmd := &cobra.Command{
		Use:   "stats <directory>",
		Short: "Show what is stored for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runStats(e, args[0])
		},
	}

	compareCmd := &cobra.Command{
		Use:   "compare <tree-file> <directory>",
		Short: "Compare an exported tree against the current directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runCompare(e, args[0], args[1])
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <directory>",
		Short: "Delete the snapshot for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := e.store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Snapshot cleared for %s\n", args[0])
			return nil
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Update the snapshot whenever files change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), e, args[0])
		},
	}

	rootCmd.AddCommand(scanCmd, statusCmd, checkCmd, updateCmd, statsCmd, compareCmd, clearCmd, watchCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errChanges):
		os.Exit(exitChanges)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

func runScan(e *env, directory, export string) error {
	dag, err := e.detector.Scan(directory)
	if err != nil {
		return fmt.Errorf("failed to scan directory: %w", err)
	}
	snap, err := e.store.Save(dag)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	fmt.Fprintf(e.out, "✓ Snapshot saved\n")
	fmt.Fprintf(e.out, "  Root hash: %s\n", dag.RootHash())
	fmt.Fprintf(e.out, "  Files: %d\n", dag.FileCount())
	fmt.Fprintf(e.out, "  Key: %s\n", snap.ProjectKey)

	if export != "" {
		if err := os.MkdirAll(filepath.Dir(export), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if _, err := snapshot.WriteFile(export, dag, snapshot.FormatForPath(export)); err != nil {
			return fmt.Errorf("failed to export tree: %w", err)
		}
		fmt.Fprintf(e.out, "  Output: %s\n", export)
	}
	if n := len(dag.Warnings()); n > 0 {
		fmt.Fprintf(e.out, "\n⚠ Skipped %d files due to errors\n", n)
	}
	return nil
}

func runStatus(e *env, directory string, manifestDiff bool) error {
	changes, current, err := e.detector.DetectChangesFromSnapshot(directory)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, compare.FormatReport(changes))

	if manifestDiff {
		previous := tree.Empty(current.RootPath())
		if snap, ok := e.store.Load(current.RootPath()); ok {
			previous = snap.DAG()
		}
		diff, err := compare.FormatManifestDiff(previous, current)
		if err != nil {
			return err
		}
		fmt.Fprint(e.out, diff)
	}

	if changes.HasChanges() {
		return errChanges
	}
	return nil
}

func runCheck(e *env, directory string) error {
	changed, err := e.detector.QuickCheck(directory)
	if err != nil {
		return err
	}
	if changed {
		fmt.Fprintln(e.out, "changed")
		return errChanges
	}
	fmt.Fprintln(e.out, "unchanged")
	return nil
}

// listPipeline prints the work an indexing pipeline would receive, so the
// CLI can feed shell tooling.
type listPipeline struct {
	out io.Writer
}

func (p listPipeline) RemoveFiles(root string, paths []string) error {
	for _, rel := range paths {
		fmt.Fprintf(p.out, "remove\t%s\n", rel)
	}
	return nil
}

func (p listPipeline) IndexFiles(root string, paths []string) (int, error) {
	for _, rel := range paths {
		fmt.Fprintf(p.out, "index\t%s\n", rel)
	}
	return len(paths), nil
}

func runUpdate(e *env, directory string, auto bool) error {
	indexer := incremental.New(e.detector, listPipeline{out: e.out}, e.logger)

	var (
		result *incremental.Result
		err    error
	)
	if auto {
		result, err = indexer.AutoReindexIfNeeded(directory, e.cfg.AutoReindexAfter)
	} else {
		result, err = indexer.Index(directory)
	}
	if err != nil {
		return err
	}
	if result.Skipped {
		e.logger.WithField("root", directory).Info("snapshot is fresh, skipping update")
		return nil
	}
	e.logger.WithFields(logrus.Fields{
		"added":    result.FilesAdded,
		"modified": result.FilesModified,
		"removed":  result.FilesRemoved,
		"duration": result.Duration,
	}).Info("snapshot updated")
	return nil
}

func runStats(e *env, directory string) error {
	indexer := incremental.New(e.detector, listPipeline{out: io.Discard}, e.logger)
	stats, err := indexer.Stats(directory)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Root: %s\n", stats.RootPath)
	if !stats.HasSnapshot {
		fmt.Fprintln(e.out, "No snapshot")
		return nil
	}
	fmt.Fprintf(e.out, "Root hash: %s\n", stats.RootHash)
	fmt.Fprintf(e.out, "Files: %d\n", stats.FileCount)
	fmt.Fprintf(e.out, "Total size: %d bytes\n", stats.TotalSize)
	fmt.Fprintf(e.out, "Saved: %s (%s ago)\n", stats.SavedAt.Format("2006-01-02 15:04:05"), stats.SnapshotAge.Round(time.Second))
	return nil
}

func runCompare(e *env, treePath, directory string) error {
	saved, err := snapshot.ReadFile(treePath)
	if err != nil {
		return fmt.Errorf("failed to load tree: %w", err)
	}
	fmt.Fprintf(e.out, "Loaded saved tree (root: %s)\n", saved.RootHash())

	current, err := e.detector.Scan(directory)
	if err != nil {
		return fmt.Errorf("failed to scan directory: %w", err)
	}

	changes := compare.DetectChanges(saved.DAG(), current)
	fmt.Fprintln(e.out, compare.FormatReport(changes))

	if n := len(current.Warnings()); n > 0 {
		fmt.Fprintf(e.out, "Skipped: %d files\n", n)
		return fmt.Errorf("%d files could not be read", n)
	}
	if changes.HasChanges() {
		return errChanges
	}
	return nil
}

func runWatch(ctx context.Context, e *env, directory string) error {
	abs, err := filepath.Abs(directory)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	matcher, err := ignore.New(e.detector.Patterns(abs))
	if err != nil {
		return err
	}
	indexer := incremental.New(e.detector, listPipeline{out: e.out}, e.logger)

	// Bring the snapshot up to date before waiting for events.
	if _, err := indexer.Index(abs); err != nil {
		return err
	}

	w, err := watch.New(abs, matcher, e.cfg.WatchDebounce, func(ctx context.Context) error {
		_, err := indexer.Index(abs)
		return err
	}, e.logger)
	if err != nil {
		return err
	}

	e.logger.WithField("root", abs).Info("watching for changes")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
