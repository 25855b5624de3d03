// Package incremental drives a downstream indexing pipeline with the
// output of change detection: stale chunks are purged, changed files are
// re-indexed, and the snapshot is advanced only after both succeed.
package incremental

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"treedelta/internal/compare"
)

// Pipeline is the parsing and embedding stage that consumes file lists.
// Paths are relative to root and slash-separated.
type Pipeline interface {
	// RemoveFiles purges everything stored for paths.
	RemoveFiles(root string, paths []string) error
	// IndexFiles parses and stores paths, returning the number of chunks
	// written.
	IndexFiles(root string, paths []string) (int, error)
}

// Result summarizes one indexing pass.
type Result struct {
	FilesAdded    int
	FilesRemoved  int
	FilesModified int
	ChunksAdded   int
	Changes       *compare.FileChanges
	Duration      time.Duration
	Success       bool
	Skipped       bool
}

// Stats describes the stored state of a project.
type Stats struct {
	RootPath    string
	HasSnapshot bool
	SnapshotAge time.Duration
	SavedAt     time.Time
	FileCount   int
	TotalSize   int64
	RootHash    string
}

// Indexer runs incremental passes for projects.
type Indexer struct {
	detector *compare.Detector
	pipeline Pipeline
	logger   logrus.FieldLogger
	now      func() time.Time
}

// New returns an Indexer feeding pipeline with detector's results.
func New(detector *compare.Detector, pipeline Pipeline, logger logrus.FieldLogger) *Indexer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Indexer{detector: detector, pipeline: pipeline, logger: logger, now: time.Now}
}

// Index brings the pipeline up to date with root. Chunks for removed and
// modified files are purged before any new chunks are written. The
// snapshot is saved after every successful pass, including one with no
// file changes, so structural edits such as a new empty directory are
// recorded too. A failed pass leaves the old snapshot and is retried in
// full next time.
func (ix *Indexer) Index(root string) (*Result, error) {
	start := ix.now()
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	log := ix.logger.WithField("root", abs)

	changes, dag, err := ix.detector.DetectChangesFromSnapshot(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to detect changes: %w", err)
	}

	result := &Result{
		FilesAdded:    len(changes.Added),
		FilesRemoved:  len(changes.Removed),
		FilesModified: len(changes.Modified),
		Changes:       changes,
	}

	if stale := compare.FilesToRemove(changes); len(stale) > 0 {
		if err := ix.pipeline.RemoveFiles(abs, stale); err != nil {
			return result, fmt.Errorf("failed to remove stale files: %w", err)
		}
	}
	if fresh := compare.FilesToReindex(changes); len(fresh) > 0 {
		n, err := ix.pipeline.IndexFiles(abs, fresh)
		if err != nil {
			return result, fmt.Errorf("failed to index files: %w", err)
		}
		result.ChunksAdded = n
	}

	if _, err := ix.detector.Store().Save(dag); err != nil {
		return result, fmt.Errorf("failed to save snapshot: %w", err)
	}

	result.Success = true
	result.Duration = ix.now().Sub(start)
	if !changes.HasChanges() {
		log.Debug("index is up to date")
		return result, nil
	}
	log.WithFields(logrus.Fields{
		"added":    result.FilesAdded,
		"modified": result.FilesModified,
		"removed":  result.FilesRemoved,
		"chunks":   result.ChunksAdded,
	}).Info("incremental index complete")
	return result, nil
}

// NeedsReindex reports whether root has no snapshot or one older than
// maxAge.
func (ix *Indexer) NeedsReindex(root string, maxAge time.Duration) bool {
	age, ok := ix.detector.Store().Age(root)
	return !ok || age > maxAge
}

// AutoReindexIfNeeded runs Index only when NeedsReindex is true. The
// returned Result has Skipped set otherwise.
func (ix *Indexer) AutoReindexIfNeeded(root string, maxAge time.Duration) (*Result, error) {
	if !ix.NeedsReindex(root, maxAge) {
		return &Result{Success: true, Skipped: true, Changes: &compare.FileChanges{}}, nil
	}
	return ix.Index(root)
}

// Stats reports what the store holds for root.
func (ix *Indexer) Stats(root string) (*Stats, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	stats := &Stats{RootPath: abs}
	snap, ok := ix.detector.Store().Load(abs)
	if !ok {
		return stats, nil
	}
	stats.HasSnapshot = true
	stats.SavedAt = snap.SavedAt
	stats.FileCount = snap.FileCount
	stats.TotalSize = snap.TotalSize
	stats.RootHash = snap.RootHash()
	stats.SnapshotAge = ix.detector.Store().AgeOf(snap)
	return stats, nil
}
