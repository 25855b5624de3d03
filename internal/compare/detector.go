package compare

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"treedelta/internal/ignore"
	"treedelta/internal/progress"
	"treedelta/internal/snapshot"
	"treedelta/internal/tree"
)

// Detector compares live directory trees with the snapshots in a store.
type Detector struct {
	store          *snapshot.Store
	ignorePatterns []string
	workers        int
	bar            *progress.Bar
	logger         logrus.FieldLogger
}

// Option configures a Detector.
type Option func(*Detector)

// WithIgnorePatterns adds project exclusions on top of the defaults.
func WithIgnorePatterns(patterns ...string) Option {
	return func(d *Detector) {
		d.ignorePatterns = ignore.Merge(d.ignorePatterns, patterns)
	}
}

// WithWorkers bounds concurrent file hashing.
func WithWorkers(n int) Option {
	return func(d *Detector) {
		d.workers = n
	}
}

// WithProgress reports hashing progress of each scan to bar.
func WithProgress(bar *progress.Bar) Option {
	return func(d *Detector) {
		d.bar = bar
	}
}

// WithLogger sets the logger handed to scans.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// NewDetector returns a Detector backed by store.
func NewDetector(store *snapshot.Store, opts ...Option) *Detector {
	d := &Detector{
		store:   store,
		workers: runtime.NumCPU() * 2,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store returns the snapshot store the detector reads from.
func (d *Detector) Store() *snapshot.Store { return d.store }

// Patterns returns the full ignore list used when scanning rootPath: the
// defaults, the detector's own patterns and, when the snapshot directory
// lives inside rootPath, that directory.
func (d *Detector) Patterns(rootPath string) []string {
	patterns := ignore.Merge(ignore.DefaultPatterns, d.ignorePatterns)
	if rel, ok := within(rootPath, d.store.Dir()); ok {
		patterns = ignore.Merge(patterns, []string{"/" + ignore.Escape(rel) + "/"})
	}
	return patterns
}

// Scan builds a fresh DAG over rootPath with the detector's settings.
// The snapshot directory is excluded when it lives inside rootPath.
func (d *Detector) Scan(rootPath string) (*tree.DAG, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	dag := tree.New(abs,
		tree.WithoutDefaultIgnores(),
		tree.WithIgnorePatterns(d.Patterns(abs)...),
		tree.WithWorkers(d.workers),
		tree.WithProgress(d.bar),
		tree.WithLogger(d.logger),
	)
	if err := dag.Build(); err != nil {
		return nil, err
	}
	return dag, nil
}

// DetectChangesFromSnapshot scans rootPath and diffs it against the last
// snapshot. A missing or corrupt snapshot counts as an empty tree, so
// every file is reported as added. The new DAG is returned for the caller
// to save once downstream processing succeeds.
func (d *Detector) DetectChangesFromSnapshot(rootPath string) (*FileChanges, *tree.DAG, error) {
	current, err := d.Scan(rootPath)
	if err != nil {
		return nil, nil, err
	}

	previous := tree.Empty(current.RootPath())
	if snap, ok := d.store.Load(current.RootPath()); ok {
		previous = snap.DAG()
	} else {
		d.logger.WithField("root", current.RootPath()).Info("no usable snapshot, treating every file as added")
	}

	return DetectChanges(previous, current), current, nil
}

// QuickCheck reports whether anything under rootPath changed since the
// last snapshot, or whether there is no snapshot. Only the root hashes are
// compared. The error is non-nil only when rootPath cannot be scanned.
func (d *Detector) QuickCheck(rootPath string) (bool, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return true, fmt.Errorf("failed to get absolute path: %w", err)
	}
	snap, ok := d.store.Load(abs)
	if !ok {
		return true, nil
	}
	current, err := d.Scan(abs)
	if err != nil {
		return true, err
	}
	return current.RootHash() != snap.RootHash(), nil
}

// within returns child's slash path relative to parent when child lies
// strictly inside parent.
func within(parent, child string) (string, bool) {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
