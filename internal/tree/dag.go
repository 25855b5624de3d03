package tree

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"

	"treedelta/internal/ignore"
	"treedelta/internal/progress"
)

var (
	// ErrAlreadyBuilt is returned by Build on a DAG that was already built.
	ErrAlreadyBuilt = errors.New("dag already built")
	// ErrNotBuilt is returned when a DAG is used before Build.
	ErrNotBuilt = errors.New("dag not built")
)

// DAG is one full scan of a root directory. It is built exactly once and
// is read-only afterwards, so a built DAG may be shared between goroutines.
type DAG struct {
	rootPath       string
	ignorePatterns []string
	workers        int
	bar            *progress.Bar
	logger         logrus.FieldLogger

	built    bool
	root     *Node
	index    map[string]*Node
	files    []string
	warnings []error
}

// Option configures a DAG.
type Option func(*DAG)

// WithIgnorePatterns appends patterns to DefaultPatterns.
func WithIgnorePatterns(patterns ...string) Option {
	return func(d *DAG) {
		d.ignorePatterns = ignore.Merge(d.ignorePatterns, patterns)
	}
}

// WithoutDefaultIgnores drops ignore.DefaultPatterns.
func WithoutDefaultIgnores() Option {
	return func(d *DAG) {
		d.ignorePatterns = nil
	}
}

// WithWorkers bounds the number of files hashed concurrently.
func WithWorkers(n int) Option {
	return func(d *DAG) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithProgress reports hashing progress to bar.
func WithProgress(bar *progress.Bar) Option {
	return func(d *DAG) {
		d.bar = bar
	}
}

// WithLogger sets the logger used for scan warnings.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *DAG) {
		d.logger = l
	}
}

// New returns an unbuilt DAG over rootPath. The path is made absolute.
func New(rootPath string, opts ...Option) *DAG {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		abs = filepath.Clean(rootPath)
	}
	d := &DAG{
		rootPath:       abs,
		ignorePatterns: ignore.Merge(ignore.DefaultPatterns),
		workers:        runtime.NumCPU() * 2,
		logger:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Empty returns a built DAG with no files, used as the baseline when no
// snapshot exists.
func Empty(rootPath string) *DAG {
	d := New(rootPath)
	_ = d.setRoot(NewDir(RootName, nil))
	return d
}

// FromRoot returns a built DAG around a tree that was produced elsewhere,
// typically a decoded snapshot. root is verified first.
func FromRoot(rootPath string, root *Node) (*DAG, error) {
	if err := root.Verify(); err != nil {
		return nil, fmt.Errorf("invalid tree: %w", err)
	}
	if root.IsFile || root.Path != RootName {
		return nil, fmt.Errorf("invalid tree: root must be directory %q, got %q", RootName, root.Path)
	}
	d := New(rootPath)
	if err := d.setRoot(root); err != nil {
		return nil, err
	}
	return d, nil
}

// setRoot publishes root and derives the path index.
func (d *DAG) setRoot(root *Node) error {
	index := make(map[string]*Node)
	var files []string
	var dup string
	root.Walk(func(n *Node) bool {
		if _, ok := index[n.Path]; ok && dup == "" {
			dup = n.Path
		}
		index[n.Path] = n
		if n.IsFile {
			files = append(files, n.Path)
		}
		return true
	})
	if dup != "" {
		return fmt.Errorf("invalid tree: duplicate path %s", dup)
	}
	sort.Strings(files)

	d.root = root
	d.index = index
	d.files = files
	d.built = true
	return nil
}

// RootPath returns the absolute path that was scanned.
func (d *DAG) RootPath() string { return d.rootPath }

// IgnorePatterns returns the exclusion patterns applied by Build.
func (d *DAG) IgnorePatterns() []string {
	out := make([]string, len(d.ignorePatterns))
	copy(out, d.ignorePatterns)
	return out
}

// Built reports whether the DAG holds a tree.
func (d *DAG) Built() bool { return d.built }

// Root returns the root node, or nil before Build.
func (d *DAG) Root() *Node { return d.root }

// RootHash returns the digest of the whole tree, or "" before Build.
func (d *DAG) RootHash() string {
	if d.root == nil {
		return ""
	}
	return d.root.Hash
}

// Lookup returns the node at a relative path ("." for the root).
func (d *DAG) Lookup(path string) (*Node, bool) {
	n, ok := d.index[path]
	return n, ok
}

// FilePaths returns every file path in the tree, sorted.
func (d *DAG) FilePaths() []string {
	out := make([]string, len(d.files))
	copy(out, d.files)
	return out
}

// FileCount returns the number of files in the tree.
func (d *DAG) FileCount() int { return len(d.files) }

// TotalSize returns the summed size of all files.
func (d *DAG) TotalSize() int64 {
	var total int64
	for _, p := range d.files {
		total += d.index[p].Size
	}
	return total
}

// Warnings returns the per-entry failures recorded while building.
func (d *DAG) Warnings() []error {
	out := make([]error, len(d.warnings))
	copy(out, d.warnings)
	return out
}

// Manifest returns one "hash  path" line per file in path order.
func (d *DAG) Manifest() []string {
	lines := make([]string, 0, len(d.files))
	for _, p := range d.files {
		lines = append(lines, d.index[p].Hash+"  "+p)
	}
	return lines
}
