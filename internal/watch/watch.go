// Package watch triggers change detection when files under a root change.
// Events are coalesced: a burst of writes produces one callback after the
// tree has been quiet for the debounce interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"treedelta/internal/ignore"
)

// DefaultDebounce is used when New is given a non-positive interval.
const DefaultDebounce = 500 * time.Millisecond

// Func is called after each quiet period that followed at least one
// relevant event.
type Func func(ctx context.Context) error

// Watcher follows a directory tree with fsnotify.
type Watcher struct {
	root     string
	matcher  *ignore.Matcher
	debounce time.Duration
	onChange Func
	logger   logrus.FieldLogger
	watcher  *fsnotify.Watcher
}

// New watches every non-ignored directory below root. Directories created
// later are picked up as they appear.
func New(root string, matcher *ignore.Matcher, debounce time.Duration, onChange Func, logger logrus.FieldLogger) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		root:     abs,
		matcher:  matcher,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.WithField("root", abs),
		watcher:  fw,
	}
	if err := w.addTree(abs); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree registers dir and its non-ignored subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			w.logger.WithError(err).WithField("path", p).Warn("cannot watch directory")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.ignored(p, true) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			if p == dir {
				return fmt.Errorf("failed to watch %s: %w", p, err)
			}
			w.logger.WithError(err).WithField("path", p).Warn("cannot watch directory")
		}
		return nil
	})
}

func (w *Watcher) ignored(p string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	return w.matcher.Match(filepath.ToSlash(rel), isDir)
}

// Run dispatches events until ctx is cancelled or the watcher fails. Errors
// from the callback are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce <-chan time.Time
	var timer *time.Timer
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(w.debounce)
		debounce = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.WithFields(logrus.Fields{"path": event.Name, "op": event.Op.String()}).Debug("change event")
			schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("event queue overflowed, scheduling a full check")
				schedule()
				continue
			}
			return fmt.Errorf("watcher error: %w", err)

		case <-debounce:
			debounce = nil
			if err := w.onChange(ctx); err != nil {
				w.logger.WithError(err).Error("change handler failed")
			}
		}
	}
}

// relevant filters out ignored paths and registers new directories.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	isDir := false
	if event.Has(fsnotify.Create) {
		if fi, err := os.Lstat(event.Name); err == nil && fi.IsDir() {
			isDir = true
		}
	}
	if w.ignored(event.Name, isDir) {
		return false
	}
	if isDir {
		if err := w.addTree(event.Name); err != nil {
			w.logger.WithError(err).WithField("path", event.Name).Warn("cannot watch new directory")
		}
	}
	return true
}
