// Package snapshot persists Merkle DAGs between runs, one record per
// project. Records are keyed by ProjectKey(root), written atomically and
// validated on load; a record that fails validation is reported as absent
// so callers fall back to a full rebuild.
//
// Layout:
//
//	<dir>/<project key>.json      (or .msgpack)
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"treedelta/internal/tree"
)

// Store reads and writes snapshots under one directory. A project is
// assumed to have a single writer; concurrent saves for the same project
// are not coordinated and the last completed write wins.
type Store struct {
	dir    string
	format Format
	logger logrus.FieldLogger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithFormat selects the record encoding. The default is JSON.
func WithFormat(f Format) Option {
	return func(s *Store) {
		s.format = f
	}
}

// WithLogger sets the logger used for corrupt-record warnings.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides the time source used for SavedAt and Age.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore opens (creating if needed) a snapshot directory.
func NewStore(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve snapshot dir: %w", err)
	}
	s := &Store{
		dir:    abs,
		format: FormatJSON,
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := ParseFormat(string(s.format)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return s, nil
}

// Dir returns the absolute snapshot directory.
func (s *Store) Dir() string { return s.dir }

// Format returns the record encoding used by Save.
func (s *Store) Format() Format { return s.format }

// Path returns where the record for rootPath is stored.
func (s *Store) Path(rootPath string) (string, error) {
	key, err := ProjectKey(rootPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+s.format.Ext()), nil
}

// Save persists d, replacing the previous record for its root.
func (s *Store) Save(d *tree.DAG) (*Snapshot, error) {
	snap, err := newSnapshot(d, s.now())
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, snap.ProjectKey+s.format.Ext())
	if err := writeSnapshot(path, snap, s.format); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"root":  snap.RootPath,
		"key":   snap.ProjectKey,
		"files": snap.FileCount,
	}).Debug("saved snapshot")
	return snap, nil
}

// Load returns the last saved snapshot for rootPath. The second result is
// false when no record exists or the record is unreadable, corrupt, or
// belongs to another root.
func (s *Store) Load(rootPath string) (*Snapshot, bool) {
	path, err := s.Path(rootPath)
	if err != nil {
		s.logger.WithError(err).WithField("root", rootPath).Warn("cannot derive snapshot key")
		return nil, false
	}
	log := s.logger.WithFields(logrus.Fields{"root": rootPath, "path": path})

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warn("cannot read snapshot, treating as absent")
		}
		return nil, false
	}

	snap, err := decode(data, s.format)
	if err != nil {
		log.WithError(err).Warn("corrupt snapshot, treating as absent")
		return nil, false
	}
	key, _ := ProjectKey(rootPath)
	if snap.ProjectKey != key {
		log.WithField("key", snap.ProjectKey).Warn("snapshot belongs to another project, treating as absent")
		return nil, false
	}
	return snap, true
}

// Exists reports whether a usable snapshot is stored for rootPath.
func (s *Store) Exists(rootPath string) bool {
	_, ok := s.Load(rootPath)
	return ok
}

// Age returns the time since the snapshot for rootPath was saved.
func (s *Store) Age(rootPath string) (time.Duration, bool) {
	snap, ok := s.Load(rootPath)
	if !ok {
		return 0, false
	}
	return s.AgeOf(snap), true
}

// AgeOf returns the time since snap was saved, measured with the store's
// clock. Clock skew never yields a negative age.
func (s *Store) AgeOf(snap *Snapshot) time.Duration {
	age := s.now().Sub(snap.SavedAt)
	if age < 0 {
		age = 0
	}
	return age
}

// Delete removes the snapshot for rootPath. Deleting a missing snapshot is
// not an error.
func (s *Store) Delete(rootPath string) error {
	path, err := s.Path(rootPath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
