package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/vmihailenco/msgpack"

	"treedelta/internal/tree"
)

// FormatVersion is bumped whenever the record layout changes. Records with
// another version are treated as absent.
const FormatVersion = 1

// Format selects the on-disk encoding of a snapshot.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatMsgpack:
		return Format(s), nil
	case "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown snapshot format %q", s)
}

// Ext is the file extension used for records in this format.
func (f Format) Ext() string {
	return "." + string(f)
}

// Snapshot is the persisted form of a DAG.
type Snapshot struct {
	Generator  string     `json:"generator" msgpack:"generator"`
	Version    int        `json:"version" msgpack:"version"`
	ProjectKey string     `json:"project_key" msgpack:"project_key"`
	RootPath   string     `json:"root_path" msgpack:"root_path"`
	SavedAt    time.Time  `json:"saved_at" msgpack:"saved_at"`
	FileCount  int        `json:"file_count" msgpack:"file_count"`
	TotalSize  int64      `json:"total_size" msgpack:"total_size"`
	Checksum   string     `json:"checksum" msgpack:"checksum"`
	Ignore     []string   `json:"ignore_patterns" msgpack:"ignore_patterns"`
	Root       *tree.Node `json:"tree" msgpack:"tree"`

	dag *tree.DAG
}

// DAG returns the tree held by the snapshot as a built DAG.
func (s *Snapshot) DAG() *tree.DAG {
	return s.dag
}

// RootHash returns the stored root digest.
func (s *Snapshot) RootHash() string {
	if s.Root == nil {
		return ""
	}
	return s.Root.Hash
}

func newSnapshot(d *tree.DAG, savedAt time.Time) (*Snapshot, error) {
	if !d.Built() {
		return nil, tree.ErrNotBuilt
	}
	key, err := ProjectKey(d.RootPath())
	if err != nil {
		return nil, err
	}
	sum, err := Checksum(d)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Generator:  "treedelta",
		Version:    FormatVersion,
		ProjectKey: key,
		RootPath:   d.RootPath(),
		SavedAt:    savedAt.UTC(),
		FileCount:  d.FileCount(),
		TotalSize:  d.TotalSize(),
		Checksum:   sum,
		Ignore:     d.IgnorePatterns(),
		Root:       d.Root(),
		dag:        d,
	}, nil
}

func encode(s *Snapshot, format Format) ([]byte, error) {
	switch format {
	case FormatMsgpack:
		return msgpack.Marshal(s)
	case FormatJSON:
		return json.MarshalIndent(s, "", "  ")
	}
	return nil, fmt.Errorf("unknown snapshot format %q", format)
}

// decode parses data and checks every integrity property of the record.
func decode(data []byte, format Format) (*Snapshot, error) {
	var s Snapshot
	var err error
	switch format {
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &s)
	case FormatJSON:
		err = json.Unmarshal(data, &s)
	default:
		err = fmt.Errorf("unknown snapshot format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if s.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	if s.Root == nil {
		return nil, fmt.Errorf("snapshot has no tree")
	}
	d, err := tree.FromRoot(s.RootPath, s.Root)
	if err != nil {
		return nil, err
	}
	if d.FileCount() != s.FileCount {
		return nil, fmt.Errorf("file count mismatch: header %d, tree %d", s.FileCount, d.FileCount())
	}
	sum, err := Checksum(d)
	if err != nil {
		return nil, err
	}
	if sum != s.Checksum {
		return nil, fmt.Errorf("checksum mismatch: stored %s, computed %s", s.Checksum, sum)
	}
	s.dag = d
	return &s, nil
}

// FormatForPath picks a format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	if filepath.Ext(path) == FormatMsgpack.Ext() {
		return FormatMsgpack
	}
	return FormatJSON
}

// WriteFile exports d to path, replacing any existing file atomically.
func WriteFile(path string, d *tree.DAG, format Format) (*Snapshot, error) {
	s, err := newSnapshot(d, time.Now())
	if err != nil {
		return nil, err
	}
	if err := writeSnapshot(path, s, format); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadFile loads an exported tree. Unlike Store.Load it reports why a
// file could not be used.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return decode(data, FormatForPath(path))
}

func writeSnapshot(path string, s *Snapshot, format Format) error {
	data, err := encode(s, format)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return writeAtomic(path, data)
}

// writeAtomic publishes data at path through a temporary file in the same
// directory. The temporary file is removed on every failure path.
func writeAtomic(path string, data []byte) error {
	t, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer t.Cleanup()

	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := t.Chmod(0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}
