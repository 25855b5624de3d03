package compare

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"treedelta/internal/snapshot"
)

// newDetector keeps its snapshots inside root, the way a project-local
// storage directory would be laid out.
func newDetector(t *testing.T, root string) *Detector {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	store, err := snapshot.NewStore(filepath.Join(root, "snapshots"), snapshot.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return NewDetector(store, WithLogger(logger), WithWorkers(4))
}

func TestDetectChangesFromSnapshot(t *testing.T) {
	root := t.TempDir()
	createInitialFiles(t, root)
	detector := newDetector(t, root)

	dag1, err := detector.Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if _, err := detector.Store().Save(dag1); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	writeFile(t, root, "to_modify.py", "# modified content")
	writeFile(t, root, "new_file.py", "# new")

	changes, current, err := detector.DetectChangesFromSnapshot(root)
	if err != nil {
		t.Fatalf("DetectChangesFromSnapshot failed: %v", err)
	}

	if diff := cmp.Diff([]string{"new_file.py"}, changes.Added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"to_modify.py"}, changes.Modified); diff != "" {
		t.Errorf("modified mismatch (-want +got):\n%s", diff)
	}
	if len(changes.Removed) != 0 {
		t.Errorf("expected no removals, got %v", changes.Removed)
	}
	if current == nil || current.RootHash() == dag1.RootHash() {
		t.Error("the fresh DAG should be returned and reflect the edits")
	}
	for _, p := range current.FilePaths() {
		if strings.HasPrefix(p, "snapshots/") {
			t.Errorf("snapshot directory leaked into the scan: %s", p)
		}
	}
}

func TestDetectChangesFromSnapshot_NoSnapshot(t *testing.T) {
	root := t.TempDir()
	createInitialFiles(t, root)
	detector := newDetector(t, root)

	changes, current, err := detector.DetectChangesFromSnapshot(root)
	if err != nil {
		t.Fatalf("DetectChangesFromSnapshot failed: %v", err)
	}
	if diff := cmp.Diff(current.FilePaths(), changes.Added); diff != "" {
		t.Errorf("every file should be added on first run (-want +got):\n%s", diff)
	}
}

func TestDetectChangesFromSnapshot_CorruptSnapshot(t *testing.T) {
	root := t.TempDir()
	createInitialFiles(t, root)
	detector := newDetector(t, root)

	dag1, err := detector.Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := detector.Store().Save(dag1); err != nil {
		t.Fatal(err)
	}
	path, _ := detector.Store().Path(root)
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	changes, _, err := detector.DetectChangesFromSnapshot(root)
	if err != nil {
		t.Fatalf("corrupt snapshot should not surface an error: %v", err)
	}
	if len(changes.Added) != 4 {
		t.Errorf("corrupt snapshot should force a full rebuild, got %d added", len(changes.Added))
	}
}

func TestDetectChangesFromSnapshot_MissingRoot(t *testing.T) {
	root := t.TempDir()
	detector := newDetector(t, root)

	if _, _, err := detector.DetectChangesFromSnapshot(filepath.Join(root, "missing")); err == nil {
		t.Error("an inaccessible root should be an error")
	}
}

func TestQuickCheck(t *testing.T) {
	root := t.TempDir()
	createInitialFiles(t, root)
	detector := newDetector(t, root)

	changed, err := detector.QuickCheck(root)
	if err != nil || !changed {
		t.Fatalf("QuickCheck without snapshot = %v, %v; want true", changed, err)
	}

	dag, err := detector.Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := detector.Store().Save(dag); err != nil {
		t.Fatal(err)
	}

	changed, err = detector.QuickCheck(root)
	if err != nil || changed {
		t.Fatalf("QuickCheck right after save = %v, %v; want false", changed, err)
	}

	writeFile(t, root, "to_modify.py", "# changed")
	if changed, _ := detector.QuickCheck(root); !changed {
		t.Error("QuickCheck should notice a modified file")
	}
}

func TestQuickCheck_AddAndRemove(t *testing.T) {
	root := t.TempDir()
	createInitialFiles(t, root)
	detector := newDetector(t, root)

	dag, err := detector.Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := detector.Store().Save(dag); err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "extra.py", "# extra")
	if changed, _ := detector.QuickCheck(root); !changed {
		t.Error("QuickCheck should notice an added file")
	}
	if err := os.Remove(filepath.Join(root, "extra.py")); err != nil {
		t.Fatal(err)
	}
	if changed, _ := detector.QuickCheck(root); changed {
		t.Error("QuickCheck should be clean once the tree matches again")
	}
	if err := os.Remove(filepath.Join(root, "to_remove.py")); err != nil {
		t.Fatal(err)
	}
	if changed, _ := detector.QuickCheck(root); !changed {
		t.Error("QuickCheck should notice a removed file")
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		parent, child string
		want          string
		ok            bool
	}{
		{"/p", "/p/snapshots", "snapshots", true},
		{"/p", "/p/a/b", "a/b", true},
		{"/p", "/p", "", false},
		{"/p", "/other", "", false},
		{"/p", "/pp/x", "", false},
	}
	for _, tt := range tests {
		got, ok := within(tt.parent, tt.child)
		if got != tt.want || ok != tt.ok {
			t.Errorf("within(%q, %q) = %q, %v; want %q, %v", tt.parent, tt.child, got, ok, tt.want, tt.ok)
		}
	}
}

func TestScan_StoreDirWithGlobCharacters(t *testing.T) {
	root := t.TempDir()
	createInitialFiles(t, root)
	writeFile(t, root, "snap1/keep.py", "# matched by an unescaped class")

	logger, _ := logtest.NewNullLogger()
	store, err := snapshot.NewStore(filepath.Join(root, "snap[1]"), snapshot.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	detector := NewDetector(store, WithLogger(logger))

	dag, err := detector.Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if _, err := detector.Store().Save(dag); err != nil {
		t.Fatal(err)
	}

	again, err := detector.Scan(root)
	if err != nil {
		t.Fatalf("Scan after save failed: %v", err)
	}
	if again.RootHash() != dag.RootHash() {
		t.Error("the snapshot directory leaked into the scan")
	}
	if _, ok := again.Lookup("snap1/keep.py"); !ok {
		t.Error("snap1 must not be excluded by the store directory pattern")
	}
}
