package compare

import (
	"strings"
	"testing"
)

func TestFormatReport(t *testing.T) {
	report := FormatReport(&FileChanges{
		Added:     []string{"new.py"},
		Removed:   []string{"gone.py"},
		Modified:  []string{"edit.py"},
		Unchanged: []string{"same.py"},
	})

	for _, want := range []string{"+ new.py", "- gone.py", "~ edit.py", "1 added, 1 modified, 1 removed, 1 unchanged"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	clean := FormatReport(&FileChanges{Unchanged: []string{"a", "b"}})
	if !strings.HasPrefix(clean, "No changes detected") {
		t.Errorf("unexpected clean report %q", clean)
	}
}

func TestFormatManifestDiff(t *testing.T) {
	root := t.TempDir()
	createInitialFiles(t, root)
	before := build(t, root)
	writeFile(t, root, "added.py", "# added")
	after := build(t, root)

	diff, err := FormatManifestDiff(before, after)
	if err != nil {
		t.Fatalf("FormatManifestDiff failed: %v", err)
	}
	if !strings.Contains(diff, "+") || !strings.Contains(diff, "added.py") {
		t.Errorf("diff should show the added file:\n%s", diff)
	}
	if strings.Contains(diff, "unchanged.py") {
		t.Errorf("zero-context diff should not show unchanged files:\n%s", diff)
	}

	same, err := FormatManifestDiff(after, after)
	if err != nil {
		t.Fatal(err)
	}
	if same != "" {
		t.Errorf("identical manifests should produce an empty diff, got:\n%s", same)
	}
}
