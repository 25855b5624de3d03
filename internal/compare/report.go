package compare

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"treedelta/internal/tree"
)

// FormatReport renders changes as the text report printed by the CLI.
func FormatReport(result *FileChanges) string {
	if !result.HasChanges() {
		return fmt.Sprintf("No changes detected (%d files unchanged).", len(result.Unchanged))
	}

	var b strings.Builder
	b.WriteString("Changes detected:\n\n")

	section := func(title, marker string, paths []string) {
		if len(paths) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s (%d files):\n", title, len(paths))
		for _, p := range paths {
			fmt.Fprintf(&b, "  %s %s\n", marker, p)
		}
		b.WriteString("\n")
	}
	section("ADDED", "+", result.Added)
	section("MODIFIED", "~", result.Modified)
	section("REMOVED", "-", result.Removed)

	fmt.Fprintf(&b, "Summary: %d added, %d modified, %d removed, %d unchanged\n",
		len(result.Added), len(result.Modified), len(result.Removed), len(result.Unchanged))

	return b.String()
}

// FormatManifestDiff renders a unified diff of the two trees' manifests
// ("hash  path" per file). It is empty when the manifests are equal.
func FormatManifestDiff(oldTree, newTree *tree.DAG) (string, error) {
	u := difflib.UnifiedDiff{
		A:        withNewlines(oldTree.Manifest()),
		B:        withNewlines(newTree.Manifest()),
		FromFile: "snapshot",
		ToFile:   newTree.RootPath(),
		Context:  0,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("failed to diff manifests: %w", err)
	}
	return s, nil
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
