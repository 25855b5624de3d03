package compare

import (
	"sort"

	"treedelta/internal/tree"
)

// FileChanges classifies every file path seen in either of two trees.
// The four lists are sorted and pairwise disjoint.
type FileChanges struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Modified  []string `json:"modified"`
	Unchanged []string `json:"unchanged"`
}

// HasChanges reports whether any file was added, removed or modified.
func (c *FileChanges) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Modified) > 0 || len(c.Removed) > 0
}

// TotalChanged counts added, removed and modified files.
func (c *FileChanges) TotalChanged() int {
	return len(c.Added) + len(c.Removed) + len(c.Modified)
}

// Total counts every classified file.
func (c *FileChanges) Total() int {
	return c.TotalChanged() + len(c.Unchanged)
}

// FilesToReindex returns the files that need new chunks: added ∪ modified.
func FilesToReindex(c *FileChanges) []string {
	return union(c.Added, c.Modified)
}

// FilesToRemove returns the files whose stored chunks must be purged
// before new ones are added: removed ∪ modified.
func FilesToRemove(c *FileChanges) []string {
	return union(c.Removed, c.Modified)
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Strings(out)
	return out
}

// DetectChanges compares two built trees file by file. Directories are
// not reported. When the root hashes match every file is unchanged and
// no hashes are compared.
func DetectChanges(oldTree, newTree *tree.DAG) *FileChanges {
	result := &FileChanges{
		Added:     make([]string, 0),
		Removed:   make([]string, 0),
		Modified:  make([]string, 0),
		Unchanged: make([]string, 0),
	}

	if oldTree.RootHash() != "" && oldTree.RootHash() == newTree.RootHash() {
		result.Unchanged = newTree.FilePaths()
		return result
	}

	// Check for added, modified and unchanged files
	for _, p := range newTree.FilePaths() {
		newNode, _ := newTree.Lookup(p)
		oldNode, exists := oldTree.Lookup(p)
		switch {
		case !exists || !oldNode.IsFile:
			result.Added = append(result.Added, p)
		case oldNode.Hash != newNode.Hash:
			result.Modified = append(result.Modified, p)
		default:
			result.Unchanged = append(result.Unchanged, p)
		}
	}

	// Check for removed files
	for _, p := range oldTree.FilePaths() {
		if n, exists := newTree.Lookup(p); !exists || !n.IsFile {
			result.Removed = append(result.Removed, p)
		}
	}

	// FilePaths is sorted, so every list already is.
	return result
}
