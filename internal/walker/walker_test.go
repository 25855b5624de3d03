package walker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"treedelta/internal/ignore"
)

func mustMatcher(t *testing.T, patterns ...string) *ignore.Matcher {
	t.Helper()
	m, err := ignore.New(patterns)
	if err != nil {
		t.Fatalf("ignore.New failed: %v", err)
	}
	return m
}

func writeFiles(t *testing.T, root string, files []string) {
	t.Helper()
	for _, f := range files {
		fullPath := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte("content"), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
}

func relPaths(files []FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	sort.Strings(out)
	return out
}

func TestWalk_AllFiles(t *testing.T) {
	tmpDir := t.TempDir()

	files := []string{
		"file1.txt",
		"file2.go",
		"subdir/file3.txt",
		"subdir/nested/file4.md",
	}
	writeFiles(t, tmpDir, files)

	result, err := Walk(tmpDir, nil)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := append([]string(nil), files...)
	sort.Strings(want)
	if diff := cmp.Diff(want, relPaths(result.Files)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	sort.Strings(result.Dirs)
	if diff := cmp.Diff([]string{"subdir", "subdir/nested"}, result.Dirs); diff != "" {
		t.Errorf("dirs mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_WithExclusions(t *testing.T) {
	tmpDir := t.TempDir()

	files := map[string]bool{
		"file1.txt":           false,
		"file2.tmp":           true,
		"file3.log":           true,
		"node_modules/lib.js": true,
		"src/main.go":         false,
		"dist/output.js":      true,
		".git/config":         true,
	}
	for f := range files {
		writeFiles(t, tmpDir, []string{f})
	}

	m := mustMatcher(t, "*.tmp", "*.log", "node_modules/", "dist/", ".git/")
	result, err := Walk(tmpDir, m)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if diff := cmp.Diff([]string{"file1.txt", "src/main.go"}, relPaths(result.Files)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	for _, d := range result.Dirs {
		if d == "node_modules" || d == "dist" || d == ".git" {
			t.Errorf("ignored directory %s should not be listed", d)
		}
	}
}

func TestWalk_EmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}

	result, err := Walk(tmpDir, nil)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if len(result.Files) != 0 {
		t.Errorf("Expected 0 files, got %d", len(result.Files))
	}
	if diff := cmp.Diff([]string{"empty"}, result.Dirs); diff != "" {
		t.Errorf("dirs mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_NonExistentDirectory(t *testing.T) {
	_, err := Walk("/nonexistent/directory", nil)
	if err == nil {
		t.Error("Walk should return error for nonexistent directory")
	}
}

func TestWalk_RootIsFile(t *testing.T) {
	tmpDir := t.TempDir()
	f := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Walk(f, nil); err == nil {
		t.Error("Walk should reject a root that is not a directory")
	}
}

func TestWalk_SkipsSymlinks(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, []string{"real.txt", "dir/inner.txt"})

	if err := os.Symlink(filepath.Join(tmpDir, "real.txt"), filepath.Join(tmpDir, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(tmpDir, "dir"), filepath.Join(tmpDir, "linkdir")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	result, err := Walk(tmpDir, nil)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if diff := cmp.Diff([]string{"dir/inner.txt", "real.txt"}, relPaths(result.Files)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_SymlinkedRoot(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "target")
	writeFiles(t, target, []string{"a.py", "pkg/b.py"})

	link := filepath.Join(tmpDir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	result, err := Walk(link, nil)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a.py", "pkg/b.py"}, relPaths(result.Files)); diff != "" {
		t.Errorf("files under a linked root mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"pkg"}, result.Dirs); diff != "" {
		t.Errorf("dirs mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_DanglingRootLink(t *testing.T) {
	tmpDir := t.TempDir()
	link := filepath.Join(tmpDir, "link")
	if err := os.Symlink(filepath.Join(tmpDir, "missing"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := Walk(link, nil); err == nil {
		t.Error("a root link to nothing should be an error")
	}
}

func TestWalk_FileInfoMetadata(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	content := []byte("Hello, World!")

	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	result, err := Walk(tmpDir, nil)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if len(result.Files) != 1 {
		t.Fatalf("Expected 1 file, got %d", len(result.Files))
	}

	fileInfo := result.Files[0]

	if !filepath.IsAbs(fileInfo.Path) {
		t.Error("File path should be absolute")
	}
	if fileInfo.RelPath != "test.txt" {
		t.Errorf("RelPath = %q, want test.txt", fileInfo.RelPath)
	}
	if fileInfo.Size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), fileInfo.Size)
	}
	if fileInfo.ModTime.IsZero() {
		t.Error("ModTime should be set")
	}
}

func makeFiles(t *testing.T, dir string, count int) []FileInfo {
	t.Helper()
	files := make([]FileInfo, 0, count)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("file%d.txt", i)
		filename := filepath.Join(dir, name)
		content := []byte(fmt.Sprintf("content-%d", i))
		if err := os.WriteFile(filename, content, 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}

		info, _ := os.Stat(filename)
		files = append(files, FileInfo{
			Path:    filename,
			RelPath: name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files
}

func TestHashFiles_AllFilesProcessed(t *testing.T) {
	files := makeFiles(t, t.TempDir(), 10)

	result := HashFiles(files, 4, nil)

	if len(result.Hashes) != len(files) {
		t.Errorf("Expected %d hashes, got %d", len(files), len(result.Hashes))
	}
	for path, fh := range result.Hashes {
		if fh.Hash == "" {
			t.Errorf("Hash for %s is empty", path)
		}
	}
}

func TestHashFiles_ErrorHandling(t *testing.T) {
	tmpDir := t.TempDir()

	validFile := filepath.Join(tmpDir, "valid.txt")
	if err := os.WriteFile(validFile, []byte("content"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	files := []FileInfo{
		{Path: validFile, RelPath: "valid.txt", Size: 7},
		{Path: "/nonexistent/file.txt", RelPath: "file.txt"},
	}

	result := HashFiles(files, 2, nil)

	if _, ok := result.Hashes["valid.txt"]; !ok {
		t.Error("Valid file should be hashed")
	}
	if _, ok := result.Hashes["file.txt"]; ok {
		t.Error("Unreadable file should not be hashed")
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected 1 error, got %d", len(result.Errors))
	}
}

func TestHashFiles_Concurrency(t *testing.T) {
	files := makeFiles(t, t.TempDir(), 100)

	var baseline map[string]FileHash
	for _, workers := range []int{1, 2, 4, 8} {
		result := HashFiles(files, workers, nil)

		if len(result.Hashes) != len(files) {
			t.Errorf("Workers=%d: Expected %d hashes, got %d", workers, len(files), len(result.Hashes))
		}
		if baseline == nil {
			baseline = result.Hashes
			continue
		}
		if diff := cmp.Diff(baseline, result.Hashes); diff != "" {
			t.Errorf("Workers=%d: hashes differ from single worker run:\n%s", workers, diff)
		}
	}
}
