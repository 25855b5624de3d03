package walker

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"treedelta/internal/hash"
	"treedelta/internal/ignore"
	"treedelta/internal/progress"
)

// FileInfo describes one regular file found by Walk.
type FileInfo struct {
	Path    string // absolute path
	RelPath string // slash-separated path relative to the scan root
	Size    int64
	ModTime time.Time
}

// WalkResult lists what a scan found. Dirs holds every non-ignored
// directory below the root, including empty ones.
type WalkResult struct {
	Files  []FileInfo
	Dirs   []string
	Errors []error
}

// Walk enumerates rootPath, skipping entries matched by m. Symbolic links
// are never followed: links to files and to directories are both left out
// of the result. The root itself may be a link; it is resolved once before
// walking. Only an inaccessible root is an error; failures below the root
// are collected in WalkResult.Errors.
func Walk(rootPath string, m *ignore.Matcher) (*WalkResult, error) {
	resolved, err := filepath.EvalSymlinks(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access root: %w", err)
	}
	rootPath = resolved

	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", rootPath)
	}

	result := &WalkResult{
		Files:  make([]FileInfo, 0),
		Dirs:   make([]string, 0),
		Errors: make([]error, 0),
	}

	err = filepath.WalkDir(rootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// If error is on the root path, return it (don't continue walking)
			if p == rootPath {
				return err
			}
			result.Errors = append(result.Errors, err)
			return nil
		}
		if p == rootPath {
			return nil
		}

		rel, err := filepath.Rel(rootPath, p)
		if err != nil {
			result.Errors = append(result.Errors, err)
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if m.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			result.Dirs = append(result.Dirs, rel)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", rel, err))
			return nil
		}

		result.Files = append(result.Files, FileInfo{
			Path:    p,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return result, nil
}

// FileHash is the digest and size of one hashed file. Size is the number
// of bytes observed at walk time.
type FileHash struct {
	Hash string
	Size int64
}

// HashResult maps relative paths to digests. Files that could not be read
// appear only in Errors.
type HashResult struct {
	Hashes map[string]FileHash
	Errors []error
}

// HashFiles hashes files on up to numWorkers goroutines. A read failure on
// one file never stops the others.
func HashFiles(files []FileInfo, numWorkers int, progressBar *progress.Bar) *HashResult {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	result := &HashResult{
		Hashes: make(map[string]FileHash, len(files)),
		Errors: make([]error, 0),
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(numWorkers)

	for _, fi := range files {
		fi := fi
		g.Go(func() error {
			sum, err := hash.HashFile(fi.Path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("%s: %w", fi.RelPath, err))
				return nil
			}
			result.Hashes[fi.RelPath] = FileHash{Hash: sum, Size: fi.Size}
			progressBar.Step(path.Dir(fi.RelPath))
			return nil
		})
	}

	// Workers never return errors; failures are recorded above.
	_ = g.Wait()

	return result
}
