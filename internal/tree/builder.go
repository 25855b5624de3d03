package tree

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"treedelta/internal/ignore"
	"treedelta/internal/walker"
)

// Build scans the root directory and publishes the tree:
//  1. Walk the root, dropping ignored entries
//  2. Hash files on a bounded worker pool
//  3. Attach each node to its parent directory
//  4. Seal directories deepest first so every child hash is final
//
// Files that cannot be read are logged and left out. Only an inaccessible
// root fails the build.
func (d *DAG) Build() error {
	if d.built {
		return ErrAlreadyBuilt
	}

	matcher, err := ignore.New(d.ignorePatterns)
	if err != nil {
		return fmt.Errorf("failed to compile ignore patterns: %w", err)
	}

	log := d.logger.WithField("root", d.rootPath)

	walkResult, err := walker.Walk(d.rootPath, matcher)
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}
	d.warn(log, walkResult.Errors)

	d.bar.SetTotal(int64(len(walkResult.Files)))
	hashResult := walker.HashFiles(walkResult.Files, d.workers, d.bar)
	d.bar.Finish()
	d.warn(log, hashResult.Errors)

	root := assemble(walkResult.Dirs, hashResult.Hashes)
	if err := d.setRoot(root); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"files":    len(d.files),
		"skipped":  len(d.warnings),
		"rootHash": root.Hash,
	}).Debug("built merkle dag")
	return nil
}

func (d *DAG) warn(log logrus.FieldLogger, errs []error) {
	for _, err := range errs {
		log.WithError(err).Warn("skipping unreadable entry")
		d.warnings = append(d.warnings, err)
	}
}

// assemble links files and directories into a tree and hashes it bottom-up.
func assemble(dirs []string, files map[string]walker.FileHash) *Node {
	root := &Node{Path: RootName, Children: []*Node{}}
	nodes := map[string]*Node{RootName: root}

	// Parents sort before their children, so each parent exists when
	// its child is attached.
	sorted := append([]string(nil), dirs...)
	sort.Slice(sorted, func(i, j int) bool { return depth(sorted[i]) < depth(sorted[j]) })
	for _, dir := range sorted {
		n := &Node{Path: dir, Children: []*Node{}}
		nodes[dir] = n
		parent := dirNode(nodes, path.Dir(dir))
		parent.Children = append(parent.Children, n)
	}

	for p, fh := range files {
		parent := dirNode(nodes, path.Dir(p))
		parent.Children = append(parent.Children, NewFile(p, fh.Hash, fh.Size))
	}

	all := make([]string, 0, len(nodes))
	for p := range nodes {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return depth(all[i]) > depth(all[j]) })
	for _, p := range all {
		if p != RootName {
			nodes[p].seal()
		}
	}
	root.seal()
	return root
}

// dirNode returns the directory node for p, creating any missing ancestors.
// Walk lists every directory it descends into, so creation only happens
// when a directory entry was lost to an error.
func dirNode(nodes map[string]*Node, p string) *Node {
	if n, ok := nodes[p]; ok {
		return n
	}
	n := &Node{Path: p, Children: []*Node{}}
	nodes[p] = n
	parent := dirNode(nodes, path.Dir(p))
	parent.Children = append(parent.Children, n)
	return n
}

func depth(p string) int {
	return strings.Count(p, "/")
}
