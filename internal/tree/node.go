package tree

import (
	"fmt"
	"path"
	"sort"

	"treedelta/internal/hash"
)

// RootName is the path of the root node of every tree.
const RootName = "."

// Node is one entry of a Merkle tree. Files are leaves holding a content
// digest; directories hold their children sorted by Path and a digest over
// the children's (path, hash) pairs. Every node is owned by exactly one
// parent.
type Node struct {
	Path     string  `json:"path" msgpack:"path"`
	Hash     string  `json:"hash" msgpack:"hash"`
	IsFile   bool    `json:"is_file" msgpack:"is_file"`
	Size     int64   `json:"size" msgpack:"size"`
	Children []*Node `json:"children" msgpack:"children"`
}

// NewFile returns a leaf node.
func NewFile(p, digest string, size int64) *Node {
	return &Node{Path: p, Hash: digest, IsFile: true, Size: size, Children: []*Node{}}
}

// NewDir returns a directory node over children and computes its hash.
func NewDir(p string, children []*Node) *Node {
	n := &Node{Path: p, Children: children}
	if n.Children == nil {
		n.Children = []*Node{}
	}
	n.seal()
	return n
}

// seal sorts children byte-wise by path and recomputes the directory hash.
func (n *Node) seal() {
	sort.Slice(n.Children, func(i, j int) bool {
		return n.Children[i].Path < n.Children[j].Path
	})
	n.Hash = childrenHash(n.Children)
}

func childrenHash(children []*Node) string {
	digests := make([]hash.ChildDigest, len(children))
	for i, c := range children {
		digests[i] = hash.ChildDigest{Path: c.Path, Hash: c.Hash}
	}
	return hash.HashChildren(digests)
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Path: n.Path, Hash: n.Hash, IsFile: n.IsFile, Size: n.Size, Children: make([]*Node, len(n.Children))}
	for i, c := range n.Children {
		out.Children[i] = c.Clone()
	}
	return out
}

// Verify checks the structural invariants of a tree that did not come
// from a scan: files have no children, siblings are strictly sorted and
// every directory hash matches its children.
func (n *Node) Verify() error {
	if n == nil {
		return fmt.Errorf("nil node")
	}
	if n.IsFile {
		if len(n.Children) != 0 {
			return fmt.Errorf("file %s has children", n.Path)
		}
		if n.Hash == "" {
			return fmt.Errorf("file %s has no hash", n.Path)
		}
		return nil
	}
	if n.Size != 0 {
		return fmt.Errorf("directory %s has non-zero size", n.Path)
	}
	for i, c := range n.Children {
		if c == nil {
			return fmt.Errorf("directory %s has a nil child", n.Path)
		}
		if path.Dir(c.Path) != n.Path {
			return fmt.Errorf("%s is not a child of %s", c.Path, n.Path)
		}
		if i > 0 && n.Children[i-1].Path >= c.Path {
			return fmt.Errorf("children of %s are not sorted", n.Path)
		}
		if err := c.Verify(); err != nil {
			return err
		}
	}
	if got := childrenHash(n.Children); got != n.Hash {
		return fmt.Errorf("directory %s hash mismatch: stored %s, computed %s", n.Path, n.Hash, got)
	}
	return nil
}
