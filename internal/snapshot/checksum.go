package snapshot

import (
	"encoding/hex"
	"fmt"
	"strconv"

	mt "github.com/txaty/go-merkletree"

	"treedelta/internal/hash"
	"treedelta/internal/tree"
)

// leaf is one file record fed to the checksum tree.
type leaf struct {
	path string
	hash string
	size int64
}

func (l leaf) Serialize() ([]byte, error) {
	return []byte(l.path + "\x00" + l.hash + "\x00" + strconv.FormatInt(l.size, 10)), nil
}

// Checksum is a binary Merkle root over the DAG's files in path order. It
// is stored next to the tree and recomputed on load, so a record whose
// file list was damaged is rejected even if its directory hashes happen to
// line up.
func Checksum(d *tree.DAG) (string, error) {
	paths := d.FilePaths()
	blocks := make([]mt.DataBlock, 0, len(paths))
	for _, p := range paths {
		n, _ := d.Lookup(p)
		blocks = append(blocks, leaf{path: p, hash: n.Hash, size: n.Size})
	}

	// go-merkletree needs at least two leaves.
	switch len(blocks) {
	case 0:
		return hash.HashBytes(nil), nil
	case 1:
		data, _ := blocks[0].Serialize()
		return hash.HashBytes(data), nil
	}

	m, err := mt.New(&mt.Config{
		HashFunc: hash.XXHashFunc,
		Mode:     mt.ModeTreeBuild,
	}, blocks)
	if err != nil {
		return "", fmt.Errorf("failed to build checksum tree: %w", err)
	}
	return hex.EncodeToString(m.Root), nil
}
