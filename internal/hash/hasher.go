package hash

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

const bufferSize = 32 * 1024 // 32KB buffer for streaming

// ChildDigest is the (path, hash) pair a directory digest is built from.
type ChildDigest struct {
	Path string
	Hash string
}

// HashBytes returns the hex xxHash of data.
func HashBytes(data []byte) string {
	return encode(xxhash.Sum64(data))
}

// HashFile computes the xxHash of a file using streaming for large files
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	h := xxhash.New()
	buf := make([]byte, bufferSize)

	for {
		n, err := file.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashChildren digests the children of a directory in the order given.
// Callers sort children by path first; each child contributes
// "path\x00hash\x00" so no two distinct sequences share an encoding.
// An empty sequence hashes to the digest of zero bytes.
func HashChildren(children []ChildDigest) string {
	h := xxhash.New()
	for _, c := range children {
		h.WriteString(c.Path)
		h.Write([]byte{0})
		h.WriteString(c.Hash)
		h.Write([]byte{0})
	}
	return encode(h.Sum64())
}

// XXHashFunc is a custom hash function adapter for go-merkletree
// It converts []byte input to xxHash []byte output
func XXHashFunc(data []byte) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, xxhash.Sum64(data))
	return buf, nil
}

func encode(sum uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, sum)
	return hex.EncodeToString(buf)
}
