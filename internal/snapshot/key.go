package snapshot

import (
	"fmt"
	"path/filepath"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// ProjectKey derives the storage key for a project from its absolute root
// path: a CIDv1 (raw codec, SHA2-256) of the cleaned path, base32 encoded
// so it is safe to use as a file name.
func ProjectKey(rootPath string) (string, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root path: %w", err)
	}
	mh, err := multihash.Sum([]byte(filepath.Clean(abs)), multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("multihash: %w", err)
	}
	c := gocid.NewCidV1(gocid.Raw, mh)
	encoded, err := multibase.Encode(multibase.Base32, c.Bytes())
	if err != nil {
		return "", fmt.Errorf("multibase: %w", err)
	}
	return encoded, nil
}
