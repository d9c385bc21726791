// Package fileid provides a deterministic image ID from a file path.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "img:"

// ImageID returns a stable image ID for the given path.
// Same path always yields the same ID. Used as the catalog key for image records.
func ImageID(path string) string {
	normalized := filepath.Clean(path)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}
