// Package fileid derives stable document IDs for files ingested from watched
// directories.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "file:"

// DocID returns a stable document ID for the given absolute path. The same path
// always yields the same ID, so a rewritten file replaces its earlier document
// and a removed file can be deleted by path.
func DocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}
