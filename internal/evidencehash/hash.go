// Package evidencehash provides the two primitives every artifact in the
// vault is verified against: a streamed SHA-256 content hash, and a
// best-effort GPS EXIF codec for JPEG originals. Hashing streams through
// a bounded buffer so multi-hundred-megabyte videos never load wholly
// into memory.
package evidencehash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HashBytes returns the lowercase hex SHA-256 digest of b. The empty
// input hashes to the well-known e3b0c4...b855.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashFile streams a file's contents through SHA-256 in constant memory
// and returns the lowercase hex digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("evidencehash: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("evidencehash: hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
