// Package vault manages the three parallel file trees backing every binary
// evidence artifact: originals (immutable), working (displayable, may carry
// embedded GPS or be an annotated derivative), and thumbnails. Writes follow
// an atomic write-temp-then-rename pattern so a crash mid-write never
// leaves a partial artifact at a final path.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/inspectcore/inspectcore/internal/evidencehash"
)

// DirPerms restricts vault subdirectories to owner-only access.
const DirPerms = 0o700

// FilePerms restricts vault files to owner-only read/write.
const FilePerms = 0o600

const (
	originalsDir   = "originals"
	workingDir     = "working"
	thumbnailsDir  = "thumbnails"
	annotationsDir = "annotations"
)

// ErrHashMismatch is returned by Verify when an original file's current
// content hash no longer matches the hash recorded at ingest time.
var ErrHashMismatch = errors.New("vault: hash mismatch")

// ErrNotFound is returned when no file exists for a requested id.
var ErrNotFound = errors.New("vault: not found")

// IngestResult describes the files written by a successful Ingest.
type IngestResult struct {
	OriginalPath  string
	Hash          string
	WorkingPath   string
	ThumbnailPath string
}

// Vault is a device-private root directory split into the originals/
// working/thumbnails/annotations trees.
type Vault struct {
	root   string
	logger *slog.Logger
}

// New prepares (creating if necessary) the vault's directory tree rooted
// at root.
func New(root string, logger *slog.Logger) (*Vault, error) {
	v := &Vault{root: root, logger: logger}

	for _, dir := range []string{originalsDir, workingDir, thumbnailsDir, annotationsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), DirPerms); err != nil {
			return nil, fmt.Errorf("vault: creating %s: %w", dir, err)
		}
	}

	return v, nil
}

// Ingest writes sourceBytes as the immutable original for id, hashes it,
// then produces a working copy and (when the extension is a decodable
// image format) a thumbnail. The sequence is all-or-nothing: if any step
// fails, every file written for this id during this call is removed.
func (v *Vault) Ingest(_ context.Context, sourceBytes []byte, ext, id string) (*IngestResult, error) {
	ext = normalizeExt(ext)

	result := &IngestResult{}
	written := make([]string, 0, 3)

	success := false
	defer func() {
		if !success {
			for _, path := range written {
				_ = os.Remove(path)
			}
		}
	}()

	originalPath := filepath.Join(v.root, originalsDir, id+ext)
	if err := writeAtomic(originalPath, sourceBytes); err != nil {
		return nil, fmt.Errorf("vault: writing original: %w", err)
	}

	written = append(written, originalPath)
	result.OriginalPath = originalPath
	result.Hash = evidencehash.HashBytes(sourceBytes)

	workingPath := filepath.Join(v.root, workingDir, id+ext)
	if err := writeAtomic(workingPath, sourceBytes); err != nil {
		return nil, fmt.Errorf("vault: writing working copy: %w", err)
	}

	written = append(written, workingPath)
	result.WorkingPath = workingPath

	if isImageExt(ext) {
		thumbBytes, err := makeThumbnail(sourceBytes)
		if err != nil {
			return nil, fmt.Errorf("vault: generating thumbnail: %w", err)
		}

		thumbnailPath := filepath.Join(v.root, thumbnailsDir, id+".jpg")
		if err := writeAtomic(thumbnailPath, thumbBytes); err != nil {
			return nil, fmt.Errorf("vault: writing thumbnail: %w", err)
		}

		written = append(written, thumbnailPath)
		result.ThumbnailPath = thumbnailPath
	}

	success = true

	v.logger.Debug("vault ingested artifact", "id", id, "hash", result.Hash)

	return result, nil
}

// PutWorking overwrites the working copy for id with newBytes — used when
// a GPS-embedded or annotated derivative replaces the plain working copy.
// The original is never touched.
func (v *Vault) PutWorking(_ context.Context, id, ext string, newBytes []byte) (string, error) {
	workingPath := filepath.Join(v.root, workingDir, id+normalizeExt(ext))
	if err := writeAtomic(workingPath, newBytes); err != nil {
		return "", fmt.Errorf("vault: replacing working copy: %w", err)
	}

	return workingPath, nil
}

// PutAnnotation writes a new timestamped annotation derivative for
// photoID and returns its path. Annotations accumulate; they are never
// overwritten, only superseded by a newer timestamp.
func (v *Vault) PutAnnotation(_ context.Context, photoID string, ts time.Time, jpegBytes []byte) (string, error) {
	name := fmt.Sprintf("%s_%d.jpg", photoID, ts.UnixNano())
	path := filepath.Join(v.root, annotationsDir, name)

	if err := writeAtomic(path, jpegBytes); err != nil {
		return "", fmt.Errorf("vault: writing annotation: %w", err)
	}

	return path, nil
}

// GetDisplayURI returns the best available copy to show a user for id:
// the newest annotation if one exists, else the working copy, else the
// original. Returns ErrNotFound if no tier has a file for id.
func (v *Vault) GetDisplayURI(id string) (string, error) {
	if path := v.latestAnnotation(id); path != "" {
		return path, nil
	}

	if path, ok := v.findByID(workingDir, id); ok {
		return path, nil
	}

	if path, ok := v.findByID(originalsDir, id); ok {
		return path, nil
	}

	return "", ErrNotFound
}

// Delete removes every tier's copy for id (originals, working, thumbnail,
// and any annotations). It does not itself emit a custody event — callers
// log DELETED via internal/custody after a successful call, keeping this
// package free of a dependency on the store.
func (v *Vault) Delete(id string) error {
	if path, ok := v.findByID(originalsDir, id); ok {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("vault: removing original: %w", err)
		}
	}

	if path, ok := v.findByID(workingDir, id); ok {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("vault: removing working copy: %w", err)
		}
	}

	thumbPath := filepath.Join(v.root, thumbnailsDir, id+".jpg")
	if err := os.Remove(thumbPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("vault: removing thumbnail: %w", err)
	}

	matches, _ := filepath.Glob(filepath.Join(v.root, annotationsDir, id+"_*.jpg"))
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("vault: removing annotation %s: %w", m, err)
		}
	}

	return nil
}

// Verify re-hashes the original file for id and compares it against
// expectedHash, returning ErrHashMismatch if they differ.
func (v *Vault) Verify(id, expectedHash string) error {
	path, ok := v.findByID(originalsDir, id)
	if !ok {
		return ErrNotFound
	}

	hash, err := evidencehash.HashFile(path)
	if err != nil {
		return fmt.Errorf("vault: hashing original: %w", err)
	}

	if hash != expectedHash {
		return fmt.Errorf("%w: id=%s want=%s got=%s", ErrHashMismatch, id, expectedHash, hash)
	}

	return nil
}

func (v *Vault) findByID(tierDir, id string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(v.root, tierDir, id+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}

	return matches[0], true
}

func (v *Vault) latestAnnotation(photoID string) string {
	matches, err := filepath.Glob(filepath.Join(v.root, annotationsDir, photoID+"_*.jpg"))
	if err != nil || len(matches) == 0 {
		return ""
	}

	sort.Strings(matches)

	return matches[len(matches)-1]
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}

	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}

	return ext
}

func isImageExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by fsync and rename, so a crash mid-write never leaves a
// partial file at the final path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".vault-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming: %w", err)
	}

	success = true

	return nil
}
