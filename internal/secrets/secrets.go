// Package secrets handles reading and writing the on-disk credential file.
// The credential file stores the bearer token issued by the host application
// alongside the fields the sync core needs to survive a process restart: the
// active session id, the user's biometric-unlock preference, and the
// timestamp of the last successful online token validation. This is a leaf
// package with no dependency on internal/authjwt or internal/sync, avoiding
// import cycles between them.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credentials directory.
const DirPerms = 0o700

// File is the on-disk format for the credential file.
type File struct {
	BearerToken           string    `json:"bearerToken"`
	SessionID             string    `json:"sessionId"`
	BiometricsEnabled     bool      `json:"biometricsEnabled"`
	LastOnlineValidatedAt time.Time `json:"lastOnlineValidatedAt"`
}

// Load reads the saved credential file from disk. Returns (nil, nil) if the
// file does not exist — this is not an error, it signals "never logged in."
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("secrets: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("secrets: decoding %s: %w", path, err)
	}

	if f.BearerToken == "" {
		return nil, fmt.Errorf("secrets: %s missing bearer token (re-login required)", path)
	}

	return &f, nil
}

// Save writes the credential file to disk atomically (write-to-temp +
// rename) with 0600 permissions. Never logs the bearer token value.
func Save(path string, f *File) error {
	if f == nil || f.BearerToken == "" {
		return errors.New("secrets: refusing to save credentials with empty bearer token")
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("secrets: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename. Same
	// directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".secrets-*.tmp")
	if err != nil {
		return fmt.Errorf("secrets: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("secrets: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("secrets: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close and
	// rename cannot leave an empty or partial credential file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("secrets: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("secrets: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("secrets: renaming: %w", err)
	}

	success = true

	return nil
}

// UpdateLastOnlineValidation loads the credential file, bumps
// LastOnlineValidatedAt to the given time, and saves it back. Called after
// every successful server round-trip so IsStale can bound how long the app
// trusts a cached JWT without a live check-in.
func UpdateLastOnlineValidation(path string, at time.Time) error {
	f, err := Load(path)
	if err != nil {
		return fmt.Errorf("secrets: reading for validation update: %w", err)
	}

	if f == nil {
		return fmt.Errorf("secrets: no credential file at %s", path)
	}

	f.LastOnlineValidatedAt = at

	return Save(path, f)
}

// SetBiometricsEnabled loads the credential file, flips the biometrics
// preference, and saves it back.
func SetBiometricsEnabled(path string, enabled bool) error {
	f, err := Load(path)
	if err != nil {
		return fmt.Errorf("secrets: reading for biometrics update: %w", err)
	}

	if f == nil {
		return fmt.Errorf("secrets: no credential file at %s", path)
	}

	f.BiometricsEnabled = enabled

	return Save(path, f)
}

// IsStale reports whether the last successful online validation is older
// than maxAge. Used to force re-authentication after an extended offline
// period even though the cached JWT has not technically expired.
func (f *File) IsStale(now time.Time, maxAge time.Duration) bool {
	if f.LastOnlineValidatedAt.IsZero() {
		return true
	}

	return now.Sub(f.LastOnlineValidatedAt) > maxAge
}

// Delete removes the credential file. Idempotent: returns nil if the file
// does not already exist. Used by sign-out.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("secrets: removing %s: %w", path, err)
	}

	return nil
}
