package secrets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileNotFound(t *testing.T) {
	f, err := Load("/nonexistent/path/secrets.json")
	assert.Nil(t, f)
	assert.NoError(t, err)
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	validatedAt := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	original := &File{
		BearerToken:           "bearer-abc123",
		SessionID:             "session-xyz",
		BiometricsEnabled:     true,
		LastOnlineValidatedAt: validatedAt,
	}

	require.NoError(t, Save(path, original))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bearer-abc123", f.BearerToken)
	assert.Equal(t, "session-xyz", f.SessionID)
	assert.True(t, f.BiometricsEnabled)
	assert.True(t, f.LastOnlineValidatedAt.Equal(validatedAt))
}

func TestLoad_MissingBearerToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"sessionId":"s1"}`), 0o600))

	f, err := Load(path)
	assert.Nil(t, f)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing bearer token")
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0o600))

	f, err := Load(path)
	assert.Nil(t, f)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub", "dir", "secrets.json")

	err := Save(nested, &File{BearerToken: "a", SessionID: "s"})
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	require.NoError(t, Save(path, &File{BearerToken: "a", SessionID: "s"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	validatedAt := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	original := &File{
		BearerToken:           "bearer",
		SessionID:             "session",
		BiometricsEnabled:     false,
		LastOnlineValidatedAt: validatedAt,
	}

	require.NoError(t, Save(path, original))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original.BearerToken, f.BearerToken)
	assert.Equal(t, original.SessionID, f.SessionID)
	assert.Equal(t, original.BiometricsEnabled, f.BiometricsEnabled)
	assert.True(t, f.LastOnlineValidatedAt.Equal(validatedAt))
}

func TestSave_EmptyBearerToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	err := Save(path, &File{SessionID: "s"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty bearer token")
}

func TestSave_NilFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	err := Save(path, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty bearer token")
}

func TestSave_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	require.NoError(t, Save(path, &File{BearerToken: "first", SessionID: "s1"}))
	require.NoError(t, Save(path, &File{BearerToken: "second", SessionID: "s2"}))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "second", f.BearerToken)
	assert.Equal(t, "s2", f.SessionID)
}

func TestUpdateLastOnlineValidation_UpdatesTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	require.NoError(t, Save(path, &File{BearerToken: "a", SessionID: "s"}))

	validatedAt := time.Date(2026, 7, 31, 8, 30, 0, 0, time.UTC)
	require.NoError(t, UpdateLastOnlineValidation(path, validatedAt))

	f, err := Load(path)
	require.NoError(t, err)
	assert.True(t, f.LastOnlineValidatedAt.Equal(validatedAt))
	assert.Equal(t, "a", f.BearerToken)
}

func TestUpdateLastOnlineValidation_FileNotFound(t *testing.T) {
	err := UpdateLastOnlineValidation("/nonexistent/path/secrets.json", time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no credential file")
}

func TestSetBiometricsEnabled_TogglesFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	require.NoError(t, Save(path, &File{BearerToken: "a", SessionID: "s", BiometricsEnabled: false}))
	require.NoError(t, SetBiometricsEnabled(path, true))

	f, err := Load(path)
	require.NoError(t, err)
	assert.True(t, f.BiometricsEnabled)
}

func TestSetBiometricsEnabled_FileNotFound(t *testing.T) {
	err := SetBiometricsEnabled("/nonexistent/path/secrets.json", true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no credential file")
}

func TestIsStale_NeverValidated(t *testing.T) {
	f := &File{BearerToken: "a"}
	assert.True(t, f.IsStale(time.Now(), 24*time.Hour))
}

func TestIsStale_WithinWindow(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	f := &File{BearerToken: "a", LastOnlineValidatedAt: now.Add(-1 * time.Hour)}
	assert.False(t, f.IsStale(now, 24*time.Hour))
}

func TestIsStale_PastWindow(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	f := &File{BearerToken: "a", LastOnlineValidatedAt: now.Add(-48 * time.Hour)}
	assert.True(t, f.IsStale(now, 24*time.Hour))
}

func TestDelete_RemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")

	require.NoError(t, Save(path, &File{BearerToken: "a", SessionID: "s"}))
	require.NoError(t, Delete(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDelete_AlreadyMissing(t *testing.T) {
	err := Delete("/nonexistent/path/secrets.json")
	assert.NoError(t, err)
}
