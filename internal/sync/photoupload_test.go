package sync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspectcore/inspectcore/internal/config"
	"github.com/inspectcore/inspectcore/internal/netmon"
	"github.com/inspectcore/inspectcore/internal/store"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "original.jpg")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o600))

	return p
}

func newTestEngine(t *testing.T, s Store, custody CustodyLog, vault Vault, client HTTPClient, uploadHTTP *http.Client, netMon NetMonitor, cfg *config.Config) *Engine {
	t.Helper()

	if cfg == nil {
		cfg = &config.Config{}
	}

	return NewEngine(s, custody, vault, client, uploadHTTP, netMon, config.NewHolder(cfg, ""), testLogger(), Callbacks{})
}

func TestUploadOnePhoto_HappyPath(t *testing.T) {
	originalPath := writeTempFile(t, "fake-jpeg-bytes")

	var putCalled, confirmCalled bool

	upSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		putCalled = true
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "fake-jpeg-bytes", string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer upSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		confirmCalled = true
		assert.Contains(t, r.URL.Path, "/confirm-upload")
		w.WriteHeader(http.StatusOK)
	}))
	defer apiSrv.Close()

	s := newFakeStore()
	photo := &store.Photo{ID: "p1", OriginalPath: originalPath, MimeType: "image/jpeg", OriginalHash: "abc", SyncStatus: store.BinaryStatusCaptured}
	s.photos["p1"] = photo

	custody := &fakeCustody{}
	vault := &fakeVault{}

	e := newTestEngine(t, s, custody, vault, newStubHTTPClient(apiSrv.URL), http.DefaultClient, nil, nil)

	uploaded, err := e.uploadOnePhoto(context.Background(), pendingPhotoUpload{PhotoID: "p1", UploadURL: upSrv.URL + "/put?sig=abc"})
	require.NoError(t, err)
	assert.True(t, uploaded)
	assert.True(t, putCalled)
	assert.True(t, confirmCalled)

	assert.Equal(t, store.BinaryStatusSynced, photo.SyncStatus)
	assert.Equal(t, upSrv.URL+"/put", photo.UploadedURL)
	require.Len(t, custody.synced, 1)
}

func TestUploadOnePhoto_MissingPhotoIsNotAnError(t *testing.T) {
	s := newFakeStore()
	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, nil, http.DefaultClient, nil, nil)

	uploaded, err := e.uploadOnePhoto(context.Background(), pendingPhotoUpload{PhotoID: "missing"})
	require.NoError(t, err)
	assert.False(t, uploaded)
}

func TestUploadOnePhoto_DefersOnWifiGating(t *testing.T) {
	originalPath := writeTempFile(t, "big-file")

	s := newFakeStore()
	photo := &store.Photo{ID: "p1", OriginalPath: originalPath, FileSize: 100 * 1024 * 1024, SyncStatus: store.BinaryStatusCaptured}
	s.photos["p1"] = photo

	cfg := &config.Config{}
	cfg.Sync.PhotosWifiOnly = true
	cfg.Sync.WifiOnlyThresholdMb = 10

	netMon := &fakeNetMon{status: netmon.Status{Connected: true, Type: netmon.ConnTypeCellular}}

	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, nil, http.DefaultClient, netMon, cfg)

	uploaded, err := e.uploadOnePhoto(context.Background(), pendingPhotoUpload{PhotoID: "p1", UploadURL: "http://example.invalid/put"})
	require.NoError(t, err)
	assert.False(t, uploaded)
	assert.Equal(t, store.BinaryStatusCaptured, photo.SyncStatus)
}

func TestUploadOnePhoto_ConfirmUploadFailureDoesNotFailSync(t *testing.T) {
	originalPath := writeTempFile(t, "bytes")

	upSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer apiSrv.Close()

	s := newFakeStore()
	photo := &store.Photo{ID: "p1", OriginalPath: originalPath, OriginalHash: "abc", SyncStatus: store.BinaryStatusCaptured}
	s.photos["p1"] = photo

	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient(apiSrv.URL), http.DefaultClient, nil, nil)

	uploaded, err := e.uploadOnePhoto(context.Background(), pendingPhotoUpload{PhotoID: "p1", UploadURL: upSrv.URL})
	require.NoError(t, err)
	assert.True(t, uploaded)
	assert.Equal(t, store.BinaryStatusSynced, photo.SyncStatus)
}

func TestUploadOnePhoto_HashMismatchLoggedNotFailed(t *testing.T) {
	originalPath := writeTempFile(t, "bytes")

	upSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer apiSrv.Close()

	s := newFakeStore()
	photo := &store.Photo{ID: "p1", OriginalPath: originalPath, OriginalHash: "abc", SyncStatus: store.BinaryStatusCaptured}
	s.photos["p1"] = photo

	vault := &fakeVault{mismatches: map[string]bool{"p1": true}}
	custody := &fakeCustody{}

	var reported *SyncError
	e := NewEngine(s, custody, vault, newStubHTTPClient(apiSrv.URL), http.DefaultClient, nil, config.NewHolder(&config.Config{}, ""), testLogger(), Callbacks{
		OnError: func(err *SyncError) { reported = err },
	})

	uploaded, err := e.uploadOnePhoto(context.Background(), pendingPhotoUpload{PhotoID: "p1", UploadURL: upSrv.URL})
	require.NoError(t, err)
	assert.True(t, uploaded)
	assert.Equal(t, store.BinaryStatusSynced, photo.SyncStatus)

	require.NotNil(t, reported)
	assert.Equal(t, ErrorKindHashMismatch, reported.Kind)

	require.Len(t, custody.synced, 1)
	assert.Contains(t, string(custody.synced[0].DetailsJSON), `"hashMismatch":true`)
}

func TestUploadOnePhoto_OriginalFileMissingOnDiskMarksError(t *testing.T) {
	s := newFakeStore()
	photo := &store.Photo{
		ID: "p1", OriginalPath: filepath.Join(t.TempDir(), "gone.jpg"),
		OriginalHash: "abc", SyncStatus: store.BinaryStatusCaptured,
	}
	s.photos["p1"] = photo

	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, nil, http.DefaultClient, nil, nil)

	uploaded, err := e.uploadOnePhoto(context.Background(), pendingPhotoUpload{PhotoID: "p1", UploadURL: "http://example.invalid/put"})
	require.Error(t, err)
	assert.False(t, uploaded)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrorKindFileMissing, syncErr.Kind)

	assert.Equal(t, store.BinaryStatusError, photo.SyncStatus)
	require.NotNil(t, photo.LastSyncError)
	assert.Contains(t, *photo.LastSyncError, photo.OriginalPath)
}

func TestUploadPhotos_FileMissingReportsFileMissingKind(t *testing.T) {
	s := newFakeStore()
	photo := &store.Photo{
		ID: "p1", OriginalPath: filepath.Join(t.TempDir(), "gone.jpg"),
		OriginalHash: "abc", SyncStatus: store.BinaryStatusCaptured,
	}
	s.photos["p1"] = photo

	var reported *SyncError
	e := NewEngine(s, &fakeCustody{}, &fakeVault{}, nil, http.DefaultClient, nil, config.NewHolder(&config.Config{}, ""), testLogger(), Callbacks{
		OnError: func(err *SyncError) { reported = err },
	})

	counts := e.uploadPhotos(context.Background(), []pendingPhotoUpload{{PhotoID: "p1", UploadURL: "http://example.invalid/put"}})
	assert.Zero(t, counts.Photos)

	require.NotNil(t, reported)
	assert.Equal(t, ErrorKindFileMissing, reported.Kind)
}

func TestStripQuery_RemovesQueryParams(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/f.jpg", stripQuery("https://cdn.example.com/f.jpg?sig=xyz&exp=123"))
}
