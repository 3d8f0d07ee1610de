package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestPhoto(id, reportID string) *Photo {
	now := NowNano()
	return &Photo{
		ID:           id,
		ReportID:     reportID,
		OriginalPath: "originals/" + id,
		WorkingPath:  "working/" + id,
		MimeType:     "image/jpeg",
		FileSize:     1024,
		PhotoType:    "overview",
		OriginalHash: "deadbeef",
		SyncStatus:   BinaryStatusCaptured,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSaveAndGetPhoto(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestReport("r1", "inspector-1")
	require.NoError(t, s.SaveReport(ctx, r))

	p := makeTestPhoto("p1", "r1")
	require.NoError(t, s.SavePhoto(ctx, p))

	got, err := s.GetPhoto(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "deadbeef", got.OriginalHash)
	assert.Equal(t, BinaryStatusCaptured, got.SyncStatus)
}

func TestGetPhoto_NotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetPhoto(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestPhotosByReport_OrderedBySortOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestReport("r1", "inspector-1")
	require.NoError(t, s.SaveReport(ctx, r))

	p1 := makeTestPhoto("p1", "r1")
	p1.SortOrder = 2
	p2 := makeTestPhoto("p2", "r1")
	p2.SortOrder = 1

	require.NoError(t, s.SavePhoto(ctx, p1))
	require.NoError(t, s.SavePhoto(ctx, p2))

	photos, err := s.PhotosByReport(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, "p2", photos[0].ID)
	assert.Equal(t, "p1", photos[1].ID)
}

func TestPhotosForDefect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestReport("r1", "inspector-1")
	require.NoError(t, s.SaveReport(ctx, r))

	d := &Defect{ID: "d1", ReportID: "r1", CreatedAt: NowNano(), UpdatedAt: NowNano()}
	require.NoError(t, s.InsertDefectWithNumber(ctx, d))

	defectID := "d1"
	p1 := makeTestPhoto("p1", "r1")
	p1.DefectID = &defectID
	p2 := makeTestPhoto("p2", "r1")

	require.NoError(t, s.SavePhoto(ctx, p1))
	require.NoError(t, s.SavePhoto(ctx, p2))

	photos, err := s.PhotosForDefect(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "p1", photos[0].ID)
}

func TestPendingSyncPhotos(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestReport("r1", "inspector-1")
	require.NoError(t, s.SaveReport(ctx, r))

	captured := makeTestPhoto("p1", "r1")
	synced := makeTestPhoto("p2", "r1")
	synced.SyncStatus = BinaryStatusSynced

	require.NoError(t, s.SavePhoto(ctx, captured))
	require.NoError(t, s.SavePhoto(ctx, synced))

	pending, err := s.PendingSyncPhotos(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p1", pending[0].ID)
}

func TestSavePhoto_PreservesExifOnRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestReport("r1", "inspector-1")
	require.NoError(t, s.SaveReport(ctx, r))

	lat := 51.5074
	lng := -0.1278

	p := makeTestPhoto("p1", "r1")
	p.Exif.GPSLat = &lat
	p.Exif.GPSLng = &lng
	p.Exif.CameraMake = "Acme"
	p.Exif.ISO = 200

	require.NoError(t, s.SavePhoto(ctx, p))

	got, err := s.GetPhoto(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got.Exif.GPSLat)
	assert.InDelta(t, lat, *got.Exif.GPSLat, 0.0001)
	assert.Equal(t, "Acme", got.Exif.CameraMake)
	assert.Equal(t, 200, got.Exif.ISO)
}

func TestDeletePhoto_RemovesRowAndMarksReportDirty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestReport("r1", "inspector-1")
	r.SyncStatus = SyncStatusSynced
	require.NoError(t, s.SaveReport(ctx, r))

	require.NoError(t, s.SavePhoto(ctx, makeTestPhoto("p1", "r1")))
	require.NoError(t, s.DeletePhoto(ctx, "p1", NowNano()))

	got, err := s.GetPhoto(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)

	parent, err := s.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, SyncStatusPending, parent.SyncStatus)
}

func TestDeletePhoto_MissingRowIsNoOp(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.DeletePhoto(context.Background(), "missing", NowNano()))
}
