package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestVideo(id, reportID string) *Video {
	now := NowNano()
	return &Video{
		ID:           id,
		ReportID:     reportID,
		OriginalPath: "originals/" + id,
		WorkingPath:  "working/" + id,
		MimeType:     "video/mp4",
		FileSize:     4096,
		DurationMs:   15000,
		OriginalHash: "cafef00d",
		SyncStatus:   BinaryStatusCaptured,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSaveAndGetVideo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveReport(ctx, makeTestReport("r1", "inspector-1")))

	v := makeTestVideo("v1", "r1")
	require.NoError(t, s.SaveVideo(ctx, v))

	got, err := s.GetVideo(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(15000), got.DurationMs)
}

func TestGetVideo_NotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetVideo(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestVideosByReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveReport(ctx, makeTestReport("r1", "inspector-1")))

	v1 := makeTestVideo("v1", "r1")
	v1.SortOrder = 1
	v2 := makeTestVideo("v2", "r1")
	v2.SortOrder = 0

	require.NoError(t, s.SaveVideo(ctx, v1))
	require.NoError(t, s.SaveVideo(ctx, v2))

	videos, err := s.VideosByReport(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "v2", videos[0].ID)
}

func TestPendingSyncVideos(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveReport(ctx, makeTestReport("r1", "inspector-1")))

	captured := makeTestVideo("v1", "r1")
	errored := makeTestVideo("v2", "r1")
	errored.SyncStatus = BinaryStatusError
	synced := makeTestVideo("v3", "r1")
	synced.SyncStatus = BinaryStatusSynced

	require.NoError(t, s.SaveVideo(ctx, captured))
	require.NoError(t, s.SaveVideo(ctx, errored))
	require.NoError(t, s.SaveVideo(ctx, synced))

	pending, err := s.PendingSyncVideos(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDeleteVideo_RemovesRowAndMarksReportDirty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestReport("r1", "inspector-1")
	r.SyncStatus = SyncStatusSynced
	require.NoError(t, s.SaveReport(ctx, r))

	require.NoError(t, s.SaveVideo(ctx, makeTestVideo("v1", "r1")))
	require.NoError(t, s.DeleteVideo(ctx, "v1", NowNano()))

	got, err := s.GetVideo(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, got)

	parent, err := s.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, SyncStatusPending, parent.SyncStatus)
}
