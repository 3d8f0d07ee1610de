package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspectcore/inspectcore/internal/store"
)

func TestGatherBundles_CapsAtBatchSize(t *testing.T) {
	s := newFakeStore()

	for i := 0; i < 15; i++ {
		id := "r" + string(rune('a'+i))
		s.reports[id] = &store.Report{ID: id, SyncStatus: store.SyncStatusPending}
	}

	bundles, err := gatherBundles(context.Background(), s, 10)
	require.NoError(t, err)
	assert.Len(t, bundles, 10)
}

func TestGatherBundles_SkipsSyncedReports(t *testing.T) {
	s := newFakeStore()
	s.reports["r1"] = &store.Report{ID: "r1", SyncStatus: store.SyncStatusSynced}
	s.reports["r2"] = &store.Report{ID: "r2", SyncStatus: store.SyncStatusPending}

	bundles, err := gatherBundles(context.Background(), s, 10)
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	assert.Equal(t, "r2", bundles[0].Report.ID)
}

func TestBuildBundle_IncludesChildren(t *testing.T) {
	s := newFakeStore()
	report := &store.Report{ID: "r1", SyncStatus: store.SyncStatusPending, PropertyAddress: "1 Main St", UpdatedAt: 12345}
	s.reports["r1"] = report

	s.elements["r1"] = []*store.RoofElement{{ID: "e1", ElementType: "slope"}}
	s.defects["r1"] = []*store.Defect{{ID: "d1", DefectNumber: 1, Severity: "high"}}
	s.compliance["r1"] = &store.ComplianceAssessment{ID: "c1", NonComplianceSummary: "n/a"}
	s.photos["p1"] = &store.Photo{ID: "p1", ReportID: "r1", SyncStatus: store.BinaryStatusCaptured}
	s.videos["v1"] = &store.Video{ID: "v1", ReportID: "r1", SyncStatus: store.BinaryStatusSynced}
	s.voiceNotes["n1"] = &store.VoiceNote{ID: "n1", ReportID: "r1", SyncStatus: store.BinaryStatusCaptured}

	b, err := buildBundle(context.Background(), s, report)
	require.NoError(t, err)

	assert.Equal(t, "1 Main St", b.Report.PropertyAddress)
	assert.Equal(t, store.FormatISO8601(12345), b.Report.ClientUpdatedAt, "wire timestamps are ISO-8601 strings")
	require.Len(t, b.Elements, 1)
	require.Len(t, b.Defects, 1)
	require.NotNil(t, b.Compliance)
	require.Len(t, b.Photos, 1)
	assert.True(t, b.Photos[0].NeedsUpload)
	require.Len(t, b.Videos, 1)
	assert.False(t, b.Videos[0].NeedsUpload)
	require.Len(t, b.VoiceNotes, 1)
}

func TestApplyUploadResponse_MarksSyncedAndFailed(t *testing.T) {
	s := newFakeStore()
	s.reports["r1"] = &store.Report{ID: "r1", SyncStatus: store.SyncStatusPending}
	s.reports["r2"] = &store.Report{ID: "r2", SyncStatus: store.SyncStatusPending}

	var resp uploadResponse
	resp.Results.SyncedReports = []string{"r1"}
	resp.Results.FailedReports = append(resp.Results.FailedReports, struct {
		ReportID string `json:"reportId"`
		Error    string `json:"error"`
	}{ReportID: "r2", Error: "validation failed"})

	conflicts, err := applyUploadResponse(context.Background(), s, &resp)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	assert.Equal(t, store.SyncStatusSynced, s.reports["r1"].SyncStatus)
	assert.Equal(t, store.SyncStatusError, s.reports["r2"].SyncStatus)
	require.NotNil(t, s.reports["r2"].LastSyncError)
	assert.Equal(t, "validation failed", *s.reports["r2"].LastSyncError)
}

func TestApplyUploadResponse_DoesNotApplyConflictsLocally(t *testing.T) {
	s := newFakeStore()
	s.reports["r1"] = &store.Report{ID: "r1", SyncStatus: store.SyncStatusPending, UpdatedAt: 100}

	var resp uploadResponse
	resp.Results.Conflicts = append(resp.Results.Conflicts, struct {
		ReportID        string `json:"reportId"`
		Resolution      string `json:"resolution"`
		ServerUpdatedAt string `json:"serverUpdatedAt"`
		ClientUpdatedAt string `json:"clientUpdatedAt"`
	}{ReportID: "r1", Resolution: "server_wins", ServerUpdatedAt: iso(200), ClientUpdatedAt: iso(100)})

	conflicts, err := applyUploadResponse(context.Background(), s, &resp)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "server_wins", conflicts[0].Resolution)
	assert.Equal(t, int64(200), conflicts[0].ServerUpdatedAt)
	assert.Equal(t, int64(100), conflicts[0].ClientUpdatedAt)

	// Local row is untouched; server_wins is only applied on next bootstrap.
	assert.Equal(t, store.SyncStatusPending, s.reports["r1"].SyncStatus)
}
