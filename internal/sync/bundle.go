package sync

import (
	"context"
	"fmt"

	"github.com/inspectcore/inspectcore/internal/store"
)

// defaultBundleBatchSize caps how many pending reports are gathered
// into a single /sync/upload request, overridable via
// SyncConfig.SyncBatchSize.
const defaultBundleBatchSize = 10

// gatherBundles loads up to batchSize pending reports and materializes
// each into a ReportBundle: report row + elements + defects + compliance
// + photo/video/voice-note metadata (never binary bytes).
func gatherBundles(ctx context.Context, s Store, batchSize int) ([]ReportBundle, error) {
	if batchSize <= 0 {
		batchSize = defaultBundleBatchSize
	}

	reports, err := s.PendingSyncReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: listing pending reports: %w", err)
	}

	if len(reports) > batchSize {
		reports = reports[:batchSize]
	}

	bundles := make([]ReportBundle, 0, len(reports))

	for _, r := range reports {
		b, buildErr := buildBundle(ctx, s, r)
		if buildErr != nil {
			return nil, buildErr
		}

		bundles = append(bundles, b)
	}

	return bundles, nil
}

func buildBundle(ctx context.Context, s Store, r *store.Report) (ReportBundle, error) {
	elements, err := s.ElementsByReport(ctx, r.ID)
	if err != nil {
		return ReportBundle{}, fmt.Errorf("sync: loading elements for report %s: %w", r.ID, err)
	}

	defects, err := s.DefectsByReport(ctx, r.ID)
	if err != nil {
		return ReportBundle{}, fmt.Errorf("sync: loading defects for report %s: %w", r.ID, err)
	}

	compliance, err := s.ComplianceAssessmentByReport(ctx, r.ID)
	if err != nil {
		return ReportBundle{}, fmt.Errorf("sync: loading compliance for report %s: %w", r.ID, err)
	}

	photos, err := s.PhotosByReport(ctx, r.ID)
	if err != nil {
		return ReportBundle{}, fmt.Errorf("sync: loading photos for report %s: %w", r.ID, err)
	}

	videos, err := s.VideosByReport(ctx, r.ID)
	if err != nil {
		return ReportBundle{}, fmt.Errorf("sync: loading videos for report %s: %w", r.ID, err)
	}

	voiceNotes, err := s.VoiceNotesByReport(ctx, r.ID)
	if err != nil {
		return ReportBundle{}, fmt.Errorf("sync: loading voice notes for report %s: %w", r.ID, err)
	}

	b := ReportBundle{
		Report:     toBundleReport(r),
		Elements:   make([]bundleElement, 0, len(elements)),
		Defects:    make([]bundleDefect, 0, len(defects)),
		Photos:     make([]bundlePhoto, 0, len(photos)),
		Videos:     make([]bundleVideo, 0, len(videos)),
		VoiceNotes: make([]bundleVoiceNote, 0, len(voiceNotes)),
	}

	for _, e := range elements {
		b.Elements = append(b.Elements, bundleElement{
			ID:              e.ID,
			ElementType:     e.ElementType,
			Location:        e.Location,
			Cladding:        e.Cladding,
			Material:        e.Material,
			Manufacturer:    e.Manufacturer,
			PitchDegrees:    e.PitchDegrees,
			AreaSqMeters:    e.AreaSqMeters,
			ConditionRating: e.ConditionRating,
			ClientUpdatedAt: store.FormatISO8601(e.UpdatedAt),
		})
	}

	for _, d := range defects {
		b.Defects = append(b.Defects, bundleDefect{
			ID:              d.ID,
			DefectNumber:    d.DefectNumber,
			ElementID:       d.ElementID,
			Classification:  d.Classification,
			Severity:        d.Severity,
			Observation:     d.Observation,
			Analysis:        d.Analysis,
			Opinion:         d.Opinion,
			ClientUpdatedAt: store.FormatISO8601(d.UpdatedAt),
		})
	}

	if compliance != nil {
		b.Compliance = &bundleCompliance{
			ID:                   compliance.ID,
			ChecklistResultsJSON: compliance.ChecklistResultsJSON,
			NonComplianceSummary: compliance.NonComplianceSummary,
			ClientUpdatedAt:      store.FormatISO8601(compliance.UpdatedAt),
		}
	}

	for _, p := range photos {
		b.Photos = append(b.Photos, bundlePhoto{
			ID:              p.ID,
			DefectID:        p.DefectID,
			ElementID:       p.ElementID,
			MimeType:        p.MimeType,
			FileSize:        p.FileSize,
			PhotoType:       p.PhotoType,
			OriginalHash:    p.OriginalHash,
			SortOrder:       p.SortOrder,
			Caption:         p.Caption,
			QuickTag:        p.QuickTag,
			NeedsUpload:     p.SyncStatus.IsDirty(),
			ClientUpdatedAt: store.FormatISO8601(p.UpdatedAt),
		})
	}

	for _, v := range videos {
		b.Videos = append(b.Videos, bundleVideo{
			ID:              v.ID,
			DefectID:        v.DefectID,
			ElementID:       v.ElementID,
			MimeType:        v.MimeType,
			FileSize:        v.FileSize,
			DurationMs:      v.DurationMs,
			OriginalHash:    v.OriginalHash,
			SortOrder:       v.SortOrder,
			Caption:         v.Caption,
			NeedsUpload:     v.SyncStatus.IsDirty(),
			ClientUpdatedAt: store.FormatISO8601(v.UpdatedAt),
		})
	}

	for _, vn := range voiceNotes {
		b.VoiceNotes = append(b.VoiceNotes, bundleVoiceNote{
			ID:              vn.ID,
			DefectID:        vn.DefectID,
			MimeType:        vn.MimeType,
			FileSize:        vn.FileSize,
			DurationMs:      vn.DurationMs,
			OriginalHash:    vn.OriginalHash,
			NeedsUpload:     vn.SyncStatus.IsDirty(),
			ClientUpdatedAt: store.FormatISO8601(vn.UpdatedAt),
		})
	}

	return b, nil
}

func toBundleReport(r *store.Report) bundleReport {
	return bundleReport{
		ID:                  r.ID,
		ReportNumber:        r.ReportNumber,
		Status:              string(r.Status),
		PropertyAddress:     r.PropertyAddress,
		PropertyType:        r.PropertyType,
		InspectionDate:      store.FormatISO8601(r.InspectionDate),
		InspectionType:      r.InspectionType,
		ClientName:          r.ClientName,
		ClientEmail:         r.ClientEmail,
		ScopeJSON:           r.ScopeJSON,
		MethodologyJSON:     r.MethodologyJSON,
		FindingsJSON:        r.FindingsJSON,
		ConclusionsJSON:     r.ConclusionsJSON,
		RecommendationsJSON: r.RecommendationsJSON,
		DeclarationSigned:   r.DeclarationSigned,
		InspectorID:         r.InspectorID,
		ClientUpdatedAt:     store.FormatISO8601(r.UpdatedAt),
	}
}

// applyUploadResponse marks synced reports as SyncStatusSynced, records
// failures with LastSyncError, and returns the conflicts the caller
// should surface via onConflict. client_wins conflicts are a local
// no-op; server_wins/merged are applied on the next bootstrap, not
// here — this function only records them for the callback.
func applyUploadResponse(ctx context.Context, s Store, resp *uploadResponse) ([]Conflict, error) {
	for _, id := range resp.Results.SyncedReports {
		r, err := s.GetReport(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("sync: loading synced report %s: %w", id, err)
		}

		if r == nil {
			continue
		}

		r.SyncStatus = store.SyncStatusSynced
		r.LastSyncError = nil

		if err := s.SaveReport(ctx, r); err != nil {
			return nil, fmt.Errorf("sync: saving synced report %s: %w", id, err)
		}
	}

	for _, f := range resp.Results.FailedReports {
		r, err := s.GetReport(ctx, f.ReportID)
		if err != nil {
			return nil, fmt.Errorf("sync: loading failed report %s: %w", f.ReportID, err)
		}

		if r == nil {
			continue
		}

		errMsg := f.Error
		r.SyncStatus = store.SyncStatusError
		r.LastSyncError = &errMsg

		if err := s.SaveReport(ctx, r); err != nil {
			return nil, fmt.Errorf("sync: saving failed report %s: %w", f.ReportID, err)
		}
	}

	conflicts := make([]Conflict, 0, len(resp.Results.Conflicts))
	for _, c := range resp.Results.Conflicts {
		serverAt, err := parseWireTime(c.ServerUpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("sync: parsing serverUpdatedAt for conflict %s: %w", c.ReportID, err)
		}

		clientAt, err := parseWireTime(c.ClientUpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("sync: parsing clientUpdatedAt for conflict %s: %w", c.ReportID, err)
		}

		conflicts = append(conflicts, Conflict{
			ReportID:        c.ReportID,
			Resolution:      c.Resolution,
			ServerUpdatedAt: serverAt,
			ClientUpdatedAt: clientAt,
		})
	}

	return conflicts, nil
}
