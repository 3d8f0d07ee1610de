package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type videoStatements struct {
	save, get, byReport, pendingSync, del *sql.Stmt
}

const (
	sqlVideoColumns = `id, report_id, defect_id, element_id, original_path, working_path,
		thumbnail_path, mime_type, file_size, duration_ms, gps_track_json,
		exif_captured_at, exif_gps_lat, exif_gps_lng, exif_gps_alt,
		original_hash, sync_status, last_sync_error, uploaded_url,
		sort_order, caption, created_at, updated_at`

	sqlSaveVideo = `INSERT INTO videos (` + sqlVideoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			defect_id = excluded.defect_id,
			element_id = excluded.element_id,
			working_path = excluded.working_path,
			thumbnail_path = excluded.thumbnail_path,
			mime_type = excluded.mime_type,
			file_size = excluded.file_size,
			duration_ms = excluded.duration_ms,
			gps_track_json = excluded.gps_track_json,
			exif_captured_at = excluded.exif_captured_at,
			exif_gps_lat = excluded.exif_gps_lat,
			exif_gps_lng = excluded.exif_gps_lng,
			exif_gps_alt = excluded.exif_gps_alt,
			sync_status = excluded.sync_status,
			last_sync_error = excluded.last_sync_error,
			uploaded_url = excluded.uploaded_url,
			sort_order = excluded.sort_order,
			caption = excluded.caption,
			updated_at = excluded.updated_at`

	sqlGetVideo = `SELECT ` + sqlVideoColumns + ` FROM videos WHERE id = ?`

	sqlVideosByReport = `SELECT ` + sqlVideoColumns + ` FROM videos WHERE report_id = ? ORDER BY sort_order`

	// error-status rows are excluded: a video whose original file went
	// missing at upload time is parked, not retried.
	sqlPendingSyncVideos = `SELECT ` + sqlVideoColumns + `
		FROM videos WHERE sync_status IN ('captured', 'processing')`

	sqlDeleteVideo = `DELETE FROM videos WHERE id = ? RETURNING report_id`
)

func (s *SQLiteStore) prepareVideoStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.videoStmts.save, sqlSaveVideo, "saveVideo"},
		{&s.videoStmts.get, sqlGetVideo, "getVideo"},
		{&s.videoStmts.byReport, sqlVideosByReport, "videosByReport"},
		{&s.videoStmts.pendingSync, sqlPendingSyncVideos, "pendingSyncVideos"},
		{&s.videoStmts.del, sqlDeleteVideo, "deleteVideo"},
	})
}

func scanVideo(row interface{ Scan(...any) error }) (*Video, error) {
	v := &Video{}

	var syncStatus string

	err := row.Scan(
		&v.ID, &v.ReportID, &v.DefectID, &v.ElementID, &v.OriginalPath, &v.WorkingPath,
		&v.ThumbnailPath, &v.MimeType, &v.FileSize, &v.DurationMs, &v.GPSTrackJSON,
		&v.Exif.CapturedAt, &v.Exif.GPSLat, &v.Exif.GPSLng, &v.Exif.GPSAlt,
		&v.OriginalHash, &syncStatus, &v.LastSyncError, &v.UploadedURL,
		&v.SortOrder, &v.Caption, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.SyncStatus = BinaryStatus(syncStatus)

	return v, nil
}

func scanVideoRows(rows *sql.Rows) ([]*Video, error) {
	var videos []*Video

	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}

		videos = append(videos, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video rows: %w", err)
	}

	return videos, nil
}

func saveVideoArgs(v *Video) []any {
	return []any{
		v.ID, v.ReportID, v.DefectID, v.ElementID, v.OriginalPath, v.WorkingPath,
		v.ThumbnailPath, v.MimeType, v.FileSize, v.DurationMs, v.GPSTrackJSON,
		v.Exif.CapturedAt, v.Exif.GPSLat, v.Exif.GPSLng, v.Exif.GPSAlt,
		v.OriginalHash, string(v.SyncStatus), v.LastSyncError, v.UploadedURL,
		v.SortOrder, v.Caption, v.CreatedAt, v.UpdatedAt,
	}
}

// SaveVideo inserts or updates a video row.
func (s *SQLiteStore) SaveVideo(ctx context.Context, v *Video) error {
	s.logger.Debug("saving video", "id", v.ID, "report_id", v.ReportID)

	if _, err := s.videoStmts.save.ExecContext(ctx, saveVideoArgs(v)...); err != nil {
		return fmt.Errorf("store: save video %s: %w", v.ID, err)
	}

	return nil
}

// GetVideo returns a video by id, or (nil, nil) if not found.
func (s *SQLiteStore) GetVideo(ctx context.Context, id string) (*Video, error) {
	v, err := scanVideo(s.videoStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get video %s: %w", id, err)
	}

	return v, nil
}

// VideosByReport returns every video belonging to a report, in display order.
func (s *SQLiteStore) VideosByReport(ctx context.Context, reportID string) ([]*Video, error) {
	rows, err := s.videoStmts.byReport.QueryContext(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("store: videos by report %s: %w", reportID, err)
	}
	defer rows.Close()

	return scanVideoRows(rows)
}

// PendingSyncVideos returns every video whose sync_status is dirty
// (captured or processing).
func (s *SQLiteStore) PendingSyncVideos(ctx context.Context) ([]*Video, error) {
	rows, err := s.videoStmts.pendingSync.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: pending sync videos: %w", err)
	}
	defer rows.Close()

	return scanVideoRows(rows)
}

// DeleteVideo removes a video row and marks its parent report dirty in
// the same transaction. The caller is responsible for removing the
// vault files and appending the DELETED custody event.
func (s *SQLiteStore) DeleteVideo(ctx context.Context, id string, at int64) error {
	return s.deleteChildRow(ctx, s.videoStmts.del, "video", id, at)
}
