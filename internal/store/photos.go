package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type photoStatements struct {
	save, get, byReport, byDefect, pendingSync, del *sql.Stmt
}

const (
	sqlPhotoColumns = `id, report_id, defect_id, element_id, original_path, working_path,
		thumbnail_path, mime_type, file_size, photo_type,
		exif_captured_at, exif_gps_lat, exif_gps_lng, exif_gps_alt, exif_gps_accuracy,
		exif_camera_make, exif_camera_model, exif_exposure_time, exif_aperture, exif_iso, exif_focal_length,
		original_hash, sync_status, last_sync_error, uploaded_url,
		annotations_json, annotated_uri, measurements_json, sort_order, caption, quick_tag,
		created_at, updated_at`

	sqlSavePhoto = `INSERT INTO photos (` + sqlPhotoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			defect_id = excluded.defect_id,
			element_id = excluded.element_id,
			working_path = excluded.working_path,
			thumbnail_path = excluded.thumbnail_path,
			mime_type = excluded.mime_type,
			file_size = excluded.file_size,
			photo_type = excluded.photo_type,
			exif_captured_at = excluded.exif_captured_at,
			exif_gps_lat = excluded.exif_gps_lat,
			exif_gps_lng = excluded.exif_gps_lng,
			exif_gps_alt = excluded.exif_gps_alt,
			exif_gps_accuracy = excluded.exif_gps_accuracy,
			exif_camera_make = excluded.exif_camera_make,
			exif_camera_model = excluded.exif_camera_model,
			exif_exposure_time = excluded.exif_exposure_time,
			exif_aperture = excluded.exif_aperture,
			exif_iso = excluded.exif_iso,
			exif_focal_length = excluded.exif_focal_length,
			sync_status = excluded.sync_status,
			last_sync_error = excluded.last_sync_error,
			uploaded_url = excluded.uploaded_url,
			annotations_json = excluded.annotations_json,
			annotated_uri = excluded.annotated_uri,
			measurements_json = excluded.measurements_json,
			sort_order = excluded.sort_order,
			caption = excluded.caption,
			quick_tag = excluded.quick_tag,
			updated_at = excluded.updated_at`

	sqlGetPhoto = `SELECT ` + sqlPhotoColumns + ` FROM photos WHERE id = ?`

	sqlPhotosByReport = `SELECT ` + sqlPhotoColumns + ` FROM photos WHERE report_id = ? ORDER BY sort_order`

	sqlPhotosByDefect = `SELECT ` + sqlPhotoColumns + ` FROM photos WHERE defect_id = ? ORDER BY sort_order`

	// error-status rows are excluded: a photo whose original file went
	// missing at upload time is parked, not retried.
	sqlPendingSyncPhotos = `SELECT ` + sqlPhotoColumns + `
		FROM photos WHERE sync_status IN ('captured', 'processing')`

	sqlDeletePhoto = `DELETE FROM photos WHERE id = ? RETURNING report_id`
)

func (s *SQLiteStore) preparePhotoStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.photoStmts.save, sqlSavePhoto, "savePhoto"},
		{&s.photoStmts.get, sqlGetPhoto, "getPhoto"},
		{&s.photoStmts.byReport, sqlPhotosByReport, "photosByReport"},
		{&s.photoStmts.byDefect, sqlPhotosByDefect, "photosByDefect"},
		{&s.photoStmts.pendingSync, sqlPendingSyncPhotos, "pendingSyncPhotos"},
		{&s.photoStmts.del, sqlDeletePhoto, "deletePhoto"},
	})
}

func scanPhoto(row interface{ Scan(...any) error }) (*Photo, error) {
	p := &Photo{}

	var syncStatus string

	err := row.Scan(
		&p.ID, &p.ReportID, &p.DefectID, &p.ElementID, &p.OriginalPath, &p.WorkingPath,
		&p.ThumbnailPath, &p.MimeType, &p.FileSize, &p.PhotoType,
		&p.Exif.CapturedAt, &p.Exif.GPSLat, &p.Exif.GPSLng, &p.Exif.GPSAlt, &p.Exif.GPSAccuracyM,
		&p.Exif.CameraMake, &p.Exif.CameraModel, &p.Exif.ExposureTime, &p.Exif.Aperture,
		&p.Exif.ISO, &p.Exif.FocalLengthMM,
		&p.OriginalHash, &syncStatus, &p.LastSyncError, &p.UploadedURL,
		&p.AnnotationsJSON, &p.AnnotatedURI, &p.MeasurementsJSON, &p.SortOrder, &p.Caption, &p.QuickTag,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.SyncStatus = BinaryStatus(syncStatus)

	return p, nil
}

func scanPhotoRows(rows *sql.Rows) ([]*Photo, error) {
	var photos []*Photo

	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo row: %w", err)
		}

		photos = append(photos, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo rows: %w", err)
	}

	return photos, nil
}

func savePhotoArgs(p *Photo) []any {
	return []any{
		p.ID, p.ReportID, p.DefectID, p.ElementID, p.OriginalPath, p.WorkingPath,
		p.ThumbnailPath, p.MimeType, p.FileSize, p.PhotoType,
		p.Exif.CapturedAt, p.Exif.GPSLat, p.Exif.GPSLng, p.Exif.GPSAlt, p.Exif.GPSAccuracyM,
		p.Exif.CameraMake, p.Exif.CameraModel, p.Exif.ExposureTime, p.Exif.Aperture,
		p.Exif.ISO, p.Exif.FocalLengthMM,
		p.OriginalHash, string(p.SyncStatus), p.LastSyncError, p.UploadedURL,
		p.AnnotationsJSON, p.AnnotatedURI, p.MeasurementsJSON, p.SortOrder, p.Caption, p.QuickTag,
		p.CreatedAt, p.UpdatedAt,
	}
}

// SavePhoto inserts or updates a photo row. originalPath/originalHash are
// set once at ingest and never overwritten thereafter by any caller in
// this package (the vault, not the store, enforces write-once bytes).
func (s *SQLiteStore) SavePhoto(ctx context.Context, p *Photo) error {
	s.logger.Debug("saving photo", "id", p.ID, "report_id", p.ReportID)

	if _, err := s.photoStmts.save.ExecContext(ctx, savePhotoArgs(p)...); err != nil {
		return fmt.Errorf("store: save photo %s: %w", p.ID, err)
	}

	return nil
}

// GetPhoto returns a photo by id, or (nil, nil) if not found.
func (s *SQLiteStore) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	p, err := scanPhoto(s.photoStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get photo %s: %w", id, err)
	}

	return p, nil
}

// PhotosByReport returns every photo belonging to a report, in display order.
func (s *SQLiteStore) PhotosByReport(ctx context.Context, reportID string) ([]*Photo, error) {
	rows, err := s.photoStmts.byReport.QueryContext(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("store: photos by report %s: %w", reportID, err)
	}
	defer rows.Close()

	return scanPhotoRows(rows)
}

// PhotosForDefect returns every photo linked to a defect, in display order.
func (s *SQLiteStore) PhotosForDefect(ctx context.Context, defectID string) ([]*Photo, error) {
	rows, err := s.photoStmts.byDefect.QueryContext(ctx, defectID)
	if err != nil {
		return nil, fmt.Errorf("store: photos for defect %s: %w", defectID, err)
	}
	defer rows.Close()

	return scanPhotoRows(rows)
}

// PendingSyncPhotos returns every photo whose sync_status is dirty
// (captured or processing).
func (s *SQLiteStore) PendingSyncPhotos(ctx context.Context) ([]*Photo, error) {
	rows, err := s.photoStmts.pendingSync.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: pending sync photos: %w", err)
	}
	defer rows.Close()

	return scanPhotoRows(rows)
}

// DeletePhoto removes a photo row and marks its parent report dirty in
// the same transaction. The caller is responsible for removing the
// vault files and appending the DELETED custody event.
func (s *SQLiteStore) DeletePhoto(ctx context.Context, id string, at int64) error {
	return s.deleteChildRow(ctx, s.photoStmts.del, "photo", id, at)
}
