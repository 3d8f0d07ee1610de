// Package store is the durable, transactional, schema-versioned row store
// for every entity in an inspection: users, reports and their nested
// elements/defects/compliance data, binary-evidence metadata (photos,
// videos, voice notes), chain-of-custody events, the out-of-band sync
// queue, and the singleton sync-state row. It owns the SQLite schema and
// exposes typed repository methods; nothing outside this package touches
// SQL directly.
package store

import "encoding/json"

// SyncStatus is the dirty-tracking tag carried by reports. Elements,
// defects and compliance assessments have no status of their own; a
// change to one of them marks the parent report dirty.
type SyncStatus string

const (
	SyncStatusDraft      SyncStatus = "draft"
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusProcessing SyncStatus = "processing"
	SyncStatusSynced     SyncStatus = "synced"
	SyncStatusError      SyncStatus = "error"
)

// IsDirty reports whether a row in this state still needs sync attention.
func (s SyncStatus) IsDirty() bool {
	return s == SyncStatusDraft || s == SyncStatusPending || s == SyncStatusError
}

// BinaryStatus is the sync-status tag carried by photos, videos, and
// voice notes — a narrower set than SyncStatus since binaries never sit
// in "draft".
type BinaryStatus string

const (
	BinaryStatusCaptured  BinaryStatus = "captured"
	BinaryStatusProcessing BinaryStatus = "processing"
	BinaryStatusSynced     BinaryStatus = "synced"
	BinaryStatusError      BinaryStatus = "error"
)

// IsDirty reports whether a binary-artifact row still needs upload.
// BinaryStatusError is terminal, not dirty: a photo/video/voice note
// whose original file went missing at upload time is parked for manual
// attention rather than retried on every sync.
func (s BinaryStatus) IsDirty() bool {
	return s == BinaryStatusCaptured || s == BinaryStatusProcessing
}

// UserRole enumerates the roles a User may hold. The core never enforces
// role-based access control beyond tagging custody events with the
// acting user; role is opaque metadata here.
type UserRole string

const (
	UserRoleInspector  UserRole = "inspector"
	UserRoleReviewer   UserRole = "reviewer"
	UserRoleAdmin      UserRole = "admin"
	UserRoleSuperAdmin UserRole = "super_admin"
)

// ReportStatus enumerates the report lifecycle.
type ReportStatus string

const (
	ReportStatusDraft          ReportStatus = "DRAFT"
	ReportStatusInProgress     ReportStatus = "IN_PROGRESS"
	ReportStatusPendingReview  ReportStatus = "PENDING_REVIEW"
	ReportStatusApproved       ReportStatus = "APPROVED"
	ReportStatusFinalised      ReportStatus = "FINALISED"
	ReportStatusArchived       ReportStatus = "ARCHIVED"
)

// User is an account known to the device — typically the signed-in
// inspector, plus any reviewers/admins pulled down via bootstrap for
// display purposes.
type User struct {
	ID                  string
	Email               string
	Name                string
	Role                UserRole
	Status              string
	CredentialsMetaJSON json.RawMessage
	CreatedAt           int64
	UpdatedAt           int64
}

// Report is the root aggregate of an inspection. The five narrative
// fields are opaque JSON blobs: the core validates only well-formedness,
// never their internal schema.
type Report struct {
	ID                string
	ReportNumber       *string
	Status             ReportStatus
	PropertyAddress    string
	PropertyType       string
	InspectionDate     int64
	InspectionType     string
	ClientName         string
	ClientEmail        string
	ScopeJSON          json.RawMessage
	MethodologyJSON    json.RawMessage
	FindingsJSON       json.RawMessage
	ConclusionsJSON    json.RawMessage
	RecommendationsJSON json.RawMessage
	DeclarationSigned  bool
	InspectorID        string
	SubmittedAt        *int64
	ApprovedAt         *int64
	SyncStatus         SyncStatus
	LastSyncError      *string
	DefectSeq          int64 // per-report high-water mark for defect numbering
	CreatedAt          int64
	UpdatedAt          int64
}

// RoofElement is a physical element of the inspected roof, referenced by
// defects and photos.
type RoofElement struct {
	ID               string
	ReportID         string
	ElementType      string
	Location         string
	Cladding         string
	Material         string
	Manufacturer     string
	PitchDegrees     float64
	AreaSqMeters     float64
	ConditionRating  string
	CreatedAt        int64
	UpdatedAt        int64
}

// Defect is a single recorded finding belonging to a report, optionally
// linked to a RoofElement. DefectNumber is monotonic per report; see
// NextDefectNumber and InsertDefectWithNumber in defects.go.
type Defect struct {
	ID             string
	ReportID       string
	DefectNumber   int
	ElementID      *string
	Classification string
	Severity       string
	Observation    string
	Analysis       string
	Opinion        string
	CreatedAt      int64
	UpdatedAt      int64
}

// ExifData holds the fields the evidence pipeline captures from a
// photo or video's embedded EXIF segment, when present.
type ExifData struct {
	CapturedAt    *int64
	GPSLat        *float64
	GPSLng        *float64
	GPSAlt        *float64
	GPSAccuracyM  *float64
	CameraMake    string
	CameraModel   string
	ExposureTime  string
	Aperture      string
	ISO           int
	FocalLengthMM float64
}

// Photo is binary-evidence metadata for a single image. originalPath is
// immutable once written; originalHash is required on every row and
// always equals the SHA-256 of the file at OriginalPath.
type Photo struct {
	ID              string
	ReportID        string
	DefectID        *string
	ElementID       *string
	OriginalPath    string
	WorkingPath     string
	ThumbnailPath   string
	MimeType        string
	FileSize        int64
	PhotoType       string
	Exif            ExifData
	OriginalHash    string
	SyncStatus      BinaryStatus
	LastSyncError   *string
	UploadedURL     string
	AnnotationsJSON json.RawMessage
	AnnotatedURI    string
	MeasurementsJSON json.RawMessage
	SortOrder       int
	Caption         string
	QuickTag        string
	CreatedAt       int64
	UpdatedAt       int64
}

// GPSFix is a single timestamped location reading in a video's track.
type GPSFix struct {
	TimestampMs int64   `json:"timestampMs"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Video is analogous to Photo plus a duration and optional GPS track.
type Video struct {
	ID              string
	ReportID        string
	DefectID        *string
	ElementID       *string
	OriginalPath    string
	WorkingPath     string
	ThumbnailPath   string
	MimeType        string
	FileSize        int64
	DurationMs      int64
	GPSTrackJSON    json.RawMessage
	Exif            ExifData
	OriginalHash    string
	SyncStatus      BinaryStatus
	LastSyncError   *string
	UploadedURL     string
	SortOrder       int
	Caption         string
	CreatedAt       int64
	UpdatedAt       int64
}

// VoiceNote is analogous to Photo/Video plus duration and an optional
// transcription produced by a collaborator (never by this core).
type VoiceNote struct {
	ID             string
	ReportID       string
	DefectID       *string
	OriginalPath   string
	WorkingPath    string
	MimeType       string
	FileSize       int64
	DurationMs     int64
	Transcription  *string
	OriginalHash   string
	SyncStatus     BinaryStatus
	LastSyncError  *string
	UploadedURL    string
	CreatedAt      int64
	UpdatedAt      int64
}

// ComplianceAssessment is 1:1 with a report, keyed on checklists by id
// rather than foreign key (checklists are read-only reference data).
type ComplianceAssessment struct {
	ID                     string
	ReportID               string
	ChecklistResultsJSON   json.RawMessage
	NonComplianceSummary   string
	CreatedAt              int64
	UpdatedAt              int64
}

// Checklist is read-only reference data pulled down via bootstrap.
type Checklist struct {
	ID        string
	Standard  string
	ItemsJSON json.RawMessage
	CreatedAt int64
	UpdatedAt int64
}

// Template is read-only reference data describing a report's section
// layout and applicable checklists for a given inspection type.
type Template struct {
	ID             string
	InspectionType string
	SectionsJSON   json.RawMessage
	ChecklistsJSON json.RawMessage
	IsDefault      bool
	CreatedAt      int64
	UpdatedAt      int64
}

// CustodyAction enumerates the typed events in the chain-of-custody
// stream.
type CustodyAction string

const (
	CustodyActionCaptured CustodyAction = "CAPTURED"
	CustodyActionUploaded CustodyAction = "UPLOADED"
	CustodyActionSynced   CustodyAction = "SYNCED"
	CustodyActionViewed   CustodyAction = "VIEWED"
	CustodyActionExported CustodyAction = "EXPORTED"
	CustodyActionAnnotated CustodyAction = "ANNOTATED"
	CustodyActionDeleted  CustodyAction = "DELETED"
)

// CustodyEvent is one append-only entry in the chain-of-custody log.
// Once written, the tuple (Action, EntityType, EntityID, UserID,
// CreatedAt, Details) is immutable; SyncedFlag is the sole mutable bit.
type CustodyEvent struct {
	ID          int64
	Action      CustodyAction
	EntityType  string
	EntityID    string
	UserID      string
	UserName    string
	DetailsJSON json.RawMessage
	CreatedAt   int64
	SyncedFlag  bool
}

// QueueOperation enumerates the out-of-band side-effects the sync queue
// carries — actions with no direct row-mutation equivalent (see
// DESIGN.md Open Question #1).
type QueueOperation string

const (
	QueueOpSubmitForReview      QueueOperation = "submit_for_review"
	QueueOpApprove              QueueOperation = "approve"
	QueueOpFinalise             QueueOperation = "finalise"
	QueueOpResolveReviewComment QueueOperation = "resolve_review_comment"
)

// SyncQueueItem is a pending out-of-band action consumed or expired by
// the sync engine.
type SyncQueueItem struct {
	ID                     int64
	EntityType             string
	EntityID               string
	Operation              QueueOperation
	PayloadJSON            json.RawMessage
	AttemptCount           int
	LastError              *string
	PermanentlyFailedFlag  bool
	CreatedAt              int64
	UpdatedAt              int64
}

// SyncState is the singleton (id=1) row tracking the device's sync
// history and identity.
type SyncState struct {
	LastBootstrapAt *int64
	LastUploadAt    *int64
	DeviceID        string
}

// jsonOr substitutes fallback for a nil or empty raw JSON value. Save
// paths bind raw blobs through this so an unset field hits the column's
// documented default instead of violating its NOT NULL constraint.
func jsonOr(raw json.RawMessage, fallback string) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(fallback)
	}

	return raw
}
