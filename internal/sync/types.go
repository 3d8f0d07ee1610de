// Package sync is the bidirectional protocol between the on-device store
// and the inspectcore server: a phased upload/download state machine,
// two-phase and chunked binary uploads, conflict resolution, and custody
// event flushing. The engine walks an explicit phase machine so
// cancellation and retry decisions always land on a well-defined
// boundary.
package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inspectcore/inspectcore/internal/store"
)

// Phase is one state in the sync engine's explicit state machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseCheckingHealth    Phase = "checking_health"
	PhaseUploadingReports  Phase = "uploading_reports"
	PhaseUploadingPhotos   Phase = "uploading_photos"
	PhaseUploadingVideos   Phase = "uploading_videos"
	PhaseUploadingVoiceNotes Phase = "uploading_voice_notes"
	PhaseFlushingCustody   Phase = "flushing_custody"
	PhaseDownloading       Phase = "downloading"
	PhaseDone              Phase = "done"
	PhaseFailed            Phase = "failed"
	PhaseCancelled         Phase = "cancelled"
)

// ErrorKind classifies a SyncError for the onError callback and for
// deciding whether a queue item should retry.
type ErrorKind string

const (
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindServer         ErrorKind = "server"
	ErrorKindUnauthorized   ErrorKind = "unauthorized"
	ErrorKindConflict       ErrorKind = "conflict"
	ErrorKindSyncInProgress ErrorKind = "sync_in_progress"
	ErrorKindCancelled      ErrorKind = "cancelled"
	ErrorKindInternal       ErrorKind = "internal"
	// ErrorKindFileMissing classifies an upload failure where the binary's
	// original file is gone from disk. Terminal: the row is parked in
	// BinaryStatusError and excluded from retry rather than surfaced as a
	// transient network failure.
	ErrorKindFileMissing ErrorKind = "file_missing"
	// ErrorKindHashMismatch classifies a post-sync verify failure: the
	// row stays synced, since the upload itself succeeded, but the
	// original file on disk no longer hashes to the value recorded at
	// ingest time. Non-terminal for the row; surfaced loudly via onError
	// rather than attached as a retryable row error.
	ErrorKindHashMismatch ErrorKind = "hash_mismatch"
)

// ErrSyncInProgress is returned by FullSync/UploadPending/Bootstrap when
// another sync is already running; overlapping invocations fail fast
// rather than queueing.
var ErrSyncInProgress = errors.New("sync: already in progress")

// SyncError wraps a classified failure with enough context for the host
// UI to decide whether to surface a retry affordance.
type SyncError struct {
	Kind      ErrorKind
	RequestID string
	Message   string
	Err       error
}

func (e *SyncError) Error() string {
	if e.Message != "" {
		return "sync: " + string(e.Kind) + ": " + e.Message
	}

	if e.Err != nil {
		return "sync: " + string(e.Kind) + ": " + e.Err.Error()
	}

	return "sync: " + string(e.Kind)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// classifyUploadErr turns a per-job upload failure into a SyncError for the
// onError callback. A job that already produced a *SyncError (e.g. a
// file-missing terminal failure) keeps its own Kind; everything else
// defaults to network, since the job pool doesn't distinguish transport
// failures from other I/O at this layer.
func classifyUploadErr(err error) *SyncError {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}

	return &SyncError{Kind: ErrorKindNetwork, Message: err.Error()}
}

// fileMissingMessage formats the LastSyncError/SyncError message recorded
// when a binary artifact's original file is absent at upload time.
func fileMissingMessage(path string) string {
	return fmt.Sprintf("original file missing: %s", path)
}

// UploadCounts tallies how many of each entity kind were pushed during
// one upload pass.
type UploadCounts struct {
	Reports    int
	Photos     int
	Videos     int
	VoiceNotes int
	// Operations counts drained sync-queue items: out-of-band actions
	// (submit for review, approve, finalise) with no dirty-row
	// equivalent.
	Operations int
}

// DownloadCounts tallies how many of each entity kind were pulled during
// one download pass.
type DownloadCounts struct {
	Checklists int
	Templates  int
	Reports    int
}

// Conflict is a single server-reported bundle conflict, surfaced to the
// host via onConflict.
type Conflict struct {
	ReportID        string
	Resolution      string // "server_wins" | "client_wins" | "merged"
	ServerUpdatedAt int64
	ClientUpdatedAt int64
}

// Result is the aggregate outcome of a FullSync call, delivered to
// onSyncComplete.
type Result struct {
	Phase      Phase
	Downloaded DownloadCounts
	Uploaded   UploadCounts
	Conflicts  []Conflict
	Errors     []error
	DurationMs int64
}

// UploadResult is the outcome of an UploadPending call: the upload half
// of Result, with no Downloaded field since UploadPending never runs
// the download phase.
type UploadResult struct {
	Uploaded   UploadCounts
	Conflicts  []Conflict
	Errors     []error
	DurationMs int64
}

// DetailedProgress reports fine-grained upload/download progress within
// a single phase, delivered to onDetailedProgress.
type DetailedProgress struct {
	Phase       Phase
	CurrentItem int
	TotalItems  int
	ItemType    string
	Progress    float64 // 0.0-1.0 within the current item
}

// Callbacks is the exit surface a host registers with the engine. Every
// field is optional; a nil callback is simply not invoked.
type Callbacks struct {
	OnProgress         func(phase Phase, pct float64)
	OnDetailedProgress func(p DetailedProgress)
	OnError            func(err *SyncError)
	OnStatusChange     func(phase Phase)
	OnConflict         func(conflicts []Conflict)
	OnSyncComplete     func(result Result)
	OnUnauthorized     func()
}

func (c Callbacks) progress(phase Phase, pct float64) {
	if c.OnProgress != nil {
		c.OnProgress(phase, pct)
	}
}

func (c Callbacks) detailedProgress(p DetailedProgress) {
	if c.OnDetailedProgress != nil {
		c.OnDetailedProgress(p)
	}
}

func (c Callbacks) errorf(err *SyncError) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

func (c Callbacks) statusChange(phase Phase) {
	if c.OnStatusChange != nil {
		c.OnStatusChange(phase)
	}
}

func (c Callbacks) conflict(conflicts []Conflict) {
	if len(conflicts) > 0 && c.OnConflict != nil {
		c.OnConflict(conflicts)
	}
}

func (c Callbacks) syncComplete(result Result) {
	if c.OnSyncComplete != nil {
		c.OnSyncComplete(result)
	}
}

// ReportBundle is one report's full upload payload: the report row plus
// its elements, defects, compliance assessment, and photo metadata (not
// bytes). Carries ClientUpdatedAt per entity so the server can detect
// conflicts.
type ReportBundle struct {
	Report           bundleReport            `json:"report"`
	Elements         []bundleElement          `json:"elements"`
	Defects          []bundleDefect           `json:"defects"`
	Compliance       *bundleCompliance        `json:"compliance,omitempty"`
	Photos           []bundlePhoto            `json:"photos"`
	Videos           []bundleVideo            `json:"videos"`
	VoiceNotes       []bundleVoiceNote        `json:"voiceNotes"`
}

type bundleReport struct {
	ID                  string          `json:"id"`
	ReportNumber        *string         `json:"reportNumber,omitempty"`
	Status              string          `json:"status"`
	PropertyAddress     string          `json:"propertyAddress"`
	PropertyType        string          `json:"propertyType"`
	InspectionDate      string          `json:"inspectionDate"`
	InspectionType      string          `json:"inspectionType"`
	ClientName          string          `json:"clientName"`
	ClientEmail         string          `json:"clientEmail"`
	ScopeJSON           json.RawMessage `json:"scope"`
	MethodologyJSON     json.RawMessage `json:"methodology"`
	FindingsJSON        json.RawMessage `json:"findings"`
	ConclusionsJSON     json.RawMessage `json:"conclusions"`
	RecommendationsJSON json.RawMessage `json:"recommendations"`
	DeclarationSigned   bool            `json:"declarationSigned"`
	InspectorID         string          `json:"inspectorId"`
	ClientUpdatedAt     string          `json:"clientUpdatedAt"`
}

type bundleElement struct {
	ID              string  `json:"id"`
	ElementType     string  `json:"elementType"`
	Location        string  `json:"location"`
	Cladding        string  `json:"cladding"`
	Material        string  `json:"material"`
	Manufacturer    string  `json:"manufacturer"`
	PitchDegrees    float64 `json:"pitchDegrees"`
	AreaSqMeters    float64 `json:"areaSqMeters"`
	ConditionRating string  `json:"conditionRating"`
	ClientUpdatedAt string  `json:"clientUpdatedAt"`
}

type bundleDefect struct {
	ID             string  `json:"id"`
	DefectNumber   int     `json:"defectNumber"`
	ElementID      *string `json:"elementId,omitempty"`
	Classification string  `json:"classification"`
	Severity       string  `json:"severity"`
	Observation    string  `json:"observation"`
	Analysis       string  `json:"analysis"`
	Opinion        string  `json:"opinion"`
	ClientUpdatedAt string `json:"clientUpdatedAt"`
}

type bundleCompliance struct {
	ID                   string          `json:"id"`
	ChecklistResultsJSON json.RawMessage `json:"checklistResults"`
	NonComplianceSummary string          `json:"nonComplianceSummary"`
	ClientUpdatedAt      string          `json:"clientUpdatedAt"`
}

type bundlePhoto struct {
	ID              string  `json:"id"`
	DefectID        *string `json:"defectId,omitempty"`
	ElementID       *string `json:"elementId,omitempty"`
	MimeType        string  `json:"mimeType"`
	FileSize        int64   `json:"fileSize"`
	PhotoType       string  `json:"photoType"`
	OriginalHash    string  `json:"originalHash"`
	SortOrder       int     `json:"sortOrder"`
	Caption         string  `json:"caption"`
	QuickTag        string  `json:"quickTag"`
	NeedsUpload     bool    `json:"needsUpload"`
	ClientUpdatedAt string  `json:"clientUpdatedAt"`
}

type bundleVideo struct {
	ID              string `json:"id"`
	DefectID        *string `json:"defectId,omitempty"`
	ElementID       *string `json:"elementId,omitempty"`
	MimeType        string `json:"mimeType"`
	FileSize        int64  `json:"fileSize"`
	DurationMs      int64  `json:"durationMs"`
	OriginalHash    string `json:"originalHash"`
	SortOrder       int    `json:"sortOrder"`
	Caption         string `json:"caption"`
	NeedsUpload     bool   `json:"needsUpload"`
	ClientUpdatedAt string `json:"clientUpdatedAt"`
}

type bundleVoiceNote struct {
	ID              string `json:"id"`
	DefectID        *string `json:"defectId,omitempty"`
	MimeType        string `json:"mimeType"`
	FileSize        int64  `json:"fileSize"`
	DurationMs      int64  `json:"durationMs"`
	OriginalHash    string `json:"originalHash"`
	NeedsUpload     bool   `json:"needsUpload"`
	ClientUpdatedAt string `json:"clientUpdatedAt"`
}

// uploadPayload is the full request body for POST /sync/upload: one
// bundle per pending report.
type uploadPayload struct {
	Bundles []ReportBundle `json:"bundles"`
}

// uploadResponse is the server's reply to a /sync/upload POST.
type uploadResponse struct {
	Success bool `json:"success"`
	Stats   struct {
		Total     int `json:"total"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
		Conflicts int `json:"conflicts"`
	} `json:"stats"`
	Results struct {
		SyncedReports []string `json:"syncedReports"`
		FailedReports []struct {
			ReportID string `json:"reportId"`
			Error    string `json:"error"`
		} `json:"failedReports"`
		Conflicts []struct {
			ReportID        string `json:"reportId"`
			Resolution      string `json:"resolution"`
			ServerUpdatedAt string `json:"serverUpdatedAt"`
			ClientUpdatedAt string `json:"clientUpdatedAt"`
		} `json:"conflicts"`
		PendingPhotoUploads []struct {
			PhotoID   string `json:"photoId"`
			UploadURL string `json:"uploadUrl"`
		} `json:"pendingPhotoUploads"`
	} `json:"results"`
}

// bootstrapResponse is the server response to GET /sync/bootstrap.
// Every section is a typed wire DTO; nothing on the wire is ever
// unmarshaled straight into a store row.
type bootstrapResponse struct {
	User          *remoteUser       `json:"user"`
	Checklists    []remoteChecklist `json:"checklists"`
	Templates     []remoteTemplate  `json:"templates"`
	RecentReports []remoteReport    `json:"recentReports"`
	LastSyncAt    string            `json:"lastSyncAt"`
}

// remoteChecklist is the wire shape of one bootstrap checklist.
type remoteChecklist struct {
	ID        string          `json:"id"`
	Standard  string          `json:"standard"`
	ItemsJSON json.RawMessage `json:"items"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

// remoteTemplate is the wire shape of one bootstrap template.
type remoteTemplate struct {
	ID             string          `json:"id"`
	InspectionType string          `json:"inspectionType"`
	SectionsJSON   json.RawMessage `json:"sections"`
	ChecklistsJSON json.RawMessage `json:"checklists"`
	IsDefault      bool            `json:"isDefault"`
	CreatedAt      string          `json:"createdAt"`
	UpdatedAt      string          `json:"updatedAt"`
}

// remoteReport is the wire shape of one recentReports entry. It is a
// dedicated DTO rather than store.Report so the wire field names (scope,
// methodology, ...) and ISO-8601 timestamps never leak into the store
// schema; toStoreReport (conflict.go) does the mapping.
type remoteReport struct {
	ID                  string          `json:"id"`
	ReportNumber        *string         `json:"reportNumber,omitempty"`
	Status              string          `json:"status"`
	PropertyAddress     string          `json:"propertyAddress"`
	PropertyType        string          `json:"propertyType"`
	InspectionDate      string          `json:"inspectionDate"`
	InspectionType      string          `json:"inspectionType"`
	ClientName          string          `json:"clientName"`
	ClientEmail         string          `json:"clientEmail"`
	ScopeJSON           json.RawMessage `json:"scope"`
	MethodologyJSON     json.RawMessage `json:"methodology"`
	FindingsJSON        json.RawMessage `json:"findings"`
	ConclusionsJSON     json.RawMessage `json:"conclusions"`
	RecommendationsJSON json.RawMessage `json:"recommendations"`
	DeclarationSigned   bool            `json:"declarationSigned"`
	InspectorID         string          `json:"inspectorId"`
	SubmittedAt         *string         `json:"submittedAt,omitempty"`
	ApprovedAt          *string         `json:"approvedAt,omitempty"`
	CreatedAt           string          `json:"createdAt"`
	UpdatedAt           string          `json:"updatedAt"`
}

// remoteUser is the wire shape of the bootstrap response's user section.
type remoteUser struct {
	ID                  string          `json:"id"`
	Email               string          `json:"email"`
	Name                string          `json:"name"`
	Role                string          `json:"role"`
	Status              string          `json:"status"`
	CredentialsMetaJSON json.RawMessage `json:"credentialsMeta,omitempty"`
	CreatedAt           string          `json:"createdAt"`
	UpdatedAt           string          `json:"updatedAt"`
}

// parseWireTime converts an ISO-8601 wire timestamp to Unix nanos. An
// absent value maps to 0 rather than an error, since most wire
// timestamps are optional.
func parseWireTime(iso string) (int64, error) {
	if iso == "" {
		return 0, nil
	}

	return store.ParseISO8601(iso)
}

// parseWireTimePtr is parseWireTime for nullable wire timestamps.
func parseWireTimePtr(iso *string) (*int64, error) {
	if iso == nil || *iso == "" {
		return nil, nil //nolint:nilnil // absent timestamp
	}

	nanos, err := store.ParseISO8601(*iso)
	if err != nil {
		return nil, err
	}

	return &nanos, nil
}

// custodyEventWire is the JSON shape POSTed to /sync/custody-events.
type custodyEventWire struct {
	ID         int64  `json:"id"`
	Action     string `json:"action"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// nowFunc is overridden in tests; production uses time.Now. Kept as a
// package var rather than threaded through every call since only tests
// need determinism here.
var nowFunc = time.Now
