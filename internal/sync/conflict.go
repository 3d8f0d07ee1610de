package sync

import (
	"context"
	"fmt"

	"github.com/inspectcore/inspectcore/internal/store"
)

// applyBootstrapReport applies the client-side bootstrap conflict rule:
// a local report survives iff it isn't yet synced AND its local
// updatedAt is strictly newer than the server's. Otherwise the server
// row wins and overwrites local.
func applyBootstrapReport(ctx context.Context, s Store, remote remoteReport) error {
	local, err := s.GetReport(ctx, remote.ID)
	if err != nil {
		return fmt.Errorf("sync: loading local report %s for bootstrap merge: %w", remote.ID, err)
	}

	remoteUpdatedAt, err := parseWireTime(remote.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sync: parsing updatedAt for remote report %s: %w", remote.ID, err)
	}

	if local != nil && local.SyncStatus != store.SyncStatusSynced && local.UpdatedAt > remoteUpdatedAt {
		// Local row wins; leave it untouched.
		return nil
	}

	r, err := toStoreReport(remote, local)
	if err != nil {
		return fmt.Errorf("sync: decoding remote report %s: %w", remote.ID, err)
	}

	if err := s.SaveReport(ctx, r); err != nil {
		return fmt.Errorf("sync: saving bootstrapped report %s: %w", remote.ID, err)
	}

	return nil
}

// toStoreReport maps a wire report onto a store row. local, when
// non-nil, supplies the fields the server never sends: the defect
// numbering high-water mark, and any narrative blob the wire payload
// omitted — an absent blob means "unchanged", never "erase".
func toStoreReport(remote remoteReport, local *store.Report) (*store.Report, error) {
	inspectionDate, err := parseWireTime(remote.InspectionDate)
	if err != nil {
		return nil, fmt.Errorf("parsing inspectionDate: %w", err)
	}

	createdAt, err := parseWireTime(remote.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing createdAt: %w", err)
	}

	updatedAt, err := parseWireTime(remote.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updatedAt: %w", err)
	}

	submittedAt, err := parseWireTimePtr(remote.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing submittedAt: %w", err)
	}

	approvedAt, err := parseWireTimePtr(remote.ApprovedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing approvedAt: %w", err)
	}

	r := &store.Report{
		ID:                  remote.ID,
		ReportNumber:        remote.ReportNumber,
		Status:              store.ReportStatus(remote.Status),
		PropertyAddress:     remote.PropertyAddress,
		PropertyType:        remote.PropertyType,
		InspectionDate:      inspectionDate,
		InspectionType:      remote.InspectionType,
		ClientName:          remote.ClientName,
		ClientEmail:         remote.ClientEmail,
		ScopeJSON:           remote.ScopeJSON,
		MethodologyJSON:     remote.MethodologyJSON,
		FindingsJSON:        remote.FindingsJSON,
		ConclusionsJSON:     remote.ConclusionsJSON,
		RecommendationsJSON: remote.RecommendationsJSON,
		DeclarationSigned:   remote.DeclarationSigned,
		InspectorID:         remote.InspectorID,
		SubmittedAt:         submittedAt,
		ApprovedAt:          approvedAt,
		SyncStatus:          store.SyncStatusSynced,
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
	}

	if local != nil {
		r.DefectSeq = local.DefectSeq

		if len(r.ScopeJSON) == 0 {
			r.ScopeJSON = local.ScopeJSON
		}

		if len(r.MethodologyJSON) == 0 {
			r.MethodologyJSON = local.MethodologyJSON
		}

		if len(r.FindingsJSON) == 0 {
			r.FindingsJSON = local.FindingsJSON
		}

		if len(r.ConclusionsJSON) == 0 {
			r.ConclusionsJSON = local.ConclusionsJSON
		}

		if len(r.RecommendationsJSON) == 0 {
			r.RecommendationsJSON = local.RecommendationsJSON
		}

		if r.CreatedAt == 0 {
			r.CreatedAt = local.CreatedAt
		}
	}

	return r, nil
}

// applyBootstrapUser upserts the bootstrap response's user section. The
// server is authoritative for account data the same way it is for
// checklists and templates; there is no local-wins rule here because
// the device never edits user rows.
func applyBootstrapUser(ctx context.Context, s Store, remote remoteUser) error {
	createdAt, err := parseWireTime(remote.CreatedAt)
	if err != nil {
		return fmt.Errorf("sync: parsing createdAt for user %s: %w", remote.ID, err)
	}

	updatedAt, err := parseWireTime(remote.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sync: parsing updatedAt for user %s: %w", remote.ID, err)
	}

	u := &store.User{
		ID:                  remote.ID,
		Email:               remote.Email,
		Name:                remote.Name,
		Role:                store.UserRole(remote.Role),
		Status:              remote.Status,
		CredentialsMetaJSON: remote.CredentialsMetaJSON,
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
	}

	if err := s.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("sync: saving bootstrapped user %s: %w", remote.ID, err)
	}

	return nil
}
