package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/inspectcore/inspectcore/internal/store"
)

// Bootstrap performs a down-sync-only pass: the signed-in user,
// checklists, templates, and recent reports, applying the client-side
// conflict rule per report. Omits lastSyncAt on first boot.
func (e *Engine) Bootstrap(ctx context.Context) (DownloadCounts, error) {
	if !e.isSyncing.CompareAndSwap(false, true) {
		return DownloadCounts{}, ErrSyncInProgress
	}
	defer e.isSyncing.Store(false)

	return e.bootstrapInline(ctx)
}

// bootstrapInline is the download-only pass without the isSyncing guard,
// so FullSync (which already holds the guard for the whole run) can
// invoke it directly for its download phase without deadlocking on
// ErrSyncInProgress.
func (e *Engine) bootstrapInline(ctx context.Context) (DownloadCounts, error) {
	path := "/sync/bootstrap"

	state, err := e.store.GetSyncState(ctx)
	if err != nil {
		return DownloadCounts{}, fmt.Errorf("sync: loading sync state: %w", err)
	}

	if state != nil && state.LastBootstrapAt != nil {
		path += "?lastSyncAt=" + url.QueryEscape(store.FormatISO8601(*state.LastBootstrapAt))
	}

	resp, err := e.client.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return DownloadCounts{}, e.classifyTransportErr(err)
	}
	defer resp.Body.Close()

	var br bootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return DownloadCounts{}, fmt.Errorf("sync: decoding bootstrap response: %w", err)
	}

	counts, err := e.applyBootstrap(ctx, &br)
	if err != nil {
		return DownloadCounts{}, err
	}

	if err := e.store.SetLastBootstrapAt(ctx, store.NowNano()); err != nil {
		e.logger.Warn("sync: recording last bootstrap time failed", "error", err.Error())
	}

	return counts, nil
}

func (e *Engine) applyBootstrap(ctx context.Context, br *bootstrapResponse) (DownloadCounts, error) {
	var counts DownloadCounts

	if br.User != nil {
		if err := applyBootstrapUser(ctx, e.store, *br.User); err != nil {
			return counts, err
		}
	}

	for _, c := range br.Checklists {
		checklist, err := toStoreChecklist(c)
		if err != nil {
			return counts, fmt.Errorf("sync: decoding checklist %s: %w", c.ID, err)
		}

		if err := e.store.SaveChecklist(ctx, checklist); err != nil {
			return counts, fmt.Errorf("sync: saving checklist %s: %w", c.ID, err)
		}

		counts.Checklists++
	}

	for _, t := range br.Templates {
		template, err := toStoreTemplate(t)
		if err != nil {
			return counts, fmt.Errorf("sync: decoding template %s: %w", t.ID, err)
		}

		if err := e.store.SaveTemplate(ctx, template); err != nil {
			return counts, fmt.Errorf("sync: saving template %s: %w", t.ID, err)
		}

		counts.Templates++
	}

	for _, r := range br.RecentReports {
		if err := applyBootstrapReport(ctx, e.store, r); err != nil {
			return counts, err
		}

		counts.Reports++
	}

	return counts, nil
}

func toStoreChecklist(remote remoteChecklist) (*store.Checklist, error) {
	createdAt, err := parseWireTime(remote.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing createdAt: %w", err)
	}

	updatedAt, err := parseWireTime(remote.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updatedAt: %w", err)
	}

	return &store.Checklist{
		ID:        remote.ID,
		Standard:  remote.Standard,
		ItemsJSON: remote.ItemsJSON,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func toStoreTemplate(remote remoteTemplate) (*store.Template, error) {
	createdAt, err := parseWireTime(remote.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing createdAt: %w", err)
	}

	updatedAt, err := parseWireTime(remote.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updatedAt: %w", err)
	}

	return &store.Template{
		ID:             remote.ID,
		InspectionType: remote.InspectionType,
		SectionsJSON:   remote.SectionsJSON,
		ChecklistsJSON: remote.ChecklistsJSON,
		IsDefault:      remote.IsDefault,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}
