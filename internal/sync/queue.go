package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/inspectcore/inspectcore/internal/store"
	"github.com/inspectcore/inspectcore/internal/transport"
)

// queuedOperation is the wire shape for one out-of-band action: a
// side-effect with no dirty-row equivalent (submit for review, approve,
// finalise, resolve review comment). POSTed one at a time so each item
// carries its own retry accounting.
type queuedOperation struct {
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// processQueueItems drains the out-of-band action queue, immediately
// after report bundles so every action refers to a report the server has
// already seen this cycle. The queue is not the source of truth for what
// to sync: dirty rows cover entity state, this covers side-effects only.
//
// Per-item outcome: 2xx deletes the item; a 4xx (other than 401) is a
// rejected payload and fails the item permanently; transient failures
// increment attempt_count until the configured retry cap parks the item
// as permanently failed and marks the referenced report's row with the
// error.
func (e *Engine) processQueueItems(ctx context.Context) int {
	items, err := e.store.PendingQueueItems(ctx)
	if err != nil {
		e.logger.Warn("sync: listing queue items failed", "error", err.Error())
		return 0
	}

	maxAttempts := e.config().Sync.MaxRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = transport.DefaultMaxRetries
	}

	var processed int

	for _, item := range items {
		if e.cancelled() {
			break
		}

		if err := e.postQueueItem(ctx, item); err != nil {
			// A 401 (or a user cancel) sets the cancel flag inside
			// classifyTransportErr; stop draining without charging the
			// item an attempt it never really got.
			if e.cancelled() {
				break
			}

			e.handleQueueItemFailure(ctx, item, err, maxAttempts)

			continue
		}

		if err := e.store.DeleteQueueItem(ctx, item.ID); err != nil {
			e.logger.Warn("sync: removing completed queue item failed",
				"id", item.ID, "error", err.Error())
			continue
		}

		processed++
	}

	return processed
}

func (e *Engine) postQueueItem(ctx context.Context, item *store.SyncQueueItem) error {
	op := queuedOperation{
		EntityType: item.EntityType,
		EntityID:   item.EntityID,
		Operation:  string(item.Operation),
		Payload:    item.PayloadJSON,
	}

	body, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("sync: marshaling queue item %d: %w", item.ID, err)
	}

	resp, err := e.client.Do(ctx, http.MethodPost, "/sync/operations", bytes.NewReader(body))
	if err != nil {
		return e.classifyTransportErr(err)
	}
	resp.Body.Close()

	return nil
}

// handleQueueItemFailure applies the retry-accounting rules to one failed
// queue item. Permanent failures (payload rejection or retry exhaustion)
// also surface on the referenced report row as an error state.
func (e *Engine) handleQueueItemFailure(ctx context.Context, item *store.SyncQueueItem, opErr error, maxAttempts int) {
	msg := opErr.Error()

	permanent := isQueuePayloadRejected(opErr) || item.AttemptCount+1 >= maxAttempts

	if err := e.store.RecordQueueItemFailure(ctx, item.ID, msg, permanent); err != nil {
		e.logger.Warn("sync: recording queue item failure failed",
			"id", item.ID, "error", err.Error())
	}

	e.logger.Warn("sync: queue item failed",
		"id", item.ID, "operation", string(item.Operation),
		"attempt", item.AttemptCount+1, "permanent", permanent, "error", msg)

	if !permanent || item.EntityType != "report" {
		return
	}

	r, err := e.store.GetReport(ctx, item.EntityID)
	if err != nil || r == nil {
		return
	}

	r.SyncStatus = store.SyncStatusError
	r.LastSyncError = &msg

	if err := e.store.SaveReport(ctx, r); err != nil {
		e.logger.Warn("sync: marking report error after queue failure failed",
			"report_id", r.ID, "error", err.Error())
	}
}

// isQueuePayloadRejected reports whether the server definitively refused
// the operation (4xx other than 401), which no amount of retrying fixes.
func isQueuePayloadRejected(err error) bool {
	var terr *transport.Error
	if !errors.As(err, &terr) {
		return false
	}

	return terr.StatusCode >= http.StatusBadRequest &&
		terr.StatusCode < http.StatusInternalServerError &&
		terr.StatusCode != http.StatusUnauthorized &&
		terr.StatusCode != http.StatusRequestTimeout &&
		terr.StatusCode != http.StatusTooManyRequests
}
