package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/inspectcore/inspectcore/internal/store"
)

// custodyFlushBatchSize caps how many events go in one
// /sync/custody-events POST.
const custodyFlushBatchSize = 200

// flushCustodyEvents batches unsynced custody events to the server and
// flips their SyncedFlag on success. Non-blocking: a failure here is
// logged and reported via onError but never fails the overall sync.
func (e *Engine) flushCustodyEvents(ctx context.Context) {
	events, err := e.custody.UnsyncedEvents(ctx)
	if err != nil {
		e.logger.Warn("sync: listing unsynced custody events failed", slog.String("error", err.Error()))
		return
	}

	if len(events) == 0 {
		return
	}

	for start := 0; start < len(events); start += custodyFlushBatchSize {
		end := start + custodyFlushBatchSize
		if end > len(events) {
			end = len(events)
		}

		e.flushCustodyBatch(ctx, events[start:end])
	}
}

func (e *Engine) flushCustodyBatch(ctx context.Context, batch []*store.CustodyEvent) {
	wire := make([]custodyEventWire, 0, len(batch))
	ids := make([]int64, 0, len(batch))

	for _, ev := range batch {
		wire = append(wire, custodyEventWire{
			ID:         ev.ID,
			Action:     string(ev.Action),
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
			UserID:     ev.UserID,
			UserName:   ev.UserName,
			Details:    ev.DetailsJSON,
			CreatedAt:  store.FormatISO8601(ev.CreatedAt),
		})
		ids = append(ids, ev.ID)
	}

	body, err := json.Marshal(map[string]any{"events": wire})
	if err != nil {
		e.logger.Warn("sync: marshaling custody event batch failed", slog.String("error", err.Error()))
		return
	}

	resp, err := e.client.Do(ctx, http.MethodPost, "/sync/custody-events", bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("sync: pushing custody events failed", slog.String("error", err.Error()))
		e.callbacks.errorf(&SyncError{Kind: ErrorKindNetwork, Message: err.Error()})

		return
	}
	defer resp.Body.Close()

	if err := e.custody.MarkSynced(ctx, ids); err != nil {
		e.logger.Warn("sync: marking custody events synced failed", slog.String("error", err.Error()))
	}
}
