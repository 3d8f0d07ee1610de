// Package custody provides the convenience API for chain-of-custody
// logging, wrapping the append-only custody_events table exposed by
// internal/store. There is no update or delete method anywhere on Log:
// the mutation path is absent at the type level, not merely unused.
package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/inspectcore/inspectcore/internal/store"
)

// eventStore is the subset of store.Store this package depends on.
type eventStore interface {
	AppendCustodyEvent(ctx context.Context, e *store.CustodyEvent) error
	EventsFor(ctx context.Context, entityType, entityID string) ([]*store.CustodyEvent, error)
	UnsyncedEvents(ctx context.Context) ([]*store.CustodyEvent, error)
	MarkCustodyEventsSynced(ctx context.Context, ids []int64) error
}

// Log is the tamper-evident timeline for evidence artifacts. It holds no
// state of its own beyond a reference to the backing store; every event
// it writes is immutable from the moment AppendCustodyEvent returns.
type Log struct {
	store  eventStore
	logger *slog.Logger
}

// New wraps a store with the chain-of-custody convenience API.
func New(s eventStore, logger *slog.Logger) *Log {
	return &Log{store: s, logger: logger}
}

// Record appends a custody event. details, if non-nil, is marshaled to
// the event's opaque details_json column.
func (l *Log) Record(ctx context.Context, action store.CustodyAction, entityType, entityID,
	userID, userName string, details any) error {
	var detailsJSON json.RawMessage

	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("custody: marshal details: %w", err)
		}

		detailsJSON = b
	}

	e := &store.CustodyEvent{
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		UserID:      userID,
		UserName:    userName,
		DetailsJSON: detailsJSON,
		CreatedAt:   store.NowNano(),
	}

	if err := l.store.AppendCustodyEvent(ctx, e); err != nil {
		return fmt.Errorf("custody: record %s on %s/%s: %w", action, entityType, entityID, err)
	}

	l.logger.Debug("custody event recorded", "action", action, "entity_type", entityType, "entity_id", entityID)

	return nil
}

// LogCaptured records that an artifact was captured on-device.
func (l *Log) LogCaptured(ctx context.Context, entityType, entityID, userID, userName string, details any) error {
	return l.Record(ctx, store.CustodyActionCaptured, entityType, entityID, userID, userName, details)
}

// LogSynced records that an artifact was confirmed uploaded.
func (l *Log) LogSynced(ctx context.Context, entityType, entityID, userID, userName string, details any) error {
	return l.Record(ctx, store.CustodyActionSynced, entityType, entityID, userID, userName, details)
}

// LogViewed records that an artifact was opened for viewing.
func (l *Log) LogViewed(ctx context.Context, entityType, entityID, userID, userName string, details any) error {
	return l.Record(ctx, store.CustodyActionViewed, entityType, entityID, userID, userName, details)
}

// LogExported records that an artifact left the device (e.g. PDF export).
func (l *Log) LogExported(ctx context.Context, entityType, entityID, userID, userName string, details any) error {
	return l.Record(ctx, store.CustodyActionExported, entityType, entityID, userID, userName, details)
}

// LogAnnotated records that an artifact's annotated/measured derivative
// was produced or updated.
func (l *Log) LogAnnotated(ctx context.Context, entityType, entityID, userID, userName string, details any) error {
	return l.Record(ctx, store.CustodyActionAnnotated, entityType, entityID, userID, userName, details)
}

// LogDeleted records that an artifact was removed.
func (l *Log) LogDeleted(ctx context.Context, entityType, entityID, userID, userName string, details any) error {
	return l.Record(ctx, store.CustodyActionDeleted, entityType, entityID, userID, userName, details)
}

// EventsFor returns the chronological timeline for a single entity.
func (l *Log) EventsFor(ctx context.Context, entityType, entityID string) ([]*store.CustodyEvent, error) {
	events, err := l.store.EventsFor(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("custody: events for %s/%s: %w", entityType, entityID, err)
	}

	return events, nil
}

// UnsyncedEvents returns every event not yet confirmed pushed to the
// server, for the sync engine to batch-upload.
func (l *Log) UnsyncedEvents(ctx context.Context) ([]*store.CustodyEvent, error) {
	events, err := l.store.UnsyncedEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("custody: unsynced events: %w", err)
	}

	return events, nil
}

// MarkSynced flips the syncedFlag for a batch of event ids once the
// server has confirmed receipt. This is the only mutation any custody
// event ever undergoes.
func (l *Log) MarkSynced(ctx context.Context, ids []int64) error {
	if err := l.store.MarkCustodyEventsSynced(ctx, ids); err != nil {
		return fmt.Errorf("custody: mark synced: %w", err)
	}

	l.logger.Debug("custody events marked synced", "count", len(ids))

	return nil
}
