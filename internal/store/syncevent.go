package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

const syncEventsTable = "sync_events"

const (
	SyncEventCompleted = "sync_completed"
	SyncEventError     = "sync_error"
)

// SyncEventStore is the append-only audit trail for sync outcomes,
// consulted when the processor finalises any job whose kind begins with
// "sync-". Failures writing here are swallowed by the caller — they must
// never mask the handler's own result.
type SyncEventStore struct {
	pool Pool
}

// NewSyncEventStore wraps pool as a SyncEventStore.
func NewSyncEventStore(pool Pool) *SyncEventStore {
	return &SyncEventStore{pool: pool}
}

func (s *SyncEventStore) record(ctx context.Context, userId string, kind registry.Kind, eventType string, details any) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("store: marshal sync event details: %w", err)
	}

	sql := `CREATE ` + syncEventsTable + `:⟨` + uuid.New().String() + `⟩ SET
		user_id = $user_id, sync_type = $sync_type, event_type = $event_type,
		details = $details, created_at = $created_at`
	params := map[string]any{
		"user_id":    userId,
		"sync_type":  string(kind),
		"event_type": eventType,
		"details":    string(detailsJSON),
		"created_at": time.Now(),
	}
	if _, err := s.pool.Query(ctx, sql, params); err != nil {
		return fmt.Errorf("store: record sync event: %w", err)
	}
	return nil
}

// completedDetails is the details payload for a sync_completed event.
type completedDetails struct {
	DurationMS int64 `json:"duration_ms"`
	Result     any   `json:"result,omitempty"`
}

// errorDetails is the details payload for a sync_error event.
type errorDetails struct {
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error"`
}

// RecordCompleted logs a successful sync handler invocation.
func (s *SyncEventStore) RecordCompleted(ctx context.Context, userId string, kind registry.Kind, durationMS int64, result any) error {
	return s.record(ctx, userId, kind, SyncEventCompleted, completedDetails{DurationMS: durationMS, Result: result})
}

// RecordError logs a failed sync handler invocation.
func (s *SyncEventStore) RecordError(ctx context.Context, userId string, kind registry.Kind, durationMS int64, errMsg string) error {
	return s.record(ctx, userId, kind, SyncEventError, errorDetails{DurationMS: durationMS, Error: errMsg})
}
