package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

// operationQueueTable is the SurrealDB table backing the queue. Kept
// separate from handler-owned business tables, per §6.3 of the core design.
const operationQueueTable = "operation_queue"

const jobSelectFields = `job_id as id, kind, user_id, data, idempotency_key, priority,
	enqueued_at, run_at, requeue_count, state, started_at, completed_at,
	error, unrecoverable, progress_pct, progress_label, duration_ms`

// row is the wire shape persisted in SurrealDB; data is stored as a raw
// string column rather than a nested object so arbitrary handler payloads
// round-trip without SurrealDB attempting to interpret their shape.
type row struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	UserID         string    `json:"user_id"`
	Data           string    `json:"data"`
	IdempotencyKey string    `json:"idempotency_key"`
	Priority       int       `json:"priority"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	RunAt          time.Time `json:"run_at"`
	RequeueCount   int       `json:"requeue_count"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	Error          string    `json:"error"`
	Unrecoverable  bool      `json:"unrecoverable"`
	ProgressPct    int       `json:"progress_pct"`
	ProgressLabel  string    `json:"progress_label"`
	DurationMS     int64     `json:"duration_ms"`
}

func (r row) toJob() *Job {
	return &Job{
		ID:             r.ID,
		Kind:           registry.Kind(r.Kind),
		UserID:         r.UserID,
		Data:           json.RawMessage(r.Data),
		IdempotencyKey: r.IdempotencyKey,
		EnqueuedAt:     r.EnqueuedAt,
		RunAt:          r.RunAt,
		RequeueCount:   r.RequeueCount,
		State:          State(r.State),
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		Error:          r.Error,
		Unrecoverable:  r.Unrecoverable,
		ProgressPct:    r.ProgressPct,
		ProgressLabel:  r.ProgressLabel,
		DurationMS:     r.DurationMS,
	}
}

// SurrealStore implements Store against SurrealDB, following the
// record-id-keyed upsert pattern the teacher's job queue store uses.
type SurrealStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewSurrealStore wraps an open SurrealDB connection as a queue Store.
func NewSurrealStore(db *surrealdb.DB, logger *common.Logger) *SurrealStore {
	return &SurrealStore{db: db, logger: logger}
}

func (s *SurrealStore) Enqueue(ctx context.Context, job *Job) error {
	sql := `UPSERT $rid SET
		job_id = $job_id, kind = $kind, user_id = $user_id, data = $data,
		idempotency_key = $idem, priority = $priority, enqueued_at = $enqueued_at,
		run_at = $run_at, requeue_count = $requeue_count, state = $state,
		started_at = $started_at, completed_at = $completed_at, error = $error,
		unrecoverable = $unrecoverable, progress_pct = $progress_pct,
		progress_label = $progress_label, duration_ms = $duration_ms`
	vars := map[string]any{
		"rid":            surrealmodels.NewRecordID(operationQueueTable, job.ID),
		"job_id":         job.ID,
		"kind":           string(job.Kind),
		"user_id":        job.UserID,
		"data":           string(job.Data),
		"idem":           job.IdempotencyKey,
		"priority":       registry.Priority(job.Kind),
		"enqueued_at":    job.EnqueuedAt,
		"run_at":         job.RunAt,
		"requeue_count":  job.RequeueCount,
		"state":          string(job.State),
		"started_at":     job.StartedAt,
		"completed_at":   job.CompletedAt,
		"error":          job.Error,
		"unrecoverable":  job.Unrecoverable,
		"progress_pct":   job.ProgressPct,
		"progress_label": job.ProgressLabel,
		"duration_ms":    job.DurationMS,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (s *SurrealStore) Dequeue(ctx context.Context) (*Job, error) {
	selectSQL := fmt.Sprintf(
		`SELECT %s FROM %s WHERE state IN [$pending, $delayed] AND run_at <= $now
		 ORDER BY priority ASC, enqueued_at ASC LIMIT 1`,
		jobSelectFields, operationQueueTable,
	)
	vars := map[string]any{
		"pending": string(StatePending),
		"delayed": string(StateDelayed),
		"now":     time.Now(),
	}

	candidates, err := surrealdb.Query[[]row](ctx, s.db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select candidate job: %w", err)
	}
	if candidates == nil || len(*candidates) == 0 || len((*candidates)[0].Result) == 0 {
		return nil, nil
	}
	candidate := (*candidates)[0].Result[0]

	now := time.Now()
	updateSQL := `UPDATE $rid SET state = $active, started_at = $now WHERE state IN [$pending, $delayed]`
	updateVars := map[string]any{
		"rid":     surrealmodels.NewRecordID(operationQueueTable, candidate.ID),
		"active":  string(StateActive),
		"pending": string(StatePending),
		"delayed": string(StateDelayed),
		"now":     now,
	}
	claimed, err := surrealdb.Query[[]map[string]any](ctx, s.db, updateSQL, updateVars)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if claimed == nil || len(*claimed) == 0 || len((*claimed)[0].Result) == 0 {
		// Another worker claimed the candidate between the select and the update.
		return nil, nil
	}

	candidate.State = string(StateActive)
	candidate.StartedAt = now
	return candidate.toJob(), nil
}

func (s *SurrealStore) Get(ctx context.Context, id string) (*Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID(operationQueueTable, id)}

	results, err := surrealdb.Query[[]row](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return (*results)[0].Result[0].toJob(), nil
}

func (s *SurrealStore) MarkCompleted(ctx context.Context, id string, durationMS int64) error {
	sql := `UPDATE $rid SET state = $state, completed_at = $now, duration_ms = $dur`
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID(operationQueueTable, id),
		"state": string(StateCompleted),
		"now":   time.Now(),
		"dur":   durationMS,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark job %s completed: %w", id, err)
	}
	return nil
}

func (s *SurrealStore) MarkFailed(ctx context.Context, id string, errMsg string, unrecoverable bool, durationMS int64) error {
	sql := `UPDATE $rid SET state = $state, completed_at = $now, error = $error,
		unrecoverable = $unrecoverable, duration_ms = $dur`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID(operationQueueTable, id),
		"state":         string(StateFailed),
		"now":           time.Now(),
		"error":         errMsg,
		"unrecoverable": unrecoverable,
		"dur":           durationMS,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	return nil
}

func (s *SurrealStore) MarkCancelled(ctx context.Context, id string) (bool, error) {
	sql := `UPDATE $rid SET state = $cancelled WHERE state IN [$pending, $delayed]`
	vars := map[string]any{
		"rid":       surrealmodels.NewRecordID(operationQueueTable, id),
		"cancelled": string(StateCancelled),
		"pending":   string(StatePending),
		"delayed":   string(StateDelayed),
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

func (s *SurrealStore) MarkSuperseded(ctx context.Context, id string) error {
	sql := `UPDATE $rid SET state = $state, completed_at = $now`
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID(operationQueueTable, id),
		"state": string(StateSuperseded),
		"now":   time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark job %s superseded: %w", id, err)
	}
	return nil
}

func (s *SurrealStore) SetProgress(ctx context.Context, id string, pct int, label string) error {
	sql := `UPDATE $rid SET progress_pct = $pct, progress_label = $label`
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID(operationQueueTable, id),
		"pct":   pct,
		"label": label,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to set progress for job %s: %w", id, err)
	}
	return nil
}

func (s *SurrealStore) ListByUser(ctx context.Context, userID string) ([]*Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM " + operationQueueTable +
		" WHERE user_id = $user_id AND state IN [$pending, $delayed, $active] ORDER BY priority ASC, enqueued_at ASC"
	vars := map[string]any{
		"user_id": userID,
		"pending": string(StatePending),
		"delayed": string(StateDelayed),
		"active":  string(StateActive),
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for user %s: %w", userID, err)
	}
	var jobs []*Job
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			jobs = append(jobs, r.toJob())
		}
	}
	return jobs, nil
}

func (s *SurrealStore) Counts(ctx context.Context) (Counts, error) {
	sql := "SELECT state, count() AS cnt FROM " + operationQueueTable + " GROUP BY state"
	type stateCount struct {
		State string `json:"state"`
		Cnt   int    `json:"cnt"`
	}
	results, err := surrealdb.Query[[]stateCount](ctx, s.db, sql, nil)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count jobs: %w", err)
	}
	var counts Counts
	if results != nil && len(*results) > 0 {
		for _, sc := range (*results)[0].Result {
			switch State(sc.State) {
			case StatePending:
				counts.Pending = sc.Cnt
			case StateDelayed:
				counts.Delayed = sc.Cnt
			case StateActive:
				counts.Active = sc.Cnt
			case StateCompleted:
				counts.Completed = sc.Cnt
			case StateFailed:
				counts.Failed = sc.Cnt
			case StateCancelled:
				counts.Cancelled = sc.Cnt
			case StateSuperseded:
				counts.Superseded = sc.Cnt
			}
		}
	}
	return counts, nil
}

func (s *SurrealStore) ResetRunningJobs(ctx context.Context) (int, error) {
	sql := `UPDATE ` + operationQueueTable + ` SET state = $pending, started_at = NONE WHERE state = $active`
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, map[string]any{
		"pending": string(StatePending),
		"active":  string(StateActive),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset orphaned running jobs: %w", err)
	}
	if results != nil && len(*results) > 0 {
		return len((*results)[0].Result), nil
	}
	return 0, nil
}

var _ Store = (*SurrealStore)(nil)
