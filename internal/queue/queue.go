package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

// Queue dispatches jobs from a durable Store and tracks the abort signal
// for each in-flight job so CancelJob can reach a running handler as well
// as a merely-pending one.
type Queue struct {
	store  Store
	logger *common.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // jobId -> abort for active jobs
}

// New wraps store with the in-memory abort-signal bookkeeping the core
// needs on top of plain persistence.
func New(store Store, logger *common.Logger) *Queue {
	return &Queue{
		store:   store,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Enqueue persists a new job and returns its assigned id.
func (q *Queue) Enqueue(ctx context.Context, kind registry.Kind, userID string, data json.RawMessage, idempotencyKey string, opts EnqueueOptions) (string, error) {
	if !registry.Known(kind) {
		return "", fmt.Errorf("queue: unknown operation kind %q", kind)
	}
	if idempotencyKey == "" {
		idempotencyKey = synthesiseIdempotencyKey(kind, userID, data)
	}

	now := time.Now()
	job := &Job{
		ID:             uuid.New().String(),
		Kind:           kind,
		UserID:         userID,
		Data:           data,
		IdempotencyKey: idempotencyKey,
		EnqueuedAt:     now,
		RequeueCount:   opts.RequeueCount,
		State:          StatePending,
	}
	if opts.Delay > 0 {
		job.RunAt = now.Add(opts.Delay)
		job.State = StateDelayed
	}

	if err := q.store.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("queue: enqueue %s: %w", kind, err)
	}
	return job.ID, nil
}

// Requeue re-enqueues an existing job under a new id, carrying
// requeueCount forward. It never touches the original job.ID record —
// callers retrying a job that has already reached a terminal state (Fail,
// Complete) via the normal finalisation path have nothing left to
// reconcile. A caller abandoning a job that is still StateActive (the
// lock-contention requeue path in the processor's admit) must call
// Supersede on the original id itself; Requeue alone would otherwise leave
// it stuck active forever.
func (q *Queue) Requeue(ctx context.Context, job *Job, delay time.Duration, newRequeueCount int) (string, error) {
	return q.Enqueue(ctx, job.Kind, job.UserID, job.Data, job.IdempotencyKey, EnqueueOptions{
		Delay:        delay,
		RequeueCount: newRequeueCount,
	})
}

// Supersede marks jobId's original record superseded. Used by the processor
// when a dequeued job loses the lock-contention race and is re-enqueued
// under a new id rather than retried in place.
func (q *Queue) Supersede(ctx context.Context, jobId string) error {
	return q.store.MarkSuperseded(ctx, jobId)
}

// Dequeue claims the next ready job, if any, and registers a fresh abort
// context for it so CancelJob can reach it while it runs. The returned
// context.CancelFunc must be invoked by the caller once the job finishes,
// regardless of outcome, to release the bookkeeping entry.
func (q *Queue) Dequeue(ctx context.Context) (*Job, context.Context, context.CancelFunc, error) {
	job, err := q.store.Dequeue(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if job == nil {
		return nil, nil, nil, nil
	}

	jobCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancels[job.ID] = cancel
	q.mu.Unlock()

	release := func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, job.ID)
		q.mu.Unlock()
	}
	return job, jobCtx, release, nil
}

// CancelJob signals any in-flight execution of jobId via its abort context,
// and — if the job had not yet started — marks it cancelled in the store.
// Returns true if either action took effect.
func (q *Queue) CancelJob(ctx context.Context, jobId string) bool {
	q.mu.Lock()
	cancel, inFlight := q.cancels[jobId]
	q.mu.Unlock()

	if inFlight {
		cancel()
	}

	cancelledInStore, err := q.store.MarkCancelled(ctx, jobId)
	if err != nil {
		q.logger.Warn().Str("job_id", jobId).Err(err).Msg("Failed to mark job cancelled in store")
	}
	return inFlight || cancelledInStore
}

// GetJob returns the job's full current record.
func (q *Queue) GetJob(ctx context.Context, jobId string) (*Job, error) {
	return q.store.Get(ctx, jobId)
}

// GetJobState returns just the job's state.
func (q *Queue) GetJobState(ctx context.Context, jobId string) (State, error) {
	job, err := q.store.Get(ctx, jobId)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("queue: job %s not found", jobId)
	}
	return job.State, nil
}

// GetJobCounts summarises queue depth by state.
func (q *Queue) GetJobCounts(ctx context.Context) (Counts, error) {
	return q.store.Counts(ctx)
}

// GetJobsForAgent returns every job belonging to userID across waiting,
// active, and delayed states. Jobs in a terminal state are not included.
func (q *Queue) GetJobsForAgent(ctx context.Context, userID string) ([]*Job, error) {
	return q.store.ListByUser(ctx, userID)
}

// SetProgress records a handler's progress update against the job.
func (q *Queue) SetProgress(ctx context.Context, jobId string, pct int, label string) error {
	return q.store.SetProgress(ctx, jobId, pct, label)
}

// Complete marks jobId completed.
func (q *Queue) Complete(ctx context.Context, jobId string, durationMS int64) error {
	return q.store.MarkCompleted(ctx, jobId, durationMS)
}

// Fail marks jobId failed. unrecoverable disables the kind's retry policy
// for this attempt, per the timeout/abort path in §7 of the core design.
func (q *Queue) Fail(ctx context.Context, jobId string, errMsg string, unrecoverable bool, durationMS int64) error {
	return q.store.MarkFailed(ctx, jobId, errMsg, unrecoverable, durationMS)
}

// ResetRunningJobs reverts orphaned active jobs back to pending. Call once
// at startup before workers begin dequeuing.
func (q *Queue) ResetRunningJobs(ctx context.Context) (int, error) {
	return q.store.ResetRunningJobs(ctx)
}
