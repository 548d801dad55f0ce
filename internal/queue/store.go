package queue

import "context"

// Store is the persistence collaborator backing the queue. A concrete
// implementation (see surrealstore.go) durably records jobs so the queue
// survives process restarts; ResetRunningJobs recovers jobs orphaned by a
// crash mid-handler back to pending.
type Store interface {
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue atomically claims the highest-priority ready job (by kind
	// priority, then FIFO by EnqueuedAt within a priority) and marks it
	// active. Returns nil, nil when nothing is ready.
	Dequeue(ctx context.Context) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	MarkCompleted(ctx context.Context, id string, durationMS int64) error
	MarkFailed(ctx context.Context, id string, errMsg string, unrecoverable bool, durationMS int64) error
	// MarkCancelled transitions id to cancelled only if it is still pending
	// or delayed. Returns false if the job had already moved to active or a
	// terminal state by the time the cancel reached the store.
	MarkCancelled(ctx context.Context, id string) (bool, error)
	// MarkSuperseded unconditionally transitions id to superseded,
	// regardless of its current state. Used when a dequeued job's original
	// record is abandoned in favor of a freshly minted requeue under a new
	// id, so the abandoned record — already StateActive, never passing
	// through MarkCancelled's pending/delayed guard — doesn't linger and
	// resurrect via ResetRunningJobs after a restart.
	MarkSuperseded(ctx context.Context, id string) error
	SetProgress(ctx context.Context, id string, pct int, label string) error
	ListByUser(ctx context.Context, userID string) ([]*Job, error)
	Counts(ctx context.Context) (Counts, error)
	// ResetRunningJobs reverts every active job back to pending. Called once
	// at startup to recover from a crash mid-handler.
	ResetRunningJobs(ctx context.Context) (int, error)
}
