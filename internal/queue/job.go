// Package queue implements the FIFO-within-priority-class job queue: a
// persisted backlog of operations dispatched highest-priority-ready-first,
// with per-kind retry policy, delayed re-enqueue, and cancellation by id.
package queue

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

// State is the lifecycle state of a queued job.
type State string

const (
	StatePending    State = "pending"
	StateDelayed    State = "delayed"
	StateActive     State = "active"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
	StateSuperseded State = "superseded"
)

// Job is a unit of work on the queue. RequeueCount lives on the envelope,
// never inside Data, so a handler can never observe it — there is no
// runtime strip step because the two were never together.
type Job struct {
	ID             string          `json:"id"`
	Kind           registry.Kind   `json:"kind"`
	UserID         string          `json:"user_id"`
	Data           json.RawMessage `json:"data"`
	IdempotencyKey string          `json:"idempotency_key"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	RunAt          time.Time       `json:"run_at"` // zero means "ready now"
	RequeueCount   int             `json:"requeue_count"`
	State          State           `json:"state"`
	StartedAt      time.Time       `json:"started_at,omitempty"`
	CompletedAt    time.Time       `json:"completed_at,omitempty"`
	Error          string          `json:"error,omitempty"`
	Unrecoverable  bool            `json:"unrecoverable,omitempty"`
	ProgressPct    int             `json:"progress_pct,omitempty"`
	ProgressLabel  string          `json:"progress_label,omitempty"`
	DurationMS     int64           `json:"duration_ms,omitempty"`
}

// Ready reports whether the job's delay has elapsed.
func (j *Job) Ready(now time.Time) bool {
	return j.RunAt.IsZero() || !j.RunAt.After(now)
}

// Counts summarises queue depth by state, for observability endpoints.
type Counts struct {
	Pending    int `json:"pending"`
	Delayed    int `json:"delayed"`
	Active     int `json:"active"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Superseded int `json:"superseded"`
}

// EnqueueOptions carries the optional knobs accepted by Enqueue.
type EnqueueOptions struct {
	// Delay postpones the job's readiness; zero means ready immediately.
	Delay time.Duration
	// RequeueCount seeds the new job's counter. Used by the processor when
	// re-enqueuing after a lock-contention backoff; omitted on first enqueue.
	RequeueCount int
}

// synthesiseIdempotencyKey derives a deterministic key for callers that did
// not supply one. The key is stored on the job; Enqueue does not deduplicate
// on it, so repeated enqueue calls for the same operation create separate jobs.
func synthesiseIdempotencyKey(kind registry.Kind, userID string, data json.RawMessage) string {
	h := fnv.New64a()
	h.Write(data)
	return fmt.Sprintf("%s:%s:%x", kind, userID, h.Sum64())
}
