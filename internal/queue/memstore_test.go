package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

// memStore is an in-memory Store used only by this package's tests — the
// unit tests exercise Queue's own logic, not SurrealDB wire behaviour.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*Job)}
}

func (m *memStore) Enqueue(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) Dequeue(_ context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var candidates []*Job
	for _, j := range m.jobs {
		if (j.State == StatePending || j.State == StateDelayed) && j.Ready(now) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		pi, pk := registry.Priority(candidates[i].Kind), registry.Priority(candidates[k].Kind)
		if pi != pk {
			return pi < pk
		}
		return candidates[i].EnqueuedAt.Before(candidates[k].EnqueuedAt)
	})

	chosen := candidates[0]
	chosen.State = StateActive
	chosen.StartedAt = now
	cp := *chosen
	return &cp, nil
}

func (m *memStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) MarkCompleted(_ context.Context, id string, durationMS int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.State = StateCompleted
		j.CompletedAt = time.Now()
		j.DurationMS = durationMS
	}
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id string, errMsg string, unrecoverable bool, durationMS int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.State = StateFailed
		j.Error = errMsg
		j.Unrecoverable = unrecoverable
		j.CompletedAt = time.Now()
		j.DurationMS = durationMS
	}
	return nil
}

func (m *memStore) MarkCancelled(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || (j.State != StatePending && j.State != StateDelayed) {
		return false, nil
	}
	j.State = StateCancelled
	return true, nil
}

func (m *memStore) MarkSuperseded(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.State = StateSuperseded
		j.CompletedAt = time.Now()
	}
	return nil
}

func (m *memStore) SetProgress(_ context.Context, id string, pct int, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.ProgressPct = pct
		j.ProgressLabel = label
	}
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for _, j := range m.jobs {
		if j.UserID == userID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Counts(_ context.Context) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c Counts
	for _, j := range m.jobs {
		switch j.State {
		case StatePending:
			c.Pending++
		case StateDelayed:
			c.Delayed++
		case StateActive:
			c.Active++
		case StateCompleted:
			c.Completed++
		case StateFailed:
			c.Failed++
		case StateCancelled:
			c.Cancelled++
		case StateSuperseded:
			c.Superseded++
		}
	}
	return c, nil
}

func (m *memStore) ResetRunningJobs(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.State == StateActive {
			j.State = StatePending
			n++
		}
	}
	return n, nil
}

var _ Store = (*memStore)(nil)
