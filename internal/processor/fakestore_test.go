package processor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/queue"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

// fakeStore is a minimal in-memory queue.Store for exercising the
// processor's own admission/execution/finalisation logic end-to-end,
// without pulling in a real persistence layer.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*queue.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*queue.Job)}
}

func (s *fakeStore) Enqueue(_ context.Context, job *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeStore) Dequeue(_ context.Context) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var ready []*queue.Job
	for _, j := range s.jobs {
		if (j.State == queue.StatePending || j.State == queue.StateDelayed) && j.Ready(now) {
			ready = append(ready, j)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}
	sort.Slice(ready, func(i, k int) bool {
		pi, pk := registry.Priority(ready[i].Kind), registry.Priority(ready[k].Kind)
		if pi != pk {
			return pi < pk
		}
		return ready[i].EnqueuedAt.Before(ready[k].EnqueuedAt)
	})

	chosen := ready[0]
	chosen.State = queue.StateActive
	chosen.StartedAt = now
	cp := *chosen
	return &cp, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) MarkCompleted(_ context.Context, id string, durationMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.State = queue.StateCompleted
		j.DurationMS = durationMS
		j.CompletedAt = time.Now()
	}
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id string, errMsg string, unrecoverable bool, durationMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.State = queue.StateFailed
		j.Error = errMsg
		j.Unrecoverable = unrecoverable
		j.DurationMS = durationMS
		j.CompletedAt = time.Now()
	}
	return nil
}

func (s *fakeStore) MarkCancelled(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || (j.State != queue.StatePending && j.State != queue.StateDelayed) {
		return false, nil
	}
	j.State = queue.StateCancelled
	return true, nil
}

func (s *fakeStore) MarkSuperseded(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.State = queue.StateSuperseded
		j.CompletedAt = time.Now()
	}
	return nil
}

func (s *fakeStore) SetProgress(_ context.Context, id string, pct int, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.ProgressPct = pct
		j.ProgressLabel = label
	}
	return nil
}

func (s *fakeStore) ListByUser(_ context.Context, userID string) ([]*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*queue.Job
	for _, j := range s.jobs {
		if j.UserID == userID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) Counts(_ context.Context) (queue.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c queue.Counts
	for _, j := range s.jobs {
		switch j.State {
		case queue.StatePending:
			c.Pending++
		case queue.StateDelayed:
			c.Delayed++
		case queue.StateActive:
			c.Active++
		case queue.StateCompleted:
			c.Completed++
		case queue.StateFailed:
			c.Failed++
		case queue.StateCancelled:
			c.Cancelled++
		case queue.StateSuperseded:
			c.Superseded++
		}
	}
	return c, nil
}

func (s *fakeStore) ResetRunningJobs(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.State == queue.StateActive {
			j.State = queue.StatePending
			n++
		}
	}
	return n, nil
}

var _ queue.Store = (*fakeStore)(nil)
