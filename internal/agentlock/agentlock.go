// Package agentlock provides the in-memory mutual-exclusion slot that
// serialises operations per agent and mediates cooperative preemption of
// a running scheduled sync by an incoming write.
package agentlock

import (
	"sync"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

// ActiveJobRecord describes the job currently holding an agent's slot.
// A nil record means the agent is idle.
type ActiveJobRecord struct {
	JobID     string
	Kind      registry.Kind
	StopToken *StopToken
}

// copy returns a value copy of the record, safe to hand to a caller without
// exposing the lock's internal pointer.
func (r *ActiveJobRecord) copy() *ActiveJobRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// AcquireResult is the outcome of an Acquire call.
type AcquireResult struct {
	// Acquired is true when the caller now owns the slot.
	Acquired bool
	// Active is a copy of the record that held the slot when the caller's
	// acquire was evaluated. Populated only when Acquired is false.
	Active *ActiveJobRecord
	// Preemptable is exactly isScheduledSync(Active.Kind) && isWrite(incoming
	// kind). Never true when Acquired is true.
	Preemptable bool
}

// Lock is a per-agent mutual-exclusion registry. One Lock instance is
// shared across all processor workers for the lifetime of the process.
type Lock struct {
	mu     sync.Mutex
	active map[string]*ActiveJobRecord
}

// New returns an empty Lock with every agent idle.
func New() *Lock {
	return &Lock{active: make(map[string]*ActiveJobRecord)}
}

// Acquire attempts to claim the slot for userId on behalf of jobId/kind.
//
// If the agent is idle, the slot is installed and Acquired is true.
// Otherwise the call returns contended (Acquired=false) with a copy of the
// current holder and the Preemptable flag computed per the classification
// table. There is no re-entrancy: a caller that already owns the slot and
// calls Acquire again for the same jobId/kind still gets a contended result
// — ownership is only established through a successful Acquire return.
func (l *Lock) Acquire(userId, jobId string, kind registry.Kind) AcquireResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, held := l.active[userId]
	if !held {
		l.active[userId] = &ActiveJobRecord{JobID: jobId, Kind: kind}
		return AcquireResult{Acquired: true}
	}

	preemptable := registry.IsScheduledSync(current.Kind) && registry.IsWrite(kind)
	return AcquireResult{
		Acquired:    false,
		Active:      current.copy(),
		Preemptable: preemptable,
	}
}

// Release frees userId's slot, but only if jobId is the current holder.
// Releasing a jobId that does not match the holder (a late release racing a
// new acquire) is a no-op. Returns true if an active record was actually
// cleared.
func (l *Lock) Release(userId, jobId string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, held := l.active[userId]
	if !held || current.JobID != jobId {
		return false
	}
	delete(l.active, userId)
	return true
}

// SetStopCallback installs a cooperative-stop token on userId's active
// record, replacing any previous token. Called by the processor once the
// handler has started and is ready to be asked to stop gracefully. Returns
// false if jobId is not the current holder (the handler already finished or
// lost the slot, so there is nothing to install the token on).
func (l *Lock) SetStopCallback(userId, jobId string, token *StopToken) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, held := l.active[userId]
	if !held || current.JobID != jobId {
		return false
	}
	current.StopToken = token
	return true
}

// GetActive returns a copy of userId's active record, and false if the agent
// is idle. Callers that captured a stop token from an earlier Acquire result
// should re-fetch through GetActive rather than holding onto the copy, since
// the holder may have installed or replaced its token after the copy was
// taken.
func (l *Lock) GetActive(userId string) (*ActiveJobRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, held := l.active[userId]
	if !held {
		return nil, false
	}
	return current.copy(), true
}

// GetAllActive returns a snapshot of every agent currently holding a slot,
// keyed by userId. Used by the admin surface and by tests asserting on
// system-wide lock state.
func (l *Lock) GetAllActive() map[string]*ActiveJobRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[string]*ActiveJobRecord, len(l.active))
	for userId, record := range l.active {
		snapshot[userId] = record.copy()
	}
	return snapshot
}
