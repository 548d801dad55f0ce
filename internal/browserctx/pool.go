// Package browserctx defines the browser-pool collaborator the processor
// binds a dequeued job to: an authenticated, agent-scoped context reused
// across operations. The pool itself — the headless-browser automation, its
// session refresh, its ERP login flow — is explicitly out of scope; this
// package carries the interface the processor depends on plus an in-memory
// reference implementation suitable for tests and for a single-process
// deployment that fronts a real browser pool behind the same contract.
package browserctx

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
)

// ContextHandle is the opaque handle a handler receives from AcquireContext
// and must pass back unchanged to ReleaseContext.
type ContextHandle struct {
	ID     string
	UserID string
}

// AcquireOptions carries call-site hints to the pool.
type AcquireOptions struct {
	// FromQueue is true for every acquire the processor performs on behalf
	// of a dequeued job, distinguishing it from any direct/interactive
	// acquire an admin surface might perform outside the queue.
	FromQueue bool
}

// Pool allocates and reclaims agent-scoped browser contexts.
type Pool interface {
	AcquireContext(ctx context.Context, userId string, opts AcquireOptions) (*ContextHandle, error)
	ReleaseContext(ctx context.Context, userId string, handle *ContextHandle, success bool) error
	MarkInUse(userId string)
	MarkIdle(userId string)
}

// InMemoryPool is a reference Pool: it hands out a lightweight handle per
// agent (no real headless-browser session) and enforces a per-agent rate
// limit as a safety valve against runaway acquire loops. It is the
// collaborator used by this repository's own tests, and a starting point
// for a deployment that has not yet wired a real browser automation layer
// behind the Pool interface.
type InMemoryPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	inUse    map[string]bool
	poisoned map[string]bool

	rateLimit float64
	burst     int
	logger    *common.Logger
}

// NewInMemoryPool returns a Pool with a per-agent token-bucket limiter
// configured at rateLimit acquires/sec with the given burst allowance.
func NewInMemoryPool(rateLimit float64, burst int, logger *common.Logger) *InMemoryPool {
	return &InMemoryPool{
		limiters:  make(map[string]*rate.Limiter),
		inUse:     make(map[string]bool),
		poisoned:  make(map[string]bool),
		rateLimit: rateLimit,
		burst:     burst,
		logger:    logger,
	}
}

func (p *InMemoryPool) limiterFor(userId string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[userId]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.rateLimit), p.burst)
		p.limiters[userId] = l
	}
	return l
}

// AcquireContext waits for the agent's rate limiter to admit the call (or
// for ctx to be cancelled, whichever comes first), then returns a handle.
// Every call returns a freshly issued handle, whether or not the agent's
// previous context was released with success=false.
func (p *InMemoryPool) AcquireContext(ctx context.Context, userId string, opts AcquireOptions) (*ContextHandle, error) {
	if err := p.limiterFor(userId).Wait(ctx); err != nil {
		return nil, fmt.Errorf("browserctx: rate limit wait for %s: %w", userId, err)
	}

	p.mu.Lock()
	p.inUse[userId] = true
	p.mu.Unlock()

	return &ContextHandle{ID: uuid.New().String(), UserID: userId}, nil
}

// ReleaseContext marks the agent's context idle again, and records it as
// poisoned when success is false. The flag is reported by IsPoisoned;
// AcquireContext does not read it.
func (p *InMemoryPool) ReleaseContext(_ context.Context, userId string, handle *ContextHandle, success bool) error {
	if handle == nil || handle.UserID != userId {
		return fmt.Errorf("browserctx: handle does not belong to agent %s", userId)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse[userId] = false
	p.poisoned[userId] = !success
	return nil
}

// MarkInUse is an optional hint a handler may call mid-operation; the
// reference pool treats it as a no-op observational marker.
func (p *InMemoryPool) MarkInUse(userId string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse[userId] = true
}

// MarkIdle is the converse hint.
func (p *InMemoryPool) MarkIdle(userId string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse[userId] = false
}

// IsPoisoned reports whether userId's last released context was flagged
// unsuccessful. Exposed for tests and for an admin diagnostics endpoint.
func (p *InMemoryPool) IsPoisoned(userId string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.poisoned[userId]
}

var _ Pool = (*InMemoryPool)(nil)
