// Package processor is the operation processor: it binds a dequeued job to
// a browser context, runs the registered handler under a timeout and a
// combined cancellation signal, mediates preemption of scheduled syncs by
// incoming writes, re-enqueues with exponential backoff when locked out,
// broadcasts lifecycle events, and drives the bot-result recovery protocol.
package processor

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/agentlock"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/broadcast"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/browserctx"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/queue"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/store"
)

// Deps are the processor's injected collaborators, per the REDESIGN note
// replacing shared singletons with constructor parameters.
type Deps struct {
	Queue      *queue.Queue
	Lock       *agentlock.Lock
	Browser    browserctx.Pool
	Hub        *broadcast.Hub
	BotResults *store.BotResultStore
	SyncEvents *store.SyncEventStore
	Handlers   map[registry.Kind]Handler
	Logger     *common.Logger

	// PollInterval and PreemptionTimeout govern the admission-time
	// preemption poll; both default (500ms / 30s) when zero.
	PollInterval      time.Duration
	PreemptionTimeout time.Duration
}

// ValidateHandlers fails fast at boot if any registered operation kind has
// no handler, per the REDESIGN note turning a missing-handler condition
// from a per-invocation failure into a startup error.
func ValidateHandlers(handlers map[registry.Kind]Handler) error {
	var missing []string
	for _, k := range registry.AllKinds() {
		if _, ok := handlers[k]; !ok {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("processor: no handler registered for kind(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// Processor runs worker goroutines that dequeue and execute jobs.
type Processor struct {
	deps Deps

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Processor over deps, defaulting PollInterval and
// PreemptionTimeout when unset.
func New(deps Deps) *Processor {
	if deps.PollInterval <= 0 {
		deps.PollInterval = 500 * time.Millisecond
	}
	if deps.PreemptionTimeout <= 0 {
		deps.PreemptionTimeout = 30 * time.Second
	}
	return &Processor{deps: deps}
}

// Run starts numWorkers processor goroutines, each pulling from the queue
// independently. Safe to call once; call Stop before calling Run again.
func (p *Processor) Run(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < numWorkers; i++ {
		p.safeGo(fmt.Sprintf("processor-%d", i), func() { p.workerLoop(runCtx) })
	}
}

// Stop cancels every worker loop and waits for in-flight jobs to finalise.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.wg.Wait()
}

// safeGo launches fn in a goroutine with panic recovery, matching the
// job-manager pattern a bare worker pool is grounded on: a handler panic
// must never take down the whole process.
func (p *Processor) safeGo(name string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.deps.Logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in processor worker")
			}
		}()
		fn()
	}()
}

func (p *Processor) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, jobCtx, release, err := p.deps.Queue.Dequeue(ctx)
		if err != nil {
			p.deps.Logger.Warn().Err(err).Msg("Processor: dequeue error")
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}

		p.process(jobCtx, job, release)
	}
}

// sleepOrDone waits for d or ctx cancellation, returning false if ctx was
// the one that fired (so the caller can exit its loop).
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
