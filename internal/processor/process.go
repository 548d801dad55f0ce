package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/broadcast"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/browserctx"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/queue"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

// process carries one dequeued job through admission, execution, and
// finalisation. release must be called exactly once, on every path —
// admission's requeue branch releases early since the lock was never held.
func (p *Processor) process(ctx context.Context, job *queue.Job, release func()) {
	logger := p.deps.Logger.WithJobID(job.ID)

	handler, ok := p.deps.Handlers[job.Kind]
	if !ok {
		msg := fmt.Sprintf("no handler registered for operation kind %q", job.Kind)
		if err := p.deps.Queue.Fail(ctx, job.ID, msg, true, 0); err != nil {
			logger.Warn().Err(err).Msg("Failed to mark unknown-kind job failed")
		}
		release()
		return
	}

	if !p.admit(ctx, job, release, logger) {
		return
	}

	p.execute(ctx, job, handler, release, logger)
}

// admit runs §4.3.1: acquire the agent lock, preempting a running scheduled
// sync when the incoming job is a write, or re-enqueueing with backoff when
// contention cannot be resolved within the preemption budget. Returns true
// only when the caller now holds the lock and must proceed to execution;
// on false it has already released the queue bookkeeping itself.
func (p *Processor) admit(ctx context.Context, job *queue.Job, release func(), logger *common.Logger) bool {
	result := p.deps.Lock.Acquire(job.UserID, job.ID, job.Kind)
	if result.Acquired {
		return true
	}

	acquired := false
	if result.Preemptable {
		p.deps.Queue.CancelJob(ctx, result.Active.JobID)
		// Re-fetch the active record rather than signalling result.Active's
		// token directly: the holder may have installed its token after
		// this copy was taken (the open question on stale-callback capture).
		if active, held := p.deps.Lock.GetActive(job.UserID); held {
			active.StopToken.Request()
		}
		acquired = p.pollAcquire(ctx, job)
	}
	if acquired {
		return true
	}

	newCount := job.RequeueCount + 1
	delay := queue.RequeueDelay(newCount)
	// job.ID is still StateActive from the original Dequeue — this Lock was
	// never acquired for it, so it must be superseded explicitly before the
	// retry is minted under a new id, or it would stay active forever and
	// resurrect via ResetRunningJobs after a restart.
	if err := p.deps.Queue.Supersede(ctx, job.ID); err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to supersede contended job")
	}
	if _, err := p.deps.Queue.Requeue(ctx, job, delay, newCount); err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to requeue contended job")
	}
	release()
	return false
}

// pollAcquire polls Acquire every PollInterval until it succeeds or
// PreemptionTimeout elapses.
func (p *Processor) pollAcquire(ctx context.Context, job *queue.Job) bool {
	deadline := time.Now().Add(p.deps.PreemptionTimeout)
	ticker := time.NewTicker(p.deps.PollInterval)
	defer ticker.Stop()

	for {
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if p.deps.Lock.Acquire(job.UserID, job.ID, job.Kind).Acquired {
				return true
			}
		}
	}
}

// execute runs §4.3.2-4.3.4: bind the job to a browser context, run the
// handler under a combined timeout+cancellation signal, and broadcast the
// lifecycle events that bracket it.
func (p *Processor) execute(ctx context.Context, job *queue.Job, handler Handler, release func(), logger *common.Logger) {
	start := time.Now()

	handle, err := p.deps.Browser.AcquireContext(ctx, job.UserID, browserctx.AcquireOptions{FromQueue: true})
	if err != nil {
		if !p.deps.Lock.Release(job.UserID, job.ID) {
			logger.Warn().Str("job_id", job.ID).Msg("Lock release after context-acquire failure found no matching holder")
		}
		p.finishFailure(context.Background(), job, err.Error(), false, time.Since(start).Milliseconds(), false, logger)
		release()
		return
	}

	p.deps.Hub.Broadcast(job.UserID, broadcast.NewEvent(broadcast.TypeJobStarted, broadcast.JobStartedPayload{
		JobID:         job.ID,
		OperationKind: string(job.Kind),
	}))

	timeout := registry.Timeout(job.Kind)
	execCtx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	inv := Invocation{
		Context: handle,
		Data:    job.Data,
		UserID:  job.UserID,
		OnProgress: func(progress int, label string) {
			if err := p.deps.Queue.SetProgress(context.Background(), job.ID, progress, label); err != nil {
				logger.Warn().Err(err).Msg("Failed to record job progress")
			}
			p.deps.Hub.Broadcast(job.UserID, broadcast.NewEvent(broadcast.TypeJobProgress, broadcast.JobProgressPayload{
				JobID:         job.ID,
				OperationKind: string(job.Kind),
				Progress:      progress,
				Label:         label,
			}))
		},
		Signal: execCtx,
		OnEmit: func(eventType string, payload any) {
			p.deps.Hub.Broadcast(job.UserID, broadcast.NewEvent(eventType, payload))
		},
		CheckBotResult: func(c context.Context, operationKey string) (json.RawMessage, error) {
			return p.deps.BotResults.Check(c, job.UserID, job.Kind, operationKey)
		},
		SaveBotResult: func(c context.Context, operationKey string, payload json.RawMessage) error {
			return p.deps.BotResults.Save(c, job.UserID, job.Kind, operationKey, payload)
		},
		ClearBotResult: func(c context.Context, operationKey string) error {
			return p.deps.BotResults.Clear(c, job.UserID, job.Kind, operationKey)
		},
	}

	type handlerResult struct {
		outcome Outcome
		err     error
	}
	resultCh := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- handlerResult{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		outcome, err := handler(inv)
		resultCh <- handlerResult{outcome: outcome, err: err}
	}()

	var (
		success       bool
		resultData    any
		errMsg        string
		unrecoverable bool
	)

	select {
	case <-execCtx.Done():
		// Single-primitive timed wait: execCtx already unifies the
		// registry timeout and the queue's external cancellation, so both
		// causes resolve identically here, per the outward-message note
		// in §4.3.2 step 9.
		errMsg = fmt.Sprintf("Handler timeout after %dms for %s", timeout.Milliseconds(), job.Kind)
		unrecoverable = true
	case r := <-resultCh:
		switch {
		case r.err != nil:
			errMsg = r.err.Error()
		case !r.outcome.Success:
			errMsg = r.outcome.Error
			if errMsg == "" {
				errMsg = "Sync completed with failure"
			}
		default:
			success = true
			resultData = r.outcome.Result
		}
	}

	durationMS := time.Since(start).Milliseconds()
	finCtx := context.Background()

	if success {
		if err := p.deps.Browser.ReleaseContext(finCtx, job.UserID, handle, true); err != nil {
			logger.Warn().Err(err).Msg("Failed to release browser context")
		}
		p.deps.Hub.Broadcast(job.UserID, broadcast.NewEvent(broadcast.TypeJobCompleted, broadcast.JobCompletedPayload{
			JobID:         job.ID,
			OperationKind: string(job.Kind),
			Result:        resultData,
		}))
		if err := p.deps.Queue.Complete(finCtx, job.ID, durationMS); err != nil {
			logger.Warn().Err(err).Msg("Failed to mark job completed")
		}
		p.recordSyncEvent(job, true, durationMS, resultData, "", logger)
	} else {
		if err := p.deps.Browser.ReleaseContext(finCtx, job.UserID, handle, false); err != nil {
			logger.Warn().Err(err).Msg("Failed to release browser context")
		}
		p.deps.Hub.Broadcast(job.UserID, broadcast.NewEvent(broadcast.TypeJobFailed, broadcast.JobFailedPayload{
			JobID:         job.ID,
			OperationKind: string(job.Kind),
			Error:         errMsg,
		}))
		p.finishFailure(finCtx, job, errMsg, unrecoverable, durationMS, true, logger)
	}

	if !p.deps.Lock.Release(job.UserID, job.ID) {
		logger.Warn().Str("job_id", job.ID).Msg("Lock release after execution found no matching holder")
	}
	release()
}

// finishFailure persists the failed attempt, records a sync-event entry
// when the job reached the handler and its kind begins with "sync-", and
// schedules a kind-policy retry when the failure is not unrecoverable.
func (p *Processor) finishFailure(ctx context.Context, job *queue.Job, errMsg string, unrecoverable bool, durationMS int64, reachedHandler bool, logger *common.Logger) {
	if err := p.deps.Queue.Fail(ctx, job.ID, errMsg, unrecoverable, durationMS); err != nil {
		logger.Warn().Err(err).Msg("Failed to mark job failed")
	}
	if reachedHandler {
		p.recordSyncEvent(job, false, durationMS, nil, errMsg, logger)
	}
	if unrecoverable {
		return
	}

	policy := queue.RetryPolicyFor(job.Kind)
	attempt := job.RequeueCount + 1
	if !policy.Retryable(attempt) {
		return
	}
	delay := policy.DelayForAttempt(attempt)
	if _, err := p.deps.Queue.Requeue(ctx, job, delay, attempt); err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to schedule retry")
	}
}

// recordSyncEvent logs the persistent audit entry for any job whose kind
// begins with "sync-" — a broader set than registry.IsScheduledSync, which
// also excludes sync-order-articles from preemption eligibility but not
// from this audit trail. Failures here are swallowed per §4.3.3/§7: they
// must never mask the handler's own result.
func (p *Processor) recordSyncEvent(job *queue.Job, success bool, durationMS int64, result any, errMsg string, logger *common.Logger) {
	if !strings.HasPrefix(string(job.Kind), "sync-") {
		return
	}

	ctx := context.Background()
	var err error
	if success {
		err = p.deps.SyncEvents.RecordCompleted(ctx, job.UserID, job.Kind, durationMS, result)
	} else {
		err = p.deps.SyncEvents.RecordError(ctx, job.UserID, job.Kind, durationMS, errMsg)
	}
	if err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record sync event")
	}
}
