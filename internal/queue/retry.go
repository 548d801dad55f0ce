package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

// RetryPolicy describes how many times a kind's handler failure may be
// retried by the queue, and the delay before each retry. Unlike
// RequeueDelay (lock-contention backoff, always deterministic and
// jitter-free), retry delays are computed by a fresh backoff.BackOff per
// call so MaxAttempts and the delay curve can be tuned independently per
// kind without the two concerns leaking into each other.
type RetryPolicy struct {
	MaxAttempts int
	newBackOff  func() backoff.BackOff
}

// RetryPolicyFor returns the retry policy for kind:
//   - scheduled syncs: up to 3 retries, exponential from 30s.
//   - the PDF download kinds: up to 2 retries, fixed 5s delay.
//   - every other kind: no automatic retry.
func RetryPolicyFor(kind registry.Kind) RetryPolicy {
	switch {
	case registry.IsScheduledSync(kind):
		return RetryPolicy{
			MaxAttempts: 3,
			newBackOff: func() backoff.BackOff {
				b := backoff.NewExponentialBackOff()
				b.InitialInterval = 30 * time.Second
				b.Multiplier = 2
				b.RandomizationFactor = 0
				b.MaxInterval = 120 * time.Second
				b.MaxElapsedTime = 0
				b.Reset()
				return b
			},
		}
	case kind == registry.KindDownloadDDTPDF || kind == registry.KindDownloadInvoice:
		return RetryPolicy{
			MaxAttempts: 2,
			newBackOff: func() backoff.BackOff {
				return backoff.NewConstantBackOff(5 * time.Second)
			},
		}
	default:
		return RetryPolicy{MaxAttempts: 0}
	}
}

// Retryable reports whether attempt (1-indexed, the attempt about to be
// scheduled) is still within the policy's budget.
func (p RetryPolicy) Retryable(attempt int) bool {
	return p.MaxAttempts > 0 && attempt <= p.MaxAttempts
}

// DelayForAttempt returns the delay before running the given 1-indexed
// retry attempt. A fresh BackOff is built and driven forward attempt times
// so repeated calls for the same kind are side-effect free.
func (p RetryPolicy) DelayForAttempt(attempt int) time.Duration {
	if p.newBackOff == nil || attempt <= 0 {
		return 0
	}
	b := p.newBackOff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
