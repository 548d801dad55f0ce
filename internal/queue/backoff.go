package queue

import "time"

// RequeueDelay computes the lock-contention requeue delay for the given
// requeueCount (the value already incremented for this attempt):
// 2s * 2^(n-1), capped at 30s. This is the admission-time backoff the
// processor uses when a job cannot acquire its agent's lock — distinct from
// a kind's own retry policy (see RetryPolicyFor), and deliberately
// jitter-free: S6 pins the exact delay sequence a re-enqueued job must see
// (2000, 4000, 8000, 16000, 30000, 30000, ...ms), which a randomised backoff
// generator would not reproduce without being reconfigured into exactly
// this shape anyway.
func RequeueDelay(requeueCount int) time.Duration {
	if requeueCount <= 0 {
		requeueCount = 1
	}
	const base = 2 * time.Second
	const maxDelay = 30 * time.Second

	delay := base
	for i := 1; i < requeueCount; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}
