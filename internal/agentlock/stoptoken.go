package agentlock

import "sync"

// StopToken is the cooperative-stop handle installed by a handler once it
// begins running. A preempting contender calls Request to ask the running
// handler to wind down gracefully; the handler observes Stopped() at its
// own checkpoints. Unlike a bare closure, a token is safe to hand to a
// contender and later swap out on the active record without leaving the
// contender holding a stale reference — it re-fetches the record instead.
type StopToken struct {
	once sync.Once
	ch   chan struct{}
}

// NewStopToken returns a token in the not-yet-requested state.
func NewStopToken() *StopToken {
	return &StopToken{ch: make(chan struct{})}
}

// Request asks the holder to stop. Idempotent — safe to call more than once
// or from more than one contender.
func (t *StopToken) Request() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.ch) })
}

// Stopped returns a channel that is closed once Request has been called.
// A handler selects on it alongside its AbortSignal's done channel.
func (t *StopToken) Stopped() <-chan struct{} {
	if t == nil {
		c := make(chan struct{})
		return c
	}
	return t.ch
}
