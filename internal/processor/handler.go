package processor

import (
	"context"
	"encoding/json"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/browserctx"
)

// Outcome is the value a Handler returns on a normal (non-thrown) return.
// Handlers MUST set Success explicitly: the zero value (Success false) is
// treated as a logical failure, like any other unsuccessful Outcome. Error
// is consulted only when
// Success is false; Result is broadcast and returned to the caller only
// when Success is true.
type Outcome struct {
	Success bool
	Error   string
	Result  any
}

// OnProgress both records progress on the job envelope and broadcasts
// JOB_PROGRESS. progress is 0-100; label is optional.
type OnProgress func(progress int, label string)

// OnEmit broadcasts an arbitrary well-formed event without the handler
// needing to know the broadcaster's identity.
type OnEmit func(eventType string, payload any)

// Invocation is everything a Handler receives for one job execution. The
// three bot-result helpers are pre-bound to this invocation's userId and
// kind — a handler supplies only the operationKey that identifies the
// specific external side effect within that (userId, kind) pair.
type Invocation struct {
	Context    *browserctx.ContextHandle
	Data       json.RawMessage
	UserID     string
	OnProgress OnProgress
	Signal     context.Context
	OnEmit     OnEmit

	CheckBotResult func(ctx context.Context, operationKey string) (json.RawMessage, error)
	SaveBotResult  func(ctx context.Context, operationKey string, payload json.RawMessage) error
	ClearBotResult func(ctx context.Context, operationKey string) error
}

// Handler is the opaque per-kind automation routine the processor invokes.
// A returned error is a thrown-error failure (message = err.Error(), the
// kind's retry policy applies). A nil error with Outcome.Success false is a
// logical failure (message = Outcome.Error, or "Sync completed with
// failure" if empty; the kind's retry policy also applies).
type Handler func(inv Invocation) (Outcome, error)
