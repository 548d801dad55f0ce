// Package store is the persistent-store collaborator: the bot-result
// recovery table and the sync-event audit log, accessed through a small
// connection-pool abstraction. Business tables (orders, customers, DDT,
// invoices) are handler-owned — this package neither reads nor schemas
// them, per §6.3 of the core design.
package store

import "context"

// Pool is the persistence abstraction every helper in this package is built
// on: single-statement calls via Query, or a short batch of statements
// committed together via WithTransaction. Neither form is ever held across
// a suspension that spans a handler body.
type Pool interface {
	Query(ctx context.Context, sql string, params map[string]any) (any, error)
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Pool) error) error
}
