package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
)

// SurrealPool implements Pool against a live SurrealDB connection.
type SurrealPool struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewSurrealPool wraps an open SurrealDB connection as a Pool.
func NewSurrealPool(db *surrealdb.DB, logger *common.Logger) *SurrealPool {
	return &SurrealPool{db: db, logger: logger}
}

// Query runs sql and returns the first statement's result rows as
// []map[string]any — callers decode the shape they expect with decodeRows,
// keeping Pool itself agnostic of any particular table's schema.
func (p *SurrealPool) Query(ctx context.Context, sql string, params map[string]any) (any, error) {
	results, err := surrealdb.Query[[]map[string]any](ctx, p.db, sql, params)
	if err != nil {
		return nil, err
	}
	if results == nil || len(*results) == 0 {
		return []map[string]any{}, nil
	}
	return (*results)[0].Result, nil
}

// statement is one buffered call made against a transactionPool.
type statement struct {
	sql    string
	params map[string]any
}

// transactionPool buffers every Query call made inside a WithTransaction
// closure instead of executing it immediately, so the whole batch can be
// committed — or discarded on error — as a single SurrealQL transaction.
type transactionPool struct {
	statements []statement
}

func (t *transactionPool) Query(_ context.Context, sql string, params map[string]any) (any, error) {
	t.statements = append(t.statements, statement{sql: sql, params: params})
	return nil, nil
}

func (t *transactionPool) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Pool) error) error {
	return fmt.Errorf("store: nested transactions are not supported")
}

// WithTransaction runs fn against a buffering Pool; if fn returns nil, every
// buffered statement is committed as one SurrealQL transaction block. If fn
// returns an error, nothing buffered is ever sent — an implicit rollback.
func (p *SurrealPool) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Pool) error) error {
	tx := &transactionPool{}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if len(tx.statements) == 0 {
		return nil
	}

	var body strings.Builder
	merged := make(map[string]any, len(tx.statements))
	body.WriteString("BEGIN TRANSACTION;\n")
	for i, stmt := range tx.statements {
		sql := stmt.sql
		for key, value := range stmt.params {
			scoped := fmt.Sprintf("p%d_%s", i, key)
			sql = strings.ReplaceAll(sql, "$"+key, "$"+scoped)
			merged[scoped] = value
		}
		body.WriteString(sql)
		body.WriteString(";\n")
	}
	body.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, p.db, body.String(), merged); err != nil {
		return fmt.Errorf("store: transaction commit: %w", err)
	}
	return nil
}

var _ Pool = (*SurrealPool)(nil)
