package store

import (
	"context"
	"strings"
	"sync"
)

// fakePool is a minimal in-process stand-in for Pool, recognising just the
// handful of SQL shapes botresult.go and syncevent.go actually issue. It
// exists so this package's own logic — not SurrealDB's wire behavior — is
// what gets exercised here.
type fakePool struct {
	mu   sync.Mutex
	rows map[string][]map[string]any // table -> rows
}

func newFakePool() *fakePool {
	return &fakePool{rows: make(map[string][]map[string]any)}
}

func (f *fakePool) Query(_ context.Context, sql string, params map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table := tableFromSQL(sql, params)

	switch {
	case strings.HasPrefix(sql, "SELECT"):
		var matched []map[string]any
		for _, row := range f.rows[table] {
			if rowMatches(row, params) {
				matched = append(matched, row)
			}
		}
		return matched, nil

	case strings.HasPrefix(sql, "UPSERT"):
		f.upsert(table, params)
		return nil, nil

	case strings.HasPrefix(sql, "CREATE"):
		f.rows[table] = append(f.rows[table], cloneParams(params))
		return nil, nil

	case strings.HasPrefix(sql, "DELETE"):
		f.deleteMatching(table, params)
		return nil, nil

	default:
		return nil, nil
	}
}

func (f *fakePool) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Pool) error) error {
	return fn(ctx, f)
}

func (f *fakePool) upsert(table string, params map[string]any) {
	key := func(r map[string]any) bool {
		return r["user_id"] == params["user_id"] &&
			r["operation_type"] == params["op_type"] &&
			r["operation_key"] == params["op_key"]
	}
	row := map[string]any{
		"user_id":        params["user_id"],
		"operation_type": params["op_type"],
		"operation_key":  params["op_key"],
		"result_data":    params["data"],
	}
	for i, existing := range f.rows[table] {
		if key(existing) {
			f.rows[table][i] = row
			return
		}
	}
	f.rows[table] = append(f.rows[table], row)
}

// deleteMatching removes every row in table matching params — the same
// bound-parameter fields rowMatches checks, since a real DELETE $rid targets
// exactly the record the bound record-id param names.
func (f *fakePool) deleteMatching(table string, params map[string]any) {
	var kept []map[string]any
	for _, row := range f.rows[table] {
		if rowMatches(row, params) {
			continue
		}
		kept = append(kept, row)
	}
	f.rows[table] = kept
}

func rowMatches(row map[string]any, params map[string]any) bool {
	if v, ok := params["user_id"]; ok && row["user_id"] != v {
		return false
	}
	if v, ok := params["op_type"]; ok && row["operation_type"] != v {
		return false
	}
	if v, ok := params["op_key"]; ok && row["operation_key"] != v {
		return false
	}
	if v, ok := params["sync_type"]; ok && row["sync_type"] != v {
		return false
	}
	return true
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// tableFromSQL identifies the target table. UPSERT/DELETE against bot_results
// bind the record id as $rid rather than embedding the table name in the SQL
// text, so those fall back to a params-shape check: only bot_results queries
// carry op_type/op_key.
func tableFromSQL(sql string, params map[string]any) string {
	switch {
	case strings.Contains(sql, botResultsTable):
		return botResultsTable
	case strings.Contains(sql, syncEventsTable):
		return syncEventsTable
	case params != nil:
		if _, ok := params["op_type"]; ok {
			return botResultsTable
		}
		if _, ok := params["sync_type"]; ok {
			return syncEventsTable
		}
		return "unknown"
	default:
		return "unknown"
	}
}

var _ Pool = (*fakePool)(nil)
