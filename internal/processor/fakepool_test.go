package processor

import (
	"context"
	"strings"
	"sync"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/store"
)

// fakePool is a minimal store.Pool stand-in, just enough to back
// store.BotResultStore and store.SyncEventStore in processor tests.
type fakePool struct {
	mu   sync.Mutex
	rows map[string][]map[string]any
}

func newFakePool() *fakePool {
	return &fakePool{rows: make(map[string][]map[string]any)}
}

func (f *fakePool) Query(_ context.Context, sql string, params map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table := "bot_results"
	if strings.Contains(sql, "sync_events") {
		table = "sync_events"
	}

	switch {
	case strings.HasPrefix(sql, "SELECT"):
		var matched []map[string]any
		for _, row := range f.rows[table] {
			if match(row, params) {
				matched = append(matched, row)
			}
		}
		return matched, nil
	case strings.HasPrefix(sql, "UPSERT"):
		row := map[string]any{
			"user_id":        params["user_id"],
			"operation_type": params["op_type"],
			"operation_key":  params["op_key"],
			"result_data":    params["data"],
		}
		var replaced bool
		for i, existing := range f.rows[table] {
			if match(existing, params) {
				f.rows[table][i] = row
				replaced = true
				break
			}
		}
		if !replaced {
			f.rows[table] = append(f.rows[table], row)
		}
		return nil, nil
	case strings.HasPrefix(sql, "CREATE"):
		clone := make(map[string]any, len(params))
		for k, v := range params {
			clone[k] = v
		}
		f.rows[table] = append(f.rows[table], clone)
		return nil, nil
	case strings.HasPrefix(sql, "DELETE"):
		start, end := strings.Index(sql, "⟨"), strings.Index(sql, "⟩")
		if start == -1 || end == -1 {
			f.rows[table] = nil
			return nil, nil
		}
		parts := strings.SplitN(sql[start+len("⟨"):end], "|", 3)
		var kept []map[string]any
		for _, row := range f.rows[table] {
			if len(parts) == 3 && row["user_id"] == parts[0] && row["operation_type"] == parts[1] && row["operation_key"] == parts[2] {
				continue
			}
			kept = append(kept, row)
		}
		f.rows[table] = kept
		return nil, nil
	default:
		return nil, nil
	}
}

func match(row map[string]any, params map[string]any) bool {
	if v, ok := params["user_id"]; ok && row["user_id"] != v {
		return false
	}
	if v, ok := params["op_type"]; ok && row["operation_type"] != v {
		return false
	}
	if v, ok := params["op_key"]; ok && row["operation_key"] != v {
		return false
	}
	return true
}

func (f *fakePool) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Pool) error) error {
	return fn(ctx, f)
}

var _ store.Pool = (*fakePool)(nil)
