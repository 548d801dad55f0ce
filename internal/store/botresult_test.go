package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

func TestBotResultStore_SaveThenCheckRoundTrips(t *testing.T) {
	s := NewBotResultStore(newFakePool())
	ctx := context.Background()
	payload := json.RawMessage(`{"orderId":"ord-1","confirmed":true}`)

	if err := s.Save(ctx, "user-1", registry.KindSubmitOrder, "ord-1", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Check(ctx, "user-1", registry.KindSubmitOrder, "ord-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Check returned %s, want byte-for-byte %s", got, payload)
	}
}

func TestBotResultStore_CheckBeforeSaveReturnsNil(t *testing.T) {
	s := NewBotResultStore(newFakePool())
	got, err := s.Check(context.Background(), "user-1", registry.KindSubmitOrder, "ord-never-saved")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got != nil {
		t.Fatalf("Check = %s, want nil for an unsaved triple", got)
	}
}

func TestBotResultStore_ClearThenCheckReturnsNil(t *testing.T) {
	s := NewBotResultStore(newFakePool())
	ctx := context.Background()
	payload := json.RawMessage(`{"ok":true}`)

	if err := s.Save(ctx, "user-1", registry.KindSubmitOrder, "ord-1", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear(ctx, "user-1", registry.KindSubmitOrder, "ord-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	got, err := s.Check(ctx, "user-1", registry.KindSubmitOrder, "ord-1")
	if err != nil {
		t.Fatalf("Check after Clear: %v", err)
	}
	if got != nil {
		t.Fatalf("Check after Clear = %s, want nil", got)
	}
}

func TestBotResultStore_SaveIsScopedToTriple(t *testing.T) {
	s := NewBotResultStore(newFakePool())
	ctx := context.Background()

	if err := s.Save(ctx, "user-1", registry.KindSubmitOrder, "ord-1", json.RawMessage(`"a"`)); err != nil {
		t.Fatalf("Save user-1: %v", err)
	}
	if err := s.Save(ctx, "user-2", registry.KindSubmitOrder, "ord-1", json.RawMessage(`"b"`)); err != nil {
		t.Fatalf("Save user-2: %v", err)
	}

	got1, err := s.Check(ctx, "user-1", registry.KindSubmitOrder, "ord-1")
	if err != nil {
		t.Fatalf("Check user-1: %v", err)
	}
	got2, err := s.Check(ctx, "user-2", registry.KindSubmitOrder, "ord-1")
	if err != nil {
		t.Fatalf("Check user-2: %v", err)
	}
	if string(got1) != `"a"` || string(got2) != `"b"` {
		t.Fatalf("cross-agent leakage: user-1=%s user-2=%s", got1, got2)
	}
}

// TestBotResultStore_OperationKeyWithRecordIDDelimiters confirms a handler
// whose operationKey contains SurrealDB's record-id delimiter characters
// round-trips correctly and never leaks into — or is corrupted by — another
// triple's record, now that the record id is bound as $rid rather than
// concatenated into the SurrealQL text.
func TestBotResultStore_OperationKeyWithRecordIDDelimiters(t *testing.T) {
	s := NewBotResultStore(newFakePool())
	ctx := context.Background()

	dangerousKey := `ord⟩; DROP TABLE bot_results; ⟨1`
	payload := json.RawMessage(`{"confirmed":true}`)

	if err := s.Save(ctx, "user-1", registry.KindSubmitOrder, dangerousKey, payload); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Check(ctx, "user-1", registry.KindSubmitOrder, dangerousKey)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Check returned %s, want byte-for-byte %s", got, payload)
	}

	// An unrelated triple survives untouched.
	if err := s.Save(ctx, "user-1", registry.KindSubmitOrder, "ord-safe", json.RawMessage(`"safe"`)); err != nil {
		t.Fatalf("Save ord-safe: %v", err)
	}
	if err := s.Clear(ctx, "user-1", registry.KindSubmitOrder, dangerousKey); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err = s.Check(ctx, "user-1", registry.KindSubmitOrder, dangerousKey)
	if err != nil {
		t.Fatalf("Check after Clear: %v", err)
	}
	if got != nil {
		t.Fatalf("Check after Clear = %s, want nil", got)
	}
	safe, err := s.Check(ctx, "user-1", registry.KindSubmitOrder, "ord-safe")
	if err != nil {
		t.Fatalf("Check ord-safe: %v", err)
	}
	if string(safe) != `"safe"` {
		t.Fatalf("unrelated triple ord-safe = %s, want untouched", safe)
	}
}

func TestBotResultStore_ReSaveOverwrites(t *testing.T) {
	s := NewBotResultStore(newFakePool())
	ctx := context.Background()

	if err := s.Save(ctx, "user-1", registry.KindSubmitOrder, "ord-1", json.RawMessage(`"first"`)); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := s.Save(ctx, "user-1", registry.KindSubmitOrder, "ord-1", json.RawMessage(`"second"`)); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := s.Check(ctx, "user-1", registry.KindSubmitOrder, "ord-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if string(got) != `"second"` {
		t.Fatalf("Check = %s, want the retry's overwritten payload", got)
	}
}
