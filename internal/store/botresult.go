package store

import (
	"context"
	"encoding/json"
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

const botResultsTable = "bot_results"

// botResultRow is the wire shape of one bot_results record.
type botResultRow struct {
	UserID        string `json:"user_id"`
	OperationType string `json:"operation_type"`
	OperationKey  string `json:"operation_key"`
	ResultData    string `json:"result_data"`
}

// BotResultStore implements the three-step bot-result recovery protocol
// (§4.3.5): check before the bot call, save right after it succeeds, clear
// once the handler's own DB writes have committed. A record surviving past
// clear indicates the process died between save and clear — the next
// retry's check finds it and skips repeating the bot call.
type BotResultStore struct {
	pool Pool
}

// NewBotResultStore wraps pool as a BotResultStore.
func NewBotResultStore(pool Pool) *BotResultStore {
	return &BotResultStore{pool: pool}
}

func recordID(userId string, kind registry.Kind, operationKey string) string {
	return fmt.Sprintf("%s|%s|%s", userId, kind, operationKey)
}

// Check returns the saved payload for (userId, kind, operationKey), or nil
// if no bot call has been recorded for that triple since it was last cleared.
func (s *BotResultStore) Check(ctx context.Context, userId string, kind registry.Kind, operationKey string) (json.RawMessage, error) {
	sql := `SELECT user_id, operation_type, operation_key, result_data FROM ` + botResultsTable +
		` WHERE user_id = $user_id AND operation_type = $op_type AND operation_key = $op_key LIMIT 1`
	params := map[string]any{
		"user_id": userId,
		"op_type": string(kind),
		"op_key":  operationKey,
	}

	result, err := s.pool.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("store: check bot result: %w", err)
	}
	rows, err := decodeRows[botResultRow](result)
	if err != nil {
		return nil, fmt.Errorf("store: decode bot result: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return json.RawMessage(rows[0].ResultData), nil
}

// Save records payload as the outcome of a bot call that has already
// achieved its external side effect, before any business-table mutation.
// Upsert semantics: a retry that re-saves the same triple simply overwrites.
func (s *BotResultStore) Save(ctx context.Context, userId string, kind registry.Kind, operationKey string, payload json.RawMessage) error {
	sql := `UPSERT $rid SET
		user_id = $user_id, operation_type = $op_type, operation_key = $op_key, result_data = $data`
	params := map[string]any{
		"rid":     surrealmodels.NewRecordID(botResultsTable, recordID(userId, kind, operationKey)),
		"user_id": userId,
		"op_type": string(kind),
		"op_key":  operationKey,
		"data":    string(payload),
	}
	if _, err := s.pool.Query(ctx, sql, params); err != nil {
		return fmt.Errorf("store: save bot result: %w", err)
	}
	return nil
}

// Clear removes the saved payload once the handler's DB writes have
// committed. A handler that dies before calling Clear leaves the record in
// place for the next retry's Check to find.
func (s *BotResultStore) Clear(ctx context.Context, userId string, kind registry.Kind, operationKey string) error {
	sql := `DELETE $rid`
	params := map[string]any{
		"rid":     surrealmodels.NewRecordID(botResultsTable, recordID(userId, kind, operationKey)),
		"user_id": userId,
		"op_type": string(kind),
		"op_key":  operationKey,
	}
	if _, err := s.pool.Query(ctx, sql, params); err != nil {
		return fmt.Errorf("store: clear bot result: %w", err)
	}
	return nil
}
