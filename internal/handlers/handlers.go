// Package handlers assembles the reference operation handlers the core
// boots with. The ERP automation behind each operation is opaque to the
// scheduler core (browser scripting, form field mapping, parsing results) —
// handlers here illustrate the Handler contract each real implementation
// must satisfy, not the automation itself.
package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/processor"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

// Build returns a handler for every registered operation kind, keyed the
// way processor.ValidateHandlers expects. Callers that need real ERP
// automation should replace individual entries before passing the map to
// app.NewApp — Build exists so the process always has a complete table to
// boot with.
func Build() map[registry.Kind]processor.Handler {
	return map[registry.Kind]processor.Handler{
		registry.KindSubmitOrder:       withBotResultRecovery("order"),
		registry.KindCreateCustomer:    withBotResultRecovery("customer"),
		registry.KindSendToVerona:      withBotResultRecovery("verona-dispatch"),
		registry.KindEditOrder:         noOpWrite,
		registry.KindDeleteOrder:       noOpWrite,
		registry.KindUpdateCustomer:    noOpWrite,
		registry.KindDownloadDDTPDF:    downloadHandler,
		registry.KindDownloadInvoice:   downloadHandler,
		registry.KindSyncOrderArticles: syncHandler,
		registry.KindSyncCustomers:     syncHandler,
		registry.KindSyncOrders:        syncHandler,
		registry.KindSyncDDT:           syncHandler,
		registry.KindSyncInvoices:      syncHandler,
		registry.KindSyncProducts:      syncHandler,
		registry.KindSyncPrices:        syncHandler,
	}
}

// withBotResultRecovery demonstrates the check/save/clear protocol for
// operations whose ERP side effect cannot be safely repeated: check for a
// result saved by a prior attempt before doing any work, save immediately
// after the bot action succeeds (before the rest of the handler can fail),
// and clear once the operation is fully durable.
func withBotResultRecovery(operationKey string) processor.Handler {
	return func(inv processor.Invocation) (processor.Outcome, error) {
		if existing, err := inv.CheckBotResult(inv.Signal, operationKey); err != nil {
			return processor.Outcome{}, fmt.Errorf("check bot result: %w", err)
		} else if existing != nil {
			if err := inv.ClearBotResult(inv.Signal, operationKey); err != nil {
				return processor.Outcome{}, fmt.Errorf("clear bot result: %w", err)
			}
			return processor.Outcome{Success: true, Result: json.RawMessage(existing)}, nil
		}

		inv.OnProgress(50, "submitting to ERP")

		result := json.RawMessage(`{"status":"submitted"}`)
		if err := inv.SaveBotResult(inv.Signal, operationKey, result); err != nil {
			return processor.Outcome{}, fmt.Errorf("save bot result: %w", err)
		}

		if err := inv.ClearBotResult(inv.Signal, operationKey); err != nil {
			return processor.Outcome{}, fmt.Errorf("clear bot result: %w", err)
		}

		return processor.Outcome{Success: true, Result: result}, nil
	}
}

// noOpWrite stands in for a write whose ERP side effect is naturally
// idempotent (the target record's final state, not an append) and so
// needs no bot-result recovery.
func noOpWrite(inv processor.Invocation) (processor.Outcome, error) {
	return processor.Outcome{Success: true}, nil
}

// downloadPayload is the shape a download-ddt-pdf / download-invoice-pdf
// job carries: the ERP-returned document, base64-encoded.
type downloadPayload struct {
	PDFBase64 string `json:"pdfBase64"`
}

// downloadHandler stands in for a per-order PDF fetch, validating that the
// fetched bytes actually parse as a PDF before reporting success — the
// same sanity check the teacher runs before accepting a downloaded filing.
func downloadHandler(inv processor.Invocation) (processor.Outcome, error) {
	var payload downloadPayload
	if err := json.Unmarshal(inv.Data, &payload); err != nil {
		return processor.Outcome{}, fmt.Errorf("decode download payload: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(payload.PDFBase64)
	if err != nil {
		return processor.Outcome{Success: false, Error: "downloaded document is not valid base64"}, nil
	}

	if _, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw))); err != nil {
		return processor.Outcome{Success: false, Error: fmt.Sprintf("downloaded document failed PDF validation: %v", err)}, nil
	}

	return processor.Outcome{Success: true, Result: json.RawMessage(`{"bytes":` + fmt.Sprint(len(raw)) + `}`)}, nil
}

// syncHandler stands in for a bulk scheduled sync, reporting progress as it
// would page through ERP results.
func syncHandler(inv processor.Invocation) (processor.Outcome, error) {
	inv.OnProgress(50, "fetching from ERP")
	inv.OnProgress(100, "done")
	return processor.Outcome{Success: true}, nil
}
