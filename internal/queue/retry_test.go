package queue

import (
	"testing"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
)

func TestRetryPolicyFor_ScheduledSync(t *testing.T) {
	p := RetryPolicyFor(registry.KindSyncCustomers)
	if p.MaxAttempts != 3 {
		t.Fatalf("scheduled sync MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if !p.Retryable(1) || !p.Retryable(3) || p.Retryable(4) {
		t.Error("Retryable bounds incorrect for scheduled sync")
	}
	if d := p.DelayForAttempt(1); d.Seconds() != 30 {
		t.Errorf("first retry delay = %v, want 30s", d)
	}
	if d := p.DelayForAttempt(2); d.Seconds() != 60 {
		t.Errorf("second retry delay = %v, want 60s", d)
	}
}

func TestRetryPolicyFor_PDFDownload(t *testing.T) {
	for _, kind := range []registry.Kind{registry.KindDownloadDDTPDF, registry.KindDownloadInvoice} {
		p := RetryPolicyFor(kind)
		if p.MaxAttempts != 2 {
			t.Errorf("%s MaxAttempts = %d, want 2", kind, p.MaxAttempts)
		}
		if d := p.DelayForAttempt(1); d.Seconds() != 5 {
			t.Errorf("%s first retry delay = %v, want 5s", kind, d)
		}
		if d := p.DelayForAttempt(2); d.Seconds() != 5 {
			t.Errorf("%s second retry delay = %v, want fixed 5s", kind, d)
		}
	}
}

func TestRetryPolicyFor_WritesDoNotRetry(t *testing.T) {
	for _, kind := range []registry.Kind{registry.KindSubmitOrder, registry.KindCreateCustomer, registry.KindSendToVerona} {
		p := RetryPolicyFor(kind)
		if p.MaxAttempts != 0 {
			t.Errorf("%s MaxAttempts = %d, want 0 (no retry)", kind, p.MaxAttempts)
		}
		if p.Retryable(1) {
			t.Errorf("%s should never be retryable", kind)
		}
	}
}

func TestRetryPolicyFor_DelayForAttemptIsSideEffectFree(t *testing.T) {
	p := RetryPolicyFor(registry.KindSyncOrders)
	first := p.DelayForAttempt(1)
	again := p.DelayForAttempt(1)
	if first != again {
		t.Errorf("DelayForAttempt(1) should be deterministic across calls, got %v then %v", first, again)
	}
}
