package buffer

import (
	"testing"
	"time"

	"faultgate/pkg/models"
)

func npeFault(sev models.Severity) models.Fault {
	return models.Fault{
		ExceptionType: "NullPointerException",
		Message:       "Cannot invoke method on null object",
		Location:      "BatteryService.java:234",
		Severity:      sev,
		RootCause:     "battery_data is null",
		DeviceID:      "YJP00000000321",
	}
}

func newTestAggregator(window time.Duration, base time.Time) (*Aggregator, *time.Time) {
	agg := New(Config{Window: window})
	current := base
	agg.SetNow(func() time.Time { return current })
	return agg, &current
}

func TestSubmitFoldsRepeatsWithinWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg, now := newTestAggregator(5*time.Minute, base)

	send, alert, err := agg.Submit(npeFault(models.SeverityError))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !send || alert == nil {
		t.Fatalf("first occurrence must be sendable")
	}
	if alert.Count != 1 || alert.IsAggregated {
		t.Fatalf("unexpected first alert: %+v", alert)
	}

	*now = base.Add(1 * time.Second)
	send, alert, err = agg.Submit(npeFault(models.SeverityError))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if send || alert != nil {
		t.Fatalf("repeat within window must be suppressed")
	}

	pending := agg.PendingSuppressed()
	if len(pending) != 1 {
		t.Fatalf("expected 1 suppressed fingerprint, got %d", len(pending))
	}
	if pending[0].Count != 2 {
		t.Fatalf("expected folded count 2, got %d", pending[0].Count)
	}
	if pending[0].RemainingSeconds <= 0 || pending[0].RemainingSeconds > 300 {
		t.Fatalf("unexpected remaining window: %f", pending[0].RemainingSeconds)
	}
}

func TestSubmitExactlyOneSendPerWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg, now := newTestAggregator(5*time.Minute, base)

	sends := 0
	for i := 0; i < 50; i++ {
		*now = base.Add(time.Duration(i) * time.Second)
		send, _, err := agg.Submit(npeFault(models.SeverityError))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if send {
			sends++
		}
	}
	if sends != 1 {
		t.Fatalf("expected exactly 1 send, got %d", sends)
	}

	pending := agg.PendingSuppressed()
	if len(pending) != 1 || pending[0].Count != 50 {
		t.Fatalf("expected one fingerprint with count 50, got %+v", pending)
	}
}

func TestDrainedAlertCarriesFoldedCount(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg, now := newTestAggregator(5*time.Minute, base)

	for i := 0; i < 4; i++ {
		*now = base.Add(time.Duration(i) * time.Second)
		if _, _, err := agg.Submit(npeFault(models.SeverityError)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	drained := agg.DrainPending()
	if len(drained) != 1 {
		t.Fatalf("expected 1 pending alert, got %d", len(drained))
	}
	if drained[0].Count != 4 {
		t.Fatalf("drained count must include folds since emission, got %d", drained[0].Count)
	}
	if len(drained[0].Occurrences) != 4 {
		t.Fatalf("expected 4 occurrence timestamps, got %d", len(drained[0].Occurrences))
	}
	if got := agg.DrainPending(); got != nil {
		t.Fatalf("second drain must be empty, got %d", len(got))
	}
}

func TestFatalAlwaysSendsAndNeverMutatesBuffer(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg, now := newTestAggregator(5*time.Minute, base)

	if _, _, err := agg.Submit(npeFault(models.SeverityError)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	*now = base.Add(1 * time.Second)
	if _, _, err := agg.Submit(npeFault(models.SeverityError)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		*now = base.Add(time.Duration(2+i) * time.Second)
		send, alert, err := agg.Submit(npeFault(models.SeverityFatal))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !send || alert == nil {
			t.Fatalf("fatal submission %d must send", i)
		}
		if alert.Count != 1 {
			t.Fatalf("fatal alert must not inherit buffered count, got %d", alert.Count)
		}
	}

	pending := agg.PendingSuppressed()
	if len(pending) != 1 || pending[0].Count != 2 {
		t.Fatalf("fatal submissions must not touch the error entry, got %+v", pending)
	}
	if drained := agg.DrainPending(); len(drained) != 4 {
		t.Fatalf("expected 1 error + 3 fatal pending alerts, got %d", len(drained))
	}
}

func TestWindowExpiryRearmsFingerprint(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg, now := newTestAggregator(300*time.Second, base)

	send, first, err := agg.Submit(npeFault(models.SeverityError))
	if err != nil || !send {
		t.Fatalf("first submission must send (err=%v)", err)
	}

	*now = base.Add(301 * time.Second)
	send, second, err := agg.Submit(npeFault(models.SeverityError))
	if err != nil || !send {
		t.Fatalf("post-expiry submission must send (err=%v)", err)
	}
	if second.Count != 1 {
		t.Fatalf("re-armed entry must not inherit count, got %d", second.Count)
	}
	if !second.IsAggregated {
		t.Fatalf("re-armed alert must be flagged aggregated")
	}
	if first.IsAggregated {
		t.Fatalf("first alert must not be flagged aggregated")
	}
}

func TestWindowBoundaryIsExclusive(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg, now := newTestAggregator(300*time.Second, base)

	if _, _, err := agg.Submit(npeFault(models.SeverityError)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// An occurrence at exactly firstSeen+window starts a new window.
	*now = base.Add(300 * time.Second)
	send, _, err := agg.Submit(npeFault(models.SeverityError))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !send {
		t.Fatalf("occurrence at the window boundary must re-arm")
	}
}

func TestSweepRemovesOnlyExpiredEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg, now := newTestAggregator(300*time.Second, base)

	old := npeFault(models.SeverityError)
	if _, _, err := agg.Submit(old); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fresh := models.Fault{ExceptionType: "SocketTimeoutException", Location: "GatewayClient.java:88", Severity: models.SeverityWarn}
	*now = base.Add(200 * time.Second)
	if _, _, err := agg.Submit(fresh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	*now = base.Add(250 * time.Second)
	if _, _, err := agg.Submit(fresh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if evicted := agg.Sweep(base.Add(301 * time.Second)); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if evicted := agg.Sweep(base.Add(301 * time.Second)); evicted != 0 {
		t.Fatalf("sweep must be idempotent, got %d evictions", evicted)
	}

	*now = base.Add(301 * time.Second)
	pending := agg.PendingSuppressed()
	if len(pending) != 1 {
		t.Fatalf("expected the fresh entry to survive, got %d entries", len(pending))
	}
	if pending[0].ExceptionType != "SocketTimeoutException" || pending[0].Count != 2 {
		t.Fatalf("surviving entry mutated by sweep: %+v", pending[0])
	}
}

func TestSubmitValidation(t *testing.T) {
	agg := New(Config{})

	if _, _, err := agg.Submit(models.Fault{Severity: models.SeverityError}); err == nil {
		t.Fatalf("missing exception type must be rejected")
	}
	if _, _, err := agg.Submit(models.Fault{ExceptionType: "X", Severity: models.Severity(9)}); err == nil {
		t.Fatalf("out-of-range severity must be rejected")
	}
	if got := agg.Stats(); got.BufferedExceptions != 0 || got.PendingAlerts != 0 {
		t.Fatalf("rejected input must not mutate state: %+v", got)
	}
}

func TestFingerprintDistinguishesTypeAndLocation(t *testing.T) {
	a := Fingerprint("NullPointerException", "BatteryService.java:234")
	if a != Fingerprint("NullPointerException", "BatteryService.java:234") {
		t.Fatalf("fingerprint must be stable")
	}
	if a == Fingerprint("NullPointerException", "BatteryService.java:235") {
		t.Fatalf("different locations must not collide")
	}
	if a == Fingerprint("SQLException", "BatteryService.java:234") {
		t.Fatalf("different types must not collide")
	}
	if Fingerprint("X", "") != Fingerprint("X", "unknown") {
		t.Fatalf("empty location must fall back to the unknown sentinel")
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex characters, got %q", a)
	}
}

func TestStatsAndReset(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg, now := newTestAggregator(300*time.Second, base)

	if _, _, err := agg.Submit(npeFault(models.SeverityError)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	*now = base.Add(time.Second)
	if _, _, err := agg.Submit(npeFault(models.SeverityError)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := agg.Stats()
	if st.BufferedExceptions != 1 || st.BufferedOccurrences != 2 || st.PendingAlerts != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	agg.Reset()
	st = agg.Stats()
	if st.BufferedExceptions != 0 || st.BufferedOccurrences != 0 || st.PendingAlerts != 0 {
		t.Fatalf("reset must clear all state: %+v", st)
	}
}
