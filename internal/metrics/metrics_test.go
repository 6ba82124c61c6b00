package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"perch/internal/broadcast"
	"perch/internal/metrics"
)

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	m := metrics.New()
	m.IncTransition(broadcast.StateLive)
	m.IncRetryAttempt("create-broadcast")
	m.IncPollerCycle()
	m.IncEnrichmentRun("motion")
	m.AddMotionEvents(3)

	refreshed := false
	handler := m.Handler(func() {
		refreshed = true
		m.SetBroadcastCounts(broadcast.HealthSummary{Live: 1, Scheduled: 2})
		m.SetScheduledHorizon(7200)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !refreshed {
		t.Fatal("expected gauge refresh before scrape")
	}
	body, _ := io.ReadAll(rec.Result().Body)
	text := string(body)
	for _, want := range []string{
		`perch_broadcast_transitions_total{state="live"} 1`,
		`perch_retry_attempts_total{operation="create-broadcast"} 1`,
		`perch_poller_cycles_total 1`,
		`perch_enrichment_runs_total{outcome="motion"} 1`,
		`perch_motion_events_total 3`,
		`perch_broadcasts{state="scheduled"} 2`,
		`perch_scheduled_horizon_seconds 7200`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("scrape output missing %q:\n%s", want, text)
		}
	}
}

func TestSetScheduledHorizonClampsNegative(t *testing.T) {
	m := metrics.New()
	m.SetScheduledHorizon(-10)

	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "perch_scheduled_horizon_seconds 0") {
		t.Fatalf("expected clamped gauge:\n%s", body)
	}
}
