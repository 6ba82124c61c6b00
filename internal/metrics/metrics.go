package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"perch/internal/broadcast"
)

// Metrics holds Prometheus counters and gauges for the broadcast daemon.
type Metrics struct {
	registry             *prometheus.Registry
	transitionsTotal     *prometheus.CounterVec
	retryAttemptsTotal   *prometheus.CounterVec
	pollerCyclesTotal    prometheus.Counter
	enrichmentRunsTotal  *prometheus.CounterVec
	motionEventsTotal    prometheus.Counter
	notificationsFailed  prometheus.Counter
	broadcastsByState    *prometheus.GaugeVec
	scheduledHorizonSecs prometheus.Gauge
}

// New creates and registers Prometheus metrics for the daemon.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perch_broadcast_transitions_total",
		Help: "Total lifecycle transitions applied to broadcasts, by target state",
	}, []string{"state"})
	retryAttemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perch_retry_attempts_total",
		Help: "Total failed platform attempts that entered the retry loop, by operation",
	}, []string{"operation"})
	pollerCyclesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "perch_poller_cycles_total",
		Help: "Total completed-broadcast discovery cycles",
	})
	enrichmentRunsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perch_enrichment_runs_total",
		Help: "Total enrichment pipeline runs, by outcome",
	}, []string{"outcome"})
	motionEventsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "perch_motion_events_total",
		Help: "Total motion events found across enriched recordings",
	})
	notificationsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "perch_notifications_failed_total",
		Help: "Total notification deliveries that returned an error",
	})
	broadcastsByState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perch_broadcasts",
		Help: "Broadcasts currently in the ledger, by lifecycle state",
	}, []string{"state"})
	scheduledHorizonSecs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "perch_scheduled_horizon_seconds",
		Help: "Seconds between now and the furthest scheduled window end",
	})

	registry.MustRegister(
		transitionsTotal,
		retryAttemptsTotal,
		pollerCyclesTotal,
		enrichmentRunsTotal,
		motionEventsTotal,
		notificationsFailed,
		broadcastsByState,
		scheduledHorizonSecs,
	)

	return &Metrics{
		registry:             registry,
		transitionsTotal:     transitionsTotal,
		retryAttemptsTotal:   retryAttemptsTotal,
		pollerCyclesTotal:    pollerCyclesTotal,
		enrichmentRunsTotal:  enrichmentRunsTotal,
		motionEventsTotal:    motionEventsTotal,
		notificationsFailed:  notificationsFailed,
		broadcastsByState:    broadcastsByState,
		scheduledHorizonSecs: scheduledHorizonSecs,
	}
}

// IncTransition records a lifecycle transition into state.
func (m *Metrics) IncTransition(state broadcast.State) {
	m.transitionsTotal.WithLabelValues(string(state)).Inc()
}

// IncRetryAttempt records a failed attempt for the named operation.
func (m *Metrics) IncRetryAttempt(operation string) {
	m.retryAttemptsTotal.WithLabelValues(operation).Inc()
}

// IncPollerCycle records one completed discovery cycle.
func (m *Metrics) IncPollerCycle() {
	m.pollerCyclesTotal.Inc()
}

// IncEnrichmentRun records an enrichment run with the given outcome label.
func (m *Metrics) IncEnrichmentRun(outcome string) {
	m.enrichmentRunsTotal.WithLabelValues(outcome).Inc()
}

// AddMotionEvents records motion events found in one recording.
func (m *Metrics) AddMotionEvents(count int) {
	if count > 0 {
		m.motionEventsTotal.Add(float64(count))
	}
}

// IncNotificationFailure records a failed notification delivery.
func (m *Metrics) IncNotificationFailure() {
	m.notificationsFailed.Inc()
}

// SetBroadcastCounts refreshes the per-state broadcast gauges.
func (m *Metrics) SetBroadcastCounts(summary broadcast.HealthSummary) {
	m.broadcastsByState.WithLabelValues(string(broadcast.StatePending)).Set(float64(summary.Pending))
	m.broadcastsByState.WithLabelValues(string(broadcast.StateScheduled)).Set(float64(summary.Scheduled))
	m.broadcastsByState.WithLabelValues(string(broadcast.StateLive)).Set(float64(summary.Live))
	m.broadcastsByState.WithLabelValues(string(broadcast.StateEnded)).Set(float64(summary.Ended))
	m.broadcastsByState.WithLabelValues(string(broadcast.StateEnriched)).Set(float64(summary.Enriched))
	m.broadcastsByState.WithLabelValues(string(broadcast.StateAbandoned)).Set(float64(summary.Abandoned))
}

// SetScheduledHorizon refreshes the scheduling headroom gauge.
func (m *Metrics) SetScheduledHorizon(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	m.scheduledHorizonSecs.Set(seconds)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}
