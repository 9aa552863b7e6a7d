package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	InterpretLatency  *prometheus.HistogramVec
	InterpretOutcomes *prometheus.CounterVec
	CartDeltas        *prometheus.CounterVec
	Checkouts         *prometheus.CounterVec

	turns *turnLatency
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active ordering sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		InterpretLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "interpret_latency_ms",
			Help:      "Interpreter round-trip latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000},
		}, []string{"backend"}),
		InterpretOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpret_outcomes_total",
			Help:      "Interpreter calls by backend and result (ok, service, schema).",
		}, []string{"backend", "result"}),
		CartDeltas: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_deltas_total",
			Help:      "Cart deltas by outcome.",
		}, []string{"outcome"}),
		Checkouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Completed checkouts by delivery mode.",
		}, []string{"mode"}),
		turns: newTurnLatency(256),
	}
}

// ObserveInterpret records one interpreter call.
func (m *Metrics) ObserveInterpret(backend, result string, d time.Duration) {
	m.InterpretLatency.WithLabelValues(backend).Observe(float64(d.Milliseconds()))
	m.InterpretOutcomes.WithLabelValues(backend, result).Inc()
	m.turns.observe(StageInterpret, d)
}

// SetInterpretBudget sets the latency budget of the interpret stage; the whole
// turn gets the same budget plus a fixed overhead.
func (m *Metrics) SetInterpretBudget(d time.Duration) {
	m.turns.setInterpretBudget(d)
}

// ObserveTurnStage adds a sample to the rolling per-stage latency window.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	m.turns.observe(stage, d)
}

func (m *Metrics) ObserveTurn(degraded, checkoutRequested bool) {
	m.turns.observeTurn(degraded, checkoutRequested)
}

func (m *Metrics) SnapshotTurns() TurnLatencySnapshot {
	return m.turns.snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
