package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the sync service.
type Metrics struct {
	registry                 *prometheus.Registry
	requestsTotal            prometheus.Counter
	errorsTotal              prometheus.Counter
	commandsTotal            *prometheus.CounterVec
	marksSetTotal            prometheus.Counter
	alignmentsTotal          prometheus.Counter
	insufficientMarksTotal   prometheus.Counter
	endedSignalsTotal        prometheus.Counter
	persistenceFailuresTotal prometheus.Counter
	streams                  prometheus.Gauge
	markedStreams            prometheus.Gauge
	bestOverlapSeconds       prometheus.Gauge
	connectedPlayers         prometheus.Gauge
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camsync_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camsync_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camsync_commands_total",
			Help: "Operator commands dispatched, by kind",
		}, []string{"kind"}),
		marksSetTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camsync_marks_set_total",
			Help: "Total number of marks placed",
		}),
		alignmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camsync_alignments_total",
			Help: "Total number of successful alignments",
		}),
		insufficientMarksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camsync_alignments_rejected_total",
			Help: "Alignments rejected because fewer than two streams had a mark",
		}),
		endedSignalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camsync_ended_signals_total",
			Help: "End-of-stream signals handled by the end policy",
		}),
		persistenceFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camsync_persistence_write_failures_total",
			Help: "Sync state writes rejected by the persistence backend",
		}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camsync_streams",
			Help: "Number of streams in the group",
		}),
		markedStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camsync_marked_streams",
			Help: "Number of streams with a mark",
		}),
		bestOverlapSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camsync_best_overlap_seconds",
			Help: "Overlap window of the best reference candidate",
		}),
		connectedPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camsync_connected_players",
			Help: "Number of streams with a connected browser player",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.commandsTotal,
		m.marksSetTotal,
		m.alignmentsTotal,
		m.insufficientMarksTotal,
		m.endedSignalsTotal,
		m.persistenceFailuresTotal,
		m.streams,
		m.markedStreams,
		m.bestOverlapSeconds,
		m.connectedPlayers,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncCommands counts one dispatched command of the given kind.
func (m *Metrics) IncCommands(kind string) {
	m.commandsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncMarksSet() {
	m.marksSetTotal.Inc()
}

func (m *Metrics) IncAlignments() {
	m.alignmentsTotal.Inc()
}

func (m *Metrics) IncInsufficientMarks() {
	m.insufficientMarksTotal.Inc()
}

func (m *Metrics) IncEndedSignals() {
	m.endedSignalsTotal.Inc()
}

func (m *Metrics) IncPersistenceFailures() {
	m.persistenceFailuresTotal.Inc()
}

// SetGroupStats updates the stream, mark and overlap gauges.
func (m *Metrics) SetGroupStats(streams, marked int, bestOverlap float64) {
	m.streams.Set(float64(streams))
	m.markedStreams.Set(float64(marked))
	m.bestOverlapSeconds.Set(bestOverlap)
}

// SetConnectedPlayers sets the connected players gauge.
func (m *Metrics) SetConnectedPlayers(n int) {
	m.connectedPlayers.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. connected players).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
