package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry.
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer labels every metric with the owning service.
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "swarmdb-node"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds every Prometheus collector the node exposes.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	ReplicationMessagesTotal   *prometheus.CounterVec
	ReplicationMessageDuration *prometheus.HistogramVec

	DatabaseConnectionsOpen  prometheus.Gauge
	DatabaseConnectionsIdle  prometheus.Gauge
	DatabaseConnectionsInUse prometheus.Gauge
	DatabaseConnectionsWait  prometheus.Counter
	DatabaseQueryDuration    *prometheus.HistogramVec

	ServerInFlightRequests  prometheus.Gauge
	ServerRejectedRequests  prometheus.Counter
	ServerCapacity          prometheus.Gauge
	ServerUtilizationRatio  prometheus.Gauge
	ServerQueuedRequests    prometheus.Gauge

	EventLogAppendsTotal   *prometheus.CounterVec
	EventLogHighestOffset  *prometheus.GaugeVec
	SubscriptionsActive    prometheus.Gauge
	QueryExecutionDuration *prometheus.HistogramVec

	CustomCounters   map[string]*prometheus.CounterVec
	CustomGauges     map[string]*prometheus.GaugeVec
	CustomHistograms map[string]*prometheus.HistogramVec
	customMu         sync.RWMutex

	rejectedMu   sync.Mutex
	rejectedSeen int64
}

// GetMetrics returns the process-wide metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics registers and returns a new metrics collection against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmdb_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmdb_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestSize: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmdb_http_request_size_bytes",
				Help:    "HTTP request size in bytes.",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmdb_http_response_size_bytes",
				Help:    "HTTP response size in bytes.",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "path", "status"},
		),

		ReplicationMessagesTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmdb_replication_messages_total",
				Help: "Total number of gossip/replication messages exchanged with peers.",
			},
			[]string{"peer_id", "direction", "kind"},
		),
		ReplicationMessageDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmdb_replication_message_duration_seconds",
				Help:    "Time spent processing a replication message.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		DatabaseConnectionsOpen: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmdb_database_connections_open",
				Help: "Number of open connections in the optional Postgres snapshot pool.",
			},
		),
		DatabaseConnectionsIdle: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmdb_database_connections_idle",
				Help: "Number of idle connections in the optional Postgres snapshot pool.",
			},
		),
		DatabaseConnectionsInUse: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmdb_database_connections_in_use",
				Help: "Number of connections currently in use in the optional Postgres snapshot pool.",
			},
		),
		DatabaseConnectionsWait: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "swarmdb_database_connections_wait_total",
				Help: "Total number of times a caller waited for a pooled connection.",
			},
		),
		DatabaseQueryDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmdb_database_query_duration_seconds",
				Help:    "Duration of snapshot-store queries in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),

		ServerInFlightRequests: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmdb_server_inflight_requests",
				Help: "Number of HTTP requests currently admitted by the backpressure controller.",
			},
		),
		ServerRejectedRequests: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "swarmdb_server_rejected_requests_total",
				Help: "Total number of requests rejected with Backpressure (429).",
			},
		),
		ServerCapacity: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmdb_server_capacity",
				Help: "Configured concurrent-request capacity of the backpressure controller.",
			},
		),
		ServerUtilizationRatio: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmdb_server_utilization_ratio",
				Help: "Backpressure controller utilization as a percentage (0-100).",
			},
		),
		ServerQueuedRequests: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmdb_server_queued_tasks",
				Help: "Number of tasks queued in the bounded worker pool.",
			},
		),

		EventLogAppendsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmdb_eventlog_appends_total",
				Help: "Total number of events appended, by origin.",
			},
			[]string{"stream_id", "origin"},
		),
		EventLogHighestOffset: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarmdb_eventlog_highest_offset",
				Help: "Highest known offset per stream.",
			},
			[]string{"stream_id"},
		),
		SubscriptionsActive: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmdb_subscriptions_active",
				Help: "Number of currently open subscriptions.",
			},
		),
		QueryExecutionDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmdb_query_execution_duration_seconds",
				Help:    "Wall-clock time to execute a query plan.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),

		CustomCounters:   make(map[string]*prometheus.CounterVec),
		CustomGauges:     make(map[string]*prometheus.GaugeVec),
		CustomHistograms: make(map[string]*prometheus.HistogramVec),
	}
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))
}

// RecordReplicationMessage records one gossip/replication message exchange.
func (m *Metrics) RecordReplicationMessage(peerID, direction, kind string, duration time.Duration) {
	m.ReplicationMessagesTotal.WithLabelValues(peerID, direction, kind).Inc()
	m.ReplicationMessageDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// UpdateDatabasePool updates snapshot-pool gauges.
func (m *Metrics) UpdateDatabasePool(open, idle, inUse int, waitCount int64) {
	m.DatabaseConnectionsOpen.Set(float64(open))
	m.DatabaseConnectionsIdle.Set(float64(idle))
	m.DatabaseConnectionsInUse.Set(float64(inUse))
	if waitCount > 0 {
		m.DatabaseConnectionsWait.Add(float64(waitCount))
	}
}

// RecordDatabaseQuery records one snapshot-store query.
func (m *Metrics) RecordDatabaseQuery(operation string, duration time.Duration) {
	m.DatabaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateServerMetrics updates the admission-control gauges from a
// backpressure controller snapshot and the worker pool's queue depth.
// rejectedTotal is the controller's cumulative rejection count, so the
// counter is set rather than incremented to avoid double-counting.
func (m *Metrics) UpdateServerMetrics(inFlight, capacity int64, utilization float64, rejectedTotal int64, queued int64) {
	m.ServerInFlightRequests.Set(float64(inFlight))
	m.ServerCapacity.Set(float64(capacity))
	m.ServerUtilizationRatio.Set(utilization)
	m.serverRejectedSet(rejectedTotal)
	m.ServerQueuedRequests.Set(float64(queued))
}

func (m *Metrics) serverRejectedSet(total int64) {
	m.rejectedMu.Lock()
	defer m.rejectedMu.Unlock()
	delta := total - m.rejectedSeen
	if delta > 0 {
		m.ServerRejectedRequests.Add(float64(delta))
		m.rejectedSeen = total
	}
}

// RecordEventAppend records a successful append to a stream.
func (m *Metrics) RecordEventAppend(streamID, origin string, highestOffset uint64) {
	m.EventLogAppendsTotal.WithLabelValues(streamID, origin).Inc()
	m.EventLogHighestOffset.WithLabelValues(streamID).Set(float64(highestOffset))
}

// SetSubscriptionsActive sets the current open-subscription gauge.
func (m *Metrics) SetSubscriptionsActive(n int) {
	m.SubscriptionsActive.Set(float64(n))
}

// RecordQueryExecution records the wall-clock duration of one query plan execution.
func (m *Metrics) RecordQueryExecution(mode string, duration time.Duration) {
	m.QueryExecutionDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// Counter creates or returns a custom counter metric.
func (m *Metrics) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	m.customMu.RLock()
	if counter, exists := m.CustomCounters[name]; exists {
		m.customMu.RUnlock()
		return counter
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()

	if counter, exists := m.CustomCounters[name]; exists {
		return counter
	}

	counter := promauto.With(DefaultRegisterer).NewCounterVec(
		prometheus.CounterOpts{Name: name, Help: help},
		labels,
	)
	m.CustomCounters[name] = counter
	return counter
}

// Gauge creates or returns a custom gauge metric.
func (m *Metrics) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	m.customMu.RLock()
	if gauge, exists := m.CustomGauges[name]; exists {
		m.customMu.RUnlock()
		return gauge
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()

	if gauge, exists := m.CustomGauges[name]; exists {
		return gauge
	}

	gauge := promauto.With(DefaultRegisterer).NewGaugeVec(
		prometheus.GaugeOpts{Name: name, Help: help},
		labels,
	)
	m.CustomGauges[name] = gauge
	return gauge
}

// Histogram creates or returns a custom histogram metric.
func (m *Metrics) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	m.customMu.RLock()
	if histogram, exists := m.CustomHistograms[name]; exists {
		m.customMu.RUnlock()
		return histogram
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()

	if histogram, exists := m.CustomHistograms[name]; exists {
		return histogram
	}

	opts := prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}
	if buckets == nil {
		opts.Buckets = prometheus.DefBuckets
	}

	histogram := promauto.With(DefaultRegisterer).NewHistogramVec(opts, labels)
	m.CustomHistograms[name] = histogram
	return histogram
}

// Counter returns a custom counter metric on the global instance.
func Counter(name, help string, labels ...string) *prometheus.CounterVec {
	return GetMetrics().Counter(name, help, labels...)
}

// Gauge returns a custom gauge metric on the global instance.
func Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return GetMetrics().Gauge(name, help, labels...)
}

// Histogram returns a custom histogram metric on the global instance.
func Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return GetMetrics().Histogram(name, help, buckets, labels...)
}
