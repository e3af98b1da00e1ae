// Package metrics collects and exposes the server's Prometheus metrics.
//
// One Collector serves every layer: it satisfies the Recorder interfaces of
// the realtime, service and planner packages, and the HTTP middleware
// records requests through it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wedchart"

// Collector holds every metric the server exports.
type Collector struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	rateLimited      *prometheus.CounterVec
	writes           *prometheus.CounterVec
	authEvents       *prometheus.CounterVec
	importRows       *prometheus.CounterVec
	publishes        prometheus.Counter
	publishedGuests  prometheus.Histogram
	realtimeDeliver  *prometheus.CounterVec
	realtimeDropped  *prometheus.CounterVec
	activeWorkspaces prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_writes_total",
			Help:      "Committed writes by relation and operation.",
		}, []string{"relation", "op"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Identity operations by event and outcome.",
		}, []string{"event", "outcome"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "csv_import_rows_total",
			Help:      "CSV import rows by outcome (success, failed, duplicate).",
		}, []string{"outcome"}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guest_list_publishes_total",
			Help:      "Published guest list snapshots.",
		}),
		publishedGuests: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guest_list_published_guests",
			Help:      "Guests per published snapshot.",
			Buckets:   []float64{10, 25, 50, 100, 200, 400},
		}),
		realtimeDeliver: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_delivered_total",
			Help:      "Change notifications delivered to subscribers.",
		}, []string{"relation"}),
		realtimeDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_total",
			Help:      "Change notifications dropped because a subscriber was full.",
		}, []string{"relation"}),
		activeWorkspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workspaces",
			Help:      "Signed-in workspaces currently held in memory.",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.rateLimited,
		c.writes,
		c.authEvents,
		c.importRows,
		c.publishes,
		c.publishedGuests,
		c.realtimeDeliver,
		c.realtimeDropped,
		c.activeWorkspaces,
	)

	return c
}

// RecordHTTPRequest records one served request. route is the chi pattern,
// not the raw path, to keep label cardinality bounded.
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) RecordRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

func (c *Collector) RecordWrite(relation, op string) {
	c.writes.WithLabelValues(relation, op).Inc()
}

func (c *Collector) RecordAuth(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordImportRows adds n rows with the given outcome. Zero is ignored.
func (c *Collector) RecordImportRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	c.importRows.WithLabelValues(outcome).Add(float64(n))
}

func (c *Collector) RecordPublish(guests int) {
	c.publishes.Inc()
	c.publishedGuests.Observe(float64(guests))
}

func (c *Collector) RecordRealtimeDelivered(relation string) {
	c.realtimeDeliver.WithLabelValues(relation).Inc()
}

func (c *Collector) RecordRealtimeDropped(relation string) {
	c.realtimeDropped.WithLabelValues(relation).Inc()
}

// SetActiveWorkspaces reports how many workspaces are open.
func (c *Collector) SetActiveWorkspaces(n int) {
	c.activeWorkspaces.Set(float64(n))
}

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
