package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all metrics for the threat monitor service
type Collector struct {
	eventsIngested    *prometheus.CounterVec
	validationRejects prometheus.Counter
	appendDuration    prometheus.Histogram

	broadcastsTotal prometheus.Counter
	framesDropped   prometheus.Counter
	wsConnections   prometheus.Gauge

	storeEvictions prometheus.Counter
	rebuildTotal   prometheus.Counter
}

// NewCollector creates a metrics collector registered on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		eventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "protego",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of threat events ingested",
		}, []string{"platform", "severity"}),
		validationRejects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "protego",
			Subsystem: "ingest",
			Name:      "validation_rejects_total",
			Help:      "Total number of events rejected at validation",
		}),
		appendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "protego",
			Subsystem: "store",
			Name:      "append_duration_seconds",
			Help:      "Event store append latency",
			Buckets:   prometheus.DefBuckets,
		}),
		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "protego",
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Total number of events fanned out to subscribers",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "protego",
			Subsystem: "realtime",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped for slow subscribers",
		}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "protego",
			Subsystem: "realtime",
			Name:      "websocket_connections",
			Help:      "Current number of live-feed subscribers",
		}),
		storeEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "protego",
			Subsystem: "store",
			Name:      "evictions_total",
			Help:      "Total number of events evicted by retention",
		}),
		rebuildTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "protego",
			Subsystem: "aggregator",
			Name:      "rebuilds_total",
			Help:      "Total number of aggregate rebuilds",
		}),
	}
}

// EventIngested records one accepted event.
func (c *Collector) EventIngested(platform, severity string) {
	c.eventsIngested.WithLabelValues(platform, severity).Inc()
}

// ValidationReject records one rejected event.
func (c *Collector) ValidationReject() {
	c.validationRejects.Inc()
}

// ObserveAppend records event store append latency in seconds.
func (c *Collector) ObserveAppend(seconds float64) {
	c.appendDuration.Observe(seconds)
}

// Broadcast records one hub publish.
func (c *Collector) Broadcast() {
	c.broadcastsTotal.Inc()
}

// FramesDropped records frames discarded for slow subscribers.
func (c *Collector) FramesDropped(n uint64) {
	c.framesDropped.Add(float64(n))
}

// SetConnections records the current subscriber count.
func (c *Collector) SetConnections(n int) {
	c.wsConnections.Set(float64(n))
}

// Evicted records events removed by the retention sweep.
func (c *Collector) Evicted(n int64) {
	c.storeEvictions.Add(float64(n))
}

// Rebuilt records one aggregate rebuild.
func (c *Collector) Rebuilt() {
	c.rebuildTotal.Inc()
}
