package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.EventIngested("twitter", "high")
	c.EventIngested("twitter", "high")
	c.EventIngested("reddit", "low")
	c.ValidationReject()
	c.Broadcast()
	c.FramesDropped(3)
	c.SetConnections(7)
	c.Evicted(12)
	c.Rebuilt()
	c.ObserveAppend(0.002)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.eventsIngested.WithLabelValues("twitter", "high")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.eventsIngested.WithLabelValues("reddit", "low")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.validationRejects))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.broadcastsTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.framesDropped))
	assert.Equal(t, float64(7), testutil.ToFloat64(c.wsConnections))
	assert.Equal(t, float64(12), testutil.ToFloat64(c.storeEvictions))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.rebuildTotal))
}

func TestCollectorIndependentRegistries(t *testing.T) {
	// Two collectors on separate registries must not collide.
	a := NewCollector(prometheus.NewRegistry())
	b := NewCollector(prometheus.NewRegistry())

	a.Broadcast()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.broadcastsTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.broadcastsTotal))
}
