// Package ingest couples the event store append and the aggregate update
// into one logical unit, then fans the event out to live subscribers.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/aggregator"
	"github.com/protego/threat-monitor/internal/metrics"
	"github.com/protego/threat-monitor/internal/realtime"
	"github.com/protego/threat-monitor/internal/store"
	"github.com/protego/threat-monitor/internal/threat"
)

// Ingestor accepts threat events from any producer (HTTP, Kafka, the demo
// simulator) and drives the store -> aggregator -> hub pipeline.
type Ingestor struct {
	// mu pairs writers with snapshot readers: an append and its aggregate
	// update are atomic with respect to Snapshot.
	mu sync.RWMutex

	store   store.EventStore
	agg     *aggregator.Aggregator
	hub     *realtime.Hub
	metrics *metrics.Collector
	logger  *zap.Logger

	retentionDays int
}

// New creates an ingestor. The hub and metrics collector are optional.
// retentionDays bounds rebuilds and the retention sweep; values <= 0
// disable eviction and make rebuilds unbounded.
func New(eventStore store.EventStore, agg *aggregator.Aggregator, hub *realtime.Hub, collector *metrics.Collector, retentionDays int, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		store:         eventStore,
		agg:           agg,
		hub:           hub,
		metrics:       collector,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Ingest validates and stores the event, updates aggregates, and
// broadcasts to live subscribers. Validation and store errors surface to
// the caller; a failed append updates no aggregate state. Broadcast
// failures never surface: fan-out is fire-and-forget and decoupled from
// the persistence acknowledgment.
func (i *Ingestor) Ingest(ctx context.Context, event *threat.Event) (string, error) {
	start := time.Now()

	i.mu.Lock()
	id, err := i.store.Append(ctx, event)
	if err != nil {
		i.mu.Unlock()
		if errors.Is(err, threat.ErrValidation) {
			if i.metrics != nil {
				i.metrics.ValidationReject()
			}
			i.logger.Debug("event rejected", zap.Error(err))
		} else {
			i.logger.Error("event append failed", zap.Error(err))
		}
		return "", err
	}
	i.agg.OnIngest(*event)
	i.mu.Unlock()

	if i.metrics != nil {
		i.metrics.ObserveAppend(time.Since(start).Seconds())
		i.metrics.EventIngested(string(event.Platform), string(event.Severity))
	}

	if i.hub != nil {
		i.hub.Publish(realtime.MessageTypeThreat, event)
	}

	i.logger.Info("threat event ingested",
		zap.String("event_id", id),
		zap.String("vip_name", event.VIPName),
		zap.String("platform", string(event.Platform)),
		zap.String("severity", string(event.Severity)))
	return id, nil
}

// Snapshot returns the aggregate views without observing a half-applied
// ingest.
func (i *Ingestor) Snapshot() aggregator.Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.agg.Snapshot()
}

// Rebuild recomputes aggregates from the store, bounded to the retention
// window.
func (i *Ingestor) Rebuild(ctx context.Context) error {
	days := i.retentionDays
	if days <= 0 {
		// No retention configured: rebuild over everything the store
		// could plausibly hold.
		days = 365 * 100
	}
	// The list must happen under the write lock: a concurrent ingest
	// between listing and rebuilding would be erased from the aggregates
	// until the next rebuild.
	i.mu.Lock()
	events, err := i.store.ListAllInWindow(ctx, days)
	if err != nil {
		i.mu.Unlock()
		return err
	}
	i.agg.Rebuild(events)
	i.mu.Unlock()

	if i.metrics != nil {
		i.metrics.Rebuilt()
	}
	return nil
}

// RunRetention evicts events older than the retention window on the
// given interval and rebuilds aggregates after each sweep that removed
// rows. Blocks until the context is canceled.
func (i *Ingestor) RunRetention(ctx context.Context, interval time.Duration) {
	if i.retentionDays <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			horizon := now.UTC().AddDate(0, 0, -i.retentionDays)
			evicted, err := i.store.EvictBefore(ctx, horizon)
			if err != nil {
				i.logger.Error("retention sweep failed", zap.Error(err))
				continue
			}
			if evicted == 0 {
				continue
			}
			if i.metrics != nil {
				i.metrics.Evicted(evicted)
			}
			i.logger.Info("retention sweep evicted events",
				zap.Int64("evicted", evicted),
				zap.Time("horizon", horizon))
			if err := i.Rebuild(ctx); err != nil {
				i.logger.Error("rebuild after eviction failed", zap.Error(err))
			}
		}
	}
}
