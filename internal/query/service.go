// Package query is the stateless read facade over the event store and the
// aggregator. Every method is side-effect-free and safe to call while
// ingestion is running; results degrade to empty rather than failing when
// a single derived metric is unavailable.
package query

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/config"
	"github.com/protego/threat-monitor/internal/ingest"
	"github.com/protego/threat-monitor/internal/store"
	"github.com/protego/threat-monitor/internal/threat"
	"github.com/protego/threat-monitor/internal/vip"
)

// Service answers point-in-time analytics requests.
type Service struct {
	store    store.EventStore
	ingestor *ingest.Ingestor
	vips     vip.Registry
	cfg      config.AnalyticsConfig
	logger   *zap.Logger
}

// New creates the read facade. The vip registry may be nil when profile
// management is disabled.
func New(eventStore store.EventStore, ingestor *ingest.Ingestor, vips vip.Registry, cfg config.AnalyticsConfig, logger *zap.Logger) *Service {
	return &Service{
		store:    eventStore,
		ingestor: ingestor,
		vips:     vips,
		cfg:      cfg,
		logger:   logger,
	}
}

// Stats returns the dashboard summary counters.
func (s *Service) Stats(ctx context.Context) threat.Stats {
	snap := s.ingestor.Snapshot()

	stats := threat.Stats{
		ActiveMonitors:     len(threat.Platforms) - 1, // "unknown" is a catch-all, not a monitor
		PlatformsMonitored: len(snap.PlatformCounts),
		LastScan:           snap.LastIngest,
	}

	today := time.Now().UTC().Format("2006-01-02")
	stats.ThreatsToday = snap.Timeline[today]

	window := time.Duration(s.cfg.HighSeverityWindowHours) * time.Hour
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	recent, err := s.store.ListRecent(ctx, window, int(snap.Total)+1)
	if err != nil {
		// Partial stats beat no stats; the remaining counters still serve.
		s.logger.Warn("failed to compute high severity count", zap.Error(err))
	} else {
		for _, event := range recent {
			if event.Severity == threat.SeverityHigh || event.Severity == threat.SeverityCritical {
				stats.HighSeverityThreats++
			}
		}
	}

	if s.vips != nil {
		count, err := s.vips.CountActive(ctx)
		if err != nil {
			s.logger.Warn("failed to count active vips", zap.Error(err))
		} else {
			stats.TotalVIPs = count
		}
	}
	return stats
}

// Recent returns up to limit events within the last hours, newest first.
// When the request fits inside the aggregator's recent ring the store is
// not touched at all.
func (s *Service) Recent(ctx context.Context, hours, limit int) ([]threat.Event, error) {
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	window := time.Duration(hours) * time.Hour
	cutoff := time.Now().UTC().Add(-window)

	snap := s.ingestor.Snapshot()
	if served, ok := serveFromRing(snap.Recent, snap.Total, cutoff, limit); ok {
		return served, nil
	}
	return s.store.ListRecent(ctx, window, limit)
}

// serveFromRing answers a recent query from the in-memory ring when the
// ring provably contains every event of the window, or enough to fill the
// limit.
func serveFromRing(ring []threat.Event, total int64, cutoff time.Time, limit int) ([]threat.Event, bool) {
	inWindow := make([]threat.Event, 0, limit)
	for _, event := range ring {
		if event.CreatedAt.Before(cutoff) {
			continue
		}
		inWindow = append(inWindow, event)
		if len(inWindow) == limit {
			return inWindow, true
		}
	}
	// The ring holds the full event history, so the window slice is
	// complete even though it is shorter than the limit.
	if int64(len(ring)) == total {
		return inWindow, true
	}
	return nil, false
}

// ByPlatform returns the per-platform counts, highest first.
func (s *Service) ByPlatform() []threat.PlatformCount {
	snap := s.ingestor.Snapshot()

	result := make([]threat.PlatformCount, 0, len(snap.PlatformCounts))
	for platform, count := range snap.PlatformCounts {
		result = append(result, threat.PlatformCount{Platform: platform, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Platform < result[j].Platform
	})
	return result
}

// BySeverity returns the per-severity counts, highest first.
func (s *Service) BySeverity() []threat.SeverityCount {
	snap := s.ingestor.Snapshot()

	result := make([]threat.SeverityCount, 0, len(snap.SeverityCounts))
	for severity, count := range snap.SeverityCounts {
		result = append(result, threat.SeverityCount{Severity: severity, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Severity.Rank() > result[j].Severity.Rank()
	})
	return result
}

// Timeline returns per-day counts for the last days UTC days, oldest
// first. Days beyond the aggregator's retained window come back empty.
func (s *Service) Timeline(days int) []threat.TimelinePoint {
	if days <= 0 || days > s.cfg.TimelineDays {
		days = s.cfg.TimelineDays
	}
	snap := s.ingestor.Snapshot()

	result := make([]threat.TimelinePoint, 0, len(snap.Timeline))
	cutoff := time.Now().UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	for day, count := range snap.Timeline {
		if day < cutoff {
			continue
		}
		result = append(result, threat.TimelinePoint{Date: day, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date < result[j].Date
	})
	return result
}
