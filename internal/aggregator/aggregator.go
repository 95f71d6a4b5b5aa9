// Package aggregator maintains derived analytics over the threat event
// stream so queries never re-scan full event history.
package aggregator

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/threat"
)

// Snapshot is a consistent point-in-time copy of the derived views. It is
// recomputable from the event store and never authoritative.
type Snapshot struct {
	Total          int64                     `json:"total"`
	PlatformCounts map[threat.Platform]int64 `json:"platform_counts"`
	SeverityCounts map[threat.Severity]int64 `json:"severity_counts"`
	// Timeline holds per-UTC-day counts for the bounded trailing window,
	// keyed by "YYYY-MM-DD".
	Timeline map[string]int64 `json:"timeline"`
	// Recent holds the newest events by (created_at, id), newest first.
	Recent     []threat.Event `json:"recent"`
	LastIngest *time.Time     `json:"last_ingest,omitempty"`
}

// Aggregator incrementally folds ingested events into platform, severity
// and timeline counts plus a bounded ring of recent events.
type Aggregator struct {
	mu sync.RWMutex

	total          int64
	platformCounts map[threat.Platform]int64
	severityCounts map[threat.Severity]int64
	timeline       map[string]int64
	recent         []threat.Event
	lastIngest     *time.Time

	ringSize     int
	timelineDays int
	logger       *zap.Logger
}

// New creates an empty aggregator with a recent ring of ringSize events
// and a timeline window of timelineDays trailing UTC days.
func New(ringSize, timelineDays int, logger *zap.Logger) *Aggregator {
	if ringSize <= 0 {
		ringSize = 100
	}
	if timelineDays <= 0 {
		timelineDays = 30
	}
	return &Aggregator{
		platformCounts: make(map[threat.Platform]int64),
		severityCounts: make(map[threat.Severity]int64),
		timeline:       make(map[string]int64),
		ringSize:       ringSize,
		timelineDays:   timelineDays,
		logger:         logger,
	}
}

// OnIngest folds one event into the derived views.
func (a *Aggregator) OnIngest(event threat.Event) {
	now := time.Now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.apply(event, now)
	a.lastIngest = &now
}

// apply updates counters for one event. Callers hold the write lock.
func (a *Aggregator) apply(event threat.Event, now time.Time) {
	a.total++
	a.platformCounts[event.Platform]++
	a.severityCounts[event.Severity]++

	// Events outside the retained day window still count toward platform
	// and severity totals but never land in a timeline bucket.
	day := event.Day()
	if day >= windowStart(now, a.timelineDays) {
		a.timeline[day]++
	}

	// The ring is ordered by (created_at, id), not arrival: an event
	// delivered late with an older timestamp sorts behind newer ones, so
	// the ring always matches what a rebuild over the same set produces.
	idx := sort.Search(len(a.recent), func(i int) bool {
		return !a.recent[i].Before(&event)
	})
	a.recent = append(a.recent, threat.Event{})
	copy(a.recent[idx+1:], a.recent[idx:])
	a.recent[idx] = event
	if len(a.recent) > a.ringSize {
		// Oldest dropped on overflow.
		a.recent = a.recent[len(a.recent)-a.ringSize:]
	}
}

// Snapshot returns a consistent copy of the derived views. A snapshot
// never observes a partially-applied ingest.
func (a *Aggregator) Snapshot() Snapshot {
	now := time.Now().UTC()

	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{
		Total:          a.total,
		PlatformCounts: make(map[threat.Platform]int64, len(a.platformCounts)),
		SeverityCounts: make(map[threat.Severity]int64, len(a.severityCounts)),
		Timeline:       make(map[string]int64, len(a.timeline)),
		Recent:         make([]threat.Event, len(a.recent)),
		LastIngest:     a.lastIngest,
	}
	for platform, count := range a.platformCounts {
		snap.PlatformCounts[platform] = count
	}
	for severity, count := range a.severityCounts {
		snap.SeverityCounts[severity] = count
	}
	start := windowStart(now, a.timelineDays)
	for day, count := range a.timeline {
		if day >= start {
			snap.Timeline[day] = count
		}
	}
	// Reverse so the snapshot lists newest first.
	for i, event := range a.recent {
		snap.Recent[len(a.recent)-1-i] = event
	}
	return snap
}

// Rebuild recomputes every derived view from the given event set, for use
// after a restart, retention eviction, or detected drift. Totals are
// independent of the order events are supplied in; the recent ring and
// timeline depend only on created_at.
func (a *Aggregator) Rebuild(events []threat.Event) {
	now := time.Now().UTC()

	ordered := make([]threat.Event, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Before(&ordered[j])
	})

	a.mu.Lock()
	defer a.mu.Unlock()

	a.total = 0
	a.platformCounts = make(map[threat.Platform]int64)
	a.severityCounts = make(map[threat.Severity]int64)
	a.timeline = make(map[string]int64)
	a.recent = a.recent[:0]

	for _, event := range ordered {
		a.apply(event, now)
	}

	if len(ordered) > 0 {
		last := ordered[len(ordered)-1].CreatedAt.UTC()
		a.lastIngest = &last
	} else {
		a.lastIngest = nil
	}

	if a.logger != nil {
		a.logger.Info("aggregates rebuilt",
			zap.Int("events", len(ordered)),
			zap.Int("timeline_days", a.timelineDays))
	}
}

// windowStart returns the first day key inside the trailing window of
// days UTC days ending today.
func windowStart(now time.Time, days int) string {
	return now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")
}
