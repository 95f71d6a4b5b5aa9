package aggregator

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/threat"
)

func makeEvent(id string, severity threat.Severity, platform threat.Platform, createdAt time.Time) threat.Event {
	return threat.Event{
		ID:              id,
		VIPID:           "vip-1",
		VIPName:         "Jane Doe",
		Platform:        platform,
		ThreatType:      threat.ThreatTypeHarassment,
		Severity:        severity,
		ConfidenceScore: 0.8,
		Content:         "threatening message",
		SourceURL:       "https://example.com/1",
		Status:          threat.StatusNew,
		CreatedAt:       createdAt,
	}
}

func TestAggregatorSeverityCounts(t *testing.T) {
	agg := New(100, 30, zap.NewNop())
	now := time.Now().UTC()

	severities := []threat.Severity{
		threat.SeverityLow,
		threat.SeverityHigh,
		threat.SeverityCritical,
		threat.SeverityMedium,
		threat.SeverityHigh,
	}
	for i, severity := range severities {
		agg.OnIngest(makeEvent(fmt.Sprintf("e%d", i), severity, threat.PlatformTwitter, now))
	}

	snap := agg.Snapshot()
	assert.Equal(t, int64(5), snap.Total)
	assert.Equal(t, int64(1), snap.SeverityCounts[threat.SeverityLow])
	assert.Equal(t, int64(2), snap.SeverityCounts[threat.SeverityHigh])
	assert.Equal(t, int64(1), snap.SeverityCounts[threat.SeverityCritical])
	assert.Equal(t, int64(1), snap.SeverityCounts[threat.SeverityMedium])
	require.NotNil(t, snap.LastIngest)
}

func TestAggregatorRecentRingEvictsOldest(t *testing.T) {
	agg := New(3, 30, zap.NewNop())
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		agg.OnIngest(makeEvent(fmt.Sprintf("e%d", i), threat.SeverityLow, threat.PlatformReddit, now.Add(time.Duration(i)*time.Second)))
	}

	snap := agg.Snapshot()
	require.Len(t, snap.Recent, 3)
	// Newest first; the two oldest were evicted.
	assert.Equal(t, "e4", snap.Recent[0].ID)
	assert.Equal(t, "e3", snap.Recent[1].ID)
	assert.Equal(t, "e2", snap.Recent[2].ID)
	// Eviction from the ring never touches the counters.
	assert.Equal(t, int64(5), snap.Total)
}

func TestAggregatorRingOrdersLateArrivalsByCreatedAt(t *testing.T) {
	now := time.Now().UTC()

	// The older event arrives last, as a backfilling producer would send
	// it. The ring must order by created_at, not arrival.
	incremental := New(10, 30, zap.NewNop())
	incremental.OnIngest(makeEvent("newer", threat.SeverityLow, threat.PlatformTwitter, now))
	incremental.OnIngest(makeEvent("older", threat.SeverityLow, threat.PlatformTwitter, now.Add(-time.Hour)))

	snap := incremental.Snapshot()
	require.Len(t, snap.Recent, 2)
	assert.Equal(t, "newer", snap.Recent[0].ID)
	assert.Equal(t, "older", snap.Recent[1].ID)

	rebuilt := New(10, 30, zap.NewNop())
	rebuilt.Rebuild([]threat.Event{
		makeEvent("newer", threat.SeverityLow, threat.PlatformTwitter, now),
		makeEvent("older", threat.SeverityLow, threat.PlatformTwitter, now.Add(-time.Hour)),
	})
	assert.Equal(t, rebuilt.Snapshot().Recent, snap.Recent)

	// A late arrival older than everything in a full ring is evicted
	// immediately, exactly as a rebuild over the same set would decide.
	full := New(2, 30, zap.NewNop())
	full.OnIngest(makeEvent("a", threat.SeverityLow, threat.PlatformTwitter, now))
	full.OnIngest(makeEvent("b", threat.SeverityLow, threat.PlatformTwitter, now.Add(time.Minute)))
	full.OnIngest(makeEvent("ancient", threat.SeverityLow, threat.PlatformTwitter, now.Add(-time.Hour)))

	snap = full.Snapshot()
	require.Len(t, snap.Recent, 2)
	assert.Equal(t, "b", snap.Recent[0].ID)
	assert.Equal(t, "a", snap.Recent[1].ID)
	assert.Equal(t, int64(3), snap.Total)
}

func TestAggregatorTimelineBuckets(t *testing.T) {
	agg := New(100, 30, zap.NewNop())
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// One event exactly at midnight lands in today's bucket, one a
	// nanosecond earlier in yesterday's.
	agg.OnIngest(makeEvent("today", threat.SeverityLow, threat.PlatformTwitter, midnight))
	agg.OnIngest(makeEvent("yesterday", threat.SeverityLow, threat.PlatformTwitter, midnight.Add(-time.Nanosecond)))

	snap := agg.Snapshot()
	assert.Equal(t, int64(1), snap.Timeline[midnight.Format("2006-01-02")])
	assert.Equal(t, int64(1), snap.Timeline[midnight.AddDate(0, 0, -1).Format("2006-01-02")])
}

func TestAggregatorOutOfWindowCountsTotalsOnly(t *testing.T) {
	agg := New(100, 7, zap.NewNop())
	now := time.Now().UTC()

	agg.OnIngest(makeEvent("old", threat.SeverityCritical, threat.PlatformDarkWeb, now.AddDate(0, 0, -30)))
	agg.OnIngest(makeEvent("new", threat.SeverityCritical, threat.PlatformDarkWeb, now))

	snap := agg.Snapshot()
	assert.Equal(t, int64(2), snap.Total)
	assert.Equal(t, int64(2), snap.SeverityCounts[threat.SeverityCritical])

	var bucketed int64
	for _, count := range snap.Timeline {
		bucketed += count
	}
	assert.Equal(t, int64(1), bucketed, "out-of-window event must not appear in the timeline")
}

func TestAggregatorRebuildOrderIndependent(t *testing.T) {
	now := time.Now().UTC()
	events := make([]threat.Event, 0, 50)
	platforms := []threat.Platform{threat.PlatformTwitter, threat.PlatformReddit, threat.PlatformTelegram}
	severities := []threat.Severity{threat.SeverityLow, threat.SeverityMedium, threat.SeverityHigh, threat.SeverityCritical}
	for i := 0; i < 50; i++ {
		events = append(events, makeEvent(
			fmt.Sprintf("e%02d", i),
			severities[i%len(severities)],
			platforms[i%len(platforms)],
			now.Add(-time.Duration(i)*time.Hour),
		))
	}

	ordered := New(10, 30, zap.NewNop())
	ordered.Rebuild(events)

	shuffled := make([]threat.Event, len(events))
	copy(shuffled, events)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	fromShuffled := New(10, 30, zap.NewNop())
	fromShuffled.Rebuild(shuffled)

	a, b := ordered.Snapshot(), fromShuffled.Snapshot()
	assert.Equal(t, a.Total, b.Total)
	assert.Equal(t, a.PlatformCounts, b.PlatformCounts)
	assert.Equal(t, a.SeverityCounts, b.SeverityCounts)
	assert.Equal(t, a.Timeline, b.Timeline)
	assert.Equal(t, a.Recent, b.Recent)
	assert.Equal(t, a.LastIngest, b.LastIngest)
}

func TestAggregatorRebuildMatchesIncremental(t *testing.T) {
	now := time.Now().UTC()
	events := make([]threat.Event, 0, 20)
	for i := 0; i < 20; i++ {
		events = append(events, makeEvent(
			fmt.Sprintf("e%02d", i),
			threat.SeverityMedium,
			threat.PlatformInstagram,
			now.Add(-time.Duration(i)*time.Minute),
		))
	}

	incremental := New(5, 30, zap.NewNop())
	for i := len(events) - 1; i >= 0; i-- {
		incremental.OnIngest(events[i])
	}

	rebuilt := New(5, 30, zap.NewNop())
	rebuilt.Rebuild(events)

	a, b := incremental.Snapshot(), rebuilt.Snapshot()
	assert.Equal(t, a.Total, b.Total)
	assert.Equal(t, a.PlatformCounts, b.PlatformCounts)
	assert.Equal(t, a.SeverityCounts, b.SeverityCounts)
	assert.Equal(t, a.Timeline, b.Timeline)
	assert.Equal(t, a.Recent, b.Recent)
}

func TestAggregatorRebuildEmpty(t *testing.T) {
	agg := New(10, 30, zap.NewNop())
	agg.OnIngest(makeEvent("e1", threat.SeverityLow, threat.PlatformTwitter, time.Now().UTC()))

	agg.Rebuild(nil)

	snap := agg.Snapshot()
	assert.Zero(t, snap.Total)
	assert.Empty(t, snap.Recent)
	assert.Empty(t, snap.Timeline)
	assert.Nil(t, snap.LastIngest)
}

func TestAggregatorSnapshotIsolated(t *testing.T) {
	agg := New(10, 30, zap.NewNop())
	agg.OnIngest(makeEvent("e1", threat.SeverityLow, threat.PlatformTwitter, time.Now().UTC()))

	snap := agg.Snapshot()
	snap.PlatformCounts[threat.PlatformTwitter] = 999
	snap.Recent[0].Severity = threat.SeverityCritical

	fresh := agg.Snapshot()
	assert.Equal(t, int64(1), fresh.PlatformCounts[threat.PlatformTwitter])
	assert.Equal(t, threat.SeverityLow, fresh.Recent[0].Severity)
}

func TestAggregatorConcurrentSnapshotNoTornReads(t *testing.T) {
	agg := New(50, 30, zap.NewNop())
	now := time.Now().UTC()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			agg.OnIngest(makeEvent(fmt.Sprintf("e%03d", i), threat.SeverityHigh, threat.PlatformTwitter, now))
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			snap := agg.Snapshot()
			// Each ingest applies every counter under one critical
			// section, so the sums always agree with the total.
			var bySeverity int64
			for _, count := range snap.SeverityCounts {
				bySeverity += count
			}
			assert.Equal(t, snap.Total, bySeverity)
			assert.Equal(t, snap.Total, snap.PlatformCounts[threat.PlatformTwitter])

			select {
			case <-stop:
				return
			default:
			}
		}
	}()

	wg.Wait()
	assert.Equal(t, int64(200), agg.Snapshot().Total)
}
