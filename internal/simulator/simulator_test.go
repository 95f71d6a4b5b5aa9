package simulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/aggregator"
	"github.com/protego/threat-monitor/internal/config"
	"github.com/protego/threat-monitor/internal/ingest"
	"github.com/protego/threat-monitor/internal/store"
	"github.com/protego/threat-monitor/internal/threat"
	"github.com/protego/threat-monitor/internal/vip"
)

func newSimulator(t *testing.T) (*Simulator, *ingest.Ingestor, *vip.MemoryRegistry) {
	t.Helper()
	events := store.NewMemoryStore()
	agg := aggregator.New(100, 30, zap.NewNop())
	ingestor := ingest.New(events, agg, nil, nil, 90, zap.NewNop())
	vips := vip.NewMemoryRegistry()
	sim := New(ingestor, vips, config.SimulatorConfig{Probability: 1}, zap.NewNop())
	return sim, ingestor, vips
}

func TestGenerateProducesValidEvents(t *testing.T) {
	sim, _, _ := newSimulator(t)
	profile := threat.VIPProfile{ID: "vip-1", Name: "Jane Doe"}

	for i := 0; i < 200; i++ {
		event := sim.Generate(profile)
		require.NoError(t, event.Validate())
		assert.Equal(t, "vip-1", event.VIPID)
		assert.Equal(t, "Jane Doe", event.VIPName)
		assert.GreaterOrEqual(t, event.ConfidenceScore, 0.6)
		assert.Less(t, event.ConfidenceScore, 0.95)
		require.NotNil(t, event.Evidence)
		assert.Equal(t, "demo", event.Evidence.Metadata["type"])
	}
}

func TestTickIngestsForActiveVIP(t *testing.T) {
	sim, ingestor, vips := newSimulator(t)
	ctx := context.Background()

	require.NoError(t, vips.Create(ctx, &threat.VIPProfile{Name: "Jane Doe"}))

	sim.tick(ctx)
	assert.Equal(t, int64(1), ingestor.Snapshot().Total)
}

func TestTickWithoutVIPsIsNoop(t *testing.T) {
	sim, ingestor, _ := newSimulator(t)

	sim.tick(context.Background())
	assert.Zero(t, ingestor.Snapshot().Total)
}
