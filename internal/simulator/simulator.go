// Package simulator generates demo threat events so the dashboard has
// live data without any real detection pipeline behind it.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/config"
	"github.com/protego/threat-monitor/internal/ingest"
	"github.com/protego/threat-monitor/internal/threat"
	"github.com/protego/threat-monitor/internal/vip"
)

var simulatedPlatforms = []threat.Platform{
	threat.PlatformTwitter,
	threat.PlatformReddit,
	threat.PlatformInstagram,
	threat.PlatformTelegram,
	threat.PlatformYouTube,
}

var simulatedTypes = []threat.ThreatType{
	threat.ThreatTypeImpersonation,
	threat.ThreatTypeMisinformation,
	threat.ThreatTypeHarassment,
	threat.ThreatTypeDataLeak,
	threat.ThreatTypeFakeProfile,
}

// Simulator periodically ingests randomized demo threats for the active
// VIP profiles.
type Simulator struct {
	ingestor *ingest.Ingestor
	vips     vip.Registry
	cfg      config.SimulatorConfig
	rng      *rand.Rand
	logger   *zap.Logger
}

// New creates a simulator seeded from the current time.
func New(ingestor *ingest.Ingestor, vips vip.Registry, cfg config.SimulatorConfig, logger *zap.Logger) *Simulator {
	return &Simulator{
		ingestor: ingestor,
		vips:     vips,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger,
	}
}

// Run generates threats until the context is canceled.
func (s *Simulator) Run(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 45 * time.Second
	}

	s.logger.Info("demo threat simulator started",
		zap.Duration("interval", interval),
		zap.Float64("probability", s.cfg.Probability))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("demo threat simulator stopped")
			return
		case <-ticker.C:
			if s.rng.Float64() >= s.cfg.Probability {
				continue
			}
			s.tick(ctx)
		}
	}
}

func (s *Simulator) tick(ctx context.Context) {
	profiles, err := s.vips.ListActive(ctx)
	if err != nil {
		s.logger.Warn("simulator could not list vips", zap.Error(err))
		return
	}
	if len(profiles) == 0 {
		return
	}

	event := s.Generate(profiles[s.rng.Intn(len(profiles))])
	if _, err := s.ingestor.Ingest(ctx, event); err != nil {
		s.logger.Warn("simulator ingest failed", zap.Error(err))
	}
}

// Generate builds one randomized demo event for the given subject.
func (s *Simulator) Generate(profile threat.VIPProfile) *threat.Event {
	platform := simulatedPlatforms[s.rng.Intn(len(simulatedPlatforms))]
	threatType := simulatedTypes[s.rng.Intn(len(simulatedTypes))]
	severity := threat.Severities[s.rng.Intn(len(threat.Severities))]

	return &threat.Event{
		VIPID:           profile.ID,
		VIPName:         profile.Name,
		Platform:        platform,
		ThreatType:      threatType,
		Severity:        severity,
		ConfidenceScore: 0.6 + s.rng.Float64()*0.35,
		Content: fmt.Sprintf("Demo: %s threat detected for %s on %s. This is simulated data for demonstration.",
			threatType, profile.Name, platform),
		SourceURL: fmt.Sprintf("https://%s.com/demo_threat_%d", platform, 1000+s.rng.Intn(9000)),
		Evidence: &threat.Evidence{
			Metadata: map[string]string{
				"type":        "demo",
				"detected_at": time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
}
