package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/config"
	"github.com/protego/threat-monitor/internal/threat"
)

// EventStore is the append-only source of truth for threat events.
//
// Implementations must expose a stable total read order of
// (created_at, id) descending, and re-running any list query must be
// idempotent: no cursor state is mutated by reads.
type EventStore interface {
	// Append validates the event, assigns an id when absent, and stores it.
	// A rejected event leaves the store unchanged.
	Append(ctx context.Context, event *threat.Event) (string, error)

	// Get returns the event with the given id.
	Get(ctx context.Context, id string) (*threat.Event, error)

	// UpdateStatus changes the triage status of an existing event and
	// stamps analyzed_at. Event payloads are otherwise immutable.
	UpdateStatus(ctx context.Context, id string, status threat.Status) error

	// ListRecent returns up to limit events with created_at within window
	// of now, newest first, ties broken by id descending.
	ListRecent(ctx context.Context, window time.Duration, limit int) ([]threat.Event, error)

	// ListAllInWindow returns every event of the trailing day window in the
	// same order, for timeline aggregation and rebuilds.
	ListAllInWindow(ctx context.Context, days int) ([]threat.Event, error)

	// List returns events matching the optional filters, newest first.
	List(ctx context.Context, filter Filter) ([]threat.Event, error)

	// Count returns the number of stored events.
	Count(ctx context.Context) (int64, error)

	// EvictBefore drops events older than horizon and returns how many
	// were evicted. Aggregates must be rebuilt by the caller afterwards.
	EvictBefore(ctx context.Context, horizon time.Time) (int64, error)

	// Clear drops every stored event and returns how many were removed.
	Clear(ctx context.Context) (int64, error)

	Close() error
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	VIPID    string
	Severity threat.Severity
	Status   threat.Status
	Limit    int
}

// DefaultListLimit caps List results when the filter does not set one.
const DefaultListLimit = 50

// New creates an event store backed by the configured engine.
func New(cfg config.StoreConfig, logger *zap.Logger) (EventStore, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(cfg.Database, logger)
	case "redis":
		return NewRedisStore(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
