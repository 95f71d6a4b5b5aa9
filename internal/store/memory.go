package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/protego/threat-monitor/internal/threat"
)

// MemoryStore is an in-memory event store. It is the default backend and
// the reference for the ordering and validation semantics the durable
// backends must match.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*threat.Event
	byID   map[string]*threat.Event
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*threat.Event),
	}
}

// Append validates and stores the event, assigning an id when absent.
func (s *MemoryStore) Append(ctx context.Context, event *threat.Event) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}

	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.Status == "" {
		stored.Status = threat.StatusNew
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[stored.ID]; exists {
		return "", threat.NewValidationError("id", "duplicate event id %q", stored.ID)
	}

	// Insert in (created_at, id) ascending position. Events normally arrive
	// in timestamp order, so the scan from the tail is short.
	idx := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Before(&stored)
	})
	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = &stored
	s.byID[stored.ID] = &stored

	event.ID = stored.ID
	event.CreatedAt = stored.CreatedAt
	event.Status = stored.Status
	return stored.ID, nil
}

// Get returns a copy of the event with the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*threat.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.byID[id]
	if !ok {
		return nil, &threat.NotFoundError{Kind: "threat event", ID: id}
	}
	copied := *event
	return &copied, nil
}

// UpdateStatus changes the triage status of an existing event.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status threat.Status) error {
	if !status.Valid() {
		return threat.NewValidationError("status", "unrecognized status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.byID[id]
	if !ok {
		return &threat.NotFoundError{Kind: "threat event", ID: id}
	}
	now := time.Now().UTC()
	event.Status = status
	event.AnalyzedAt = &now
	return nil
}

// ListRecent returns up to limit events within window of now, newest first.
func (s *MemoryStore) ListRecent(ctx context.Context, window time.Duration, limit int) ([]threat.Event, error) {
	cutoff := time.Now().UTC().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]threat.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(result) < limit; i-- {
		if s.events[i].CreatedAt.Before(cutoff) {
			break
		}
		result = append(result, *s.events[i])
	}
	return result, nil
}

// ListAllInWindow returns every event of the trailing day window, newest first.
func (s *MemoryStore) ListAllInWindow(ctx context.Context, days int) ([]threat.Event, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []threat.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].CreatedAt.Before(cutoff) {
			break
		}
		result = append(result, *s.events[i])
	}
	return result, nil
}

// List returns events matching the filter, newest first.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]threat.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]threat.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(result) < limit; i-- {
		event := s.events[i]
		if filter.VIPID != "" && event.VIPID != filter.VIPID {
			continue
		}
		if filter.Severity != "" && event.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && event.Status != filter.Status {
			continue
		}
		result = append(result, *event)
	}
	return result, nil
}

// Count returns the number of stored events.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

// EvictBefore drops events older than horizon.
func (s *MemoryStore) EvictBefore(ctx context.Context, horizon time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].CreatedAt.Before(horizon)
	})
	if idx == 0 {
		return 0, nil
	}
	for _, event := range s.events[:idx] {
		delete(s.byID, event.ID)
	}
	s.events = append([]*threat.Event(nil), s.events[idx:]...)
	return int64(idx), nil
}

// Clear drops every stored event.
func (s *MemoryStore) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := int64(len(s.events))
	s.events = nil
	s.byID = make(map[string]*threat.Event)
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
