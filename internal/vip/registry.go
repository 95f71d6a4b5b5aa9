// Package vip manages the registry of monitored subjects.
package vip

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/protego/threat-monitor/internal/threat"
)

// Profile statuses. Deletion is soft: profiles are marked deleted and
// excluded from active queries.
const (
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusDeleted = "deleted"
)

// Registry stores VIP profiles.
type Registry interface {
	Create(ctx context.Context, profile *threat.VIPProfile) error
	Get(ctx context.Context, id string) (*threat.VIPProfile, error)
	Update(ctx context.Context, profile *threat.VIPProfile) error
	// Delete soft-deletes the profile; it stops counting as active.
	Delete(ctx context.Context, id string) error
	// ListActive returns non-deleted profiles ordered by name.
	ListActive(ctx context.Context) ([]threat.VIPProfile, error)
	CountActive(ctx context.Context) (int64, error)
}

// MemoryRegistry is the in-memory registry used with the memory event store.
type MemoryRegistry struct {
	mu       sync.RWMutex
	profiles map[string]*threat.VIPProfile
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{profiles: make(map[string]*threat.VIPProfile)}
}

func (r *MemoryRegistry) Create(ctx context.Context, profile *threat.VIPProfile) error {
	if profile.Name == "" {
		return threat.NewValidationError("name", "required field is empty")
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.Status == "" {
		profile.Status = StatusActive
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[profile.ID]; exists {
		return threat.NewValidationError("id", "duplicate profile id %q", profile.ID)
	}
	copied := *profile
	r.profiles[profile.ID] = &copied
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, id string) (*threat.VIPProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[id]
	if !ok {
		return nil, &threat.NotFoundError{Kind: "vip profile", ID: id}
	}
	copied := *profile
	return &copied, nil
}

func (r *MemoryRegistry) Update(ctx context.Context, profile *threat.VIPProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.profiles[profile.ID]
	if !ok {
		return &threat.NotFoundError{Kind: "vip profile", ID: profile.ID}
	}
	profile.CreatedAt = existing.CreatedAt
	profile.UpdatedAt = time.Now().UTC()
	copied := *profile
	r.profiles[profile.ID] = &copied
	return nil
}

func (r *MemoryRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[id]
	if !ok {
		return &threat.NotFoundError{Kind: "vip profile", ID: id}
	}
	profile.Status = StatusDeleted
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRegistry) ListActive(ctx context.Context) ([]threat.VIPProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []threat.VIPProfile
	for _, profile := range r.profiles {
		if profile.Status == StatusDeleted {
			continue
		}
		result = append(result, *profile)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (r *MemoryRegistry) CountActive(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, profile := range r.profiles {
		if profile.Status != StatusDeleted {
			count++
		}
	}
	return count, nil
}
