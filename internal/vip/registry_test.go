package vip

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protego/threat-monitor/internal/threat"
)

func TestRegistryCreate(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	profile := &threat.VIPProfile{Name: "Jane Doe", Title: "CEO"}
	require.NoError(t, r.Create(ctx, profile))
	assert.NotEmpty(t, profile.ID)
	assert.Equal(t, StatusActive, profile.Status)
	assert.False(t, profile.CreatedAt.IsZero())

	got, err := r.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Name)
}

func TestRegistryCreateRequiresName(t *testing.T) {
	r := NewMemoryRegistry()
	err := r.Create(context.Background(), &threat.VIPProfile{})
	assert.True(t, errors.Is(err, threat.ErrValidation))
}

func TestRegistryUpdate(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	profile := &threat.VIPProfile{Name: "Jane Doe"}
	require.NoError(t, r.Create(ctx, profile))
	created := profile.CreatedAt

	profile.Status = StatusPaused
	require.NoError(t, r.Update(ctx, profile))

	got, err := r.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, got.Status)
	assert.Equal(t, created, got.CreatedAt, "update must not rewrite created_at")

	err = r.Update(ctx, &threat.VIPProfile{ID: "missing", Name: "x"})
	assert.True(t, errors.Is(err, threat.ErrNotFound))
}

func TestRegistrySoftDelete(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	profile := &threat.VIPProfile{Name: "Jane Doe"}
	require.NoError(t, r.Create(ctx, profile))
	require.NoError(t, r.Delete(ctx, profile.ID))

	// The profile still resolves by id but no longer counts as active.
	got, err := r.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, got.Status)

	count, err := r.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	active, err := r.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = r.Delete(ctx, "missing")
	assert.True(t, errors.Is(err, threat.ErrNotFound))
}

func TestRegistryListActiveSortedByName(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	for _, name := range []string{"Charlie", "Alice", "Bob"} {
		require.NoError(t, r.Create(ctx, &threat.VIPProfile{Name: name}))
	}
	// Paused profiles are still listed; only deleted ones disappear.
	paused := &threat.VIPProfile{Name: "Dave", Status: StatusPaused}
	require.NoError(t, r.Create(ctx, paused))

	active, err := r.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 4)
	assert.Equal(t, "Alice", active[0].Name)
	assert.Equal(t, "Bob", active[1].Name)
	assert.Equal(t, "Charlie", active[2].Name)
	assert.Equal(t, "Dave", active[3].Name)
}
