package vip

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/protego/threat-monitor/internal/threat"
)

// GormRegistry stores VIP profiles in the relational database shared with
// the PostgreSQL event store.
type GormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry migrates the profiles table and returns the registry.
func NewGormRegistry(db *gorm.DB) (*GormRegistry, error) {
	if err := db.AutoMigrate(&threat.VIPProfile{}); err != nil {
		return nil, &threat.TransientStoreError{Op: "migrate", Err: err}
	}
	return &GormRegistry{db: db}, nil
}

func (r *GormRegistry) Create(ctx context.Context, profile *threat.VIPProfile) error {
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

	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return threat.NewValidationError("id", "duplicate profile id %q", profile.ID)
		}
		return &threat.TransientStoreError{Op: "create_vip", Err: err}
	}
	return nil
}

func (r *GormRegistry) Get(ctx context.Context, id string) (*threat.VIPProfile, error) {
	var profile threat.VIPProfile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &threat.NotFoundError{Kind: "vip profile", ID: id}
	}
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "get_vip", Err: err}
	}
	return &profile, nil
}

func (r *GormRegistry) Update(ctx context.Context, profile *threat.VIPProfile) error {
	profile.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(&threat.VIPProfile{}).
		Where("id = ?", profile.ID).
		Updates(profile)
	if result.Error != nil {
		return &threat.TransientStoreError{Op: "update_vip", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return &threat.NotFoundError{Kind: "vip profile", ID: profile.ID}
	}
	return nil
}

func (r *GormRegistry) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&threat.VIPProfile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     StatusDeleted,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return &threat.TransientStoreError{Op: "delete_vip", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return &threat.NotFoundError{Kind: "vip profile", ID: id}
	}
	return nil
}

func (r *GormRegistry) ListActive(ctx context.Context) ([]threat.VIPProfile, error) {
	var profiles []threat.VIPProfile
	err := r.db.WithContext(ctx).
		Where("status <> ?", StatusDeleted).
		Order("name ASC").
		Find(&profiles).Error
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "list_vips", Err: err}
	}
	return profiles, nil
}

func (r *GormRegistry) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&threat.VIPProfile{}).
		Where("status <> ?", StatusDeleted).
		Count(&count).Error
	if err != nil {
		return 0, &threat.TransientStoreError{Op: "count_vips", Err: err}
	}
	return count, nil
}
