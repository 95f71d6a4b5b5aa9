package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/google/uuid"

	"github.com/protego/threat-monitor/internal/config"
	"github.com/protego/threat-monitor/internal/threat"
)

// PostgresStore is a durable event store backed by PostgreSQL through GORM.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPostgresStore connects to PostgreSQL and migrates the events table.
func NewPostgresStore(cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "connect", Err: err}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "connect", Err: err}
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.AutoMigrate(&threat.Event{}); err != nil {
		return nil, &threat.TransientStoreError{Op: "migrate", Err: err}
	}

	logger.Info("connected to PostgreSQL event store",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name))

	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) Append(ctx context.Context, event *threat.Event) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = threat.StatusNew
	}

	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", threat.NewValidationError("id", "duplicate event id %q", event.ID)
		}
		return "", &threat.TransientStoreError{Op: "append", Err: err}
	}
	return event.ID, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*threat.Event, error) {
	var event threat.Event
	err := s.db.WithContext(ctx).First(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &threat.NotFoundError{Kind: "threat event", ID: id}
	}
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "get", Err: err}
	}
	return &event, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status threat.Status) error {
	if !status.Valid() {
		return threat.NewValidationError("status", "unrecognized status %q", status)
	}

	result := s.db.WithContext(ctx).Model(&threat.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"analyzed_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return &threat.TransientStoreError{Op: "update_status", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return &threat.NotFoundError{Kind: "threat event", ID: id}
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, window time.Duration, limit int) ([]threat.Event, error) {
	cutoff := time.Now().UTC().Add(-window)

	var events []threat.Event
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", cutoff).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "list_recent", Err: err}
	}
	return events, nil
}

func (s *PostgresStore) ListAllInWindow(ctx context.Context, days int) ([]threat.Event, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var events []threat.Event
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", cutoff).
		Order("created_at DESC, id DESC").
		Find(&events).Error
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "list_all_in_window", Err: err}
	}
	return events, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]threat.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := s.db.WithContext(ctx).Model(&threat.Event{})
	if filter.VIPID != "" {
		query = query.Where("vip_id = ?", filter.VIPID)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var events []threat.Event
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "list", Err: err}
	}
	return events, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&threat.Event{}).Count(&count).Error; err != nil {
		return 0, &threat.TransientStoreError{Op: "count", Err: err}
	}
	return count, nil
}

func (s *PostgresStore) EvictBefore(ctx context.Context, horizon time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", horizon).
		Delete(&threat.Event{})
	if result.Error != nil {
		return 0, &threat.TransientStoreError{Op: "evict", Err: result.Error}
	}
	return result.RowsAffected, nil
}

func (s *PostgresStore) Clear(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("1 = 1").Delete(&threat.Event{})
	if result.Error != nil {
		return 0, &threat.TransientStoreError{Op: "clear", Err: result.Error}
	}
	return result.RowsAffected, nil
}

// DB exposes the underlying connection so other repositories can share it.
func (s *PostgresStore) DB() *gorm.DB {
	return s.db
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
