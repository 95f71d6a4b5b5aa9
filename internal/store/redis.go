package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/config"
	"github.com/protego/threat-monitor/internal/threat"
)

const (
	redisEventsKey = "protego:threats:events"
	redisByTimeKey = "protego:threats:by_time"
)

// RedisStore is an event store backed by a Redis hash of event payloads
// plus a sorted set ordered by creation time. Redis sorts equal scores by
// member lexically, which matches the id tie-break of the read order.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		PoolSize:     cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &threat.TransientStoreError{Op: "connect", Err: err}
	}

	logger.Info("connected to Redis event store", zap.String("addr", cfg.Addr()))
	return &RedisStore{client: client, logger: logger}, nil
}

func (s *RedisStore) Append(ctx context.Context, event *threat.Event) (string, error) {
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

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	added, err := s.client.HSetNX(ctx, redisEventsKey, event.ID, payload).Result()
	if err != nil {
		return "", &threat.TransientStoreError{Op: "append", Err: err}
	}
	if !added {
		return "", threat.NewValidationError("id", "duplicate event id %q", event.ID)
	}

	score := float64(event.CreatedAt.UTC().UnixMilli())
	if err := s.client.ZAdd(ctx, redisByTimeKey, redis.Z{Score: score, Member: event.ID}).Err(); err != nil {
		// Roll back the payload so a failed index write does not leave a
		// half-stored event behind.
		s.client.HDel(ctx, redisEventsKey, event.ID)
		return "", &threat.TransientStoreError{Op: "append", Err: err}
	}
	return event.ID, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*threat.Event, error) {
	payload, err := s.client.HGet(ctx, redisEventsKey, id).Result()
	if err == redis.Nil {
		return nil, &threat.NotFoundError{Kind: "threat event", ID: id}
	}
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "get", Err: err}
	}

	var event threat.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event %s: %w", id, err)
	}
	return &event, nil
}

func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status threat.Status) error {
	if !status.Valid() {
		return threat.NewValidationError("status", "unrecognized status %q", status)
	}

	event, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	event.Status = status
	event.AnalyzedAt = &now

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.client.HSet(ctx, redisEventsKey, id, payload).Err(); err != nil {
		return &threat.TransientStoreError{Op: "update_status", Err: err}
	}
	return nil
}

func (s *RedisStore) ListRecent(ctx context.Context, window time.Duration, limit int) ([]threat.Event, error) {
	cutoff := time.Now().UTC().Add(-window).UnixMilli()
	return s.listSince(ctx, cutoff, limit)
}

func (s *RedisStore) ListAllInWindow(ctx context.Context, days int) ([]threat.Event, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).UnixMilli()
	return s.listSince(ctx, cutoff, 0)
}

// listSince returns events with score >= cutoff, newest first. A limit of
// zero means unbounded.
func (s *RedisStore) listSince(ctx context.Context, cutoff int64, limit int) ([]threat.Event, error) {
	rangeBy := &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}
	if limit > 0 {
		rangeBy.Count = int64(limit)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, redisByTimeKey, rangeBy).Result()
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "list", Err: err}
	}
	return s.fetch(ctx, ids)
}

func (s *RedisStore) List(ctx context.Context, filter Filter) ([]threat.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	// Filters are applied client-side over the time index; the index does
	// not shard by vip or severity.
	ids, err := s.client.ZRevRange(ctx, redisByTimeKey, 0, -1).Result()
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "list", Err: err}
	}

	all, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]threat.Event, 0, limit)
	for _, event := range all {
		if filter.VIPID != "" && event.VIPID != filter.VIPID {
			continue
		}
		if filter.Severity != "" && event.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && event.Status != filter.Status {
			continue
		}
		result = append(result, event)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *RedisStore) fetch(ctx context.Context, ids []string) ([]threat.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	payloads, err := s.client.HMGet(ctx, redisEventsKey, ids...).Result()
	if err != nil {
		return nil, &threat.TransientStoreError{Op: "fetch", Err: err}
	}

	events := make([]threat.Event, 0, len(payloads))
	for i, payload := range payloads {
		str, ok := payload.(string)
		if !ok {
			// Index entry without a payload, vanished mid-eviction.
			continue
		}
		var event threat.Event
		if err := json.Unmarshal([]byte(str), &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %s: %w", ids[i], err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, redisByTimeKey).Result()
	if err != nil {
		return 0, &threat.TransientStoreError{Op: "count", Err: err}
	}
	return count, nil
}

func (s *RedisStore) EvictBefore(ctx context.Context, horizon time.Time) (int64, error) {
	max := strconv.FormatInt(horizon.UTC().UnixMilli()-1, 10)

	ids, err := s.client.ZRangeByScore(ctx, redisByTimeKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, &threat.TransientStoreError{Op: "evict", Err: err}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisByTimeKey, "-inf", max)
	pipe.HDel(ctx, redisEventsKey, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, &threat.TransientStoreError{Op: "evict", Err: err}
	}
	return int64(len(ids)), nil
}

func (s *RedisStore) Clear(ctx context.Context) (int64, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.client.Del(ctx, redisEventsKey, redisByTimeKey).Err(); err != nil {
		return 0, &threat.TransientStoreError{Op: "clear", Err: err}
	}
	return count, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
