// Package realtime fans newly ingested threat events out to connected
// dashboard clients. Delivery is best effort: a slow subscriber loses its
// oldest buffered messages rather than stalling the publisher.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/config"
)

// Message types sent over the live feed.
const (
	MessageTypeThreat   = "threat"
	MessageTypeVIPAdded = "vip_added"
	MessageTypePing     = "ping"
)

// Envelope is the JSON frame delivered to every subscriber. Seq increases
// monotonically per connection so a client can detect dropped frames.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Seq  uint64      `json:"seq"`
}

// ErrHubFull is returned by Subscribe when the connection limit is reached.
var ErrHubFull = errors.New("subscriber limit reached")

// Subscriber is a registered live-feed connection. Events arrive on C()
// until the subscriber is unsubscribed, at which point C() is closed.
type Subscriber struct {
	id      string
	send    chan Envelope
	seq     atomic.Uint64
	dropped atomic.Uint64
	// lastSeen is unix nanos of the most recent inbound traffic, used by
	// the heartbeat prober.
	lastSeen atomic.Int64

	closeOnce sync.Once
}

func newSubscriber(buffer int) *Subscriber {
	s := &Subscriber{
		id:   uuid.NewString(),
		send: make(chan Envelope, buffer),
	}
	s.Touch()
	return s
}

// ID returns the connection identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the channel events are delivered on.
func (s *Subscriber) C() <-chan Envelope { return s.send }

// Dropped returns how many frames were discarded for this subscriber.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Touch records inbound traffic for heartbeat accounting.
func (s *Subscriber) Touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *Subscriber) idleSince() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Hub maintains the set of live-feed subscribers and fans out events.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber

	cfg      config.RealtimeConfig
	redis    *redis.Client
	instance string
	logger   *zap.Logger

	onDrop    func(n uint64)
	onPublish func()
}

// NewHub creates a hub. The redis client is optional; when present,
// published events are mirrored to a pub/sub channel so other instances
// can deliver them to their own subscribers.
func NewHub(cfg config.RealtimeConfig, redisClient *redis.Client, logger *zap.Logger) *Hub {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 64
	}
	return &Hub{
		subs:     make(map[string]*Subscriber),
		cfg:      cfg,
		redis:    redisClient,
		instance: uuid.NewString(),
		logger:   logger,
	}
}

// SetHooks installs optional observability callbacks invoked on dropped
// frames and on each publish.
func (h *Hub) SetHooks(onDrop func(n uint64), onPublish func()) {
	h.onDrop = onDrop
	h.onPublish = onPublish
}

// Subscribe registers a new live-feed subscriber.
func (h *Hub) Subscribe() (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.MaxConnections > 0 && len(h.subs) >= h.cfg.MaxConnections {
		return nil, ErrHubFull
	}

	sub := newSubscriber(h.cfg.SendBufferSize)
	h.subs[sub.id] = sub
	h.logger.Info("subscriber connected",
		zap.String("subscriber_id", sub.id),
		zap.Int("total_subscribers", len(h.subs)))
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel. It is
// idempotent: repeated calls and calls after disconnect are no-ops.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	_, registered := h.subs[sub.id]
	delete(h.subs, sub.id)
	remaining := len(h.subs)
	h.mu.Unlock()

	sub.closeOnce.Do(func() { close(sub.send) })

	if registered {
		h.logger.Info("subscriber disconnected",
			zap.String("subscriber_id", sub.id),
			zap.Uint64("frames_dropped", sub.Dropped()),
			zap.Int("total_subscribers", remaining))
	}
}

// Publish delivers the payload to every registered subscriber without
// blocking: a full queue drops its oldest undelivered frame first. The
// publisher never learns about delivery failures.
func (h *Hub) Publish(messageType string, data interface{}) {
	h.mu.RLock()
	for _, sub := range h.subs {
		h.deliver(sub, messageType, data)
	}
	h.mu.RUnlock()

	if h.onPublish != nil {
		h.onPublish()
	}
	if h.redis != nil {
		h.publishToRedis(messageType, data)
	}
}

// deliver enqueues one frame for one subscriber, dropping oldest-first on
// backpressure. The sequence number is assigned here so gaps made by
// drops are visible to the client.
func (h *Hub) deliver(sub *Subscriber, messageType string, data interface{}) {
	env := Envelope{Type: messageType, Data: data, Seq: sub.seq.Add(1)}

	select {
	case sub.send <- env:
		return
	default:
	}

	// Queue full: discard the oldest buffered frame to make room. The
	// consumer may race us for it, so the retry may still fail; in that
	// case the new frame is the one dropped.
	var dropped uint64
	select {
	case <-sub.send:
		dropped++
	default:
	}
	select {
	case sub.send <- env:
	default:
		dropped++
	}

	if dropped > 0 {
		sub.dropped.Add(dropped)
		if h.onDrop != nil {
			h.onDrop(dropped)
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// RunHeartbeat probes idle subscribers on the configured interval and
// unsubscribes any that stayed silent past the timeout. Blocks until the
// context is canceled.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	interval := h.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := h.cfg.HeartbeatTimeout
	if timeout <= 0 {
		timeout = 2 * interval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case now := <-ticker.C:
			h.probe(now, interval, timeout)
		}
	}
}

func (h *Hub) probe(now time.Time, interval, timeout time.Duration) {
	// Pings are delivered while the read lock is held, like Publish:
	// Unsubscribe only closes the send channel after removing the
	// subscriber under the write lock, so a channel reached through the
	// map here is never closed.
	h.mu.RLock()
	stale := make([]*Subscriber, 0)
	for _, sub := range h.subs {
		since := now.Sub(sub.idleSince())
		switch {
		case since > timeout:
			stale = append(stale, sub)
		case since > interval:
			h.deliver(sub, MessageTypePing, now.UTC())
		}
	}
	h.mu.RUnlock()

	for _, sub := range stale {
		h.logger.Warn("subscriber heartbeat timeout",
			zap.String("subscriber_id", sub.id))
		h.Unsubscribe(sub)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.closeOnce.Do(func() { close(sub.send) })
	}
	h.logger.Info("closed all subscribers during shutdown", zap.Int("count", len(subs)))
}

const redisFanoutChannel = "protego:realtime"

// fanoutFrame wraps an envelope with the publishing instance so a hub
// never re-delivers its own mirrored messages.
type fanoutFrame struct {
	Origin string      `json:"origin"`
	Type   string      `json:"type"`
	Data   interface{} `json:"data"`
}

// publishToRedis mirrors an envelope to the fan-out channel for other
// instances. Failures are logged, never surfaced to the publisher.
func (h *Hub) publishToRedis(messageType string, data interface{}) {
	payload, err := json.Marshal(fanoutFrame{Origin: h.instance, Type: messageType, Data: data})
	if err != nil {
		h.logger.Warn("failed to marshal fanout message", zap.Error(err))
		return
	}
	if err := h.redis.Publish(context.Background(), redisFanoutChannel, payload).Err(); err != nil {
		h.logger.Warn("failed to publish to redis fanout", zap.Error(err))
	}
}

// RunRedisFanout consumes the shared fan-out channel and re-delivers
// messages published by other instances to local subscribers. Blocks
// until the context is canceled.
func (h *Hub) RunRedisFanout(ctx context.Context) {
	if h.redis == nil {
		return
	}

	pubsub := h.redis.Subscribe(ctx, redisFanoutChannel)
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var frame fanoutFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				h.logger.Warn("failed to unmarshal fanout message", zap.Error(err))
				continue
			}
			if frame.Origin == h.instance {
				continue
			}
			h.mu.RLock()
			for _, sub := range h.subs {
				h.deliver(sub, frame.Type, frame.Data)
			}
			h.mu.RUnlock()
		}
	}
}
