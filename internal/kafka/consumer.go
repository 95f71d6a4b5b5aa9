// Package kafka is the optional stream ingestion source: external
// producers publish ThreatEvent JSON to a topic and the consumer drives
// the same ingest path the HTTP boundary uses.
package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/config"
	"github.com/protego/threat-monitor/internal/ingest"
	"github.com/protego/threat-monitor/internal/threat"
)

// Consumer reads threat events from Kafka and feeds them to the ingestor.
type Consumer struct {
	reader   *kafka.Reader
	ingestor *ingest.Ingestor
	logger   *zap.Logger
}

// NewConsumer creates a Kafka consumer for the configured topic.
func NewConsumer(cfg config.KafkaConfig, ingestor *ingest.Ingestor, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.ConsumerGroup,
		Topic:       cfg.Topic,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		StartOffset: kafka.LastOffset,
	})

	return &Consumer{
		reader:   reader,
		ingestor: ingestor,
		logger:   logger,
	}
}

// Run consumes until the context is canceled. Malformed and invalid
// messages are logged and skipped; transient store failures leave the
// message uncommitted so it is retried.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started",
		zap.String("topic", c.reader.Config().Topic),
		zap.String("group", c.reader.Config().GroupID))

	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var event threat.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			c.logger.Warn("skipping malformed kafka message",
				zap.Int64("offset", message.Offset),
				zap.Error(err))
			c.commit(ctx, message)
			continue
		}

		if _, err := c.ingestor.Ingest(ctx, &event); err != nil {
			if errors.Is(err, threat.ErrValidation) {
				c.logger.Warn("skipping invalid threat event from kafka",
					zap.Int64("offset", message.Offset),
					zap.Error(err))
				c.commit(ctx, message)
				continue
			}
			// Store unavailable: leave the offset uncommitted for retry.
			c.logger.Error("kafka ingest failed, will retry",
				zap.Int64("offset", message.Offset),
				zap.Error(err))
			continue
		}
		c.commit(ctx, message)
	}
}

func (c *Consumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		c.logger.Warn("failed to commit kafka offset",
			zap.Int64("offset", message.Offset),
			zap.Error(err))
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
