package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"Meridiano/internal/config"
	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
)

// BriefCreatedType is the event type written in the message header.
const BriefCreatedType = "brief.created"

// BriefCreated is the JSON payload of a brief.created event.
type BriefCreated struct {
	BriefID      int64     `json:"brief_id"`
	Profile      string    `json:"profile"`
	GeneratedAt  time.Time `json:"generated_at"`
	ArticleCount int       `json:"article_count"`
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher announces finished briefs on a Kafka topic keyed by profile.
type KafkaPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

var _ ports.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a synchronous writer for cfg.Topic.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return NewKafkaPublisherWithWriter(w, logger)
}

// NewKafkaPublisherWithWriter wires a custom writer.
func NewKafkaPublisherWithWriter(w MessageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// BriefCreated publishes one event for a persisted brief.
func (p *KafkaPublisher) BriefCreated(ctx context.Context, brief domain.Brief) error {
	value, err := json.Marshal(BriefCreated{
		BriefID:      brief.ID,
		Profile:      brief.Profile,
		GeneratedAt:  brief.GeneratedAt.UTC(),
		ArticleCount: len(brief.ContributingArticleIDs),
	})
	if err != nil {
		return fmt.Errorf("marshal brief event: %w", err)
	}

	msg := kafka.Message{
		Key:     []byte(brief.Profile),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(BriefCreatedType)}},
		Time:    brief.GeneratedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish brief event: %w", err)
	}
	p.logger.Debug("brief event published", "brief_id", brief.ID, "profile", brief.Profile)
	return nil
}

// Close flushes pending writes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
