package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"catalog-api/internal/config"
	"catalog-api/internal/util"
)

// AccountEvent is published to the account lifecycle topic. Publishing is
// best-effort everywhere it is used; a broker outage never fails a request.
type AccountEvent struct {
	Type       string    `json:"type"`
	AccountID  string    `json:"account_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventAccountCreated  = "account.created"
	EventAccountVerified = "account.verified"
)

type EventProducer struct {
	Writer *kafka.Writer
	config *config.KafkaConfig
	logger *zap.Logger
}

func NewEventProducer(cfg *config.Config, logger *zap.Logger) (*EventProducer, error) {
	kafkaConfig := cfg.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaConfig.Brokers...),
		Topic:        kafkaConfig.Topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}

	util.Info("Kafka event producer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.Topic),
	)

	return &EventProducer{
		Writer: writer,
		config: &kafkaConfig,
		logger: logger,
	}, nil
}

// Publish writes a single account event. Callers treat failures as
// non-fatal; the error is returned for logging only.
func (p *EventProducer) Publish(ctx context.Context, event AccountEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal account event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AccountID),
		Value: payload,
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish account event: %w", err)
	}

	p.logger.Debug("Account event published",
		zap.String("type", event.Type),
		zap.String("account_id", event.AccountID),
	)

	return nil
}

func (p *EventProducer) HealthCheck(ctx context.Context) error {
	// The writer dials lazily; report healthy as long as it exists.
	if p.Writer == nil {
		return fmt.Errorf("kafka writer not initialized")
	}
	return nil
}

func (p *EventProducer) Close() error {
	if p.Writer != nil {
		return p.Writer.Close()
	}
	return nil
}
