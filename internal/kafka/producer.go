package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Producer публикует события приложения в Kafka
type Producer interface {
	// PublishSubscriptionChange публикует примененное изменение подписки.
	// Ключ сообщения ID подписки Stripe, поэтому события одной подписки упорядочены.
	PublishSubscriptionChange(ctx context.Context, change domain.SubscriptionChange) error
	// PublishAnalyticsEvents публикует события аналитики пачкой
	PublishAnalyticsEvents(ctx context.Context, events []domain.AnalyticsEvent) error
	Close() error
}

// kafkaProducer реализует Producer на segmentio/kafka-go
type kafkaProducer struct {
	writer             *kafka.Writer
	analyticsTopic     string
	subscriptionsTopic string
	log                *logger.Logger
}

// NewKafkaProducer создает продюсер Kafka
func NewKafkaProducer(cfg *Config, log *logger.Logger) (Producer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: false,
	}

	log.Infow("Kafka producer initialized", "brokers", cfg.Brokers)
	return &kafkaProducer{
		writer:             writer,
		analyticsTopic:     cfg.AnalyticsTopic,
		subscriptionsTopic: cfg.SubscriptionsTopic,
		log:                log,
	}, nil
}

// PublishSubscriptionChange публикует изменение подписки
func (k *kafkaProducer) PublishSubscriptionChange(ctx context.Context, change domain.SubscriptionChange) error {
	value, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal subscription change: %w", err)
	}
	msg := kafka.Message{
		Topic: k.subscriptionsTopic,
		Key:   []byte(change.Subscription.StripeSubscriptionID),
		Value: value,
		Time:  change.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(change.EventType)},
			{Key: "event_id", Value: []byte(change.EventID)},
		},
	}
	if err := k.write(ctx, msg); err != nil {
		k.log.Errorw("Failed to publish subscription change", "error", err,
			"stripeSubscriptionID", change.Subscription.StripeSubscriptionID, "eventID", change.EventID)
		return err
	}
	k.log.Debugw("Subscription change published", "topic", k.subscriptionsTopic, "eventID", change.EventID)
	return nil
}

// PublishAnalyticsEvents публикует события аналитики. Ключ ID ресторана или сессии.
func (k *kafkaProducer) PublishAnalyticsEvents(ctx context.Context, events []domain.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("kafka: failed to marshal analytics event: %w", err)
		}
		key := ev.SessionID
		if ev.RestaurantID != nil {
			key = ev.RestaurantID.String()
		}
		msgs = append(msgs, kafka.Message{Topic: k.analyticsTopic, Key: []byte(key), Value: value, Time: ev.CreatedAt})
	}
	if err := k.write(ctx, msgs...); err != nil {
		k.log.Errorw("Failed to publish analytics events", "error", err, "count", len(events))
		return err
	}
	return nil
}

func (k *kafkaProducer) write(ctx context.Context, msgs ...kafka.Message) error {
	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, msgs...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}
	return nil
}

// Close закрывает writer
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	return nil
}
