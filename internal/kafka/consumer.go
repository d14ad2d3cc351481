package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/IBM/sarama"
)

// AnalyticsSink сохраняет пачку событий аналитики
type AnalyticsSink func(ctx context.Context, events []domain.AnalyticsEvent) error

// AnalyticsConsumer читает топик аналитики группой потребителей Sarama
// и сохраняет события пачками
type AnalyticsConsumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler *analyticsHandler
	log     *logger.Logger
}

// NewAnalyticsConsumer подключается к брокерам как участник группы cfg.Consumer.Group
func NewAnalyticsConsumer(cfg *Config, sink AnalyticsSink, log *logger.Logger) (*AnalyticsConsumer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers are not configured")
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Consumer.Group, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("kafka: create consumer group: %w", err)
	}
	return &AnalyticsConsumer{
		group:   group,
		topic:   cfg.AnalyticsTopic,
		handler: newAnalyticsHandler(sink, cfg.Consumer.BatchSize, cfg.Consumer.FlushInterval, log),
		log:     log,
	}, nil
}

// Run потребляет сообщения до отмены ctx
func (c *AnalyticsConsumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Errorw("Kafka consumer group error", "error", err)
		}
	}()

	c.log.Infow("Analytics consumer started", "topic", c.topic)
	for {
		// Consume возвращается при каждой ребалансировке
		if err := c.group.Consume(ctx, []string{c.topic}, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Errorw("Kafka consume failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close закрывает группу
func (c *AnalyticsConsumer) Close() error {
	return c.group.Close()
}

// analyticsHandler реализует sarama.ConsumerGroupHandler
type analyticsHandler struct {
	sink          AnalyticsSink
	batchSize     int
	flushInterval time.Duration
	log           *logger.Logger
}

func newAnalyticsHandler(sink AnalyticsSink, batchSize int, flush time.Duration, log *logger.Logger) *analyticsHandler {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flush <= 0 {
		flush = time.Second
	}
	return &analyticsHandler{sink: sink, batchSize: batchSize, flushInterval: flush, log: log}
}

func (h *analyticsHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *analyticsHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim копит события и сохраняет их, когда пачка заполнена или истек интервал.
// Смещение фиксируется только после успешного сохранения.
func (h *analyticsHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	var (
		batch []domain.AnalyticsEvent
		last  *sarama.ConsumerMessage
	)
	flush := func() error {
		if last == nil {
			return nil
		}
		if len(batch) > 0 {
			if err := h.sink(sess.Context(), batch); err != nil {
				return fmt.Errorf("store analytics batch: %w", err)
			}
		}
		sess.MarkMessage(last, "")
		sess.Commit()
		batch, last = nil, nil
		return nil
	}

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			var ev domain.AnalyticsEvent
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				h.log.Warnw("Dropping malformed analytics message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			} else {
				batch = append(batch, ev)
			}
			last = msg
			if len(batch) >= h.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-sess.Context().Done():
			return nil
		}
	}
}
