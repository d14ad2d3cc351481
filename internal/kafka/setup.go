package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// EnsureTopics создает топики аналитики и подписок, если их еще нет
func EnsureTopics(ctx context.Context, cfg *Config, log *logger.Logger) error {
	required := []kafkaGo.TopicConfig{
		{Topic: cfg.AnalyticsTopic, NumPartitions: 3, ReplicationFactor: 1},
		{Topic: cfg.SubscriptionsTopic, NumPartitions: 3, ReplicationFactor: 1},
	}

	if !cfg.Enabled() || strings.TrimSpace(cfg.Brokers[0]) == "" {
		return errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(cfg.Brokers[0])
	_, portStr, err := net.SplitHostPort(broker)
	if err != nil {
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return fmt.Errorf("invalid broker port %s: %w", broker, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := kafkaGo.DialContext(dialCtx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	// Топики создаются через контроллер кластера
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	ctrlConn, err := kafkaGo.DialContext(dialCtx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka controller connection failed: %w", err)
	}
	defer ctrlConn.Close()

	partitions, err := ctrlConn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}
	existing := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	var missing []kafkaGo.TopicConfig
	for _, tc := range required {
		if !existing[tc.Topic] {
			missing = append(missing, tc)
		}
	}
	if len(missing) == 0 {
		log.Infow("All required Kafka topics already exist", "topics", topicNames(required))
		return nil
	}

	if err := ctrlConn.CreateTopics(missing...); err != nil && !errors.Is(err, kafkaGo.TopicAlreadyExists) {
		log.Errorw("Failed to create topics", "error", err, "topics", topicNames(missing))
		return fmt.Errorf("kafka create topics failed: %w", err)
	}
	log.Infow("Kafka topics created", "topics", topicNames(missing))
	return nil
}

func topicNames(configs []kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(configs))
	for _, tc := range configs {
		names = append(names, tc.Topic)
	}
	return names
}
