package kafka

import (
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/IBM/sarama"
)

// Config конфигурация Kafka
type Config struct {
	Brokers            []string
	AnalyticsTopic     string
	SubscriptionsTopic string
	Consumer           ConsumerConfig
}

// ConsumerConfig конфигурация группы потребителей
type ConsumerConfig struct {
	Group          string
	InitialOffset  int64
	SessionTimeout time.Duration
	Heartbeat      time.Duration
	BatchSize      int
	FlushInterval  time.Duration
}

// NewConfig собирает конфигурацию Kafka из конфигурации приложения
func NewConfig(cfg config.KafkaConfig) *Config {
	group := cfg.GroupID
	if group == "" {
		group = "ekaty-worker"
	}
	return &Config{
		Brokers:            cfg.Brokers,
		AnalyticsTopic:     cfg.AnalyticsTopic,
		SubscriptionsTopic: cfg.SubscriptionsTopic,
		Consumer: ConsumerConfig{
			Group:          group,
			InitialOffset:  sarama.OffsetOldest,
			SessionTimeout: 30 * time.Second,
			Heartbeat:      3 * time.Second,
			BatchSize:      200,
			FlushInterval:  2 * time.Second,
		},
	}
}

// Enabled сообщает, заданы ли брокеры
func (c *Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewSaramaConfig создает конфигурацию Sarama для группы потребителей
func NewSaramaConfig(cfg *Config) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_3_0_0
	sc.ClientID = "ekaty-worker"

	sc.Consumer.Group.Session.Timeout = cfg.Consumer.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = cfg.Consumer.Heartbeat
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	sc.Consumer.Offsets.Initial = cfg.Consumer.InitialOffset
	// Смещения фиксируются вручную после сохранения пачки
	sc.Consumer.Offsets.AutoCommit.Enable = false
	sc.Consumer.Return.Errors = true
	sc.Consumer.IsolationLevel = sarama.ReadCommitted
	return sc
}
