package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"schooltrans-service/internal/metrics"

	"github.com/IBM/sarama"
)

// Keyed values choose their own partition key.
type Keyed interface {
	EventKey() string
}

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewProducer(brokers []string, topic string, logger *slog.Logger, m *metrics.Metrics) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	// SyncProducer takes no context; these bound how long a send can block.
	config.Producer.Retry.Max = 3
	config.Producer.Retry.Backoff = 250 * time.Millisecond
	config.Producer.Timeout = 5 * time.Second
	config.Net.DialTimeout = 5 * time.Second
	config.Net.WriteTimeout = 5 * time.Second
	config.Net.ReadTimeout = 5 * time.Second
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	logger.Info("kafka producer initialized", "brokers", brokers, "topic", topic)
	return NewProducerWith(producer, topic, logger, m), nil
}

// NewProducerWith wraps an existing sarama producer.
func NewProducerWith(producer sarama.SyncProducer, topic string, logger *slog.Logger, m *metrics.Metrics) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
		metrics:  m,
	}
}

func (p *Producer) SendMessage(ctx context.Context, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	valueBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal message", "error", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(valueBytes),
	}
	var key string
	if k, ok := value.(Keyed); ok {
		key = k.EventKey()
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	p.metrics.RecordEventPublished(ctx, p.topic, err)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to kafka", "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to kafka", "topic", p.topic, "partition", partition, "offset", offset, "key", key)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
