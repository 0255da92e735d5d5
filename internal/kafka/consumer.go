package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"schooltrans-service/internal/payment"

	"github.com/IBM/sarama"
)

type LedgerInvalidator interface {
	InvalidateLedger(studentID int)
}

// Consumer reads payment change events from a consumer group and
// invalidates the affected ledgers.
type Consumer struct {
	consumer sarama.ConsumerGroup
	topic    string
	handler  *ConsumerGroupHandler
	logger   *slog.Logger
}

func NewConsumer(brokers []string, topic, group string, invalidator LedgerInvalidator, logger *slog.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumerGroup, err := sarama.NewConsumerGroup(brokers, group, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		consumer: consumerGroup,
		topic:    topic,
		handler:  &ConsumerGroupHandler{Invalidator: invalidator, Logger: logger},
		logger:   logger,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	for {
		if err := c.consumer.Consume(ctx, []string{c.topic}, c.handler); err != nil {
			c.logger.Error("error consuming messages", "error", err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// ConsumerGroupHandler implements sarama.ConsumerGroupHandler.
type ConsumerGroupHandler struct {
	Invalidator LedgerInvalidator
	Logger      *slog.Logger
}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var event payment.ChangeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			h.Logger.Error("failed to unmarshal payment event", "offset", msg.Offset, "error", err)
			session.MarkMessage(msg, "")
			continue
		}

		if event.Type == payment.ChangeEventType && event.StudentID > 0 {
			h.Invalidator.InvalidateLedger(event.StudentID)
			h.Logger.Info("ledger invalidated by kafka event",
				"student_id", event.StudentID, "action", event.Action, "partition", msg.Partition, "offset", msg.Offset)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
