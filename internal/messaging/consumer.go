package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"schooltrans-service/internal/payment"

	"github.com/nats-io/nats.go"
)

// LedgerInvalidator drops cached ledgers.
type LedgerInvalidator interface {
	InvalidateLedger(studentID int)
}

// Consumer listens for payment change events published by other instances
// and invalidates the affected ledgers.
type Consumer struct {
	conn        *nats.Conn
	sub         *nats.Subscription
	subject     string
	instance    string
	invalidator LedgerInvalidator
	logger      *slog.Logger
}

func NewConsumer(conn *nats.Conn, subject, instance string, invalidator LedgerInvalidator, logger *slog.Logger) *Consumer {
	return &Consumer{
		conn:        conn,
		subject:     subject,
		instance:    instance,
		invalidator: invalidator,
		logger:      logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.conn.Subscribe(c.subject, c.handle)
	if err != nil {
		return err
	}

	c.sub = sub
	c.logger.Info("NATS consumer started", "subject", c.subject)

	<-ctx.Done()
	return ctx.Err()
}

func (c *Consumer) handle(msg *nats.Msg) {
	if c.instance != "" && msg.Header.Get(HeaderOrigin) == c.instance {
		return
	}

	var event payment.ChangeEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Error("failed to unmarshal payment event", "error", err)
		return
	}
	if event.Type != payment.ChangeEventType || event.StudentID <= 0 {
		c.logger.Warn("ignoring unexpected event", "type", event.Type, "student_id", event.StudentID)
		return
	}

	c.invalidator.InvalidateLedger(event.StudentID)
	c.logger.Info("ledger invalidated by remote change",
		"student_id", event.StudentID, "action", event.Action, "month", event.Month)
}

func (c *Consumer) Close() error {
	if c.sub != nil {
		return c.sub.Unsubscribe()
	}
	return nil
}
