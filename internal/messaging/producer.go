package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"schooltrans-service/internal/metrics"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// HeaderOrigin carries the instance ID of the publisher.
	HeaderOrigin = "Schooltrans-Origin"
	headerMsgID  = "Nats-Msg-Id"
)

type Producer struct {
	conn     *nats.Conn
	subject  string
	instance string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewProducer(conn *nats.Conn, subject, instance string, logger *slog.Logger, m *metrics.Metrics) *Producer {
	logger.Info("NATS producer initialized", "subject", subject)

	return &Producer{
		conn:     conn,
		subject:  subject,
		instance: instance,
		logger:   logger,
		metrics:  m,
	}
}

func (p *Producer) SendMessage(ctx context.Context, value interface{}) error {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal message", "error", err)
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = valueBytes
	msg.Header.Set(headerMsgID, uuid.NewString())
	if p.instance != "" {
		msg.Header.Set(HeaderOrigin, p.instance)
	}

	err = p.conn.PublishMsg(msg)
	p.metrics.RecordEventPublished(ctx, p.subject, err)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to NATS", "subject", p.subject, "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to NATS", "subject", p.subject)
	return nil
}
