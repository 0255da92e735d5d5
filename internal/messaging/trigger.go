package messaging

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// RefreshTrigger fires a poll cycle whenever a message arrives on its
// subject. It satisfies poller.Trigger.
type RefreshTrigger struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewRefreshTrigger(conn *nats.Conn, subject string, logger *slog.Logger) *RefreshTrigger {
	return &RefreshTrigger{conn: conn, subject: subject, logger: logger}
}

func (t *RefreshTrigger) Name() string {
	return "nats:" + t.subject
}

func (t *RefreshTrigger) Run(ctx context.Context, fire func()) error {
	sub, err := t.conn.Subscribe(t.subject, func(msg *nats.Msg) {
		t.logger.Debug("refresh requested over NATS", "subject", msg.Subject)
		fire()
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}
