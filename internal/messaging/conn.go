package messaging

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Connect opens the NATS connection shared by producers and consumers.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("NATS connected", "url", url)
	return nc, nil
}

// HealthCheck verifies the connection is usable.
func HealthCheck(nc *nats.Conn) error {
	if nc == nil {
		return nats.ErrConnectionClosed
	}
	if !nc.IsConnected() {
		return nats.ErrDisconnected
	}
	return nil
}
