package notification

import (
	"context"
	"log/slog"
	"time"

	"schooltrans-service/internal/alert"
)

const ChangedEventType = "notification.changed"

// ChangedEvent is published for every non-empty store change.
type ChangedEvent struct {
	Type      string     `json:"type"`
	Kind      alert.Kind `json:"kind"`
	Inserted  []Key      `json:"inserted,omitempty"`
	Retracted []Key      `json:"retracted,omitempty"`
}

// EventKey partitions notification events by kind.
func (e ChangedEvent) EventKey() string {
	return string(e.Kind)
}

type Publisher interface {
	SendMessage(ctx context.Context, value interface{}) error
}

// changeQueueSize bounds the changes waiting for the publisher.
const changeQueueSize = 64

// PublishingObserver forwards store changes to a publisher from its own
// goroutine, so store callers never wait on the broker. Changes arriving
// while the queue is full are dropped and logged.
type PublishingObserver struct {
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
	queue     chan ChangedEvent
}

func NewPublishingObserver(publisher Publisher, timeout time.Duration, logger *slog.Logger) *PublishingObserver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PublishingObserver{
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		queue:     make(chan ChangedEvent, changeQueueSize),
	}
}

func (o *PublishingObserver) NotificationsChanged(change Change) {
	event := ChangedEvent{
		Type:      ChangedEventType,
		Kind:      change.Kind,
		Inserted:  change.Inserted,
		Retracted: change.Retracted,
	}
	select {
	case o.queue <- event:
	default:
		o.logger.Warn("notification change queue full, dropping event", "kind", change.Kind)
	}
}

// Start publishes queued changes in order until ctx is done.
func (o *PublishingObserver) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-o.queue:
			o.send(ctx, event)
		}
	}
}

func (o *PublishingObserver) send(ctx context.Context, event ChangedEvent) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.publisher.SendMessage(ctx, event); err != nil {
		o.logger.Warn("failed to publish notification change", "kind", event.Kind, "error", err)
	}
}
