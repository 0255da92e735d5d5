package poller

import (
	"context"
	"time"
)

// Trigger decides when a poll cycle should run. Run blocks until ctx is
// done, calling fire whenever a cycle is wanted.
type Trigger interface {
	Name() string
	Run(ctx context.Context, fire func()) error
}

// IntervalTrigger fires on a fixed period.
type IntervalTrigger struct {
	Interval time.Duration
}

func NewIntervalTrigger(interval time.Duration) *IntervalTrigger {
	return &IntervalTrigger{Interval: interval}
}

func (t *IntervalTrigger) Name() string {
	return "interval"
}

func (t *IntervalTrigger) Run(ctx context.Context, fire func()) error {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fire()
		}
	}
}

// TriggerFunc adapts a plain function into a Trigger.
type TriggerFunc func(ctx context.Context, fire func()) error

func (f TriggerFunc) Name() string {
	return "func"
}

func (f TriggerFunc) Run(ctx context.Context, fire func()) error {
	return f(ctx, fire)
}
