package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	meter metric.Meter

	ledgersDerived       metric.Int64Counter
	paymentMutations     metric.Int64Counter
	pollCycles           metric.Int64Counter
	fetchFailures        metric.Int64Counter
	notificationsChanged metric.Int64Counter
	eventsPublished      metric.Int64Counter
	backendDuration      metric.Float64Histogram
	queryDuration        metric.Float64Histogram
	notificationsActive  metric.Int64ObservableGauge
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}

	var err error

	m.ledgersDerived, err = meter.Int64Counter(
		"schooltrans.ledgers.derived",
		metric.WithDescription("Total number of student ledgers derived from payment records"),
		metric.WithUnit("{ledger}"),
	)
	if err != nil {
		return nil, err
	}

	m.paymentMutations, err = meter.Int64Counter(
		"schooltrans.payments.mutations",
		metric.WithDescription("Payment create/update/delete attempts by action and outcome"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, err
	}

	m.pollCycles, err = meter.Int64Counter(
		"schooltrans.poller.cycles",
		metric.WithDescription("Alert poll cycles run"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	m.fetchFailures, err = meter.Int64Counter(
		"schooltrans.poller.fetch_failures",
		metric.WithDescription("Entity fetches that failed during a poll cycle, by alert kind"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	m.notificationsChanged, err = meter.Int64Counter(
		"schooltrans.notifications.changed",
		metric.WithDescription("Notifications inserted or retracted by reconciliation"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	m.notificationsActive, err = meter.Int64ObservableGauge(
		"schooltrans.notifications.active",
		metric.WithDescription("Notifications currently held in the feed"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	m.eventsPublished, err = meter.Int64Counter(
		"schooltrans.events.published",
		metric.WithDescription("Events published to the message broker"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	// Buckets: 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
	m.backendDuration, err = meter.Float64Histogram(
		"schooltrans.backend.request.duration",
		metric.WithDescription("Duration of requests to the entity REST services"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, err
	}

	m.queryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordLedgerDerived(ctx context.Context) {
	if m != nil && m.ledgersDerived != nil {
		m.ledgersDerived.Add(ctx, 1)
	}
}

func (m *Metrics) RecordPaymentMutation(ctx context.Context, action string, err error) {
	if m == nil || m.paymentMutations == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.paymentMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordPollCycle(ctx context.Context) {
	if m != nil && m.pollCycles != nil {
		m.pollCycles.Add(ctx, 1)
	}
}

func (m *Metrics) RecordFetchFailure(ctx context.Context, kind string) {
	if m != nil && m.fetchFailures != nil {
		m.fetchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *Metrics) RecordNotificationsChanged(ctx context.Context, kind string, inserted, retracted int) {
	if m == nil || m.notificationsChanged == nil {
		return
	}
	if inserted > 0 {
		m.notificationsChanged.Add(ctx, int64(inserted), metric.WithAttributes(
			attribute.String("kind", kind), attribute.String("change", "inserted")))
	}
	if retracted > 0 {
		m.notificationsChanged.Add(ctx, int64(retracted), metric.WithAttributes(
			attribute.String("kind", kind), attribute.String("change", "retracted")))
	}
}

func (m *Metrics) RecordEventPublished(ctx context.Context, subject string, err error) {
	if m == nil || m.eventsPublished == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("subject", subject)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordBackendRequest(ctx context.Context, service string, duration time.Duration, status int) {
	if m == nil || m.backendDuration == nil {
		return
	}
	m.backendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("service", service),
		attribute.Int("status", status),
	))
}

func (m *Metrics) RecordQuery(ctx context.Context, operation string, table string, duration time.Duration, err error) {
	if m == nil || m.queryDuration == nil {
		return
	}
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("table", table),
		attribute.Bool("error", err != nil),
	))
}

// ObserveNotifications reports count() as the active notifications gauge
// on every collection.
func (m *Metrics) ObserveNotifications(count func() int) error {
	if m == nil || m.meter == nil || m.notificationsActive == nil {
		return nil
	}
	_, err := m.meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			observer.ObserveInt64(m.notificationsActive, int64(count()))
			return nil
		},
		m.notificationsActive,
	)
	return err
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{}
}
