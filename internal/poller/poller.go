package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"schooltrans-service/internal/alert"
	"schooltrans-service/internal/backend"
	"schooltrans-service/internal/metrics"
	"schooltrans-service/internal/notification"
)

type Sources struct {
	Drivers  backend.DriverReader
	Routes   backend.RouteReader
	Students backend.StudentReader
}

type Options struct {
	FetchTimeout time.Duration
	Policy       alert.StudentPolicy
	// ServiceToken is attached to backend calls made by poll cycles.
	ServiceToken string
	Now          func() time.Time
}

// Poller runs alert evaluation cycles and feeds the results to the
// notification store. Cycles never overlap.
type Poller struct {
	sources    Sources
	reconciler notification.Reconciler
	triggers   []Trigger
	opts       Options
	logger     *slog.Logger
	metrics    *metrics.Metrics

	pending   chan struct{}
	running   atomic.Bool
	lastCycle atomic.Int64
}

func New(sources Sources, reconciler notification.Reconciler, opts Options, logger *slog.Logger, m *metrics.Metrics, triggers ...Trigger) *Poller {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 20 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		sources:    sources,
		reconciler: reconciler,
		triggers:   triggers,
		opts:       opts,
		logger:     logger,
		metrics:    m,
		pending:    make(chan struct{}, 1),
	}
}

// Kick asks for a cycle as soon as possible. Requests made while one is
// already queued collapse into it; Kick then reports false.
func (p *Poller) Kick() bool {
	select {
	case p.pending <- struct{}{}:
		return true
	default:
		return false
	}
}

// Running reports whether Run is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// LastCycle returns when the last cycle finished, zero before the first.
func (p *Poller) LastCycle() time.Time {
	ns := p.lastCycle.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run executes an initial cycle, then one cycle per trigger firing until ctx
// is done. A cycle already in progress finishes its reconciliations.
func (p *Poller) Run(ctx context.Context) error {
	p.running.Store(true)
	defer p.running.Store(false)

	var wg sync.WaitGroup
	for _, t := range p.triggers {
		wg.Add(1)
		go func(t Trigger) {
			defer wg.Done()
			if err := t.Run(ctx, func() { p.Kick() }); err != nil {
				p.logger.ErrorContext(ctx, "poll trigger stopped", "trigger", t.Name(), "error", err)
			}
		}(t)
	}
	defer wg.Wait()

	p.logger.InfoContext(ctx, "notification poller started", "triggers", len(p.triggers))
	p.Cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification poller stopped")
			return nil
		case <-p.pending:
			p.Cycle(ctx)
		}
	}
}

type fetchResult struct {
	kind       alert.Kind
	candidates []alert.Candidate
	err        error
}

// Cycle fetches every source concurrently and reconciles each kind whose
// fetch succeeded. Kinds that failed keep their current notifications.
func (p *Poller) Cycle(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	ctx = backend.WithToken(ctx, p.opts.ServiceToken)
	now := p.opts.Now()

	fetchers := map[alert.Kind]func(context.Context) ([]alert.Candidate, error){}
	if p.sources.Drivers != nil {
		fetchers[alert.KindDriver] = func(ctx context.Context) ([]alert.Candidate, error) {
			drivers, err := p.sources.Drivers.ListDrivers(ctx)
			if err != nil {
				return nil, err
			}
			return alert.LicenseExpired(drivers), nil
		}
	}
	if p.sources.Routes != nil {
		fetchers[alert.KindRoute] = func(ctx context.Context) ([]alert.Candidate, error) {
			routes, err := p.sources.Routes.ListRoutes(ctx)
			if err != nil {
				return nil, err
			}
			return alert.RouteInactive(routes), nil
		}
	}
	if p.sources.Students != nil {
		fetchers[alert.KindStudent] = func(ctx context.Context) ([]alert.Candidate, error) {
			students, err := p.sources.Students.ListStudents(ctx)
			if err != nil {
				return nil, err
			}
			return alert.StudentInactive(students, now, p.opts.Policy), nil
		}
	}

	results := make(chan fetchResult, len(fetchers))
	for kind, fetch := range fetchers {
		go func(kind alert.Kind, fetch func(context.Context) ([]alert.Candidate, error)) {
			fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
			defer cancel()
			candidates, err := fetch(fetchCtx)
			results <- fetchResult{kind: kind, candidates: candidates, err: err}
		}(kind, fetch)
	}

	byKind := make(map[alert.Kind]fetchResult, len(fetchers))
	for range fetchers {
		r := <-results
		byKind[r.kind] = r
	}

	for _, kind := range alert.Kinds {
		r, ok := byKind[kind]
		if !ok {
			continue
		}
		if r.err != nil {
			p.logger.WarnContext(ctx, "skipping alert kind after failed fetch", "kind", kind, "error", r.err)
			p.metrics.RecordFetchFailure(ctx, string(kind))
			continue
		}
		change := p.reconciler.Reconcile(kind, r.candidates)
		p.metrics.RecordNotificationsChanged(ctx, string(kind), len(change.Inserted), len(change.Retracted))
		if !change.Empty() {
			p.logger.InfoContext(ctx, "notifications reconciled",
				"kind", kind, "inserted", len(change.Inserted), "retracted", len(change.Retracted))
		}
	}

	p.metrics.RecordPollCycle(ctx)
	p.lastCycle.Store(time.Now().UnixNano())
}
