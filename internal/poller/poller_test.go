package poller_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"schooltrans-service/internal/alert"
	"schooltrans-service/internal/backend"
	"schooltrans-service/internal/logger"
	"schooltrans-service/internal/metrics"
	"schooltrans-service/internal/notification"
	"schooltrans-service/internal/poller"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSources struct {
	mu       sync.Mutex
	drivers  []backend.Driver
	routes   []backend.Route
	students []backend.Student
	fail     map[alert.Kind]error
	tokens   []string
}

func (f *fakeSources) failure(kind alert.Kind, ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token, ok := backend.TokenFromContext(ctx); ok {
		f.tokens = append(f.tokens, token)
	}
	return f.fail[kind]
}

func (f *fakeSources) ListDrivers(ctx context.Context) ([]backend.Driver, error) {
	if err := f.failure(alert.KindDriver, ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Driver(nil), f.drivers...), nil
}

func (f *fakeSources) ListRoutes(ctx context.Context) ([]backend.Route, error) {
	if err := f.failure(alert.KindRoute, ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Route(nil), f.routes...), nil
}

func (f *fakeSources) ListStudents(ctx context.Context) ([]backend.Student, error) {
	if err := f.failure(alert.KindStudent, ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Student(nil), f.students...), nil
}

func (f *fakeSources) GetStudent(ctx context.Context, id int) (*backend.Student, error) {
	return nil, backend.ErrNotFound
}

func (f *fakeSources) setFailure(kind alert.Kind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[alert.Kind]error)
	}
	f.fail[kind] = err
}

func setupPoller(src *fakeSources, triggers ...poller.Trigger) (*poller.Poller, *notification.Store) {
	store := notification.NewStore(5, nil)
	p := poller.New(
		poller.Sources{Drivers: src, Routes: src, Students: src},
		store,
		poller.Options{
			FetchTimeout: time.Second,
			Policy:       alert.StudentPolicy{InactiveMeansNonPayment: true},
			ServiceToken: "svc-token",
			Now:          func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
		},
		logger.Discard(),
		metrics.NewMock(),
		triggers...,
	)
	return p, store
}

func TestCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("ReconcilesEveryKind", func(t *testing.T) {
		src := &fakeSources{
			drivers:  []backend.Driver{{ID: 1, FirstName: "Luis", LicenseActive: false}},
			routes:   []backend.Route{{ID: 2, Name: "Sur", Active: false}, {ID: 3, Active: true}},
			students: []backend.Student{{ID: 4, FirstName: "Mateo", Active: false}},
		}
		p, store := setupPoller(src)

		p.Cycle(ctx)

		assert.Equal(t, 3, store.Len())
		assert.False(t, p.LastCycle().IsZero())
		assert.Contains(t, src.tokens, "svc-token")
	})

	t.Run("RenewedLicenseIsRetracted", func(t *testing.T) {
		src := &fakeSources{
			drivers: []backend.Driver{{ID: 9, FirstName: "Diego", LicenseActive: false}},
		}
		p, store := setupPoller(src)

		p.Cycle(ctx)
		require.Equal(t, []notification.Key{{Kind: alert.KindDriver, EntityID: 9}}, listKeys(store))

		src.mu.Lock()
		src.drivers[0].LicenseActive = true
		src.mu.Unlock()
		p.Cycle(ctx)

		assert.Empty(t, listKeys(store))
	})

	t.Run("FailedFetchKeepsKind", func(t *testing.T) {
		src := &fakeSources{
			drivers: []backend.Driver{{ID: 1, LicenseActive: false}},
			routes:  []backend.Route{{ID: 2, Active: false}},
		}
		p, store := setupPoller(src)
		p.Cycle(ctx)
		require.Equal(t, 2, store.Len())

		src.mu.Lock()
		src.drivers = nil
		src.routes = nil
		src.mu.Unlock()
		src.setFailure(alert.KindDriver, fmt.Errorf("conductores: %w", backend.ErrTransientFetch))
		p.Cycle(ctx)

		assert.Equal(t, []notification.Key{{Kind: alert.KindDriver, EntityID: 1}}, listKeys(store))
	})

	t.Run("DismissedAlertReturns", func(t *testing.T) {
		src := &fakeSources{routes: []backend.Route{{ID: 2, Active: false}}}
		p, store := setupPoller(src)
		p.Cycle(ctx)

		require.True(t, store.Dismiss(notification.Key{Kind: alert.KindRoute, EntityID: 2}))
		p.Cycle(ctx)

		assert.Equal(t, 1, store.Len())
	})

	t.Run("CompletesAfterCancel", func(t *testing.T) {
		src := &fakeSources{routes: []backend.Route{{ID: 2, Active: false}}}
		p, store := setupPoller(src)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		p.Cycle(cancelled)

		assert.Equal(t, 1, store.Len())
	})
}

func TestRun(t *testing.T) {
	t.Run("InitialCycleAndKick", func(t *testing.T) {
		src := &fakeSources{routes: []backend.Route{{ID: 1, Active: false}}}
		p, store := setupPoller(src)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- p.Run(ctx) }()

		require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.True(t, p.Running())

		src.mu.Lock()
		src.routes = append(src.routes, backend.Route{ID: 2, Active: false})
		src.mu.Unlock()
		p.Kick()

		require.Eventually(t, func() bool { return store.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("poller did not stop")
		}
		assert.False(t, p.Running())
	})

	t.Run("IntervalTrigger", func(t *testing.T) {
		src := &fakeSources{}
		p, store := setupPoller(src, poller.NewIntervalTrigger(20*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go p.Run(ctx)

		require.Eventually(t, p.Running, time.Second, 5*time.Millisecond)
		src.mu.Lock()
		src.drivers = []backend.Driver{{ID: 5, LicenseActive: false}}
		src.mu.Unlock()

		assert.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("TriggerErrorDoesNotStopPoller", func(t *testing.T) {
		broken := poller.TriggerFunc(func(ctx context.Context, fire func()) error {
			return errors.New("subscription refused")
		})
		src := &fakeSources{routes: []backend.Route{{ID: 1, Active: false}}}
		p, store := setupPoller(src, broken)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go p.Run(ctx)

		assert.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestKickCoalesces(t *testing.T) {
	p, _ := setupPoller(&fakeSources{})

	assert.True(t, p.Kick())
	assert.False(t, p.Kick())
}

func listKeys(store *notification.Store) []notification.Key {
	var keys []notification.Key
	for _, n := range store.List() {
		keys = append(keys, n.Key())
	}
	return keys
}
