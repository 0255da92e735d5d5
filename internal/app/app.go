package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"schooltrans-service/internal/alert"
	"schooltrans-service/internal/auth"
	"schooltrans-service/internal/backend"
	"schooltrans-service/internal/config"
	"schooltrans-service/internal/db"
	"schooltrans-service/internal/fleet"
	"schooltrans-service/internal/health"
	"schooltrans-service/internal/kafka"
	"schooltrans-service/internal/messaging"
	"schooltrans-service/internal/metrics"
	"schooltrans-service/internal/middleware"
	"schooltrans-service/internal/notification"
	"schooltrans-service/internal/payment"
	"schooltrans-service/internal/poller"
	"schooltrans-service/internal/telemetry"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Publisher is implemented by the NATS and Kafka producers.
type Publisher interface {
	SendMessage(ctx context.Context, value interface{}) error
}

type App struct {
	config    *config.Config
	logger    *slog.Logger
	instance  string
	telemetry *telemetry.Telemetry

	router       chi.Router
	server       *http.Server
	grpcServer   *grpc.Server
	healthServer *grpchealth.Server
	health       *health.Handler

	database *bun.DB
	natsConn *nats.Conn
	closers  []io.Closer
	workers  []func(ctx context.Context) error

	payments      payment.Service
	notifications *notification.Store
	poller        *poller.Poller
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("initializing application", "env", cfg.Env, "version", Version)

	tel, err := telemetry.Init(ctx, ServiceName, Version, cfg.Otel.Endpoint, cfg.Otel.Enabled, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    logger,
		instance:  uuid.NewString(),
		telemetry: tel,
		router:    chi.NewRouter(),
	}
	m := tel.Metrics

	opts := backend.Options{
		Timeout:      cfg.Backends.RequestTimeout,
		MaxRetries:   cfg.Backends.MaxRetries,
		RetryBackoff: cfg.Backends.RetryBackoff,
	}
	students := backend.NewStudentsClient(backend.NewClient("estudiantes", cfg.Backends.Estudiantes, opts, logger, m))
	routes := backend.NewRoutesClient(backend.NewClient("rutas", cfg.Backends.Rutas, opts, logger, m))
	vehicles := backend.NewVehiclesClient(backend.NewClient("vehiculos", cfg.Backends.Vehiculos, opts, logger, m))
	drivers := backend.NewDriversClient(backend.NewClient("conductores", cfg.Backends.Conductores, opts, logger, m))

	repo, err := app.paymentRepository(ctx, opts, m)
	if err != nil {
		app.closeAll()
		return nil, err
	}

	paymentEvents, notificationEvents, err := app.setupEvents(m)
	if err != nil {
		app.closeAll()
		return nil, err
	}

	app.payments = payment.NewService(repo, paymentEvents, cfg.Payments.LedgerCacheTTL, logger, m)

	var observer notification.Observer
	if notificationEvents != nil {
		publishing := notification.NewPublishingObserver(notificationEvents, 5*time.Second, logger)
		app.workers = append(app.workers, publishing.Start)
		observer = publishing
	}
	app.notifications = notification.NewStore(cfg.Notifications.PageSize, observer)
	if err := m.ObserveNotifications(app.notifications.Len); err != nil {
		logger.Warn("notifications gauge unavailable", "error", err)
	}

	app.setupConsumers()

	triggers := []poller.Trigger{poller.NewIntervalTrigger(cfg.Poller.Interval)}
	if app.natsConn != nil && cfg.NATS.RefreshSubject != "" {
		triggers = append(triggers, messaging.NewRefreshTrigger(app.natsConn, cfg.NATS.RefreshSubject, logger))
	}
	app.poller = poller.New(
		poller.Sources{Drivers: drivers, Routes: routes, Students: students},
		app.notifications,
		poller.Options{
			FetchTimeout: cfg.Poller.FetchTimeout,
			Policy:       alert.StudentPolicy{InactiveMeansNonPayment: cfg.Alerts.StudentInactiveMeansNonPayment},
			ServiceToken: cfg.Backends.ServiceToken,
		},
		logger, m, triggers...,
	)

	app.setupRoutes(routes, vehicles, drivers)
	app.setupGrpc()

	logger.Info("application initialized successfully", "instance", app.instance)
	return app, nil
}

func (a *App) paymentRepository(ctx context.Context, opts backend.Options, m *metrics.Metrics) (payment.Repository, error) {
	if a.config.Payments.Store == "rest" {
		a.logger.Info("payments stored in pagos service", "url", a.config.Backends.Pagos)
		return payment.NewRESTRepository(backend.NewClient("pagos", a.config.Backends.Pagos, opts, a.logger, m)), nil
	}

	database, err := db.New(ctx, a.config.Database, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.database = database

	if err := db.RunMigrations(ctx, database, a.logger, (*payment.Payment)(nil)); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return payment.NewRepository(database, m), nil
}

// setupEvents returns the publishers for payment and notification events,
// both nil when events are disabled.
func (a *App) setupEvents(m *metrics.Metrics) (Publisher, Publisher, error) {
	switch a.config.Events.Driver {
	case "nats":
		conn, err := messaging.Connect(a.config.NATS.URL, ServiceName, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.natsConn = conn
		payments := messaging.NewProducer(conn, a.config.NATS.PaymentSubject, a.instance, a.logger, m)
		notifications := messaging.NewProducer(conn, a.config.NATS.NotificationSubject, a.instance, a.logger, m)
		return payments, notifications, nil
	case "kafka":
		producer, err := kafka.NewProducer(a.config.Kafka.Brokers, a.config.Kafka.Topic, a.logger, m)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		a.closers = append(a.closers, producer)
		return producer, producer, nil
	default:
		a.logger.Info("event publishing disabled")
		return nil, nil, nil
	}
}

func (a *App) setupConsumers() {
	switch a.config.Events.Driver {
	case "nats":
		consumer := messaging.NewConsumer(a.natsConn, a.config.NATS.PaymentSubject, a.instance, a.payments, a.logger)
		a.closers = append(a.closers, consumer)
		a.workers = append(a.workers, consumer.Start)
	case "kafka":
		// Each instance needs every event, so the group is per instance.
		group := a.config.Kafka.Group + "-" + a.instance
		consumer, err := kafka.NewConsumer(a.config.Kafka.Brokers, a.config.Kafka.Topic, group, a.payments, a.logger)
		if err != nil {
			a.logger.Warn("kafka consumer unavailable, remote ledger invalidation disabled", "error", err)
			return
		}
		a.closers = append(a.closers, consumer)
		a.workers = append(a.workers, consumer.Start)
	}
}

func (a *App) setupRoutes(routes backend.RouteReader, vehicles backend.VehicleReader, drivers backend.DriverReader) {
	r := a.router
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(a.logger))
	r.Use(middleware.CORS(a.config.Server.CORSOrigins))

	// Health endpoints (no auth required)
	a.health = health.NewHandler(a.healthChecks())
	a.health.RegisterRoutes(r)

	paymentHandler := payment.NewHandler(a.payments, a.logger)
	notificationHandler := notification.NewHandler(a.notifications, a.poller, a.logger)
	fleetHandler := fleet.NewHandler(routes, vehicles, drivers, a.logger)

	r.Route("/api", func(r chi.Router) {
		if a.config.Auth.Enabled {
			r.Use(auth.Middleware([]byte(a.config.Auth.JWTSecret), a.logger))
		} else {
			r.Use(auth.Passthrough)
		}
		paymentHandler.RegisterRoutes(r)
		notificationHandler.RegisterRoutes(r)
		fleetHandler.RegisterRoutes(r)
	})
}

func (a *App) healthChecks() map[string]health.Check {
	checks := map[string]health.Check{
		"poller": func(ctx context.Context) error {
			if !a.poller.Running() {
				return errors.New("poller not running")
			}
			return nil
		},
	}
	if a.database != nil {
		checks["database"] = func(ctx context.Context) error {
			return a.database.PingContext(ctx)
		}
	}
	if a.natsConn != nil {
		checks["nats"] = func(ctx context.Context) error {
			return messaging.HealthCheck(a.natsConn)
		}
	}
	return checks
}

func (a *App) setupGrpc() {
	a.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))

	a.healthServer = grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.healthServer)
	a.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	a.healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Router exposes the HTTP handler tree.
func (a *App) Router() http.Handler {
	return a.router
}

// Run serves HTTP and gRPC and runs the poller and event consumers until
// ctx is cancelled or a server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2+len(a.workers))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(a.config.Server.IdleTimeout) * time.Second,
	}
	go func() {
		a.logger.Info("server starting", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", a.config.Grpc.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}
	go func() {
		a.logger.Info("gRPC server starting", "port", a.config.Grpc.Port)
		if err := a.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	for _, work := range a.workers {
		go func(work func(context.Context) error) {
			if err := work(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("event consumer stopped", "error", err)
			}
		}(work)
	}

	go func() {
		if err := a.poller.Run(ctx); err != nil {
			errCh <- fmt.Errorf("poller: %w", err)
		}
	}()

	a.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	a.healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	go a.watchHealth(ctx, 10*time.Second)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// watchHealth mirrors the readiness checks into the gRPC health service.
func (a *App) watchHealth(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		status, results := a.health.Evaluate(checkCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		serving := grpc_health_v1.HealthCheckResponse_SERVING
		if status != "ready" {
			serving = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			a.logger.Warn("service degraded", "checks", results)
		}
		a.healthServer.SetServingStatus("", serving)
		a.healthServer.SetServingStatus(ServiceName, serving)
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	if a.healthServer != nil {
		a.healthServer.Shutdown()
	}

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}

	a.closeAll()

	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("close error", "error", err)
		}
	}
	a.closers = nil

	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.natsConn.Close()
		}
		a.natsConn = nil
	}
	db.Close(a.database)
	a.database = nil
}

// Migrate creates the payment tables and exits.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Payments.Store != "postgres" {
		return fmt.Errorf("migrations need payments.store=postgres, got %q", cfg.Payments.Store)
	}
	database, err := db.New(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close(database)
	return db.RunMigrations(ctx, database, logger, (*payment.Payment)(nil))
}
