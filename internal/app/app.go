// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/alerts"
	alertspostgres "github.com/bissquit/uptime-garden/internal/alerts/postgres"
	"github.com/bissquit/uptime-garden/internal/alerts/webhook"
	"github.com/bissquit/uptime-garden/internal/checker"
	checkerpostgres "github.com/bissquit/uptime-garden/internal/checker/postgres"
	"github.com/bissquit/uptime-garden/internal/config"
	"github.com/bissquit/uptime-garden/internal/incidents"
	incidentspostgres "github.com/bissquit/uptime-garden/internal/incidents/postgres"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/bissquit/uptime-garden/internal/pkg/metrics"
	"github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/bissquit/uptime-garden/internal/pkg/servicetoken"
	"github.com/bissquit/uptime-garden/internal/probe"
	"github.com/bissquit/uptime-garden/internal/push"
	pushpostgres "github.com/bissquit/uptime-garden/internal/push/postgres"
	"github.com/bissquit/uptime-garden/internal/queue"
	natsqueue "github.com/bissquit/uptime-garden/internal/queue/nats"
	pgqueue "github.com/bissquit/uptime-garden/internal/queue/postgres"
	"github.com/bissquit/uptime-garden/internal/scheduler"
	schedulerpostgres "github.com/bissquit/uptime-garden/internal/scheduler/postgres"
	"github.com/bissquit/uptime-garden/internal/statuspage"
	statuspagepostgres "github.com/bissquit/uptime-garden/internal/statuspage/postgres"
	"github.com/bissquit/uptime-garden/internal/version"
	"github.com/bissquit/uptime-garden/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "checker"

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	broker        queue.Broker
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	workersCancel context.CancelFunc

	scheduler *scheduler.Scheduler
	recorder  *checker.Recorder
	// coordinator is nil when transitions go to a remote coordinator.
	coordinator *incidents.Coordinator
	consumers   []*queue.Consumer
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL, migrations.FS); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	broker, err := newBroker(cfg.Queue, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create queue: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		broker:        broker,
		metricsCancel: metricsCancel,
	}

	metrics.RecordBuildInfo(version.Version, version.GitCommit, version.BuildDate)
	if err := metrics.RegisterDBPool(db); err != nil {
		metricsCancel()
		_ = broker.Close()
		db.Close()
		return nil, fmt.Errorf("register db metrics: %w", err)
	}
	if source, ok := broker.(queueStatsSource); ok {
		go app.collectQueueMetrics(metricsCtx, source)
	}

	router := app.setupRouter()

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func newBroker(cfg config.QueueConfig, db *pgxpool.Pool) (queue.Broker, error) {
	switch cfg.Driver {
	case "nats":
		return natsqueue.Connect(natsqueue.Config{
			URL:        cfg.NATSURL,
			Stream:     cfg.StreamName,
			AckWait:    cfg.Visibility,
			MaxDeliver: cfg.MaxAttempts,
			FetchWait:  cfg.PollInterval,
		})
	case "postgres":
		return pgqueue.New(db, pgqueue.Config{
			Visibility:  cfg.Visibility,
			MaxAttempts: cfg.MaxAttempts,
		}), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

func (a *App) setupRouter() *chi.Mux {
	cfg := a.config
	bounds := cfg.Bounds()
	validate := validator.New()

	tokens := servicetoken.New(servicetoken.Config{
		SecretKey: cfg.Coordinator.ServiceToken,
		TTL:       cfg.Coordinator.TokenTTL,
	})

	// Status pages
	engineConfig := statuspage.DefaultConfig()
	engineConfig.CacheTTL = cfg.StatusPage.CacheTTL
	engineConfig.ResolvedWindow = cfg.StatusPage.ResolvedWindow
	engineConfig.IncidentLimit = cfg.StatusPage.IncidentLimit
	engineConfig.RebuildTimeout = cfg.StatusPage.RebuildTimeout
	engine := statuspage.NewEngine(engineConfig, statuspagepostgres.NewRepository(a.db))

	// Incidents
	var transitioner checker.Transitioner
	if cfg.Coordinator.URL != "" {
		a.logger.Info("using remote incident coordinator", "url", cfg.Coordinator.URL)
		transitioner = incidents.NewClient(cfg.Coordinator.URL, serviceName, tokens, cfg.Coordinator.Timeout)
	} else {
		coordinatorConfig := incidents.DefaultConfig()
		if cfg.Coordinator.Shards > 0 {
			coordinatorConfig.Shards = cfg.Coordinator.Shards
		}
		a.coordinator = incidents.NewCoordinator(coordinatorConfig, incidentspostgres.NewRepository(a.db), engine)
		transitioner = a.coordinator
	}

	// Checks
	checkerRepo := checkerpostgres.NewRepository(a.db)
	recorderConfig := checker.DefaultRecorderConfig()
	if cfg.Checker.EventBuffer > 0 {
		recorderConfig.Buffer = cfg.Checker.EventBuffer
	}
	a.recorder = checker.NewRecorder(recorderConfig, checkerRepo)

	prober := probe.New(probe.Config{
		Bounds:    bounds,
		UserAgent: cfg.Checker.UserAgent,
	}, checkerRepo)
	executor := checker.NewExecutor(prober, checkerRepo, transitioner, a.broker, a.recorder, bounds)

	// Alerts
	dispatcher := alerts.NewDispatcher(
		alertspostgres.NewRepository(a.db),
		webhook.NewSender(webhook.Config{
			Timeout:   cfg.Alerts.WebhookTimeout,
			UserAgent: cfg.Alerts.UserAgent,
			RateLimit: cfg.Alerts.RateLimit,
			Burst:     cfg.Alerts.RateBurst,
		}),
	)

	a.consumers = []*queue.Consumer{
		queue.NewConsumer(a.consumerConfig(queue.TopicChecks, cfg.Queue.CheckWorkers), a.broker,
			queue.JSONHandler(validate, executor.HandleCheck)),
		queue.NewConsumer(a.consumerConfig(queue.TopicAlerts, cfg.Queue.AlertWorkers), a.broker,
			queue.JSONHandler(validate, dispatcher.HandleAlert)),
	}

	if cfg.Scheduler.Enabled {
		a.scheduler = scheduler.New(scheduler.Config{
			Spec:       cfg.Scheduler.Spec,
			LeaseTTL:   cfg.Scheduler.LeaseTTL,
			BatchSize:  cfg.Scheduler.BatchSize,
			MaxBatches: cfg.Scheduler.MaxBatches,
		}, schedulerpostgres.NewRepository(a.db), a.broker, bounds)
	}

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	statusHandler := statuspage.NewHandler(engine)

	r.Route("/api/v1", func(r chi.Router) {
		statusHandler.RegisterPublicRoutes(r)

		if cfg.Push.Enabled {
			pushService := push.NewService(pushpostgres.NewRepository(a.db), a.broker)
			push.NewHandler(pushService).RegisterRoutes(r)
		}
	})

	if cfg.Coordinator.ServiceToken == "" {
		a.logger.Warn("coordinator service token is not set, internal endpoints disabled")
		return r
	}

	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(httputil.ServiceAuthMiddleware(tokens))

		statusHandler.RegisterInternalRoutes(r)
		if a.coordinator != nil {
			incidents.NewHandler(a.coordinator).RegisterRoutes(r)
		}
	})

	return r
}

func (a *App) consumerConfig(topic string, workers int) queue.ConsumerConfig {
	q := a.config.Queue
	c := queue.DefaultConsumerConfig(topic)
	if q.BatchSize > 0 {
		c.BatchSize = q.BatchSize
	}
	if q.PollInterval > 0 {
		c.PollInterval = q.PollInterval
	}
	if q.MaxAttempts > 0 {
		c.MaxAttempts = q.MaxAttempts
	}
	if q.InitialBackoff > 0 {
		c.InitialBackoff = q.InitialBackoff
	}
	if q.MaxBackoff > 0 {
		c.MaxBackoff = q.MaxBackoff
	}
	if q.BackoffMultiplier > 0 {
		c.BackoffMultiplier = q.BackoffMultiplier
	}
	if workers > 0 {
		c.NumWorkers = workers
	}
	if q.HandlerTimeout > 0 {
		c.HandlerTimeout = q.HandlerTimeout
	}
	return c
}

// Run starts background workers and the HTTP servers. It blocks until the
// main server stops.
func (a *App) Run() error {
	workersCtx, workersCancel := context.WithCancel(context.Background())
	a.workersCancel = workersCancel

	a.recorder.Start()
	for _, c := range a.consumers {
		c.Start(workersCtx)
	}
	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. The scheduler stops first
// so nothing new is enqueued while consumers drain.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	for _, c := range a.consumers {
		c.Stop()
	}
	if a.workersCancel != nil {
		a.workersCancel()
	}
	a.recorder.Stop()
	if a.coordinator != nil {
		a.coordinator.Wait()
	}

	a.metricsCancel()

	if err := a.broker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close queue: %w", err))
	}
	a.db.Close()

	return errors.Join(errs...)
}

type queueStatsSource interface {
	Stats(ctx context.Context) ([]queue.Stats, error)
}

func (a *App) collectQueueMetrics(ctx context.Context, source queueStatsSource) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := source.Stats(ctx)
			if err != nil {
				a.logger.Error("failed to collect queue stats", "error", err)
				continue
			}
			queue.RecordStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
