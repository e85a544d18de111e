// Package control wires configuration into a running generation service.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/zerofail/internal/core/config"
	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/core/worker"
	"github.com/vietddude/zerofail/internal/generation/backoff"
	"github.com/vietddude/zerofail/internal/generation/compliance"
	"github.com/vietddude/zerofail/internal/generation/delivery"
	"github.com/vietddude/zerofail/internal/generation/health"
	"github.com/vietddude/zerofail/internal/generation/pipeline"
	"github.com/vietddude/zerofail/internal/generation/quality"
	"github.com/vietddude/zerofail/internal/generation/template"
	"github.com/vietddude/zerofail/internal/infra/eventbus"
	"github.com/vietddude/zerofail/internal/infra/provider"
	redisclient "github.com/vietddude/zerofail/internal/infra/redis"
	"github.com/vietddude/zerofail/internal/infra/storage"
	"github.com/vietddude/zerofail/internal/infra/storage/memory"
	"github.com/vietddude/zerofail/internal/infra/storage/sqldb"
)

// ErrClosed is returned by Generate after Stop.
var ErrClosed = errors.New("control: app stopped")

// persistTimeout bounds record persistence after a request finished.
const persistTimeout = 2 * time.Second

// App is the main application struct that manages the service lifecycle.
type App struct {
	cfg          config.AppConfig
	registry     *provider.Registry
	pipeline     *pipeline.Pipeline
	tracker      *delivery.Tracker
	dispatcher   *delivery.Dispatcher
	compliance   *compliance.Processor
	deliveries   storage.DeliveryRepository
	signals      storage.SignalRepository
	db           *sqldb.DB
	redisClient  *redisclient.Client
	bus          *eventbus.Publisher
	pruner       *worker.Pruner
	escalation   *worker.EscalationWorker
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	closed atomic.Bool
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option customises App construction.
type Option func(*options)

type options struct {
	registry *provider.Registry
	logger   *slog.Logger
}

// WithRegistry uses a prepared provider registry instead of building one
// from configuration.
func WithRegistry(r *provider.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an App with all dependencies initialized.
func New(ctx context.Context, cfg config.AppConfig, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, log: o.logger}

	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	// 1. Providers
	a.registry = o.registry
	if a.registry == nil {
		r, err := provider.Build(ctx, cfg.Providers)
		if err != nil {
			return nil, fmt.Errorf("failed to build providers: %w", err)
		}
		a.registry = r
	}

	tiers := make([]pipeline.Tier, 0, len(cfg.Pipeline.Tiers))
	for i, tc := range cfg.Pipeline.Tiers {
		p, found := a.registry.Get(tc.Provider)
		if !found {
			return nil, fmt.Errorf("tier %d: provider %q not registered", i, tc.Provider)
		}
		tiers = append(tiers, pipeline.Tier{
			Provider:            p,
			PerAttemptTimeout:   tc.PerAttemptTimeout,
			AcceptanceThreshold: tc.AcceptanceThreshold,
			MaxAttempts:         tc.MaxAttempts,
		})
	}

	// 2. Quality, templates, post-processing
	assessor := quality.NewSelector(cfg.Quality)

	fallback, err := template.New(cfg.Templates.Bodies, cfg.Templates.NominalScore)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	a.compliance, err = compliance.New(cfg.Compliance)
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance rules: %w", err)
	}

	// 3. Tracking and storage
	a.tracker = delivery.NewTracker(cfg.Delivery)

	if err := a.initStorage(ctx); err != nil {
		return nil, err
	}

	// 4. Escalation sinks
	a.dispatcher = delivery.NewDispatcher(cfg.Delivery.Escalation.Cooldown, delivery.LogSink{Logger: a.log})
	if a.redisClient != nil {
		a.dispatcher.AddSink(redisclient.NewSignalSink(a.redisClient, cfg.Redis.Channel, cfg.Redis.SignalHistory))
	}
	if cfg.NATS.Enabled() {
		bus, err := eventbus.Connect(cfg.NATS)
		if err != nil {
			a.log.Warn("Failed to connect to NATS, event publishing disabled", "error", err)
		} else {
			a.bus = bus
			a.dispatcher.AddSink(bus.Sink())
		}
	}

	// 5. Pipeline
	a.pipeline, err = pipeline.New(tiers, assessor, fallback,
		pipeline.WithBackoff(backoff.Policy{
			BaseDelay: cfg.Pipeline.Backoff.BaseDelay,
			MaxDelay:  cfg.Pipeline.Backoff.MaxDelay,
			Jitter:    cfg.Pipeline.Backoff.Jitter,
		}),
		pipeline.WithDefaultBudget(cfg.Pipeline.DefaultBudget),
		pipeline.WithThresholds(pipeline.Thresholds(cfg.Pipeline.Thresholds)),
		pipeline.WithObserver(func(r domain.PipelineResult) { a.tracker.Record(r) }),
		pipeline.WithLogger(a.log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	// 6. Workers
	if cfg.Delivery.Retention > 0 {
		a.pruner = worker.NewPruner(cfg.Delivery.Retention, cfg.Delivery.PruneInterval, a.deliveries)
	}
	a.escalation = worker.NewEscalationWorker(a.tracker, a.dispatcher, a.signals, cfg.Delivery.Escalation.CheckInterval)

	// 7. Health
	a.healthMon = health.NewMonitor(a.tracker, a.registry, 5*time.Second)
	a.healthServer = health.NewServer(a.healthMon, a, cfg.Server.Port, cfg.Server.AllowedOrigin)

	ok = true
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	if a.cfg.Redis.Enabled() {
		c, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			a.log.Warn("Failed to connect to Redis, redis sinks disabled", "error", err)
		} else {
			a.redisClient = c
		}
	}

	switch {
	case a.cfg.Database.Enabled():
		db, err := sqldb.Open(ctx, a.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db
		a.deliveries = sqldb.NewDeliveryRepo(db)
		a.signals = sqldb.NewSignalRepo(db)
		a.log.Info("Using SQL storage", "driver", a.cfg.Database.Driver)
	case a.redisClient != nil:
		store := memory.NewMemoryStorage()
		a.deliveries = redisclient.NewDeliveryLog(a.redisClient, a.cfg.Redis.TTL)
		a.signals = memory.NewSignalRepo(store, 500)
		a.log.Info("Using Redis delivery log")
	default:
		store := memory.NewMemoryStorage()
		a.deliveries = memory.NewDeliveryRepo(store)
		a.signals = memory.NewSignalRepo(store, 500)
		a.log.Info("Using Memory storage")
	}
	return nil
}

// Start starts the HTTP server and background workers. It does not block.
func (a *App) Start(ctx context.Context) error {
	if a.closed.Load() {
		return ErrClosed
	}
	ctx, a.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.group = g

	g.Go(func() error {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.escalation.Start(gctx)
		return nil
	})

	if a.pruner != nil {
		g.Go(func() error {
			a.pruner.Start(gctx)
			return nil
		})
	}

	if a.db != nil {
		a.db.StartMetricsCollector(gctx)
	}

	a.log.Info("Service started",
		"port", a.cfg.Server.Port,
		"tiers", len(a.pipeline.Tiers()),
	)
	return nil
}

// Generate runs one request through the pipeline, applies compliance rules
// and records the outcome. It only fails when the app is stopped; provider
// failures are absorbed by the pipeline.
func (a *App) Generate(ctx context.Context, req domain.GenerationRequest) (domain.PipelineResult, error) {
	if a.closed.Load() {
		return domain.PipelineResult{}, ErrClosed
	}

	result := a.pipeline.Run(ctx, req)
	violated := a.tracker.SLAViolated(result)

	if fired := a.compliance.Apply(&result); len(fired) > 0 {
		a.log.Debug("Compliance rules applied", "request_id", result.RequestID, "rules", fired)
	}

	rec := domain.NewDeliveryRecord(result.RequestID, result, violated)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := a.deliveries.Save(pctx, rec); err != nil {
		a.log.Warn("Failed to persist delivery", "request_id", result.RequestID, "error", err)
	}
	if a.bus != nil {
		if err := a.bus.PublishResult(pctx, rec); err != nil {
			a.log.Warn("Failed to publish delivery", "request_id", result.RequestID, "error", err)
		}
	}
	return result, nil
}

// Snapshot returns current delivery statistics.
func (a *App) Snapshot() delivery.Snapshot {
	return a.tracker.Snapshot()
}

// Health returns the current health report.
func (a *App) Health() health.HealthReport {
	return a.healthMon.CheckHealth()
}

// Deliveries exposes the delivery repository.
func (a *App) Deliveries() storage.DeliveryRepository {
	return a.deliveries
}

// Signals exposes the escalation history.
func (a *App) Signals() storage.SignalRepository {
	return a.signals
}

// CheckEscalation runs one escalation check immediately.
func (a *App) CheckEscalation(ctx context.Context) int {
	return a.escalation.Check(ctx)
}

// Stop stops the server and workers and releases connections.
func (a *App) Stop(ctx context.Context) error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.log.Info("Stopping service...")

	err := a.healthServer.Stop(ctx)
	if a.cancel != nil {
		a.cancel()
	}
	if a.group != nil {
		if werr := a.group.Wait(); werr != nil && err == nil {
			err = werr
		}
	}

	a.closeResources()
	return err
}

func (a *App) closeResources() {
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			a.log.Warn("Failed to close providers", "error", err)
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn("Failed to close NATS", "error", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
