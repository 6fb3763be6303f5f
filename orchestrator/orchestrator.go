// Package orchestrator wires the bulkq subsystems together: the job store,
// the worker signaler, the queue manager, the recovery sweeper, the status
// reporter, the hook registry, and the stream broker. It owns the process
// lifecycle: Start runs migrations and launches the sweeper, Stop drains
// everything within the configured shutdown timeout.
//
//	st, err := postgres.New(ctx, dsn)
//	sig := redisq.New(redisClient, redisq.WithKeyPrefix("bulkq:"))
//
//	orc, err := orchestrator.New(st, sig,
//	    orchestrator.WithLogger(logger),
//	    orchestrator.WithExtension(billingHook),
//	    orchestrator.WithLimiter(queue.LimiterConfig{MaxProcessing: 10}),
//	)
//
//	if err := orc.Start(ctx); err != nil { ... }
//	defer orc.Stop(context.Background())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/backoff"
	"github.com/mailscout/bulkq/hook"
	"github.com/mailscout/bulkq/observability"
	"github.com/mailscout/bulkq/queue"
	"github.com/mailscout/bulkq/recovery"
	"github.com/mailscout/bulkq/report"
	"github.com/mailscout/bulkq/signal"
	"github.com/mailscout/bulkq/store"
	"github.com/mailscout/bulkq/stream"
)

// Orchestrator is the assembled bulk job system.
type Orchestrator struct {
	cfg      bulkq.Config
	store    store.Store
	signaler signal.Signaler
	logger   *slog.Logger

	hooks    *hook.Registry
	queue    *queue.Manager
	sweeper  *recovery.Sweeper
	reporter *report.Reporter
	broker   *stream.Broker

	// Build-time options, consumed by New.
	extensions    []hook.Extension
	limiterCfg    *queue.LimiterConfig
	grace         backoff.Strategy
	meterProvider metric.MeterProvider
	skipMigrate   bool

	started atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig sets the orchestration policy. Defaults to bulkq.DefaultConfig().
func WithConfig(cfg bulkq.Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithLogger sets the logger used by every subsystem.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithExtension registers a lifecycle hook extension.
func WithExtension(e hook.Extension) Option {
	return func(o *Orchestrator) { o.extensions = append(o.extensions, e) }
}

// WithLimiter enables the per-owner submit rate and processing cap.
func WithLimiter(cfg queue.LimiterConfig) Option {
	return func(o *Orchestrator) { o.limiterCfg = &cfg }
}

// WithGrace sets the per-retry grace strategy the sweeper applies to
// already-recovered jobs. Defaults to backoff.DefaultStrategy().
func WithGrace(strategy backoff.Strategy) Option {
	return func(o *Orchestrator) { o.grace = strategy }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics hook.
// If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) { o.meterProvider = mp }
}

// WithoutMigrations skips running store migrations on Start. Use when the
// schema is managed out of band.
func WithoutMigrations() Option {
	return func(o *Orchestrator) { o.skipMigrate = true }
}

// New assembles an Orchestrator around a store and a signaler.
func New(st store.Store, sig signal.Signaler, opts ...Option) (*Orchestrator, error) {
	if st == nil {
		return nil, bulkq.ErrNoStore
	}
	if sig == nil {
		return nil, fmt.Errorf("orchestrator: nil signaler")
	}

	o := &Orchestrator{
		cfg:      bulkq.DefaultConfig(),
		store:    st,
		signaler: sig,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.hooks = hook.NewRegistry(o.logger)

	// Metrics hook.
	if o.meterProvider != nil {
		meter := o.meterProvider.Meter("github.com/mailscout/bulkq")
		o.hooks.Register(observability.NewMetricsExtensionWithMeter(meter))
	} else {
		o.hooks.Register(observability.NewMetricsExtension())
	}

	// Stream broker, so WS sessions see every lifecycle event.
	o.broker = stream.NewBroker(o.logger)
	o.hooks.Register(o.broker)

	for _, e := range o.extensions {
		o.hooks.Register(e)
	}

	queueOpts := []queue.Option{
		queue.WithLogger(o.logger),
		queue.WithHooks(o.hooks),
	}
	if o.limiterCfg != nil {
		queueOpts = append(queueOpts, queue.WithLimiter(queue.NewLimiter(*o.limiterCfg)))
	}
	o.queue = queue.NewManager(st, sig, o.cfg, queueOpts...)

	sweepOpts := []recovery.Option{
		recovery.WithLogger(o.logger),
		recovery.WithHooks(o.hooks),
	}
	if o.grace != nil {
		sweepOpts = append(sweepOpts, recovery.WithGrace(o.grace))
	}
	o.sweeper = recovery.NewSweeper(st, sig, o.cfg, sweepOpts...)

	o.reporter = report.NewReporter(st, report.WithLogger(o.logger))

	return o, nil
}

// Start runs store migrations and launches the recovery sweeper.
// It is an error to call Start twice.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return fmt.Errorf("orchestrator: already started")
	}

	if !o.skipMigrate {
		if err := o.store.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: %v", bulkq.ErrMigrationFailed, err)
		}
	}

	if err := o.store.Ping(ctx); err != nil {
		return fmt.Errorf("orchestrator: store ping: %w", err)
	}

	if err := o.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start recovery sweeper: %w", err)
	}

	o.logger.Info("orchestrator started",
		slog.String("sweep_schedule", o.cfg.SweepSchedule),
	)
	return nil
}

// Stop gracefully shuts the orchestrator down: the sweeper stops first so
// no new writes race the drain, then every Shutdown hook runs within
// Config.ShutdownTimeout, then the store closes.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if !o.started.Load() {
		return nil
	}

	if err := o.sweeper.Stop(ctx); err != nil {
		o.logger.Error("recovery sweeper stop error", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, o.cfg.ShutdownTimeout)
	defer cancel()
	o.hooks.EmitShutdown(shutdownCtx)

	if err := o.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	o.logger.Info("orchestrator stopped")
	return nil
}

// Queue returns the queue manager.
func (o *Orchestrator) Queue() *queue.Manager { return o.queue }

// Reporter returns the read-only status reporter.
func (o *Orchestrator) Reporter() *report.Reporter { return o.reporter }

// Hooks returns the extension registry.
func (o *Orchestrator) Hooks() *hook.Registry { return o.hooks }

// Stream returns the lifecycle event broker.
func (o *Orchestrator) Stream() *stream.Broker { return o.broker }

// Sweeper returns the recovery sweeper, exposed so operators can trigger
// an out-of-schedule sweep.
func (o *Orchestrator) Sweeper() *recovery.Sweeper { return o.sweeper }

// Store returns the underlying store.
func (o *Orchestrator) Store() store.Store { return o.store }

// Config returns the effective configuration.
func (o *Orchestrator) Config() bulkq.Config { return o.cfg }
