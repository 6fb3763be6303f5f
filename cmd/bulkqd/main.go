// Command bulkqd runs the bulk job orchestrator daemon: the HTTP API, the
// recovery sweeper, and the lifecycle event stream, wired to a store and a
// worker signaler selected by environment variables.
//
//	BULKQ_STORE=postgres BULKQ_POSTGRES_DSN=postgres://… \
//	BULKQ_SIGNALER=redis BULKQ_REDIS_ADDR=localhost:6379 \
//	bulkqd
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/api"
	"github.com/mailscout/bulkq/audit"
	"github.com/mailscout/bulkq/billing"
	"github.com/mailscout/bulkq/orchestrator"
	"github.com/mailscout/bulkq/queue"
	bqsignal "github.com/mailscout/bulkq/signal"
	"github.com/mailscout/bulkq/signal/httpsig"
	"github.com/mailscout/bulkq/signal/redisq"
	"github.com/mailscout/bulkq/store"
	"github.com/mailscout/bulkq/store/bunstore"
	"github.com/mailscout/bulkq/store/memory"
	"github.com/mailscout/bulkq/store/postgres"
)

type config struct {
	Addr     string `env:"BULKQ_ADDR" envDefault:":8080"`
	LogLevel string `env:"BULKQ_LOG_LEVEL" envDefault:"info"`

	// Store selection: memory, postgres, or bun.
	Store       string `env:"BULKQ_STORE" envDefault:"memory"`
	PostgresDSN string `env:"BULKQ_POSTGRES_DSN"`

	// Signaler selection: redis or http.
	Signaler       string `env:"BULKQ_SIGNALER" envDefault:"redis"`
	RedisAddr      string `env:"BULKQ_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"BULKQ_REDIS_PASSWORD"`
	WorkerBaseURL  string `env:"BULKQ_WORKER_URL"`
	WorkerUsername string `env:"BULKQ_WORKER_USERNAME"`
	WorkerPassword string `env:"BULKQ_WORKER_PASSWORD"`

	// WorkerToken authenticates the worker's progress callback.
	WorkerToken string `env:"BULKQ_WORKER_TOKEN"`

	// Billing webhook. Empty disables usage events.
	BillingURL   string `env:"BULKQ_BILLING_URL"`
	BillingToken string `env:"BULKQ_BILLING_TOKEN"`

	// Orchestration policy overrides.
	SweepSchedule string        `env:"BULKQ_SWEEP_SCHEDULE" envDefault:"@every 30s"`
	MaxRetries    int           `env:"BULKQ_MAX_RETRIES" envDefault:"3"`
	MaxBatchSize  int           `env:"BULKQ_MAX_BATCH_SIZE" envDefault:"10000"`
	StalenessBase time.Duration `env:"BULKQ_STALENESS_BASE" envDefault:"2m"`

	// Per-owner throttling. Zero disables a limit.
	SubmitRate    float64 `env:"BULKQ_SUBMIT_RATE"`
	SubmitBurst   int     `env:"BULKQ_SUBMIT_BURST"`
	MaxProcessing int64   `env:"BULKQ_MAX_PROCESSING"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bulkqd:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sig, err := buildSignaler(cfg)
	if err != nil {
		return err
	}

	ocfg := bulkq.DefaultConfig()
	ocfg.SweepSchedule = cfg.SweepSchedule
	ocfg.MaxRetries = cfg.MaxRetries
	ocfg.MaxBatchSize = cfg.MaxBatchSize
	ocfg.StalenessBase = cfg.StalenessBase

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithConfig(ocfg),
		orchestrator.WithExtension(audit.New(audit.SlogRecorder(logger), audit.WithLogger(logger))),
	}
	if cfg.BillingURL != "" {
		opts = append(opts, orchestrator.WithExtension(
			billing.New(billing.NewHTTPSender(cfg.BillingURL, cfg.BillingToken), billing.WithLogger(logger)),
		))
	}
	if cfg.SubmitRate > 0 || cfg.MaxProcessing > 0 {
		opts = append(opts, orchestrator.WithLimiter(queue.LimiterConfig{
			SubmitRate:    cfg.SubmitRate,
			SubmitBurst:   cfg.SubmitBurst,
			MaxProcessing: cfg.MaxProcessing,
		}))
	}

	orc, err := orchestrator.New(st, sig, opts...)
	if err != nil {
		return err
	}
	if err := orc.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(orc, api.WithLogger(logger), api.WithWorkerToken(cfg.WorkerToken)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening",
			slog.String("addr", cfg.Addr),
			slog.String("store", cfg.Store),
			slog.String("signaler", cfg.Signaler),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ocfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if stopErr := orc.Stop(context.Background()); stopErr != nil {
		logger.Error("orchestrator stop error", slog.String("error", stopErr.Error()))
	}
	return err
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func buildStore(ctx context.Context, cfg config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store, jobs will not survive a restart")
		return memory.New(), nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("BULKQ_POSTGRES_DSN required for the postgres store")
		}
		return postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
	case "bun":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("BULKQ_POSTGRES_DSN required for the bun store")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store)
	}
}

func buildSignaler(cfg config) (bqsignal.Signaler, error) {
	switch cfg.Signaler {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return redisq.New(client), nil
	case "http":
		if cfg.WorkerBaseURL == "" {
			return nil, fmt.Errorf("BULKQ_WORKER_URL required for the http signaler")
		}
		return httpsig.New(cfg.WorkerBaseURL, cfg.WorkerUsername, cfg.WorkerPassword), nil
	default:
		return nil, fmt.Errorf("unknown signaler driver %q", cfg.Signaler)
	}
}
