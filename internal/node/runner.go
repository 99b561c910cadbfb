// internal/node/runner.go
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/tokenmill/internal/bank"
	"github.com/rovshanmuradov/tokenmill/internal/config"
	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/lock"
	"github.com/rovshanmuradov/tokenmill/internal/market"
	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/storage/clickhouse"
	"github.com/rovshanmuradov/tokenmill/internal/storage/memory"
	"github.com/rovshanmuradov/tokenmill/internal/storage/postgres"
	"github.com/rovshanmuradov/tokenmill/internal/utils/metrics"
)

const (
	eventBufferSize = 1024
	connectTries    = 5
	flushInterval   = 5 * time.Second
	lockPrefix      = "tokenmill:lock:"
)

// Runner wires configuration into a running market engine and owns every
// backing service it opened.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	store     storage.Store
	runtime   *bank.Runtime
	bus       *events.Bus
	journal   *events.Journal
	sink      *clickhouse.EventSink
	registry  *prometheus.Registry
	collector *metrics.Collector
	engine    *market.Engine
	shutdown  *ShutdownHandler
}

// Option configures a Runner.
type Option func(*Runner)

// WithJournal keeps every published event in memory for the lifetime of the
// runner. Meant for bounded runs such as simulate or an export.
func WithJournal() Option {
	return func(r *Runner) { r.journal = events.NewJournal() }
}

func NewRunner(cfg *config.Config, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		shutdown: NewShutdownHandler(logger, DefaultShutdownTimeout),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// connect retries open with exponential backoff.
func connect[T any](ctx context.Context, logger *zap.Logger, what string, open func() (T, error)) (T, error) {
	return backoff.Retry(ctx, open,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(connectTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Connection attempt failed",
				zap.String("service", what),
				zap.Duration("retry_in", next),
				zap.Error(err))
		}))
}

// Initialize opens storage, the lock service, the event pipeline and
// metrics, then builds the engine. On error everything opened so far is
// closed by Shutdown.
func (r *Runner) Initialize(ctx context.Context) error {
	if err := r.openStore(ctx); err != nil {
		return err
	}

	locker, err := r.openLocker(ctx)
	if err != nil {
		return err
	}

	r.bus = events.NewBus(r.logger, eventBufferSize)
	if r.journal != nil {
		r.bus.Subscribe(events.All, r.journal)
	}
	if r.cfg.ClickHouseDSN != "" {
		conn, err := connect(ctx, r.logger, "clickhouse", func() (*clickhouse.Conn, error) {
			return clickhouse.NewConn(ctx, r.cfg.ClickHouseDSN)
		})
		if err != nil {
			return fmt.Errorf("failed to connect to clickhouse: %w", err)
		}
		r.sink = clickhouse.NewEventSink(conn, clickhouse.DefaultBatchSize, r.logger)
		r.shutdown.Add("clickhouse", r.sink.Close)
		if err := r.sink.Migrate(ctx); err != nil {
			return err
		}
		r.bus.Subscribe(events.All, r.sink)
	}
	// the bus drains before the sink closes
	r.shutdown.Add("event_bus", r.bus.Shutdown)

	r.registry = prometheus.NewRegistry()
	r.collector = metrics.NewCollector(r.registry)
	r.runtime = bank.NewRuntime(r.logger)

	r.engine, err = market.New(market.Options{
		ProgramID:       r.cfg.ProgramKey(),
		Store:           r.store,
		Runtime:         r.runtime,
		Publisher:       r.bus,
		Locker:          locker,
		Metrics:         r.collector,
		Migration:       r.cfg.MigrationParams(),
		ReflectionScale: r.cfg.ReflectionScale,
	}, r.logger)
	if err != nil {
		return err
	}

	r.logger.Info("Node initialized",
		zap.String("program_id", r.cfg.ProgramID),
		zap.String("storage", r.cfg.Storage.Driver),
		zap.Bool("redis_lock", r.cfg.RedisAddr != ""),
		zap.Bool("clickhouse", r.sink != nil))
	return nil
}

func (r *Runner) openStore(ctx context.Context) error {
	switch r.cfg.Storage.Driver {
	case config.DriverPostgres:
		pg, err := connect(ctx, r.logger, "postgres", func() (*postgres.Store, error) {
			return postgres.New(ctx, r.cfg.Storage.PostgresURL, r.logger)
		})
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		r.store = pg
		r.shutdown.AddCloser("postgres", pg.Close)
		if err := pg.RunMigrations(ctx); err != nil {
			return err
		}
	default:
		r.store = memory.New()
	}
	return nil
}

func (r *Runner) openLocker(ctx context.Context) (lock.Locker, error) {
	if r.cfg.RedisAddr == "" {
		return lock.NewLocal(), nil
	}
	rdb, err := connect(ctx, r.logger, "redis", func() (*redis.Client, error) {
		return lock.Connect(ctx, r.cfg.RedisAddr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	r.shutdown.AddCloser("redis", rdb.Close)
	return lock.NewRedis(rdb, lockPrefix), nil
}

func (r *Runner) Engine() *market.Engine { return r.engine }

func (r *Runner) Runtime() *bank.Runtime { return r.runtime }

// Journal holds every event published since Initialize, or is nil when the
// runner was built without WithJournal.
func (r *Runner) Journal() *events.Journal { return r.journal }

// Run serves metrics and flushes the analytics sink until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := r.cfg.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			r.logger.Info("Serving metrics", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if r.sink != nil {
		g.Go(func() error {
			ticker := time.NewTicker(flushInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := r.sink.Flush(ctx); err != nil {
						r.logger.Warn("Failed to flush events", zap.Error(err))
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

// Shutdown closes every opened service in reverse order.
func (r *Runner) Shutdown(ctx context.Context) error {
	return r.shutdown.Shutdown(ctx)
}
