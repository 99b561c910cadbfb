// internal/market/engine.go
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/bank"
	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/forward"
	"github.com/rovshanmuradov/tokenmill/internal/lock"
	"github.com/rovshanmuradov/tokenmill/internal/market/buyback"
	"github.com/rovshanmuradov/tokenmill/internal/market/fees"
	"github.com/rovshanmuradov/tokenmill/internal/market/migration"
	"github.com/rovshanmuradov/tokenmill/internal/market/reflection"
	"github.com/rovshanmuradov/tokenmill/internal/storage"
)

// DefaultLockTTL bounds how long one operation may hold a market.
const DefaultLockTTL = 10 * time.Second

// Metrics receives operation outcomes. *metrics.Collector implements it.
type Metrics interface {
	RecordOperation(ctx context.Context, operation string, duration time.Duration, err error)
	AddFee(kind string, lamports uint64)
	SetBuybackTotal(market string, lamports uint64)
	SetSupply(market string, supply uint64)
	IncMigrations()
}

// Options wires an Engine. Store, Runtime and Publisher are required.
type Options struct {
	ProgramID       solana.PublicKey
	Store           storage.Store
	Runtime         *bank.Runtime
	Publisher       events.Publisher
	Locker          lock.Locker
	Metrics         Metrics
	Migration       migration.Params
	ReflectionScale uint64
	LockTTL         time.Duration
}

// Engine runs market operations. Each operation holds its market's lock,
// executes in one storage transaction and publishes its events after the
// transaction commits.
type Engine struct {
	programID solana.PublicKey
	store     storage.Store
	runtime   *bank.Runtime
	publisher events.Publisher
	locker    lock.Locker
	metrics   Metrics
	lockTTL   time.Duration
	scale     uint64

	forwarder   *forward.Forwarder
	distributor *fees.Distributor
	tracker     *buyback.Tracker
	machine     *migration.Machine

	logger *zap.Logger
}

func New(opts Options, logger *zap.Logger) (*Engine, error) {
	if opts.Store == nil || opts.Runtime == nil || opts.Publisher == nil {
		return nil, errors.New("market engine needs a store, a runtime and a publisher")
	}
	if opts.ProgramID.IsZero() {
		return nil, errors.New("market engine needs a program id")
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Migration == (migration.Params{}) {
		opts.Migration = migration.DefaultParams()
	}
	if opts.ReflectionScale == 0 {
		opts.ReflectionScale = reflection.DefaultScale
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}

	logger = logger.Named("market")
	forwarder := forward.New(logger)
	return &Engine{
		programID:   opts.ProgramID,
		store:       opts.Store,
		runtime:     opts.Runtime,
		publisher:   opts.Publisher,
		locker:      opts.Locker,
		metrics:     opts.Metrics,
		lockTTL:     opts.LockTTL,
		scale:       opts.ReflectionScale,
		forwarder:   forwarder,
		distributor: fees.NewDistributor(logger),
		tracker:     buyback.NewTracker(forwarder, logger),
		machine:     migration.NewMachine(opts.Migration, forwarder, logger),
		logger:      logger,
	}, nil
}

// ProgramID is the program every derived address is computed under.
func (e *Engine) ProgramID() solana.PublicKey { return e.programID }

// MigrationParams returns the thresholds the engine migrates with.
func (e *Engine) MigrationParams() migration.Params { return e.machine.Params() }

// op is the state of one running operation.
type op struct {
	tx     storage.Tx
	bank   *bank.Bank
	now    time.Time
	events []events.Event
	// applied after commit
	after []func()
}

func (o *op) emit(ev events.Event) {
	o.events = append(o.events, ev)
}

func (o *op) onCommit(fn func()) {
	o.after = append(o.after, fn)
}

// run executes fn under the lock for key inside one store transaction.
// Nothing fn did is visible, and no event is published, unless it returns nil.
func (e *Engine) run(ctx context.Context, name string, key solana.PublicKey, fn func(ctx context.Context, o *op) error) (err error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordOperation(ctx, name, time.Since(start), err)
	}()

	release, err := e.locker.Acquire(ctx, key.String(), e.lockTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer release()

	var o *op
	err = e.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		b := e.runtime.Bind(tx)
		o = &op{tx: tx, bank: b, now: b.Now()}
		return fn(ctx, o)
	})
	if err != nil {
		e.logger.Debug("Operation rolled back",
			zap.String("operation", name),
			zap.String("key", key.String()),
			zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}

	for _, f := range o.after {
		f()
	}
	if len(o.events) > 0 {
		// state is committed; a slow subscriber must not fail the operation
		if perr := e.publisher.PublishBatch(o.events); perr != nil {
			e.logger.Warn("Failed to publish events",
				zap.String("operation", name),
				zap.Int("events", len(o.events)),
				zap.Error(perr))
		}
	}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(context.Context, string, time.Duration, error) {}
func (nopMetrics) AddFee(string, uint64)                                         {}
func (nopMetrics) SetBuybackTotal(string, uint64)                                {}
func (nopMetrics) SetSupply(string, uint64)                                      {}
func (nopMetrics) IncMigrations()                                                {}
