// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store keeps accounts in PostgreSQL. Each Update is one SERIALIZABLE
// transaction; rows are locked with SELECT ... FOR UPDATE on first read.
// Reads of missing rows are covered by the isolation level, not the row lock.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects to dsn and verifies the connection.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool, logger: logger.Named("postgres")}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// RunMigrations applies embedded migrations in name order, once each.
func (s *Store) RunMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := s.applyMigration(ctx, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, name string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", name,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check migration %s: %w", name, err)
	}
	if exists {
		return nil
	}

	data, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		s.logger.Info("Applied migration", zap.String("file", name))
		return nil
	})
}

const (
	sqlSerializationFailure = "40001"
	sqlDeadlockDetected     = "40P01"

	updateTries = 10
)

// Update runs fn in a SERIALIZABLE transaction. On a serialization failure
// the transaction is rolled back and fn runs again from scratch; when tries
// run out the error wraps storage.ErrConflict.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	attempt := func() (struct{}, error) {
		err := pgx.BeginTxFunc(ctx, s.pool, opts, func(ptx pgx.Tx) error {
			return fn(ctx, &tx{tx: ptx})
		})
		switch {
		case err == nil:
			return struct{}{}, nil
		case isConflict(err):
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(updateTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Debug("Transaction conflict, retrying",
				zap.Duration("next_attempt", next),
				zap.Error(err))
		}),
	)
	if err != nil && isConflict(err) {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}

// isConflict reports whether err is a failure that retrying the whole
// transaction can clear.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlSerializationFailure || pgErr.Code == sqlDeadlockDetected
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(ptx pgx.Tx) error {
		return fn(ctx, &tx{tx: ptx, readOnly: true})
	})
}

type tx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *tx) load(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	query := "SELECT data FROM accounts WHERE address = $1"
	if !t.readOnly {
		query += " FOR UPDATE"
	}

	var data []byte
	err := t.tx.QueryRow(ctx, query, key.Bytes()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", key, err)
	}
	return data, nil
}

func (t *tx) Get(ctx context.Context, key solana.PublicKey, a types.Account) error {
	data, err := t.load(ctx, key)
	if err != nil {
		return err
	}
	return types.Decode(data, a)
}

func (t *tx) Put(ctx context.Context, key solana.PublicKey, a types.Account) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	data, err := types.Encode(a)
	if err != nil {
		return err
	}
	d := a.Discriminator()
	_, err = t.tx.Exec(ctx, `
		INSERT INTO accounts (address, discriminator, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (address) DO UPDATE
		SET data = EXCLUDED.data, discriminator = EXCLUDED.discriminator, updated_at = NOW()`,
		key.Bytes(), d[:], data,
	)
	if err != nil {
		return fmt.Errorf("store account %s: %w", key, err)
	}
	return nil
}

func (t *tx) Exists(ctx context.Context, key solana.PublicKey) (bool, error) {
	_, err := t.load(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
