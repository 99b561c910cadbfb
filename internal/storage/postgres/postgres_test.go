package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// setupTestStore starts a PostgreSQL container and applies migrations.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.RunMigrations(ctx))
	// second run is a no-op
	require.NoError(t, s.RunMigrations(ctx))
	return s
}

func TestStoreCommitAndRollback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	key := solana.NewWallet().PublicKey()

	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Put(ctx, key, &types.SystemAccount{Lamports: 5})
	}))

	boom := errors.New("boom")
	err := s.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Put(ctx, key, &types.SystemAccount{Lamports: 99}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var acc types.SystemAccount
	require.NoError(t, s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Get(ctx, key, &acc)
	}))
	assert.Equal(t, uint64(5), acc.Lamports)

	err = s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		ok, err := tx.Exists(ctx, solana.NewWallet().PublicKey())
		assert.False(t, ok)
		return err
	})
	assert.NoError(t, err)
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped", fmt.Errorf("load account: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConflict(tt.err))
		})
	}
}

// Concurrent credits to an account that does not exist yet must all land.
func TestConcurrentCreditsToMissingAccount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	recipient := solana.NewWallet().PublicKey()

	const writers = 6
	const fee = 4050

	credit := func(ctx context.Context, tx storage.Tx) error {
		var acc types.SystemAccount
		if err := tx.Get(ctx, recipient, &acc); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		acc.Lamports += fee
		return tx.Put(ctx, recipient, &acc)
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := s.Update(ctx, credit)
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				errs <- err
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var acc types.SystemAccount
	require.NoError(t, s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Get(ctx, recipient, &acc)
	}))
	assert.Equal(t, uint64(writers*fee), acc.Lamports)
}
