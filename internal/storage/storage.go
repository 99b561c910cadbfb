// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/types"
)

var (
	ErrNotFound = errors.New("account not found")
	ErrReadOnly = errors.New("write in read-only transaction")
	// ErrConflict means a concurrent transaction won and retries ran out.
	// Nothing was written; the caller may run the operation again.
	ErrConflict = errors.New("transaction conflict")
)

// Tx is a unit of work over stored accounts. Writes become visible to other
// transactions only when the surrounding Update returns nil.
type Tx interface {
	// Get decodes the account at key into a. Returns ErrNotFound if absent.
	Get(ctx context.Context, key solana.PublicKey, a types.Account) error
	Put(ctx context.Context, key solana.PublicKey, a types.Account) error
	Exists(ctx context.Context, key solana.PublicKey) (bool, error)
}

// Store определяет интерфейс для хранилища аккаунтов
type Store interface {
	// Update runs fn in a read-write transaction. Any error from fn discards
	// every write made inside it.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
