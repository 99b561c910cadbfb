// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// Store keeps encoded accounts in memory. Writers are serialized; each
// transaction buffers its writes and applies them on success.
type Store struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey][]byte
}

func New() *Store {
	return &Store{accounts: make(map[solana.PublicKey][]byte)}
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{base: s.accounts, writes: make(map[solana.PublicKey][]byte)}
	if err := fn(ctx, t); err != nil {
		return err
	}
	for k, v := range t.writes {
		s.accounts[k] = v
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &tx{base: s.accounts, readOnly: true})
}

func (s *Store) Close() error { return nil }

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

type tx struct {
	base     map[solana.PublicKey][]byte
	writes   map[solana.PublicKey][]byte
	readOnly bool
}

func (t *tx) lookup(key solana.PublicKey) ([]byte, bool) {
	if data, ok := t.writes[key]; ok {
		return data, true
	}
	data, ok := t.base[key]
	return data, ok
}

func (t *tx) Get(_ context.Context, key solana.PublicKey, a types.Account) error {
	data, ok := t.lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return types.Decode(data, a)
}

func (t *tx) Put(_ context.Context, key solana.PublicKey, a types.Account) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	data, err := types.Encode(a)
	if err != nil {
		return err
	}
	t.writes[key] = data
	return nil
}

func (t *tx) Exists(_ context.Context, key solana.PublicKey) (bool, error) {
	_, ok := t.lookup(key)
	return ok, nil
}
