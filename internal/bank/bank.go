// internal/bank/bank.go
package bank

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/host"
	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMissingSignature  = errors.New("missing required signature")
	ErrAuthorityRevoked  = errors.New("authority revoked")
	ErrAccountFrozen     = errors.New("account frozen")
	ErrMintExists        = errors.New("mint already exists")
	ErrUnknownProgram    = errors.New("unknown program")
)

// Program is an external program reachable through Invoke.
type Program interface {
	Execute(ctx context.Context, h host.Host, ix solana.Instruction, signer authority.Signer) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(ctx context.Context, h host.Host, ix solana.Instruction, signer authority.Signer) error

func (f ProgramFunc) Execute(ctx context.Context, h host.Host, ix solana.Instruction, signer authority.Signer) error {
	return f(ctx, h, ix, signer)
}

// Runtime is the in-process ledger of native balances, mints and token
// accounts. State lives in the storage transaction a Bank is bound to, so it
// commits or rolls back together with the market records.
type Runtime struct {
	mu       sync.RWMutex
	programs map[solana.PublicKey]Program
	clock    func() time.Time
	logger   *zap.Logger
}

type Option func(*Runtime)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(r *Runtime) { r.clock = clock }
}

func NewRuntime(logger *zap.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		programs: make(map[solana.PublicKey]Program),
		clock:    time.Now,
		logger:   logger.Named("bank"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes program callable at id.
func (r *Runtime) Register(id solana.PublicKey, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = program
}

func (r *Runtime) program(id solana.PublicKey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

// Bind returns a host view over tx.
func (r *Runtime) Bind(tx storage.Tx) *Bank {
	return &Bank{rt: r, tx: tx}
}

// Bank implements host.Host on top of a storage transaction.
type Bank struct {
	rt *Runtime
	tx storage.Tx
}

var _ host.Host = (*Bank)(nil)

func (b *Bank) Now() time.Time { return b.rt.clock() }

// lamportsKey separates a key's native balance from the record stored at
// the key itself.
func lamportsKey(key solana.PublicKey) solana.PublicKey {
	sum := sha256.Sum256(append([]byte("lamports:"), key.Bytes()...))
	return solana.PublicKeyFromBytes(sum[:])
}

func (b *Bank) Lamports(ctx context.Context, key solana.PublicKey) (uint64, error) {
	var acc types.SystemAccount
	err := b.tx.Get(ctx, lamportsKey(key), &acc)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

func (b *Bank) setLamports(ctx context.Context, key solana.PublicKey, amount uint64) error {
	return b.tx.Put(ctx, lamportsKey(key), &types.SystemAccount{Lamports: amount})
}

// Deposit credits lamports out of thin air. Used to fund wallets.
func (b *Bank) Deposit(ctx context.Context, key solana.PublicKey, amount uint64) error {
	bal, err := b.Lamports(ctx, key)
	if err != nil {
		return err
	}
	if bal+amount < bal {
		return types.ErrMathOverflow
	}
	return b.setLamports(ctx, key, bal+amount)
}

func (b *Bank) TransferLamports(ctx context.Context, from, to solana.PublicKey, amount uint64, signer authority.Signer) error {
	if !signer.PublicKey().Equals(from) {
		return fmt.Errorf("%w: %s", ErrMissingSignature, from)
	}
	if amount == 0 || from.Equals(to) {
		return nil
	}

	src, err := b.Lamports(ctx, from)
	if err != nil {
		return err
	}
	if src < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, src, amount)
	}
	dst, err := b.Lamports(ctx, to)
	if err != nil {
		return err
	}
	if dst+amount < dst {
		return types.ErrMathOverflow
	}

	if err := b.setLamports(ctx, from, src-amount); err != nil {
		return err
	}
	return b.setLamports(ctx, to, dst+amount)
}
