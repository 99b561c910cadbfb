// internal/market/query.go
package market

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/market/migration"
	"github.com/rovshanmuradov/tokenmill/internal/market/pricing"
	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// Snapshot is a consistent read of a market and its balances.
type Snapshot struct {
	Address    solana.PublicKey
	Market     types.Market
	Reflection types.ReflectionState
	Buyback    types.BuybackState
	State      migration.State
	SpotPrice  uint64
	Treasury   uint64 // market lamports
	Vault      uint64 // base tokens held by the market
}

func (e *Engine) Snapshot(ctx context.Context, market solana.PublicKey) (Snapshot, error) {
	var snap Snapshot
	err := e.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		acc, err := e.loadMarket(ctx, tx, market)
		if err != nil {
			return err
		}
		b := e.runtime.Bind(tx)

		snap = Snapshot{
			Address:    market,
			Market:     *acc.market,
			Reflection: *acc.reflection,
			Buyback:    *acc.buyback,
			State:      migration.StateOf(acc.market),
		}
		if snap.SpotPrice, err = pricing.FromMarket(acc.market).SpotPrice(acc.market.TotalSupply); err != nil {
			return err
		}
		if snap.Treasury, err = b.Lamports(ctx, market); err != nil {
			return err
		}
		snap.Vault, err = b.TokenBalance(ctx, market, acc.market.BaseMint)
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// Balances returns owner's lamports and, when mint is set, its token balance.
func (e *Engine) Balances(ctx context.Context, owner, mint solana.PublicKey) (lamports, tokens uint64, err error) {
	err = e.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		b := e.runtime.Bind(tx)
		if lamports, err = b.Lamports(ctx, owner); err != nil {
			return err
		}
		if mint.IsZero() {
			return nil
		}
		tokens, err = b.TokenBalance(ctx, owner, mint)
		return err
	})
	return lamports, tokens, err
}

// Fund credits lamports to wallet. Simulation and tests use it to seed
// balances.
func (e *Engine) Fund(ctx context.Context, wallet solana.PublicKey, lamports uint64) error {
	return e.run(ctx, "fund", wallet, func(ctx context.Context, o *op) error {
		return o.bank.Deposit(ctx, wallet, lamports)
	})
}

// ReferralAccount reads the referral account at address.
func (e *Engine) ReferralAccount(ctx context.Context, address solana.PublicKey) (types.ReferralAccount, error) {
	var acct types.ReferralAccount
	err := e.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Get(ctx, address, &acct)
	})
	return acct, err
}
