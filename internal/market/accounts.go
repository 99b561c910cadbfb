// internal/market/accounts.go
package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// marketAccounts is a market with its derived records, loaded together.
type marketAccounts struct {
	address    solana.PublicKey
	market     *types.Market
	signer     *authority.Delegated
	config     *types.ProtocolConfig
	reflection *types.ReflectionState
	refAddr    solana.PublicKey
	buyback    *types.BuybackState
	buyAddr    solana.PublicKey
}

func (e *Engine) loadMarket(ctx context.Context, tx storage.Tx, address solana.PublicKey) (*marketAccounts, error) {
	var m types.Market
	if err := tx.Get(ctx, address, &m); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no market at %s", types.ErrInvalidMarketPda, address)
		}
		return nil, err
	}
	signer, err := authority.ForMarket(e.programID, address, &m)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(ctx, tx, m.Config)
	if err != nil {
		return nil, err
	}

	acc := &marketAccounts{address: address, market: &m, signer: signer, config: cfg}

	acc.refAddr, _, err = types.FindReflectionAddress(e.programID, address)
	if err != nil {
		return nil, err
	}
	acc.reflection = &types.ReflectionState{}
	if err := tx.Get(ctx, acc.refAddr, acc.reflection); err != nil {
		return nil, fmt.Errorf("failed to load reflection state: %w", err)
	}

	acc.buyAddr, _, err = types.FindBuybackAddress(e.programID, address)
	if err != nil {
		return nil, err
	}
	acc.buyback = &types.BuybackState{}
	if err := tx.Get(ctx, acc.buyAddr, acc.buyback); err != nil {
		return nil, fmt.Errorf("failed to load buyback state: %w", err)
	}
	return acc, nil
}

func (a *marketAccounts) saveMarket(ctx context.Context, tx storage.Tx) error {
	return tx.Put(ctx, a.address, a.market)
}

func (a *marketAccounts) saveReflection(ctx context.Context, tx storage.Tx) error {
	return tx.Put(ctx, a.refAddr, a.reflection)
}

func (a *marketAccounts) saveBuyback(ctx context.Context, tx storage.Tx) error {
	return tx.Put(ctx, a.buyAddr, a.buyback)
}

func loadConfig(ctx context.Context, tx storage.Tx, address solana.PublicKey) (*types.ProtocolConfig, error) {
	var cfg types.ProtocolConfig
	if err := tx.Get(ctx, address, &cfg); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, types.ErrAccountDiscriminator) {
			return nil, fmt.Errorf("%w: no config at %s", types.ErrInvalidConfig, address)
		}
		return nil, err
	}
	return &cfg, nil
}

// requireAbsent fails when address already holds a record.
func requireAbsent(ctx context.Context, tx storage.Tx, address solana.PublicKey, what string) error {
	exists, err := tx.Exists(ctx, address)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s %s already exists", types.ErrInvalidMarketState, what, address)
	}
	return nil
}

func requireAuthority(cfg *types.ProtocolConfig, caller solana.PublicKey) error {
	if !cfg.Authority.Equals(caller) {
		return fmt.Errorf("%w: %s is not the config authority", types.ErrInvalidAuthority, caller)
	}
	return nil
}

// isExcluded consults the exclusion list kept by the config authority.
// A missing list excludes nobody.
func (e *Engine) isExcluded(ctx context.Context, tx storage.Tx, cfg *types.ProtocolConfig, holder solana.PublicKey) (bool, error) {
	addr, _, err := types.FindExclusionAddress(e.programID, cfg.Authority)
	if err != nil {
		return false, err
	}
	var list types.ExclusionList
	err = tx.Get(ctx, addr, &list)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return list.Contains(holder), nil
}
