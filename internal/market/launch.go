// internal/market/launch.go
package market

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/host"
	"github.com/rovshanmuradov/tokenmill/internal/market/reflection"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// LaunchRequest creates a market for a new base mint.
type LaunchRequest struct {
	Config          solana.PublicKey
	Creator         solana.PublicKey
	BaseMint        solana.PublicKey
	Decimals        uint8
	BasePrice       uint64
	Width           uint64
	CreatorFeeShare uint16
}

// LaunchMarket creates the market, its reflection and buyback records, and
// the base mint with the market as mint and freeze authority.
func (e *Engine) LaunchMarket(ctx context.Context, req LaunchRequest) (solana.PublicKey, error) {
	address, bump, err := types.FindMarketAddress(e.programID, req.BaseMint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("launch_market: %w", err)
	}

	err = e.run(ctx, "launch_market", address, func(ctx context.Context, o *op) error {
		if req.BasePrice == 0 && req.Width == 0 {
			return fmt.Errorf("%w: curve has neither base price nor slope", types.ErrInvalidPrice)
		}
		if err := validShare("creator", req.CreatorFeeShare); err != nil {
			return err
		}
		if _, err := loadConfig(ctx, o.tx, req.Config); err != nil {
			return err
		}
		if err := requireAbsent(ctx, o.tx, address, "market"); err != nil {
			return err
		}

		refAddr, refBump, err := types.FindReflectionAddress(e.programID, address)
		if err != nil {
			return err
		}
		buyAddr, buyBump, err := types.FindBuybackAddress(e.programID, address)
		if err != nil {
			return err
		}

		m := &types.Market{
			Config:    req.Config,
			Creator:   req.Creator,
			BaseMint:  req.BaseMint,
			Bump:      bump,
			BasePrice: req.BasePrice,
			Width:     req.Width,
			Fees:      types.Fees{CreatorFeeShare: req.CreatorFeeShare},
		}
		if err := o.tx.Put(ctx, address, m); err != nil {
			return err
		}
		if err := o.tx.Put(ctx, refAddr, reflection.NewState(address, refBump, e.scale)); err != nil {
			return err
		}
		if err := o.tx.Put(ctx, buyAddr, &types.BuybackState{Market: address, Bump: buyBump}); err != nil {
			return err
		}
		if err := o.bank.CreateMint(ctx, req.BaseMint, req.Decimals, address); err != nil {
			return fmt.Errorf("failed to create base mint: %w", err)
		}

		e.logger.Info("Market launched",
			zap.String("market", address.String()),
			zap.String("mint", req.BaseMint.String()),
			zap.String("creator", req.Creator.String()),
			zap.Uint64("base_price", req.BasePrice),
			zap.Uint64("width", req.Width))
		return nil
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return address, nil
}

// RevokeAuthorities drops the market's mint and freeze authority over the
// base mint. Only the market creator or the config authority may do this.
// Purchases fail afterwards because nothing can mint.
func (e *Engine) RevokeAuthorities(ctx context.Context, market, caller solana.PublicKey) error {
	return e.run(ctx, "revoke_authorities", market, func(ctx context.Context, o *op) error {
		acc, err := e.loadMarket(ctx, o.tx, market)
		if err != nil {
			return err
		}
		m := acc.market
		if !caller.Equals(m.Creator) && !caller.Equals(acc.config.Authority) {
			return fmt.Errorf("%w: %s may not revoke authorities", types.ErrInvalidAuthority, caller)
		}
		if m.MintRevoked && m.FreezeRevoked {
			return fmt.Errorf("%w: authorities already revoked", types.ErrInvalidMarketState)
		}

		if !m.MintRevoked {
			if err := o.bank.RevokeAuthority(ctx, m.BaseMint, host.MintTokens, acc.signer); err != nil {
				return fmt.Errorf("failed to revoke mint authority: %w", err)
			}
			m.MintRevoked = true
		}
		if !m.FreezeRevoked {
			if err := o.bank.RevokeAuthority(ctx, m.BaseMint, host.FreezeAccount, acc.signer); err != nil {
				return fmt.Errorf("failed to revoke freeze authority: %w", err)
			}
			m.FreezeRevoked = true
		}
		if err := acc.saveMarket(ctx, o.tx); err != nil {
			return err
		}

		o.emit(&events.AuthorityRevokedEvent{
			BaseEvent: events.NewBase(events.AuthorityRevoked, o.now),
			Market:    market,
			RevokedBy: caller,
		})
		return nil
	})
}
