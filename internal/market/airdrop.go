// internal/market/airdrop.go
package market

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/airdrop"
	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/forward"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// InitAirdropRequest opens a merkle airdrop of Mint funded by Admin.
type InitAirdropRequest struct {
	Admin     solana.PublicKey
	Mint      solana.PublicKey
	Root      airdrop.Hash
	Expiry    int64 // unix seconds, 0 for none
	BitmapLen uint32
	Funding   uint64 // moved from Admin into the airdrop vault
}

func (e *Engine) InitAirdrop(ctx context.Context, req InitAirdropRequest) (solana.PublicKey, error) {
	addr, bump, err := types.FindAirdropAddress(e.programID, req.Admin, req.Mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("init_airdrop: %w", err)
	}
	err = e.run(ctx, "init_airdrop", addr, func(ctx context.Context, o *op) error {
		if req.BitmapLen == 0 {
			return fmt.Errorf("%w: empty claim bitmap", types.ErrInvalidAmount)
		}
		if err := requireAbsent(ctx, o.tx, addr, "airdrop"); err != nil {
			return err
		}
		if req.Funding > 0 {
			if err := e.checkpointMint(ctx, o, req.Mint, req.Admin, addr); err != nil {
				return err
			}
			if err := o.bank.TransferTokens(ctx, req.Mint, req.Admin, addr, req.Funding, authority.Wallet(req.Admin)); err != nil {
				return fmt.Errorf("failed to fund airdrop: %w", err)
			}
		}
		return o.tx.Put(ctx, addr, &types.AirdropState{
			Admin:         req.Admin,
			Mint:          req.Mint,
			Bump:          bump,
			Root:          req.Root,
			Expiry:        req.Expiry,
			ClaimedBitmap: make([]byte, req.BitmapLen),
		})
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

func (e *Engine) loadAirdrop(ctx context.Context, o *op, addr solana.PublicKey) (*types.AirdropState, *authority.Delegated, error) {
	var s types.AirdropState
	if err := o.tx.Get(ctx, addr, &s); err != nil {
		return nil, nil, fmt.Errorf("failed to load airdrop: %w", err)
	}
	signer, err := authority.NewDelegated(e.programID, addr, types.AirdropSeeds(s.Admin, s.Mint), s.Bump)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", types.ErrInvalidMarketPda, err)
	}
	return &s, signer, nil
}

// ClaimAirdropRequest claims allocation Index of Amount for Claimant.
type ClaimAirdropRequest struct {
	Airdrop  solana.PublicKey
	Claimant solana.PublicKey
	Index    uint64
	Amount   uint64
	Proof    []airdrop.Hash
}

func (e *Engine) ClaimAirdrop(ctx context.Context, req ClaimAirdropRequest) error {
	return e.run(ctx, "claim_airdrop", req.Airdrop, func(ctx context.Context, o *op) error {
		s, signer, err := e.loadAirdrop(ctx, o, req.Airdrop)
		if err != nil {
			return err
		}
		if s.Expiry > 0 && o.now.Unix() > s.Expiry {
			return fmt.Errorf("%w: airdrop expired", types.ErrInvalidMarketState)
		}
		if !airdrop.VerifyProof(airdrop.Leaf(req.Claimant, req.Amount), req.Proof, s.Root, req.Index) {
			return fmt.Errorf("%w: invalid merkle proof", types.ErrInvalidMarketState)
		}
		if err := airdrop.MarkClaimed(s.ClaimedBitmap, req.Index); err != nil {
			return err
		}
		if err := e.checkpointMint(ctx, o, s.Mint, req.Airdrop, req.Claimant); err != nil {
			return err
		}
		if err := o.bank.TransferTokens(ctx, s.Mint, req.Airdrop, req.Claimant, req.Amount, signer); err != nil {
			return fmt.Errorf("failed to pay airdrop: %w", err)
		}
		if err := o.tx.Put(ctx, req.Airdrop, s); err != nil {
			return err
		}

		o.emit(&events.AirdropClaimedEvent{
			BaseEvent: events.NewBase(events.AirdropClaimed, o.now),
			Airdrop:   req.Airdrop,
			Claimant:  req.Claimant,
			Index:     req.Index,
			Amount:    req.Amount,
		})
		return nil
	})
}

// ProcessExpiryRequest winds down an expired airdrop. Swap, when set, is
// validated against Config's allow-list and runs signed by the airdrop.
type ProcessExpiryRequest struct {
	Airdrop        solana.PublicKey
	Caller         solana.PublicKey
	TotalUnclaimed uint64
	Config         solana.PublicKey
	Swap           *forward.Call
}

// ExpiryResult reports how unclaimed tokens were disposed of.
type ExpiryResult struct {
	Burned    uint64
	Swapped   uint64
	Forwarded bool
}

// ProcessAirdropExpiry burns three quarters of the unclaimed tokens and
// forwards the optional swap for the rest.
func (e *Engine) ProcessAirdropExpiry(ctx context.Context, req ProcessExpiryRequest) (ExpiryResult, error) {
	var res ExpiryResult
	err := e.run(ctx, "process_airdrop_expiry", req.Airdrop, func(ctx context.Context, o *op) error {
		s, signer, err := e.loadAirdrop(ctx, o, req.Airdrop)
		if err != nil {
			return err
		}
		if !s.Admin.Equals(req.Caller) {
			return fmt.Errorf("%w: %s is not the airdrop admin", types.ErrInvalidAuthority, req.Caller)
		}
		if s.Expiry <= 0 || o.now.Unix() <= s.Expiry {
			return fmt.Errorf("%w: airdrop has not expired", types.ErrInvalidMarketState)
		}

		vault, err := o.bank.TokenBalance(ctx, req.Airdrop, s.Mint)
		if err != nil {
			return err
		}
		if req.TotalUnclaimed > vault {
			return fmt.Errorf("%w: %d unclaimed exceeds vault balance %d", types.ErrInvalidAmount, req.TotalUnclaimed, vault)
		}

		if res.Burned, res.Swapped, err = airdrop.SplitExpired(req.TotalUnclaimed); err != nil {
			return err
		}
		if res.Burned > 0 {
			if err := e.checkpointMint(ctx, o, s.Mint, req.Airdrop); err != nil {
				return err
			}
			if err := o.bank.Burn(ctx, s.Mint, req.Airdrop, res.Burned, signer); err != nil {
				return fmt.Errorf("failed to burn unclaimed tokens: %w", err)
			}
		}

		if !req.Swap.Empty() {
			cfg, err := loadConfig(ctx, o.tx, req.Config)
			if err != nil {
				return err
			}
			if err := e.forwarder.Forward(ctx, o.bank, cfg, req.Swap, signer); err != nil {
				return err
			}
			res.Forwarded = true
		}

		o.emit(&events.AirdropExpiredEvent{
			BaseEvent: events.NewBase(events.AirdropExpired, o.now),
			Airdrop:   req.Airdrop,
			Burned:    res.Burned,
			Swapped:   res.Swapped,
			Forwarded: res.Forwarded,
		})
		e.logger.Info("Airdrop expiry processed",
			zap.String("airdrop", req.Airdrop.String()),
			zap.Uint64("burned", res.Burned),
			zap.Uint64("swapped", res.Swapped),
			zap.Bool("forwarded", res.Forwarded))
		return nil
	})
	if err != nil {
		return ExpiryResult{}, err
	}
	return res, nil
}
