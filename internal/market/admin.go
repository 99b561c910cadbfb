// internal/market/admin.go
package market

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/checked"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// CreateConfigRequest creates a protocol config at Address.
type CreateConfigRequest struct {
	Address              solana.PublicKey
	Authority            solana.PublicKey
	ProtocolFeeRecipient solana.PublicKey
	ProtocolFeeShare     uint16
	ReferralFeeShare     uint16
	CpiWhitelist         []solana.PublicKey
	MaxForwardedAccounts uint8
}

func validShare(name string, bp uint16) error {
	if bp > checked.BPSDenominator {
		return fmt.Errorf("%w: %s share %d exceeds %d bp", types.ErrInvalidAmount, name, bp, checked.BPSDenominator)
	}
	return nil
}

func (e *Engine) CreateConfig(ctx context.Context, req CreateConfigRequest) error {
	return e.run(ctx, "create_config", req.Address, func(ctx context.Context, o *op) error {
		if req.Address.IsZero() || req.Authority.IsZero() || req.ProtocolFeeRecipient.IsZero() {
			return fmt.Errorf("%w: config, authority and recipient are required", types.ErrInvalidConfig)
		}
		if err := validShare("protocol", req.ProtocolFeeShare); err != nil {
			return err
		}
		if err := validShare("referral", req.ReferralFeeShare); err != nil {
			return err
		}
		if err := requireAbsent(ctx, o.tx, req.Address, "config"); err != nil {
			return err
		}

		cfg := &types.ProtocolConfig{
			Authority:               req.Authority,
			ProtocolFeeRecipient:    req.ProtocolFeeRecipient,
			DefaultProtocolFeeShare: req.ProtocolFeeShare,
			ReferralFeeShare:        req.ReferralFeeShare,
			CpiWhitelist:            append([]solana.PublicKey(nil), req.CpiWhitelist...),
			MaxForwardedAccounts:    req.MaxForwardedAccounts,
		}
		if err := o.tx.Put(ctx, req.Address, cfg); err != nil {
			return err
		}

		e.logger.Info("Config created",
			zap.String("config", req.Address.String()),
			zap.String("authority", req.Authority.String()),
			zap.Uint16("protocol_bp", req.ProtocolFeeShare),
			zap.Uint16("referral_bp", req.ReferralFeeShare))
		return nil
	})
}

// updateConfig loads the config at address, checks caller is its authority
// and stores whatever fn changed.
func (e *Engine) updateConfig(ctx context.Context, name string, address, caller solana.PublicKey, fn func(cfg *types.ProtocolConfig) error) error {
	return e.run(ctx, name, address, func(ctx context.Context, o *op) error {
		cfg, err := loadConfig(ctx, o.tx, address)
		if err != nil {
			return err
		}
		if err := requireAuthority(cfg, caller); err != nil {
			return err
		}
		if err := fn(cfg); err != nil {
			return err
		}
		return o.tx.Put(ctx, address, cfg)
	})
}

// UpdateCpiWhitelist replaces the allow-list and the forwarded account cap.
func (e *Engine) UpdateCpiWhitelist(ctx context.Context, config, caller solana.PublicKey, programs []solana.PublicKey, maxAccounts uint8) error {
	return e.updateConfig(ctx, "update_cpi_whitelist", config, caller, func(cfg *types.ProtocolConfig) error {
		cfg.CpiWhitelist = append([]solana.PublicKey(nil), programs...)
		cfg.MaxForwardedAccounts = maxAccounts
		return nil
	})
}

func (e *Engine) UpdateFeeShares(ctx context.Context, config, caller solana.PublicKey, protocolBP, referralBP uint16) error {
	return e.updateConfig(ctx, "update_fee_shares", config, caller, func(cfg *types.ProtocolConfig) error {
		if err := validShare("protocol", protocolBP); err != nil {
			return err
		}
		if err := validShare("referral", referralBP); err != nil {
			return err
		}
		cfg.DefaultProtocolFeeShare = protocolBP
		cfg.ReferralFeeShare = referralBP
		return nil
	})
}

// TransferConfigOwnership nominates a new authority. It takes effect once
// the nominee accepts.
func (e *Engine) TransferConfigOwnership(ctx context.Context, config, caller, newAuthority solana.PublicKey) error {
	return e.updateConfig(ctx, "transfer_config_ownership", config, caller, func(cfg *types.ProtocolConfig) error {
		if newAuthority.IsZero() {
			return fmt.Errorf("%w: empty authority", types.ErrInvalidAuthority)
		}
		cfg.PendingAuthority = newAuthority
		return nil
	})
}

func (e *Engine) AcceptConfigOwnership(ctx context.Context, config, caller solana.PublicKey) error {
	return e.run(ctx, "accept_config_ownership", config, func(ctx context.Context, o *op) error {
		cfg, err := loadConfig(ctx, o.tx, config)
		if err != nil {
			return err
		}
		if cfg.PendingAuthority.IsZero() || !cfg.PendingAuthority.Equals(caller) {
			return fmt.Errorf("%w: %s is not the pending authority", types.ErrInvalidAuthority, caller)
		}
		cfg.Authority = caller
		cfg.PendingAuthority = solana.PublicKey{}
		return o.tx.Put(ctx, config, cfg)
	})
}

// InitExclusion creates admin's exclusion list.
func (e *Engine) InitExclusion(ctx context.Context, admin solana.PublicKey) (solana.PublicKey, error) {
	addr, bump, err := types.FindExclusionAddress(e.programID, admin)
	if err != nil {
		return solana.PublicKey{}, err
	}
	err = e.run(ctx, "init_exclusion", addr, func(ctx context.Context, o *op) error {
		if err := requireAbsent(ctx, o.tx, addr, "exclusion list"); err != nil {
			return err
		}
		return o.tx.Put(ctx, addr, &types.ExclusionList{Admin: admin, Bump: bump})
	})
	return addr, err
}

// UpdateExclusion adds or removes holder. Adding a present key or removing
// an absent one is a no-op.
func (e *Engine) UpdateExclusion(ctx context.Context, admin solana.PublicKey, add bool, holder solana.PublicKey) error {
	addr, _, err := types.FindExclusionAddress(e.programID, admin)
	if err != nil {
		return err
	}
	return e.run(ctx, "update_exclusion", addr, func(ctx context.Context, o *op) error {
		var list types.ExclusionList
		if err := o.tx.Get(ctx, addr, &list); err != nil {
			return fmt.Errorf("failed to load exclusion list: %w", err)
		}
		if !list.Admin.Equals(admin) {
			return fmt.Errorf("%w: exclusion list admin", types.ErrInvalidAuthority)
		}

		if add {
			if list.Contains(holder) {
				return nil
			}
			if len(list.Excluded) >= types.MaxExcluded {
				return fmt.Errorf("%w: exclusion list is full", types.ErrInvalidMarketState)
			}
			list.Excluded = append(list.Excluded, holder)
		} else {
			kept := list.Excluded[:0]
			for _, k := range list.Excluded {
				if !k.Equals(holder) {
					kept = append(kept, k)
				}
			}
			list.Excluded = kept
		}
		return o.tx.Put(ctx, addr, &list)
	})
}
