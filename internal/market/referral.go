// internal/market/referral.go
package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/checked"
	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/market/fees"
	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// referralTarget is a verified referral account.
type referralTarget struct {
	address solana.PublicKey
	account *types.ReferralAccount
}

// loadReferralTarget loads the referral account at address and checks it is
// the canonical account for its config and owner.
func (e *Engine) loadReferralTarget(ctx context.Context, o *op, address, config solana.PublicKey) (*referralTarget, error) {
	var acct types.ReferralAccount
	if err := o.tx.Get(ctx, address, &acct); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, types.ErrAccountDiscriminator) {
			return nil, fmt.Errorf("%w: no referral account at %s", types.ErrInvalidReferralPda, address)
		}
		return nil, err
	}
	if err := types.VerifyAddress(e.programID, address, types.ReferralSeeds(acct.Config, acct.Owner), acct.Bump); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidReferralPda, err)
	}
	if !config.IsZero() && !acct.Config.Equals(config) {
		return nil, fmt.Errorf("%w: referral account belongs to config %s", types.ErrInvalidReferralPda, acct.Config)
	}
	return &referralTarget{address: address, account: &acct}, nil
}

// referralAccountRoute credits a referral account: the lamports move into
// it and its pending balance grows by the same amount.
type referralAccountRoute struct {
	o      *op
	from   solana.PublicKey
	signer authority.Signer
	target *referralTarget
}

func (r referralAccountRoute) Name() string { return "referral_account" }

func (r referralAccountRoute) Pay(ctx context.Context, amount uint64) error {
	var c checked.Calc
	pending := c.U64(c.Add(checked.From64(r.target.account.PendingLamports), checked.From64(amount)))
	if err := c.Err(); err != nil {
		return err
	}
	if err := r.o.bank.TransferLamports(ctx, r.from, r.target.address, amount, r.signer); err != nil {
		return err
	}
	r.target.account.PendingLamports = pending
	return r.o.tx.Put(ctx, r.target.address, r.target.account)
}

// referralRoutes builds the fee chain: referral account, then referrer
// wallet, then the protocol recipient.
func (e *Engine) referralRoutes(o *op, acc *marketAccounts, target *referralTarget, referrer solana.PublicKey) []fees.Route {
	var routes []fees.Route
	if target != nil {
		routes = append(routes, referralAccountRoute{o: o, from: acc.address, signer: acc.signer, target: target})
		if referrer.IsZero() {
			referrer = target.account.Referrer
		}
	}
	if !referrer.IsZero() {
		routes = append(routes, fees.WalletRoute{
			Label:  "referrer",
			Sender: o.bank,
			From:   acc.address,
			To:     referrer,
			Signer: acc.signer,
		})
	}
	return append(routes, fees.WalletRoute{
		Label:  "protocol",
		Sender: o.bank,
		From:   acc.address,
		To:     acc.config.ProtocolFeeRecipient,
		Signer: acc.signer,
	})
}

// CreateReferralAccount opens owner's referral account under config,
// crediting referrer on claims.
func (e *Engine) CreateReferralAccount(ctx context.Context, config, owner, referrer solana.PublicKey) (solana.PublicKey, error) {
	addr, bump, err := types.FindReferralAddress(e.programID, config, owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("create_referral_account: %w", err)
	}
	err = e.run(ctx, "create_referral_account", addr, func(ctx context.Context, o *op) error {
		if referrer.IsZero() {
			return fmt.Errorf("%w: empty referrer", types.ErrInvalidAuthority)
		}
		if _, err := loadConfig(ctx, o.tx, config); err != nil {
			return err
		}
		if err := requireAbsent(ctx, o.tx, addr, "referral account"); err != nil {
			return err
		}
		return o.tx.Put(ctx, addr, &types.ReferralAccount{
			Bump:     bump,
			Config:   config,
			Referrer: referrer,
			Owner:    owner,
		})
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

// ClaimReferralFees pays the accrued lamports of the referral account at
// address to its referrer, who must be the caller.
func (e *Engine) ClaimReferralFees(ctx context.Context, address, caller solana.PublicKey) (uint64, error) {
	var paid uint64
	err := e.run(ctx, "claim_referral_fees", address, func(ctx context.Context, o *op) error {
		target, err := e.loadReferralTarget(ctx, o, address, solana.PublicKey{})
		if err != nil {
			return err
		}
		acct := target.account
		if !acct.Referrer.Equals(caller) {
			return fmt.Errorf("%w: %s is not the referrer", types.ErrInvalidAuthority, caller)
		}

		signer, err := authority.NewDelegated(e.programID, address, types.ReferralSeeds(acct.Config, acct.Owner), acct.Bump)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidReferralPda, err)
		}
		paid = acct.PendingLamports
		if paid > 0 {
			if err := o.bank.TransferLamports(ctx, address, acct.Referrer, paid, signer); err != nil {
				return fmt.Errorf("failed to pay referral fees: %w", err)
			}
			acct.PendingLamports = 0
			if err := o.tx.Put(ctx, address, acct); err != nil {
				return err
			}
		}

		o.emit(&events.ReferralClaimEvent{
			BaseEvent:       events.NewBase(events.ReferralFeesClaimed, o.now),
			Referrer:        acct.Referrer,
			QuoteMint:       solana.SolMint,
			FeesDistributed: paid,
		})
		e.logger.Info("Referral fees claimed",
			zap.String("referral_account", address.String()),
			zap.String("referrer", acct.Referrer.String()),
			zap.Uint64("lamports", paid))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return paid, nil
}
