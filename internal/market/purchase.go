// internal/market/purchase.go
package market

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/checked"
	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/market/fees"
	"github.com/rovshanmuradov/tokenmill/internal/market/pricing"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// PurchaseRequest buys base tokens from a market's curve. Amount is quote
// lamports for ExactInput and base units for ExactOutput.
type PurchaseRequest struct {
	Market solana.PublicKey
	Buyer  solana.PublicKey
	Mode   pricing.SwapMode
	Amount uint64
	// Optional referral credit target, preferred for the referral fee.
	ReferralAccount solana.PublicKey
	// Optional referrer wallet, paid directly when the referral account
	// is absent or cannot be credited.
	Referrer solana.PublicKey
}

// PurchaseResult is the settled purchase.
type PurchaseResult struct {
	BaseAmount  uint64
	QuoteAmount uint64
	Fees        fees.Breakdown
	DiscountBP  uint16
	// Route that received the referral fee, empty when it was zero.
	ReferralRoute string
}

// Purchase prices the order, takes payment into the market treasury, pays
// the protocol and referral fees, accrues the creator fee and mints the
// tokens to the buyer. The buyer's reflection ledger is checkpointed first.
func (e *Engine) Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	var res PurchaseResult
	err := e.run(ctx, "purchase", req.Market, func(ctx context.Context, o *op) error {
		acc, err := e.loadMarket(ctx, o.tx, req.Market)
		if err != nil {
			return err
		}
		m := acc.market
		if m.IsMigrated {
			return types.ErrMarketMigrated
		}

		quote, err := pricing.FromMarket(m).Price(m.TotalSupply, req.Amount, req.Mode)
		if err != nil {
			return err
		}
		res.BaseAmount, res.QuoteAmount = quote.BaseAmount, quote.QuoteAmount

		// the referral target must be checked before any money moves
		var referral *referralTarget
		if !req.ReferralAccount.IsZero() {
			if referral, err = e.loadReferralTarget(ctx, o, req.ReferralAccount, m.Config); err != nil {
				return err
			}
		}

		balance, err := o.bank.Lamports(ctx, req.Buyer)
		if err != nil {
			return err
		}
		res.DiscountBP = fees.DiscountBP(balance)

		if err := e.collectPayment(ctx, o, req.Buyer, req.Market, quote.QuoteAmount); err != nil {
			return err
		}
		o.emit(&events.PaymentEvent{
			BaseEvent:   events.NewBase(events.PaymentReceived, o.now),
			User:        req.Buyer,
			Market:      req.Market,
			QuoteAmount: quote.QuoteAmount,
			BaseAmount:  quote.BaseAmount,
		})

		res.Fees, err = fees.Compute(quote.QuoteAmount, fees.Shares{
			ProtocolBP: acc.config.DefaultProtocolFeeShare,
			ReferralBP: acc.config.ReferralFeeShare,
			CreatorBP:  m.Fees.CreatorFeeShare,
			DiscountBP: res.DiscountBP,
		})
		if err != nil {
			return err
		}

		// creator fees stay in the treasury until migration
		var c checked.Calc
		pending := c.U64(c.Add(checked.From64(m.Fees.PendingCreatorFees), checked.From64(res.Fees.Creator)))
		supply := c.U64(c.Add(checked.From64(m.TotalSupply), checked.From64(quote.BaseAmount)))
		if err := c.Err(); err != nil {
			return err
		}
		m.Fees.PendingCreatorFees = pending

		if err := o.bank.TransferLamports(ctx, req.Market, acc.config.ProtocolFeeRecipient, res.Fees.ProtocolNet, acc.signer); err != nil {
			return fmt.Errorf("failed to pay protocol fee: %w", err)
		}

		routes := e.referralRoutes(o, acc, referral, req.Referrer)
		if res.ReferralRoute, err = e.distributor.PayReferral(ctx, res.Fees.Referral, routes...); err != nil {
			return err
		}

		if err := e.checkpoint(ctx, o, acc, req.Buyer); err != nil {
			return err
		}
		if err := o.bank.MintTo(ctx, m.BaseMint, req.Buyer, quote.BaseAmount, acc.signer); err != nil {
			return fmt.Errorf("failed to mint base tokens: %w", err)
		}
		m.TotalSupply = supply
		if err := acc.saveMarket(ctx, o.tx); err != nil {
			return err
		}

		o.emit(&events.SwapEvent{
			BaseEvent:    events.NewBase(events.SwapExecuted, o.now),
			User:         req.Buyer,
			Market:       req.Market,
			Direction:    events.DirectionBuy,
			BaseAmount:   quote.BaseAmount,
			QuoteAmount:  quote.QuoteAmount,
			CreatorFee:   res.Fees.Creator,
			ProtocolFee:  res.Fees.ProtocolNet,
			ReferralFee:  res.Fees.Referral,
			ReferralPaid: res.ReferralRoute,
		})

		breakdown := res.Fees
		o.onCommit(func() {
			e.metrics.AddFee("protocol", breakdown.ProtocolNet)
			e.metrics.AddFee("referral", breakdown.Referral)
			e.metrics.AddFee("creator", breakdown.Creator)
			e.metrics.AddFee("discount", breakdown.Discount)
			e.metrics.SetSupply(req.Market.String(), supply)
		})

		e.logger.Debug("Purchase settled",
			zap.String("market", req.Market.String()),
			zap.String("buyer", req.Buyer.String()),
			zap.Stringer("mode", req.Mode),
			zap.Uint64("base_amount", quote.BaseAmount),
			zap.Uint64("quote_amount", quote.QuoteAmount),
			zap.Uint16("discount_bp", res.DiscountBP),
			zap.String("referral_route", res.ReferralRoute))
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	return res, nil
}

// collectPayment moves quote lamports from buyer to the market and checks
// that the market balance grew by exactly that amount.
func (e *Engine) collectPayment(ctx context.Context, o *op, buyer, market solana.PublicKey, amount uint64) error {
	before, err := o.bank.Lamports(ctx, market)
	if err != nil {
		return err
	}
	if err := o.bank.TransferLamports(ctx, buyer, market, amount, authority.Wallet(buyer)); err != nil {
		return fmt.Errorf("failed to collect payment: %w", err)
	}
	after, err := o.bank.Lamports(ctx, market)
	if err != nil {
		return err
	}
	if after-before != amount || after < before {
		return fmt.Errorf("%w: market received %d, expected %d", types.ErrInvalidMarketState, after-before, amount)
	}
	return nil
}
