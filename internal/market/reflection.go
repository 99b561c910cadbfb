// internal/market/reflection.go
package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/forward"
	"github.com/rovshanmuradov/tokenmill/internal/market/buyback"
	"github.com/rovshanmuradov/tokenmill/internal/market/reflection"
	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// BuybackRequest spends Lamports from Payer on the market's own token.
// With Swap set the spend goes to an external venue; otherwise it is
// converted at the curve's base price and credited to holders.
type BuybackRequest struct {
	Market   solana.PublicKey
	Payer    solana.PublicKey
	Lamports uint64
	Swap     *forward.Call
}

func (e *Engine) Buyback(ctx context.Context, req BuybackRequest) (buyback.Result, error) {
	var res buyback.Result
	err := e.run(ctx, "buyback", req.Market, func(ctx context.Context, o *op) error {
		acc, err := e.loadMarket(ctx, o.tx, req.Market)
		if err != nil {
			return err
		}
		if acc.market.IsMigrated {
			return types.ErrMarketMigrated
		}
		if req.Lamports == 0 {
			return types.ErrInvalidAmount
		}

		if err := e.collectPayment(ctx, o, req.Payer, req.Market, req.Lamports); err != nil {
			return err
		}

		res, err = e.tracker.Execute(ctx, o.bank, buyback.Request{
			Market:     acc.market,
			State:      acc.buyback,
			Reflection: acc.reflection,
			Config:     acc.config,
			Signer:     acc.signer,
			Lamports:   req.Lamports,
			Swap:       req.Swap,
			Now:        o.now,
		})
		if err != nil {
			return err
		}
		if err := acc.saveBuyback(ctx, o.tx); err != nil {
			return err
		}
		if !res.Delegated {
			if err := acc.saveReflection(ctx, o.tx); err != nil {
				return err
			}
			if err := acc.saveMarket(ctx, o.tx); err != nil {
				return err
			}
			supply := acc.market.TotalSupply
			o.onCommit(func() { e.metrics.SetSupply(req.Market.String(), supply) })
			o.emit(&events.ReflectionSettledEvent{
				BaseEvent:   events.NewBase(events.ReflectionSettled, o.now),
				Market:      req.Market,
				AddedTokens: res.TokensBought,
				PerShare:    acc.reflection.PerShare.String(),
			})
		}

		o.emit(&events.BuybackEvent{
			BaseEvent:     events.NewBase(events.BuybackExecuted, o.now),
			Market:        req.Market,
			LamportsSpent: res.LamportsSpent,
			TokensBought:  res.TokensBought,
		})
		total := acc.buyback.TotalBuybackLamports
		o.onCommit(func() { e.metrics.SetBuybackTotal(req.Market.String(), total) })
		return nil
	})
	if err != nil {
		return buyback.Result{}, err
	}
	return res, nil
}

// SettleReflection credits tokens already held by the market to its
// reflection pool. Only the config authority may settle; the amount is
// taken as given.
func (e *Engine) SettleReflection(ctx context.Context, market, caller solana.PublicKey, added uint64) error {
	return e.run(ctx, "settle_reflection", market, func(ctx context.Context, o *op) error {
		acc, err := e.loadMarket(ctx, o.tx, market)
		if err != nil {
			return err
		}
		if err := requireAuthority(acc.config, caller); err != nil {
			return err
		}
		if err := reflection.Credit(acc.reflection, acc.market.TotalSupply, added, o.now); err != nil {
			return err
		}
		if err := acc.saveReflection(ctx, o.tx); err != nil {
			return err
		}

		o.emit(&events.ReflectionSettledEvent{
			BaseEvent:   events.NewBase(events.ReflectionSettled, o.now),
			Market:      market,
			AddedTokens: added,
			PerShare:    acc.reflection.PerShare.String(),
		})
		e.logger.Info("Reflection settled",
			zap.String("market", market.String()),
			zap.Uint64("added_tokens", added),
			zap.String("per_share", acc.reflection.PerShare.String()))
		return nil
	})
}

// ClaimReflection pays holder what the index owes them. A holder without a
// ledger starts at the current per_share and is owed nothing yet.
func (e *Engine) ClaimReflection(ctx context.Context, market, holder solana.PublicKey) (uint64, error) {
	var owed uint64
	err := e.run(ctx, "claim_reflection", market, func(ctx context.Context, o *op) error {
		acc, err := e.loadMarket(ctx, o.tx, market)
		if err != nil {
			return err
		}
		if holder.Equals(acc.signer.PublicKey()) {
			return fmt.Errorf("%w: the market's own holding does not earn reflection", types.ErrUnauthorizedMarket)
		}

		ledgerAddr, ledger, err := e.loadLedger(ctx, o, acc, holder)
		if err != nil {
			return err
		}
		excluded, err := e.isExcluded(ctx, o.tx, acc.config, holder)
		if err != nil {
			return err
		}
		balance, err := o.bank.TokenBalance(ctx, holder, acc.market.BaseMint)
		if err != nil {
			return err
		}

		claim := reflection.Claim{
			State:    acc.reflection,
			Ledger:   ledger,
			Excluded: excluded,
			Balance:  balance,
			Mint:     acc.market.BaseMint,
			Holder:   holder,
			Signer:   acc.signer,
		}
		if owed, err = claim.Pay(ctx, o.bank); err != nil {
			return err
		}
		if err := o.tx.Put(ctx, ledgerAddr, ledger); err != nil {
			return err
		}

		if owed > 0 {
			o.emit(&events.ReflectionClaimedEvent{
				BaseEvent: events.NewBase(events.ReflectionClaimed, o.now),
				Market:    market,
				Holder:    holder,
				Amount:    owed,
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return owed, nil
}

// loadLedger returns holder's ledger, or a fresh one at the current
// per_share when the holder has none.
func (e *Engine) loadLedger(ctx context.Context, o *op, acc *marketAccounts, holder solana.PublicKey) (solana.PublicKey, *types.ReflectionLedger, error) {
	addr, bump, err := types.FindLedgerAddress(e.programID, acc.address, holder)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	var ledger types.ReflectionLedger
	err = o.tx.Get(ctx, addr, &ledger)
	if errors.Is(err, storage.ErrNotFound) {
		return addr, reflection.NewLedger(acc.reflection, acc.address, holder, bump), nil
	}
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if !ledger.Owner.Equals(holder) || !ledger.Market.Equals(acc.address) {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: ledger owner mismatch", types.ErrInvalidAuthority)
	}
	return addr, &ledger, nil
}

// checkpoint settles what each holder's current balance has earned into its
// ledger. Operations call it before they change a holder's base balance, so
// the new tokens only earn from later settlements.
func (e *Engine) checkpoint(ctx context.Context, o *op, acc *marketAccounts, holders ...solana.PublicKey) error {
	for _, holder := range holders {
		if holder.Equals(acc.signer.PublicKey()) {
			continue
		}
		addr, ledger, err := e.loadLedger(ctx, o, acc, holder)
		if err != nil {
			return err
		}
		balance, err := o.bank.TokenBalance(ctx, holder, acc.market.BaseMint)
		if err != nil {
			return err
		}
		if err := reflection.Checkpoint(acc.reflection, ledger, balance); err != nil {
			return err
		}
		if err := o.tx.Put(ctx, addr, ledger); err != nil {
			return err
		}
	}
	return nil
}

// checkpointMint is checkpoint for a mint that may have no market.
func (e *Engine) checkpointMint(ctx context.Context, o *op, mint solana.PublicKey, holders ...solana.PublicKey) error {
	addr, _, err := types.FindMarketAddress(e.programID, mint)
	if err != nil {
		return err
	}
	acc, err := e.loadMarket(ctx, o.tx, addr)
	if errors.Is(err, types.ErrInvalidMarketPda) {
		return nil
	}
	if err != nil {
		return err
	}
	return e.checkpoint(ctx, o, acc, holders...)
}
