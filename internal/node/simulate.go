// internal/node/simulate.go
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/tokenmill/internal/bank"
	"github.com/rovshanmuradov/tokenmill/internal/config"
	"github.com/rovshanmuradov/tokenmill/internal/forward"
	"github.com/rovshanmuradov/tokenmill/internal/market"
	"github.com/rovshanmuradov/tokenmill/internal/market/migration"
	"github.com/rovshanmuradov/tokenmill/internal/market/pricing"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// Scenario is a scripted market lifecycle: launch, concurrent purchases,
// a simulated and a delegated buyback, reflection claims and a forced
// migration.
type Scenario struct {
	Buyers          int
	Workers         int
	PurchaseQuote   uint64 // lamports per purchase, exact input
	BasePrice       uint64
	Width           uint64
	BuybackLamports uint64
}

func DefaultScenario() Scenario {
	return Scenario{
		Buyers:          8,
		Workers:         4,
		PurchaseQuote:   types.LamportsPerSOL / 10,
		BasePrice:       1_000,
		Width:           1,
		BuybackLamports: types.LamportsPerSOL / 20,
	}
}

// Report summarizes a finished scenario.
type Report struct {
	Config     solana.PublicKey
	Market     solana.PublicKey
	Mint       solana.PublicKey
	Purchases  []market.PurchaseResult
	Reflection uint64 // tokens claimed by buyers
	Migration  migration.Result
	Snapshot   market.Snapshot
	Duration   time.Duration
}

// Simulate runs sc against engine. Venue calls go to a recording program
// registered on rt and whitelisted in the created config.
func Simulate(ctx context.Context, engine *market.Engine, rt *bank.Runtime, proto config.ProtocolConfig, sc Scenario, logger *zap.Logger) (*Report, error) {
	start := time.Now()
	logger = logger.Named("simulate")
	newKey := func() solana.PublicKey { return solana.NewWallet().PublicKey() }

	venue := newKey()
	rt.Register(venue, &bank.Recorder{})

	rec := proto.ProtocolRecord(newKey(), newKey())
	report := &Report{Config: newKey(), Mint: newKey()}
	if err := engine.CreateConfig(ctx, market.CreateConfigRequest{
		Address:              report.Config,
		Authority:            rec.Authority,
		ProtocolFeeRecipient: rec.ProtocolFeeRecipient,
		ProtocolFeeShare:     rec.DefaultProtocolFeeShare,
		ReferralFeeShare:     rec.ReferralFeeShare,
		CpiWhitelist:         append(rec.CpiWhitelist, venue),
		MaxForwardedAccounts: rec.MaxForwardedAccounts,
	}); err != nil {
		return nil, err
	}

	var err error
	report.Market, err = engine.LaunchMarket(ctx, market.LaunchRequest{
		Config:          report.Config,
		Creator:         newKey(),
		BaseMint:        report.Mint,
		Decimals:        6,
		BasePrice:       sc.BasePrice,
		Width:           sc.Width,
		CreatorFeeShare: proto.CreatorFeeShare,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Market launched",
		zap.String("market", report.Market.String()),
		zap.String("mint", report.Mint.String()))

	buyers := make([]solana.PublicKey, sc.Buyers)
	referrer := newKey()
	for i := range buyers {
		buyers[i] = newKey()
		if err := engine.Fund(ctx, buyers[i], 2*types.LamportsPerSOL); err != nil {
			return nil, err
		}
	}
	var referral solana.PublicKey
	if len(buyers) > 0 {
		if referral, err = engine.CreateReferralAccount(ctx, report.Config, buyers[0], referrer); err != nil {
			return nil, err
		}
	}

	report.Purchases = make([]market.PurchaseResult, len(buyers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(sc.Workers, 1))
	for i, buyer := range buyers {
		req := market.PurchaseRequest{
			Market: report.Market,
			Buyer:  buyer,
			Mode:   pricing.ExactInput,
			Amount: sc.PurchaseQuote,
		}
		if i == 0 {
			req.ReferralAccount = referral
		} else {
			req.Referrer = referrer
		}
		g.Go(func() error {
			res, err := engine.Purchase(gctx, req)
			if err != nil {
				return fmt.Errorf("purchase by %s: %w", buyer, err)
			}
			report.Purchases[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(buyers) > 0 {
		if _, err := engine.ClaimReferralFees(ctx, referral, referrer); err != nil {
			return nil, err
		}
	}

	funder := newKey()
	if err := engine.Fund(ctx, funder, 2*sc.BuybackLamports); err != nil {
		return nil, err
	}
	if len(buyers) > 0 {
		if _, err := engine.Buyback(ctx, market.BuybackRequest{Market: report.Market, Payer: funder, Lamports: sc.BuybackLamports}); err != nil {
			return nil, err
		}
		for _, buyer := range buyers {
			owed, err := engine.ClaimReflection(ctx, report.Market, buyer)
			if err != nil {
				return nil, err
			}
			report.Reflection += owed
		}
	}
	if _, err := engine.Buyback(ctx, market.BuybackRequest{
		Market:   report.Market,
		Payer:    funder,
		Lamports: sc.BuybackLamports,
		Swap:     &forward.Call{Program: venue, Data: []byte("swap")},
	}); err != nil {
		return nil, err
	}

	report.Migration, err = engine.Migrate(ctx, market.MigrateRequest{
		Market:   report.Market,
		Caller:   rec.Authority,
		Force:    true,
		CreateLP: &forward.Call{Program: venue, Data: []byte("create_pool")},
	})
	if err != nil {
		return nil, err
	}

	if report.Snapshot, err = engine.Snapshot(ctx, report.Market); err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)

	logger.Info("Scenario completed",
		zap.Int("purchases", len(report.Purchases)),
		zap.Uint64("supply", report.Snapshot.Market.TotalSupply),
		zap.Uint64("creator_paid", report.Migration.CreatorPaid),
		zap.Duration("duration", report.Duration))
	return report, nil
}
