// internal/market/migrate.go
package market

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/forward"
	"github.com/rovshanmuradov/tokenmill/internal/market/migration"
)

// MigrateRequest moves a market to its external venue. Force skips the
// buyback threshold and is reserved for the config authority.
type MigrateRequest struct {
	Market   solana.PublicKey
	Caller   solana.PublicKey
	Force    bool
	CreateLP *forward.Call
	BurnLP   *forward.Call
}

func (e *Engine) Migrate(ctx context.Context, req MigrateRequest) (migration.Result, error) {
	var res migration.Result
	err := e.run(ctx, "migrate", req.Market, func(ctx context.Context, o *op) error {
		acc, err := e.loadMarket(ctx, o.tx, req.Market)
		if err != nil {
			return err
		}

		res, err = e.machine.Migrate(ctx, o.bank, migration.Request{
			Market:      acc.market,
			Buyback:     acc.buyback,
			Config:      acc.config,
			Signer:      acc.signer,
			TriggeredBy: req.Caller,
			Force:       req.Force,
			CreateLP:    req.CreateLP,
			BurnLP:      req.BurnLP,
		})
		if err != nil {
			return err
		}
		if err := acc.saveMarket(ctx, o.tx); err != nil {
			return err
		}

		o.emit(&events.MigrationEvent{
			BaseEvent:            events.NewBase(events.MarketMigrated, o.now),
			Market:               req.Market,
			TriggeredBy:          req.Caller,
			TotalBuybackLamports: res.TotalBuybackLamports,
			CreatorPaid:          res.CreatorPaid,
		})
		o.onCommit(e.metrics.IncMigrations)
		return nil
	})
	if err != nil {
		return migration.Result{}, err
	}
	return res, nil
}
