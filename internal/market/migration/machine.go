// internal/market/migration/machine.go
package migration

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/checked"
	"github.com/rovshanmuradov/tokenmill/internal/forward"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

const (
	DefaultThreshold    = 60_000 * types.LamportsPerSOL
	DefaultCreatorBonus = 200 * types.LamportsPerSOL
)

// State of a market's lifecycle. Migrated is terminal.
type State uint8

const (
	Active State = iota
	Migrated
)

func (s State) String() string {
	if s == Migrated {
		return "migrated"
	}
	return "active"
}

// StateOf reports the market's lifecycle state.
func StateOf(m *types.Market) State {
	if m.IsMigrated {
		return Migrated
	}
	return Active
}

// Params are the migration constants.
type Params struct {
	Threshold    uint64
	CreatorBonus uint64
}

func DefaultParams() Params {
	return Params{Threshold: DefaultThreshold, CreatorBonus: DefaultCreatorBonus}
}

// Runtime is what a migration needs from the host.
type Runtime interface {
	forward.Invoker
	Lamports(ctx context.Context, key solana.PublicKey) (uint64, error)
	TransferLamports(ctx context.Context, from, to solana.PublicKey, amount uint64, signer authority.Signer) error
}

// Request is one migration attempt.
type Request struct {
	Market      *types.Market
	Buyback     *types.BuybackState
	Config      *types.ProtocolConfig
	Signer      *authority.Delegated
	TriggeredBy solana.PublicKey
	Force       bool
	CreateLP    *forward.Call
	BurnLP      *forward.Call
}

// Result summarizes the transition.
type Result struct {
	CreatorPaid          uint64
	PendingCreatorFees   uint64
	TotalBuybackLamports uint64
}

// Machine drives Active -> Migrated.
type Machine struct {
	params    Params
	forwarder *forward.Forwarder
	logger    *zap.Logger
}

func NewMachine(params Params, forwarder *forward.Forwarder, logger *zap.Logger) *Machine {
	return &Machine{params: params, forwarder: forwarder, logger: logger.Named("migration")}
}

func (m *Machine) Params() Params { return m.params }

// Guard checks whether req may transition the market.
func (m *Machine) Guard(req Request) error {
	if StateOf(req.Market) == Migrated {
		return fmt.Errorf("%w: market already migrated", types.ErrInvalidMarketState)
	}
	if req.Force {
		if !req.TriggeredBy.Equals(req.Config.Authority) {
			return fmt.Errorf("%w: forced migration by %s", types.ErrInvalidAuthority, req.TriggeredBy)
		}
		return nil
	}
	if req.Buyback.TotalBuybackLamports < m.params.Threshold {
		return fmt.Errorf("%w: buyback spend %d below threshold %d",
			types.ErrInvalidMarketState, req.Buyback.TotalBuybackLamports, m.params.Threshold)
	}
	return nil
}

// Migrate performs the transition: flags the market, pays the creator as
// much of pending fees plus bonus as the treasury holds, then forwards the
// optional liquidity calls.
func (m *Machine) Migrate(ctx context.Context, rt Runtime, req Request) (Result, error) {
	if err := m.Guard(req); err != nil {
		return Result{}, err
	}
	req.Market.IsMigrated = true

	var c checked.Calc
	due := c.U64(c.Add(checked.From64(req.Market.Fees.PendingCreatorFees), checked.From64(m.params.CreatorBonus)))
	if err := c.Err(); err != nil {
		return Result{}, err
	}

	available, err := rt.Lamports(ctx, req.Signer.PublicKey())
	if err != nil {
		return Result{}, fmt.Errorf("failed to read market balance: %w", err)
	}
	paid := min(due, available)

	if paid > 0 {
		if err := rt.TransferLamports(ctx, req.Signer.PublicKey(), req.Market.Creator, paid, req.Signer); err != nil {
			return Result{}, fmt.Errorf("failed to pay creator: %w", err)
		}
	}
	if paid >= req.Market.Fees.PendingCreatorFees {
		req.Market.Fees.PendingCreatorFees = 0
	} else {
		req.Market.Fees.PendingCreatorFees -= paid
	}

	for _, call := range []*forward.Call{req.CreateLP, req.BurnLP} {
		if err := m.forwarder.Forward(ctx, rt, req.Config, call, req.Signer); err != nil {
			return Result{}, fmt.Errorf("failed to forward migration call: %w", err)
		}
	}

	if paid < due {
		m.logger.Warn("Creator payout capped by market balance",
			zap.String("market", req.Signer.PublicKey().String()),
			zap.Uint64("due", due),
			zap.Uint64("paid", paid))
	}
	m.logger.Info("Market migrated",
		zap.String("market", req.Signer.PublicKey().String()),
		zap.String("triggered_by", req.TriggeredBy.String()),
		zap.Bool("forced", req.Force),
		zap.Uint64("creator_paid", paid))

	return Result{
		CreatorPaid:          paid,
		PendingCreatorFees:   req.Market.Fees.PendingCreatorFees,
		TotalBuybackLamports: req.Buyback.TotalBuybackLamports,
	}, nil
}
