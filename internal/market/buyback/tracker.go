// internal/market/buyback/tracker.go
package buyback

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/checked"
	"github.com/rovshanmuradov/tokenmill/internal/forward"
	"github.com/rovshanmuradov/tokenmill/internal/market/reflection"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// Runtime is what a buyback needs from the host.
type Runtime interface {
	forward.Invoker
	MintTo(ctx context.Context, mint, owner solana.PublicKey, amount uint64, signer authority.Signer) error
}

// Request is one buyback against a market. Swap, when set, is forwarded to
// an external venue; otherwise the spend is converted at the curve's base
// price.
type Request struct {
	Market     *types.Market
	State      *types.BuybackState
	Reflection *types.ReflectionState
	Config     *types.ProtocolConfig
	Signer     *authority.Delegated
	Lamports   uint64
	Swap       *forward.Call
	Now        time.Time
}

// Result is what the buyback recorded.
type Result struct {
	LamportsSpent uint64
	TokensBought  uint64
	Delegated     bool
}

// Tracker executes buybacks and keeps the spend accumulators.
type Tracker struct {
	forwarder *forward.Forwarder
	logger    *zap.Logger
}

func NewTracker(forwarder *forward.Forwarder, logger *zap.Logger) *Tracker {
	return &Tracker{forwarder: forwarder, logger: logger.Named("buyback")}
}

// Execute runs req. A delegated swap records spend only: the tokens it buys
// are unknown here and reach holders through a later settlement. A simulated
// buyback mints its tokens and adds them to the market's TotalSupply.
func (t *Tracker) Execute(ctx context.Context, rt Runtime, req Request) (Result, error) {
	if req.Lamports == 0 {
		return Result{}, types.ErrInvalidAmount
	}

	if !req.Swap.Empty() {
		if err := t.forwarder.Forward(ctx, rt, req.Config, req.Swap, req.Signer); err != nil {
			return Result{}, fmt.Errorf("failed to forward buyback swap: %w", err)
		}
		if err := Record(req.State, req.Lamports, 0); err != nil {
			return Result{}, err
		}
		t.logger.Info("Delegated buyback recorded",
			zap.String("market", req.Signer.PublicKey().String()),
			zap.String("venue", req.Swap.Program.String()),
			zap.Uint64("lamports", req.Lamports))
		return Result{LamportsSpent: req.Lamports, Delegated: true}, nil
	}

	if req.Market.BasePrice == 0 {
		return Result{}, fmt.Errorf("%w: buyback at zero base price", types.ErrInvalidPrice)
	}
	tokens := req.Lamports / req.Market.BasePrice

	var c checked.Calc
	supply := c.U64(c.Add(checked.From64(req.Market.TotalSupply), checked.From64(tokens)))
	if err := c.Err(); err != nil {
		return Result{}, err
	}

	// per_share is taken over the supply before the pool tokens exist
	if err := reflection.Credit(req.Reflection, req.Market.TotalSupply, tokens, req.Now); err != nil {
		return Result{}, err
	}
	if err := Record(req.State, req.Lamports, tokens); err != nil {
		return Result{}, err
	}
	if tokens > 0 {
		// pool tokens are held by the market itself
		if err := rt.MintTo(ctx, req.Market.BaseMint, req.Signer.PublicKey(), tokens, req.Signer); err != nil {
			return Result{}, fmt.Errorf("failed to mint buyback tokens: %w", err)
		}
	}
	// claimed pool tokens land in holder balances, so they must be in the
	// denominator of every later settlement
	req.Market.TotalSupply = supply

	t.logger.Info("Simulated buyback credited",
		zap.String("market", req.Signer.PublicKey().String()),
		zap.Uint64("lamports", req.Lamports),
		zap.Uint64("tokens", tokens))
	return Result{LamportsSpent: req.Lamports, TokensBought: tokens}, nil
}

// Record adds to both accumulators. Nothing is mutated on overflow.
func Record(s *types.BuybackState, lamports, tokens uint64) error {
	var c checked.Calc
	l := c.U64(c.Add(checked.From64(s.TotalBuybackLamports), checked.From64(lamports)))
	tk := c.U64(c.Add(checked.From64(s.TotalBuybackTokens), checked.From64(tokens)))
	if err := c.Err(); err != nil {
		return err
	}
	s.TotalBuybackLamports = l
	s.TotalBuybackTokens = tk
	return nil
}
