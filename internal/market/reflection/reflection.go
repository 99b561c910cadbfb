// internal/market/reflection/reflection.go
package reflection

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/checked"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// DefaultScale is the fixed-point scale of per_share.
const DefaultScale uint64 = 1_000_000_000_000

// NewState returns an empty index for market.
func NewState(market solana.PublicKey, bump uint8, scale uint64) *types.ReflectionState {
	if scale == 0 {
		scale = DefaultScale
	}
	return &types.ReflectionState{
		Market: market,
		Bump:   bump,
		Scale:  uint128.From64(scale),
	}
}

// Credit adds tokens to the pool and advances per_share by
// added*scale/totalSupply. Nothing is mutated on error.
func Credit(s *types.ReflectionState, totalSupply, added uint64, now time.Time) error {
	if totalSupply == 0 {
		return fmt.Errorf("%w: reflection credit with zero supply", types.ErrInvalidMarketState)
	}

	var c checked.Calc
	pool := c.U64(c.Add(checked.From64(s.TotalReflectionPool), checked.From64(added)))
	delta := c.Div(c.Mul(checked.From64(added), checked.From128(s.Scale)), checked.From64(totalSupply))
	perShare := c.Add(checked.From128(s.PerShare), delta)
	if err := c.Err(); err != nil {
		return err
	}

	s.TotalReflectionPool = pool
	s.PerShare = perShare.Uint128()
	s.LastSettlement = now.Unix()
	return nil
}

// Owed is balance*(per_share-last)/scale, floored; zero when the holder is
// already checkpointed at or past per_share.
func Owed(s *types.ReflectionState, l *types.ReflectionLedger, balance uint64) (uint64, error) {
	if s.PerShare.Cmp(l.LastPerShare) <= 0 {
		return 0, nil
	}

	var c checked.Calc
	diff := c.Sub(checked.From128(s.PerShare), checked.From128(l.LastPerShare))
	owed := c.U64(c.Div(c.Mul(checked.From64(balance), diff), checked.From128(s.Scale)))
	return owed, c.Err()
}

// NewLedger starts a holder at the current per_share, so it earns only from
// settlements made after it was created.
func NewLedger(s *types.ReflectionState, market, owner solana.PublicKey, bump uint8) *types.ReflectionLedger {
	return &types.ReflectionLedger{
		Market:       market,
		Owner:        owner,
		Bump:         bump,
		LastPerShare: s.PerShare,
	}
}

// Checkpoint moves what balance has earned since the last checkpoint into
// Unclaimed and advances the ledger to per_share. Call it before the
// holder's balance changes. Nothing is mutated on error.
func Checkpoint(s *types.ReflectionState, l *types.ReflectionLedger, balance uint64) error {
	owed, err := Owed(s, l, balance)
	if err != nil {
		return err
	}
	var c checked.Calc
	unclaimed := c.U64(c.Add(checked.From64(l.Unclaimed), checked.From64(owed)))
	if err := c.Err(); err != nil {
		return err
	}
	l.Unclaimed = unclaimed
	if s.PerShare.Cmp(l.LastPerShare) > 0 {
		l.LastPerShare = s.PerShare
	}
	return nil
}

// Transferrer moves tokens between owners.
type Transferrer interface {
	TransferTokens(ctx context.Context, mint, from, to solana.PublicKey, amount uint64, signer authority.Signer) error
}

// Claim describes one holder's claim against a market's pool.
type Claim struct {
	State    *types.ReflectionState
	Ledger   *types.ReflectionLedger
	Excluded bool
	Balance  uint64 // holder's base balance at claim time
	Mint     solana.PublicKey
	Holder   solana.PublicKey
	Signer   *authority.Delegated // market authority, owner of the pool tokens
}

// Pay transfers the carried amount plus what the holder is owed out of the
// market's holding and checkpoints the ledger at the current per_share.
// Remainders below one unit stay in the pool. The index itself is not
// touched.
func (c *Claim) Pay(ctx context.Context, t Transferrer) (uint64, error) {
	if c.Excluded {
		return 0, fmt.Errorf("%w: holder %s is excluded from reflections", types.ErrUnauthorizedMarket, c.Holder)
	}

	owed, err := Owed(c.State, c.Ledger, c.Balance)
	if err != nil {
		return 0, err
	}
	var calc checked.Calc
	total := calc.U64(calc.Add(checked.From64(c.Ledger.Unclaimed), checked.From64(owed)))
	if err := calc.Err(); err != nil {
		return 0, err
	}
	if total > 0 {
		if err := t.TransferTokens(ctx, c.Mint, c.Signer.PublicKey(), c.Holder, total, c.Signer); err != nil {
			return 0, fmt.Errorf("failed to transfer reflection: %w", err)
		}
	}

	c.Ledger.Unclaimed = 0
	if c.State.PerShare.Cmp(c.Ledger.LastPerShare) > 0 {
		c.Ledger.LastPerShare = c.State.PerShare
	}
	return total, nil
}
