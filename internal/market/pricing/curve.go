// internal/market/pricing/curve.go
package pricing

import (
	"fmt"

	"github.com/rovshanmuradov/tokenmill/internal/checked"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// SwapMode selects which side of the order the caller fixes.
type SwapMode uint8

const (
	// ExactInput fixes the quote (native) amount to spend.
	ExactInput SwapMode = iota
	// ExactOutput fixes the base amount to receive.
	ExactOutput
)

func (m SwapMode) String() string {
	switch m {
	case ExactInput:
		return "exact_input"
	case ExactOutput:
		return "exact_output"
	default:
		return fmt.Sprintf("swap_mode(%d)", uint8(m))
	}
}

// Curve is the linear bonding curve price(s) = BasePrice + Width*s.
type Curve struct {
	BasePrice uint64
	Width     uint64
}

// FromMarket reads the curve parameters off a market.
func FromMarket(m *types.Market) Curve {
	return Curve{BasePrice: m.BasePrice, Width: m.Width}
}

// Quote is a priced order. QuoteAmount is what the buyer pays.
type Quote struct {
	BaseAmount  uint64
	QuoteAmount uint64
}

// SpotPrice returns price(supply).
func (c Curve) SpotPrice(supply uint64) (uint64, error) {
	var k checked.Calc
	p := k.U64(k.Add(checked.From64(c.BasePrice), k.Mul(checked.From64(c.Width), checked.From64(supply))))
	return p, k.Err()
}

// Cost is the area under the curve from supply s0 to s0+q:
// BasePrice*q + Width*(2*s0*q + q^2)/2.
func (c Curve) Cost(s0, q uint64) (checked.Num, error) {
	var k checked.Calc
	bq, s, w := checked.From64(q), checked.From64(s0), checked.From64(c.Width)
	two := checked.From64(2)

	linear := k.Mul(checked.From64(c.BasePrice), bq)
	area := k.Add(k.Mul(k.Mul(two, s), bq), k.Mul(bq, bq))
	slope := k.Div(k.Mul(w, area), two)
	cost := k.Add(linear, slope)
	if err := k.Err(); err != nil {
		return checked.Zero, err
	}
	return cost, nil
}

// Price resolves an order at supply s0. In ExactOutput mode amount is the
// base quantity; in ExactInput mode it is the quote budget and the returned
// QuoteAmount is the exact cost of the floored base quantity, never more
// than the budget.
func (c Curve) Price(s0, amount uint64, mode SwapMode) (Quote, error) {
	if amount == 0 {
		return Quote{}, types.ErrInvalidAmount
	}

	switch mode {
	case ExactOutput:
		cost, err := c.Cost(s0, amount)
		if err != nil {
			return Quote{}, err
		}
		if cost.IsZero() {
			return Quote{}, types.ErrInvalidAmount
		}
		quote, err := cost.Uint64()
		if err != nil {
			return Quote{}, err
		}
		return Quote{BaseAmount: amount, QuoteAmount: quote}, nil

	case ExactInput:
		q, err := c.solve(s0, amount)
		if err != nil {
			return Quote{}, err
		}
		if q == 0 {
			return Quote{}, types.ErrInvalidAmount
		}
		cost, err := c.Cost(s0, q)
		if err != nil {
			return Quote{}, err
		}
		charged, err := cost.Uint64()
		if err != nil {
			return Quote{}, err
		}
		return Quote{BaseAmount: q, QuoteAmount: charged}, nil

	default:
		return Quote{}, fmt.Errorf("%w: unknown swap mode %s", types.ErrInvalidAmount, mode)
	}
}

// solve returns the largest q whose cost fits the budget. It is the
// positive root of Width*q^2 + 2*(Width*s0+BasePrice)*q - 2*budget = 0.
func (c Curve) solve(s0, budget uint64) (uint64, error) {
	var k checked.Calc
	w := checked.From64(c.Width)
	if w.IsZero() {
		q := k.U64(k.Div(checked.From64(budget), checked.From64(c.BasePrice)))
		return q, k.Err()
	}

	two := checked.From64(2)
	b := k.Mul(two, k.Add(k.Mul(w, checked.From64(s0)), checked.From64(c.BasePrice)))
	ac4 := k.Mul(k.Mul(checked.From64(4), w), k.Mul(two, checked.From64(budget)))
	disc := k.Add(k.Mul(b, b), ac4)
	if err := k.Err(); err != nil {
		return 0, err
	}

	root := disc.Sqrt()
	q := k.U64(k.Div(k.Sub(root, b), k.Mul(two, w)))
	return q, k.Err()
}
