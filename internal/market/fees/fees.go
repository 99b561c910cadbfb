// internal/market/fees/fees.go
package fees

import (
	"fmt"

	"github.com/rovshanmuradov/tokenmill/internal/checked"
)

// Shares are the basis-point inputs of one purchase.
type Shares struct {
	ProtocolBP uint16
	ReferralBP uint16 // share of the discounted protocol fee
	CreatorBP  uint16
	DiscountBP uint16
}

// Breakdown is the fee split of a gross quote amount.
type Breakdown struct {
	ProtocolTotal uint64
	Discount      uint64
	AfterDiscount uint64
	Referral      uint64
	ProtocolNet   uint64
	Creator       uint64
}

func (s Shares) validate() error {
	for name, bp := range map[string]uint16{
		"protocol": s.ProtocolBP,
		"referral": s.ReferralBP,
		"creator":  s.CreatorBP,
		"discount": s.DiscountBP,
	} {
		if bp > checked.BPSDenominator {
			return fmt.Errorf("%s share %d exceeds %d bp", name, bp, checked.BPSDenominator)
		}
	}
	return nil
}

// Compute splits quote. The order of operations is fixed: protocol total,
// discount, referral from the discounted fee, protocol net, creator fee from
// the gross quote.
func Compute(quote uint64, s Shares) (Breakdown, error) {
	if err := s.validate(); err != nil {
		return Breakdown{}, err
	}

	var b Breakdown
	var err error
	if b.ProtocolTotal, err = checked.BPS(quote, s.ProtocolBP); err != nil {
		return Breakdown{}, err
	}
	if b.Discount, err = checked.BPS(b.ProtocolTotal, s.DiscountBP); err != nil {
		return Breakdown{}, err
	}

	var c checked.Calc
	b.AfterDiscount = c.U64(c.Sub(checked.From64(b.ProtocolTotal), checked.From64(b.Discount)))
	if err := c.Err(); err != nil {
		return Breakdown{}, err
	}
	if b.Referral, err = checked.BPS(b.AfterDiscount, s.ReferralBP); err != nil {
		return Breakdown{}, err
	}
	b.ProtocolNet = c.U64(c.Sub(checked.From64(b.AfterDiscount), checked.From64(b.Referral)))
	if err := c.Err(); err != nil {
		return Breakdown{}, err
	}
	if b.Creator, err = checked.BPS(quote, s.CreatorBP); err != nil {
		return Breakdown{}, err
	}
	return b, nil
}
