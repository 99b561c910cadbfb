// internal/market/fees/discount.go
package fees

import "github.com/rovshanmuradov/tokenmill/internal/types"

// discountTiers are checked highest first.
var discountTiers = []struct {
	minBalance uint64
	bp         uint16
}{
	{50 * types.LamportsPerSOL, 5000},
	{10 * types.LamportsPerSOL, 2500},
	{1 * types.LamportsPerSOL, 1000},
}

// DiscountBP returns the protocol fee discount for a wallet holding balance
// lamports before it pays for the purchase.
func DiscountBP(balance uint64) uint16 {
	for _, tier := range discountTiers {
		if balance >= tier.minBalance {
			return tier.bp
		}
	}
	return 0
}
