// internal/airdrop/bitmap.go
package airdrop

import (
	"fmt"

	"github.com/rovshanmuradov/tokenmill/internal/checked"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// BurnShare is the percentage of unclaimed tokens burned at expiry.
const BurnShare = 75

// MarkClaimed sets the bit for index, failing if it is out of range or
// already set.
func MarkClaimed(bitmap []byte, index uint64) error {
	byteIndex := index / 8
	if byteIndex >= uint64(len(bitmap)) {
		return fmt.Errorf("%w: claim index %d outside bitmap", types.ErrInvalidMarketState, index)
	}
	mask := byte(1) << (index % 8)
	if bitmap[byteIndex]&mask != 0 {
		return fmt.Errorf("%w: index %d already claimed", types.ErrInvalidMarketState, index)
	}
	bitmap[byteIndex] |= mask
	return nil
}

// IsClaimed reports whether index has been claimed.
func IsClaimed(bitmap []byte, index uint64) bool {
	byteIndex := index / 8
	if byteIndex >= uint64(len(bitmap)) {
		return false
	}
	return bitmap[byteIndex]&(byte(1)<<(index%8)) != 0
}

// SplitExpired divides unclaimed tokens into the burned part and the part
// left for a swap.
func SplitExpired(unclaimed uint64) (burn, swap uint64, err error) {
	var c checked.Calc
	burn = c.U64(c.Div(c.Mul(checked.From64(unclaimed), checked.From64(BurnShare)), checked.From64(100)))
	swap = c.U64(c.Sub(checked.From64(unclaimed), checked.From64(burn)))
	return burn, swap, c.Err()
}
