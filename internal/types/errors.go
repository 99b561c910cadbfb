// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

// Error is a market failure with a stable numeric code. Callers match with
// errors.Is against the exported values below.
type Error struct {
	Code int
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

const errorCodeOffset = 6000

var (
	ErrMathOverflow       = &Error{errorCodeOffset + 0, "MathOverflow", "arithmetic overflow"}
	ErrInvalidAmount      = &Error{errorCodeOffset + 1, "InvalidAmount", "amount must be positive"}
	ErrInvalidPrice       = &Error{errorCodeOffset + 2, "InvalidPrice", "price must be positive"}
	ErrInvalidMarketState = &Error{errorCodeOffset + 3, "InvalidMarketState", "operation not allowed in current market state"}
	ErrMarketMigrated     = &Error{errorCodeOffset + 4, "MarketMigrated", "market has already migrated"}
	ErrInvalidAuthority   = &Error{errorCodeOffset + 5, "InvalidAuthority", "signer is not the expected authority"}
	ErrUnauthorizedMarket = &Error{errorCodeOffset + 6, "UnauthorizedMarket", "caller or program not authorized"}
	ErrInvalidMarketPda   = &Error{errorCodeOffset + 7, "InvalidMarketPda", "market address does not match its seeds"}
	ErrInvalidReferralPda = &Error{errorCodeOffset + 8, "InvalidReferralPda", "referral address does not match its seeds"}
	ErrInvalidConfig      = &Error{errorCodeOffset + 9, "InvalidConfigAccount", "config account mismatch"}
	ErrInvalidMint        = &Error{errorCodeOffset + 10, "InvalidMintAccount", "mint account mismatch"}
)

// ErrAccountDiscriminator is returned when stored bytes belong to another record type.
var ErrAccountDiscriminator = errors.New("account discriminator mismatch")

// ErrorCode extracts the market error code from err, if any.
func ErrorCode(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
