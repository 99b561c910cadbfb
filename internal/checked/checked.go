// internal/checked/checked.go
package checked

import (
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// Num is an unsigned integer bounded to 128 bits. Every operation that would
// leave that range (or divide by zero) reports types.ErrMathOverflow.
type Num struct {
	v uint256.Int
}

// maxBits is the width every intermediate result must fit into.
const maxBits = 128

// Zero is the additive identity.
var Zero = Num{}

// From64 lifts a u64 value.
func From64(x uint64) Num {
	var n Num
	n.v.SetUint64(x)
	return n
}

// From128 lifts a stored u128 value.
func From128(x uint128.Uint128) Num {
	return Num{v: uint256.Int{x.Lo, x.Hi, 0, 0}}
}

func bounded(z *uint256.Int, overflow bool) (Num, error) {
	if overflow || z.BitLen() > maxBits {
		return Zero, types.ErrMathOverflow
	}
	return Num{v: *z}, nil
}

// Add returns n+m.
func (n Num) Add(m Num) (Num, error) {
	z, overflow := new(uint256.Int).AddOverflow(&n.v, &m.v)
	return bounded(z, overflow)
}

// Sub returns n-m; going below zero is an overflow.
func (n Num) Sub(m Num) (Num, error) {
	z, underflow := new(uint256.Int).SubOverflow(&n.v, &m.v)
	return bounded(z, underflow)
}

// Mul returns n*m.
func (n Num) Mul(m Num) (Num, error) {
	z, overflow := new(uint256.Int).MulOverflow(&n.v, &m.v)
	return bounded(z, overflow)
}

// Div returns floor(n/m).
func (n Num) Div(m Num) (Num, error) {
	if m.v.IsZero() {
		return Zero, types.ErrMathOverflow
	}
	return Num{v: *new(uint256.Int).Div(&n.v, &m.v)}, nil
}

// Sqrt returns floor(sqrt(n)) using Newton iteration.
func (n Num) Sqrt() Num {
	if n.v.LtUint64(2) {
		return n
	}
	two := uint256.NewInt(2)
	x0 := new(uint256.Int).Div(&n.v, two)
	for {
		// x1 = (x0 + n/x0) / 2
		x1 := new(uint256.Int).Div(&n.v, x0)
		x1.Add(x1, x0)
		x1.Div(x1, two)
		if !x1.Lt(x0) {
			return Num{v: *x0}
		}
		x0 = x1
	}
}

// Uint64 narrows n to a u64.
func (n Num) Uint64() (uint64, error) {
	if !n.v.IsUint64() {
		return 0, types.ErrMathOverflow
	}
	return n.v.Uint64(), nil
}

// Uint128 narrows n for storage. n is always within range.
func (n Num) Uint128() uint128.Uint128 {
	return uint128.New(n.v[0], n.v[1])
}

// IsZero reports whether n == 0.
func (n Num) IsZero() bool { return n.v.IsZero() }

// Cmp compares n and m and returns -1, 0 or +1.
func (n Num) Cmp(m Num) int { return n.v.Cmp(&m.v) }

// String renders n in decimal.
func (n Num) String() string { return n.v.Dec() }
