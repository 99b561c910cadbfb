// internal/checked/calc.go
package checked

// Calc chains checked operations and keeps the first failure, so a formula
// can be written inline and the error inspected once at the end.
type Calc struct {
	err error
}

func (c *Calc) step(r Num, err error) Num {
	if c.err != nil {
		return Zero
	}
	if err != nil {
		c.err = err
		return Zero
	}
	return r
}

func (c *Calc) Add(a, b Num) Num { return c.step(a.Add(b)) }
func (c *Calc) Sub(a, b Num) Num { return c.step(a.Sub(b)) }
func (c *Calc) Mul(a, b Num) Num { return c.step(a.Mul(b)) }
func (c *Calc) Div(a, b Num) Num { return c.step(a.Div(b)) }

// U64 narrows r to u64, recording an overflow.
func (c *Calc) U64(r Num) uint64 {
	if c.err != nil {
		return 0
	}
	v, err := r.Uint64()
	if err != nil {
		c.err = err
	}
	return v
}

// Err returns the first error seen, if any.
func (c *Calc) Err() error { return c.err }

// BPS applies a basis-point share: floor(amount*bp/10000).
func BPS(amount uint64, bp uint16) (uint64, error) {
	var c Calc
	r := c.U64(c.Div(c.Mul(From64(amount), From64(uint64(bp))), From64(BPSDenominator)))
	return r, c.Err()
}

// BPSDenominator is 100%.
const BPSDenominator = 10_000
