package lending

import (
	"github.com/holiman/uint256"
)

// WAD is the fixed-point scale applied to prices, values and exchange rates.
const WAD uint64 = 1_000_000_000_000_000_000

const (
	percentScale = 100
	bpsScale     = 10_000
	wadDecimals  = 18
	// maxOracleExponent bounds the magnitude of a feed exponent.
	maxOracleExponent = 30
)

var wad = uint256.NewInt(WAD)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// mulDiv computes x*y/d with a 512-bit intermediate. A zero divisor or a
// result wider than 256 bits fails closed.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrMathOverflow
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrMathOverflow
	}
	return out, nil
}

func checkedAdd(x, y *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrMathOverflow
	}
	return out, nil
}

func checkedSub(x, y *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrMathOverflow
	}
	return out, nil
}

func checkedAddUint64(x, y uint64) (uint64, error) {
	sum := x + y
	if sum < x {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

func checkedSubUint64(x, y uint64) (uint64, error) {
	if y > x {
		return 0, ErrMathOverflow
	}
	return x - y, nil
}

func toUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrMathOverflow
	}
	return v.Uint64(), nil
}

// pow10 returns 10^n. Exponents beyond 77 do not fit in 256 bits.
func pow10(n uint64) (*uint256.Int, error) {
	if n > 77 {
		return nil, ErrMathOverflow
	}
	return new(uint256.Int).Exp(u(10), u(n)), nil
}

// ceilDiv returns ceil(x/d).
func ceilDiv(x, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrMathOverflow
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(x, d, r)
	if !r.IsZero() {
		return checkedAdd(q, u(1))
	}
	return q, nil
}

func minInt(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}

func maxInt(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return a
	}
	return b
}

// NormalizePrice converts an oracle reading of price*10^exponent into a WAD
// scaled quote price. Zero prices and results fail closed.
func NormalizePrice(price uint64, exponent int32) (*uint256.Int, error) {
	if price == 0 {
		return nil, ErrInvalidOracle
	}
	if exponent > maxOracleExponent || exponent < -maxOracleExponent {
		return nil, ErrInvalidOracle
	}
	shift := int64(wadDecimals) + int64(exponent)
	var out *uint256.Int
	if shift >= 0 {
		scale, err := pow10(uint64(shift))
		if err != nil {
			return nil, err
		}
		product, overflow := new(uint256.Int).MulOverflow(u(price), scale)
		if overflow {
			return nil, ErrMathOverflow
		}
		out = product
	} else {
		scale, err := pow10(uint64(-shift))
		if err != nil {
			return nil, err
		}
		out = new(uint256.Int).Div(u(price), scale)
	}
	if out.IsZero() {
		return nil, ErrInvalidOracle
	}
	return out, nil
}
