// Package fixedpoint implements checked arithmetic on token amounts expressed as unsigned 64-bit integers scaled by
// 10^Decimals.  Every operation reports overflow rather than wrapping.
package fixedpoint

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	Decimals = 9
	// OneToken is a single whole token in base units.
	OneToken uint64 = 1_000_000_000
	// BpsDenominator is the basis point denominator - 10000 bps == 100%.
	BpsDenominator uint64 = 10_000
	MaxAmount      uint64 = math.MaxUint64
)

func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("add %d + %d: %w", a, b, ErrArithmeticOverflow)
	}
	return sum, nil
}

// Sub returns a-b, failing with ErrInsufficientBalance when b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("sub %d - %d: %w", a, b, ErrInsufficientBalance)
	}
	return a - b, nil
}

func Mul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	prod := a * b
	if prod/b != a {
		return 0, fmt.Errorf("mul %d * %d: %w", a, b, ErrArithmeticOverflow)
	}
	return prod, nil
}

// MulBps returns floor(amount * bps / 10000).  The product is computed in 256 bits so no amount can overflow the
// intermediate, and because bps <= 10000 the result always fits.
func MulBps(amount, bps uint64) (uint64, error) {
	if bps > BpsDenominator {
		return 0, fmt.Errorf("mulbps %d: %w", bps, ErrInvalidBps)
	}
	return MulDiv(amount, bps, BpsDenominator)
}

// MulDiv returns floor(a * b / denom) using a widened intermediate.
func MulDiv(a, b, denom uint64) (uint64, error) {
	if denom == 0 {
		return 0, ErrDivideByZero
	}
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(denom))
	if !x.IsUint64() {
		return 0, fmt.Errorf("muldiv %d * %d / %d: %w", a, b, denom, ErrArithmeticOverflow)
	}
	return x.Uint64(), nil
}

// Pow returns base^exp, failing on overflow.
func Pow(base, exp uint64) (uint64, error) {
	result := uint64(1)
	for exp > 0 {
		if exp&1 == 1 {
			r, err := Mul(result, base)
			if err != nil {
				return 0, fmt.Errorf("pow: %w", ErrArithmeticOverflow)
			}
			result = r
		}
		exp >>= 1
		if exp > 0 {
			b, err := Mul(base, base)
			if err != nil {
				return 0, fmt.Errorf("pow: %w", ErrArithmeticOverflow)
			}
			base = b
		}
	}
	return result, nil
}

// Tokens converts a whole-token count into base units.
func Tokens(whole uint64) (uint64, error) {
	scale, err := Pow(10, Decimals)
	if err != nil {
		return 0, err
	}
	return Mul(whole, scale)
}

// WholeTokens returns the whole-token part of amount, discarding any fraction.
func WholeTokens(amount uint64) uint64 {
	return amount / OneToken
}

// Format renders a base-unit amount as a decimal token string with trailing zeros trimmed, ie: 1500000000 -> "1.5".
func Format(amount uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -Decimals).String()
}

// FormatWithUnit is Format with a trailing unit name.
func FormatWithUnit(amount uint64, unit string) string {
	return fmt.Sprintf("%s %s", Format(amount), unit)
}

// ParseTokens parses a decimal token string (ie: "1000", "0.1", "12.000000001") into base units.  More than Decimals
// fractional digits, negative values and values above MaxAmount are rejected.
func ParseTokens(s string) (uint64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if s == "" {
		return 0, fmt.Errorf("empty value: %w", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, ErrInvalidAmount)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative value %q: %w", s, ErrInvalidAmount)
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%q has more than %d decimal places: %w", s, Decimals, ErrInvalidAmount)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("parse %q: %w", s, ErrArithmeticOverflow)
	}
	return bi.Uint64(), nil
}
