// Package currency converts between display amounts and on-chain base units.
//
// On-chain amounts are always Wei (integers scaled by 10^18). Off-chain and display
// amounts are decimal.Decimal. The two never mix implicitly: every crossing goes
// through ToBaseUnits/FromDecimal or ToDecimal.
package currency

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point scale of every supported native currency
const Decimals = 18

// maxDigits is the length of the largest uint256 in base 10
const maxDigits = 78

// ErrInvalidAmount is returned for amounts that cannot be expressed in base units
var ErrInvalidAmount = errors.New("invalid amount")

// Wei is an amount expressed in base units (10^-18 of the display unit)
type Wei struct {
	v *big.Int
}

// NewWei wraps a base-unit integer. A nil value is treated as zero.
func NewWei(v *big.Int) Wei {
	if v == nil {
		return Wei{v: new(big.Int)}
	}
	return Wei{v: new(big.Int).Set(v)}
}

// BigInt returns a copy of the underlying integer
func (w Wei) BigInt() *big.Int {
	if w.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(w.v)
}

// String returns the base-unit integer in base 10
func (w Wei) String() string {
	return w.BigInt().String()
}

// IsZero reports whether the amount is zero
func (w Wei) IsZero() bool {
	return w.v == nil || w.v.Sign() == 0
}

// Cmp compares two amounts
func (w Wei) Cmp(other Wei) int {
	return w.BigInt().Cmp(other.BigInt())
}

// ToBaseUnits parses a decimal string and scales it by 10^18
func ToBaseUnits(amount string) (Wei, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return Wei{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Wei{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	return FromDecimal(d)
}

// FromDecimal scales a decimal amount by 10^18
func FromDecimal(d decimal.Decimal) (Wei, error) {
	if d.IsNegative() {
		return Wei{}, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, d.String())
	}

	if d.Sign() == 0 {
		return Wei{v: new(big.Int)}, nil
	}

	// Digits left of the point once scaled; checked before any big.Int work
	magnitude := int64(d.Exponent()) + Decimals + int64(len(d.Coefficient().String()))
	if magnitude > maxDigits {
		return Wei{}, fmt.Errorf("%w: %d-digit amount overflows uint256", ErrInvalidAmount, magnitude)
	}
	if magnitude <= 0 {
		return Wei{}, fmt.Errorf("%w: more than %d fractional digits", ErrInvalidAmount, Decimals)
	}

	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return Wei{}, fmt.Errorf("%w: more than %d fractional digits in %s", ErrInvalidAmount, Decimals, d.String())
	}

	v := scaled.BigInt()
	if v.Cmp(math.MaxBig256) > 0 {
		return Wei{}, fmt.Errorf("%w: %s overflows uint256", ErrInvalidAmount, d.String())
	}

	return Wei{v: v}, nil
}

// ToDecimal converts base units back to a display amount
func ToDecimal(w Wei) decimal.Decimal {
	return decimal.NewFromBigInt(w.BigInt(), -Decimals)
}

// FormatDecimal renders base units as a normalized decimal string
func FormatDecimal(w Wei) string {
	return ToDecimal(w).String()
}

// ParseAmount parses a display amount that can be expressed in base units
func ParseAmount(amount string) (decimal.Decimal, error) {
	w, err := ToBaseUnits(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return ToDecimal(w), nil
}
