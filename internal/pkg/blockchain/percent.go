package blockchain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var hundred = big.NewInt(100)

// ratio returns d as an exact fraction num/den with den > 0.
func ratio(d decimal.Decimal) (num, den *big.Int) {
	num = new(big.Int).Set(d.Coefficient())
	den = big.NewInt(1)
	exp := d.Exponent()
	if exp >= 0 {
		num.Mul(num, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
		return num, den
	}
	den.Exp(big.NewInt(10), big.NewInt(int64(-exp)), nil)
	return num, den
}

// floorDiv returns floor(x / y) for y > 0. big.Int.Div is Euclidean, which
// equals floor division for a positive divisor.
func floorDiv(x, y *big.Int) *big.Int {
	return new(big.Int).Div(x, y)
}

// ApplyPercent returns floor(value * (100 + percent) / 100) using exact integer
// arithmetic. percent may be fractional, e.g. -12.5.
func ApplyPercent(value *big.Int, percent decimal.Decimal) *big.Int {
	num, den := ratio(percent)
	// value * (100*den + num) / (100*den)
	multiplier := new(big.Int).Mul(hundred, den)
	divisor := new(big.Int).Set(multiplier)
	multiplier.Add(multiplier, num)
	return floorDiv(new(big.Int).Mul(value, multiplier), divisor)
}

// PercentFactor returns scale * (100 + percent) / 100 truncated to an integer,
// the fixed-point multiplier used by the bidirectional search. percent must be
// greater than -100 so the factor stays positive and invertible.
func PercentFactor(scale *big.Int, percent decimal.Decimal) (*big.Int, error) {
	if percent.LessThanOrEqual(decimal.NewFromInt(-100)) {
		return nil, fmt.Errorf("percent must be greater than -100, got %s", percent.String())
	}
	return ApplyPercent(scale, percent), nil
}

// WithinTolerance reports whether actual lies in
// [expected*(1-tol/100), expected*(1+tol/100)], evaluated without rounding as
// |actual-expected| * 100 * den <= |expected| * num where tol = num/den percent.
func WithinTolerance(expected, actual *big.Int, tolerancePercent decimal.Decimal) bool {
	if expected == nil || actual == nil {
		return false
	}
	if tolerancePercent.IsNegative() {
		return false
	}
	diff := new(big.Int).Sub(actual, expected)
	diff.Abs(diff)
	if tolerancePercent.IsZero() {
		return diff.Sign() == 0
	}

	num, den := ratio(tolerancePercent)
	lhs := new(big.Int).Mul(diff, new(big.Int).Mul(hundred, den))
	rhs := new(big.Int).Mul(new(big.Int).Abs(expected), num)
	return lhs.Cmp(rhs) <= 0
}
