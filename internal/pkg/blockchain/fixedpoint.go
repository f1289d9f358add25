package blockchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatFixed renders a raw fixed-point value with exactly decimals fractional digits,
// e.g. FormatFixed(200050000000, 8) == "2000.50000000".
func FormatFixed(value *big.Int, decimals uint8) string {
	if value == nil {
		value = new(big.Int)
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).StringFixed(int32(decimals))
}

// ParseFixed converts a human price string into a raw fixed-point integer at the
// given precision, e.g. ParseFixed("2000.50", 8) == 200050000000. Inputs with more
// fractional digits than decimals are rejected rather than rounded.
func ParseFixed(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", s, err)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("price %q has more than %d decimal places", s, decimals)
	}
	return shifted.BigInt(), nil
}

// Scale returns 10^decimals.
func Scale(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
