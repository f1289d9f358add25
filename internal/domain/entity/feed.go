package entity

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnsupportedDecimals is returned when a feed or mock reports a precision
// other than the two supported mock variants.
var ErrUnsupportedDecimals = errors.New("unsupported feed decimals")

// Supported feed precisions. Mock artifacts exist for exactly these two.
const (
	Decimals8  uint8 = 8
	Decimals18 uint8 = 18
)

// ValidateDecimals returns an error wrapping ErrUnsupportedDecimals unless d is 8 or 18.
func ValidateDecimals(d uint8) error {
	if d != Decimals8 && d != Decimals18 {
		return fmt.Errorf("%w: %d", ErrUnsupportedDecimals, d)
	}
	return nil
}

// FeedInfo describes the price feed a protocol consults for one asset.
type FeedInfo struct {
	Address     common.Address
	Decimals    uint8
	Description string // empty when the feed does not expose one
}

// NewFeedInfo creates a FeedInfo with validation.
func NewFeedInfo(addr common.Address, decimals uint8, description string) (*FeedInfo, error) {
	if addr == (common.Address{}) {
		return nil, errors.New("feed address must not be zero")
	}
	if err := ValidateDecimals(decimals); err != nil {
		return nil, err
	}
	return &FeedInfo{
		Address:     addr,
		Decimals:    decimals,
		Description: description,
	}, nil
}

// MockFeedHandle identifies a mock that was injected at Address.
// It carries nothing beyond what chain state already holds.
type MockFeedHandle struct {
	Address  common.Address
	Decimals uint8
}
