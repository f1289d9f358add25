package entity

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrMissingTarget is returned when a manipulation request carries neither an
// absolute value nor a percentage delta (or carries both).
var ErrMissingTarget = errors.New("exactly one of an absolute price or a percentage change is required")

// SetPriceRequest asks the engine to move the price a protocol sees for asset.
// Exactly one of Price, RawPrice and Percent must be set.
type SetPriceRequest struct {
	Kind     ProtocolKind
	Network  string
	Protocol common.Address
	Asset    common.Address

	// Price is a human-readable value such as "2000.5", scaled by the feed's decimals.
	Price string
	// RawPrice is a value already in the feed's fixed-point units.
	RawPrice *big.Int
	// Percent is a relative change, e.g. -20 for a 20% drop.
	Percent *decimal.Decimal

	// Bidirectional applies Percent through the forward/inverse factor search.
	Bidirectional bool
	// VerifyProtocol also checks the protocol's own price view after the change.
	VerifyProtocol bool
	// Tolerance is the accepted deviation in percent for verification.
	Tolerance decimal.Decimal
}

// Validate checks the request without touching the chain.
func (r SetPriceRequest) Validate() error {
	targets := 0
	if strings.TrimSpace(r.Price) != "" {
		targets++
	}
	if r.RawPrice != nil {
		targets++
	}
	if r.Percent != nil {
		targets++
	}
	if targets != 1 {
		return ErrMissingTarget
	}
	if r.Bidirectional && r.Percent == nil {
		return fmt.Errorf("bidirectional mode requires a percentage change")
	}
	if r.VerifyProtocol && r.Kind == "" {
		return fmt.Errorf("protocol verification requires a protocol kind")
	}
	if r.Tolerance.IsNegative() {
		return fmt.Errorf("tolerance cannot be negative, got %s", r.Tolerance.String())
	}
	return r.target().validate()
}

// Mode names the price-setting mode the request selects.
func (r SetPriceRequest) Mode() string {
	switch {
	case r.Percent != nil && r.Bidirectional:
		return "bidirectional"
	case r.Percent != nil:
		return "percentage"
	default:
		return "absolute"
	}
}

func (r SetPriceRequest) target() target {
	return target{protocol: r.Protocol, asset: r.Asset}
}

// SetPriceResponse reports every stage of a manipulation. FeedCheck and
// ProtocolCheck carry mismatches as data so the change can still be inspected.
type SetPriceResponse struct {
	Feed          FeedInfo
	Injected      bool
	Change        PriceChangeResult
	FeedCheck     VerificationResult
	ProtocolCheck *VerificationResult
}

// ResetRequest undoes manipulations for one protocol/asset pair. With ToZero
// the feed is set to 0 and the recorded original is kept.
type ResetRequest struct {
	Kind     ProtocolKind
	Network  string
	Protocol common.Address
	Asset    common.Address
	ToZero   bool
}

// Validate checks the request without touching the chain.
func (r ResetRequest) Validate() error {
	return target{protocol: r.Protocol, asset: r.Asset}.validate()
}

// ResetResponse reports the restoring write.
type ResetResponse struct {
	Feed   FeedInfo
	Change PriceChangeResult
}

type target struct {
	protocol common.Address
	asset    common.Address
}

func (t target) validate() error {
	if t.protocol == (common.Address{}) {
		return fmt.Errorf("protocol address is required")
	}
	if t.asset == (common.Address{}) {
		return fmt.Errorf("asset address is required")
	}
	return nil
}
