// Package verification reads values back from feeds and protocols and
// compares them with what a manipulation intended.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

// PriceAccessor reads the price a protocol itself derives for an asset.
type PriceAccessor interface {
	ProtocolPrice(ctx context.Context, protocol, asset common.Address) (*big.Int, error)
}

// Config holds configuration for the verifier.
type Config struct {
	Logger *slog.Logger
}

// Verifier performs feed-level and protocol-level checks. A mismatch or a
// failed read is reported in the result, never as an error.
type Verifier struct {
	reader    *blockchain.FeedReader
	accessors map[entity.ProtocolKind]PriceAccessor
	logger    *slog.Logger
}

// NewVerifier creates a verifier. accessors maps each protocol kind to the
// accessor used by VerifyProtocolSeesValue; kinds without one fail verification.
func NewVerifier(config Config, client outbound.ChainClient, accessors map[entity.ProtocolKind]PriceAccessor) (*Verifier, error) {
	reader, err := blockchain.NewFeedReader(client)
	if err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	copied := make(map[entity.ProtocolKind]PriceAccessor, len(accessors))
	for k, a := range accessors {
		if a != nil {
			copied[k] = a
		}
	}
	return &Verifier{
		reader:    reader,
		accessors: copied,
		logger:    config.Logger.With("component", "verifier"),
	}, nil
}

// VerifyFeed checks that feed reports exactly expected.
func (v *Verifier) VerifyFeed(ctx context.Context, feed common.Address, expected *big.Int) entity.VerificationResult {
	return v.VerifyFeedWithTolerance(ctx, feed, expected, decimal.Zero)
}

// VerifyFeedWithTolerance checks that feed reports a value within
// tolerancePercent of expected.
func (v *Verifier) VerifyFeedWithTolerance(ctx context.Context, feed common.Address, expected *big.Int, tolerancePercent decimal.Decimal) entity.VerificationResult {
	if expected == nil {
		return failed(nil, "expected value is required")
	}
	actual, err := v.reader.LatestValue(ctx, feed)
	if err != nil {
		v.logger.Warn("feed read failed", "feed", feed.Hex(), "error", err)
		return failed(expected, fmt.Sprintf("reading feed %s: %v", feed.Hex(), err))
	}
	return compare(expected, actual, tolerancePercent, "feed "+feed.Hex())
}

// VerifyProtocolSeesValue checks that the protocol's own price for asset is
// within tolerancePercent of expected.
func (v *Verifier) VerifyProtocolSeesValue(
	ctx context.Context,
	kind entity.ProtocolKind,
	protocol, asset common.Address,
	expected *big.Int,
	tolerancePercent decimal.Decimal,
) entity.VerificationResult {
	if expected == nil {
		return failed(nil, "expected value is required")
	}
	accessor, ok := v.accessors[kind]
	if !ok {
		return failed(expected, fmt.Sprintf("no price accessor for protocol kind %q", kind))
	}

	actual, err := accessor.ProtocolPrice(ctx, protocol, asset)
	if err != nil {
		v.logger.Warn("protocol price read failed",
			"kind", kind,
			"protocol", protocol.Hex(),
			"asset", asset.Hex(),
			"error", err)
		return failed(expected, fmt.Sprintf("reading %s price for %s: %v", kind, asset.Hex(), err))
	}
	return compare(expected, actual, tolerancePercent, string(kind)+" protocol")
}

// Observer adapts the accessor for kind into a function that reads the
// protocol price, for use as a bidirectional search observer.
func (v *Verifier) Observer(kind entity.ProtocolKind, protocol, asset common.Address) (func(ctx context.Context) (*big.Int, error), bool) {
	accessor, ok := v.accessors[kind]
	if !ok {
		return nil, false
	}
	return func(ctx context.Context) (*big.Int, error) {
		return accessor.ProtocolPrice(ctx, protocol, asset)
	}, true
}

func compare(expected, actual *big.Int, tolerancePercent decimal.Decimal, source string) entity.VerificationResult {
	result := entity.VerificationResult{
		Success:  true,
		Expected: new(big.Int).Set(expected),
		Actual:   actual,
		Matches:  blockchain.WithinTolerance(expected, actual, tolerancePercent),
	}
	if !result.Matches {
		result.Message = fmt.Sprintf("%s reports %s, expected %s", source, actual, expected)
		if !tolerancePercent.IsZero() {
			result.Message += fmt.Sprintf(" (tolerance %s%%)", tolerancePercent.String())
		}
	}
	return result
}

func failed(expected *big.Int, message string) entity.VerificationResult {
	result := entity.VerificationResult{Message: message}
	if expected != nil {
		result.Expected = new(big.Int).Set(expected)
	}
	return result
}
