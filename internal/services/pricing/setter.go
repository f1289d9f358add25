// Package pricing writes values into injected mock feeds.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

var minusHundred = decimal.NewFromInt(-100)

// Observer reads a downstream value, typically the protocol's own price for
// the asset, that a feed change is expected to move.
type Observer func(ctx context.Context) (*big.Int, error)

// Config holds configuration for the setter.
type Config struct {
	Logger *slog.Logger
}

// Setter drives a mock's updateAnswer(int256) entry point. Callers inject
// the mock first; a non-mock target surfaces as a transaction error.
type Setter struct {
	client    outbound.ChainClient
	reader    *blockchain.FeedReader
	setterABI *abi.ABI
	logger    *slog.Logger
}

// NewSetter creates a new Setter.
func NewSetter(config Config, client outbound.ChainClient) (*Setter, error) {
	reader, err := blockchain.NewFeedReader(client)
	if err != nil {
		return nil, err
	}
	setterABI, err := abis.GetMockFeedSetterABI()
	if err != nil {
		return nil, fmt.Errorf("loading mock setter ABI: %w", err)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Setter{
		client:    client,
		reader:    reader,
		setterABI: setterABI,
		logger:    config.Logger.With("component", "price-setter"),
	}, nil
}

// SetAbsolute writes value and confirms the feed reports it once mined.
func (s *Setter) SetAbsolute(ctx context.Context, feed common.Address, value *big.Int) (*entity.PriceChangeResult, error) {
	if value == nil {
		return nil, fmt.Errorf("value cannot be nil")
	}

	old, err := s.reader.LatestAnswer(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("reading current value: %w", err)
	}

	txHash, err := s.write(ctx, feed, value)
	if err != nil {
		return nil, err
	}

	actual, err := s.reader.LatestAnswer(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("reading value after update: %w", err)
	}
	if actual.Cmp(value) != 0 {
		return nil, &VerificationFailure{Feed: feed, Expected: new(big.Int).Set(value), Actual: actual}
	}

	s.logger.Info("feed value set",
		"feed", feed.Hex(),
		"old", old.String(),
		"new", value.String(),
		"tx", txHash.Hex())

	return &entity.PriceChangeResult{
		OldValue:  old,
		NewValue:  new(big.Int).Set(value),
		TxHash:    txHash,
		Succeeded: true,
	}, nil
}

func (s *Setter) write(ctx context.Context, feed common.Address, value *big.Int) (common.Hash, error) {
	data, err := s.setterABI.Pack("updateAnswer", value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("packing updateAnswer: %w", err)
	}
	txHash, err := s.client.SendTransaction(ctx, feed, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sending updateAnswer to %s: %w", feed.Hex(), err)
	}
	if _, err := s.client.WaitMined(ctx, txHash); err != nil {
		return txHash, fmt.Errorf("updateAnswer on %s: %w", feed.Hex(), err)
	}
	return txHash, nil
}

// SetByPercentage moves the feed by percent, e.g. -20 for a 20% drop.
// The new value is floor(old * (100 + percent) / 100).
func (s *Setter) SetByPercentage(ctx context.Context, feed common.Address, percent decimal.Decimal) (*entity.PriceChangeResult, error) {
	if percent.LessThan(minusHundred) {
		return nil, fmt.Errorf("percent must be at least -100, got %s", percent.String())
	}

	old, err := s.reader.LatestAnswer(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("reading current value: %w", err)
	}
	if old.Sign() == 0 {
		return nil, ErrZeroBaseline
	}

	return s.SetAbsolute(ctx, feed, blockchain.ApplyPercent(old, percent))
}

// SetByBidirectionalFactor handles feeds that may sit in the numerator or the
// denominator of the value a protocol reads. The forward candidate applies
// the percentage factor, the inverse candidate divides by it. With an
// observer, each candidate is kept only if the observed value moves in the
// direction of percent; without one, the forward candidate is applied and
// the direction reported as unknown.
func (s *Setter) SetByBidirectionalFactor(
	ctx context.Context,
	feed common.Address,
	decimals uint8,
	percent decimal.Decimal,
	observer Observer,
) (*entity.PriceChangeResult, error) {
	if err := entity.ValidateDecimals(decimals); err != nil {
		return nil, err
	}
	scale := blockchain.Scale(decimals)
	factor, err := blockchain.PercentFactor(scale, percent)
	if err != nil {
		return nil, err
	}
	if factor.Sign() == 0 {
		return nil, fmt.Errorf("percent %s rounds to a zero factor at %d decimals", percent.String(), decimals)
	}

	old, err := s.reader.LatestAnswer(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("reading current value: %w", err)
	}
	if old.Sign() == 0 {
		return nil, ErrZeroBaseline
	}

	forward := new(big.Int).Div(new(big.Int).Mul(old, factor), scale)
	inverse := new(big.Int).Div(new(big.Int).Mul(old, scale), factor)
	want := percent.Sign()

	if observer == nil {
		result, err := s.SetAbsolute(ctx, feed, forward)
		if err != nil {
			return nil, err
		}
		result.Direction = entity.DirectionUnknown
		s.logger.Warn("bidirectional change applied without observer, direction unverified",
			"feed", feed.Hex(), "percent", percent.String())
		return result, nil
	}

	baseline, err := observer(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading observer baseline: %w", err)
	}

	candidates := []struct {
		value     *big.Int
		direction entity.Direction
	}{
		{value: forward, direction: entity.DirectionForward},
		{value: inverse, direction: entity.DirectionInverse},
	}

	for n, c := range candidates {
		if n > 0 {
			if _, err := s.SetAbsolute(ctx, feed, old); err != nil {
				return nil, fmt.Errorf("restoring original before %s probe: %w", c.direction, err)
			}
		}

		result, err := s.SetAbsolute(ctx, feed, c.value)
		if err != nil {
			return nil, fmt.Errorf("applying %s candidate: %w", c.direction, err)
		}

		observed, err := observer(ctx)
		if err != nil {
			_, restoreErr := s.SetAbsolute(ctx, feed, old)
			return nil, errors.Join(fmt.Errorf("reading observer after %s candidate: %w", c.direction, err), restoreErr)
		}

		if new(big.Int).Sub(observed, baseline).Sign() == want {
			result.OldValue = new(big.Int).Set(old)
			result.Direction = c.direction
			s.logger.Info("bidirectional change satisfied",
				"feed", feed.Hex(),
				"direction", c.direction,
				"baseline", baseline.String(),
				"observed", observed.String())
			return result, nil
		}
	}

	restored, err := s.SetAbsolute(ctx, feed, old)
	if err != nil {
		return nil, fmt.Errorf("restoring original after failed search: %w", err)
	}
	s.logger.Warn("neither direction moved the observed value", "feed", feed.Hex(), "percent", percent.String())
	return &entity.PriceChangeResult{
		OldValue:  new(big.Int).Set(old),
		NewValue:  restored.NewValue,
		TxHash:    restored.TxHash,
		Succeeded: false,
		Direction: entity.DirectionUnknown,
	}, nil
}

// ResetToZero sets the feed to 0.
func (s *Setter) ResetToZero(ctx context.Context, feed common.Address) (*entity.PriceChangeResult, error) {
	return s.SetAbsolute(ctx, feed, new(big.Int))
}

// ResetToValue restores a previously recorded value.
func (s *Setter) ResetToValue(ctx context.Context, feed common.Address, original *big.Int) (*entity.PriceChangeResult, error) {
	if original == nil {
		return nil, fmt.Errorf("original value cannot be nil")
	}
	return s.SetAbsolute(ctx, feed, original)
}
