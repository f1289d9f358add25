// Package injection overwrites the code at a live feed address with a mock
// feed and confirms the swap took.
package injection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

// InjectionError reports a failed code overwrite or post-injection check.
type InjectionError struct {
	Address common.Address
	Op      string
	Err     error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("injecting mock at %s: %s: %v", e.Address.Hex(), e.Op, e.Err)
}

func (e *InjectionError) Unwrap() error {
	return e.Err
}

// Conventions are probed in this order on every injection.
var probeOrder = []outbound.DevNodeConvention{outbound.ConventionAnvil, outbound.ConventionHardhat}

// Config holds configuration for the injector.
type Config struct {
	Logger  *slog.Logger
	Metrics outbound.MetricsRecorder
}

// Injector swaps mock feed bytecode into target addresses.
type Injector struct {
	client    outbound.ChainClient
	artifacts outbound.ArtifactProvider
	feedABI   *abi.ABI
	metrics   outbound.MetricsRecorder
	logger    *slog.Logger
}

// NewInjector creates a new Injector.
func NewInjector(config Config, client outbound.ChainClient, artifacts outbound.ArtifactProvider) (*Injector, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact provider cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = outbound.NopMetrics{}
	}

	feedABI, err := abis.GetAggregatorV3ABI()
	if err != nil {
		return nil, fmt.Errorf("loading AggregatorV3 ABI: %w", err)
	}

	return &Injector{
		client:    client,
		artifacts: artifacts,
		feedABI:   feedABI,
		metrics:   config.Metrics,
		logger:    config.Logger.With("component", "mock-injector"),
	}, nil
}

// Inject replaces the code at target with the mock for decimals and
// validates that the mock answers. Existing storage at target is kept.
func (i *Injector) Inject(ctx context.Context, target common.Address, decimals uint8) (entity.MockFeedHandle, error) {
	if err := entity.ValidateDecimals(decimals); err != nil {
		return entity.MockFeedHandle{}, err
	}

	handle, err := i.inject(ctx, target, decimals)
	status := "success"
	if err != nil {
		status = "failure"
	}
	i.metrics.RecordInjection(ctx, decimals, status)
	return handle, err
}

func (i *Injector) inject(ctx context.Context, target common.Address, decimals uint8) (entity.MockFeedHandle, error) {
	artifact, err := i.artifacts.Artifact(decimals)
	if err != nil {
		return entity.MockFeedHandle{}, fmt.Errorf("loading mock artifact: %w", err)
	}

	convention, err := i.setCode(ctx, target, artifact.DeployedBytecode)
	if err != nil {
		return entity.MockFeedHandle{}, &InjectionError{Address: target, Op: "set code", Err: err}
	}

	if err := i.validate(ctx, target, decimals); err != nil {
		return entity.MockFeedHandle{}, &InjectionError{Address: target, Op: "validate", Err: err}
	}

	i.logger.Info("mock injected",
		"feed", target.Hex(),
		"decimals", decimals,
		"artifact", artifact.Name,
		"convention", convention)
	return entity.MockFeedHandle{Address: target, Decimals: decimals}, nil
}

// setCode tries each convention in turn and returns the one the node accepted.
func (i *Injector) setCode(ctx context.Context, target common.Address, code []byte) (outbound.DevNodeConvention, error) {
	var errs []error
	for _, convention := range probeOrder {
		err := i.client.SetCode(ctx, convention, target, code)
		if err == nil {
			return convention, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		i.logger.Debug("setCode rejected", "convention", convention, "error", err)
		errs = append(errs, err)
	}
	return "", errors.Join(errs...)
}

// validate reads decimals() and latestAnswer() in one batch.
func (i *Injector) validate(ctx context.Context, target common.Address, decimals uint8) error {
	results, err := i.probe(ctx, target)
	if err != nil {
		return err
	}

	unpacked, err := i.feedABI.Unpack("decimals", results[0].ReturnData)
	if err != nil {
		return fmt.Errorf("decoding decimals: %w", err)
	}
	if len(unpacked) == 0 {
		return fmt.Errorf("decimals() returned no values")
	}
	got, ok := unpacked[0].(uint8)
	if !ok {
		return fmt.Errorf("unexpected decimals type %T", unpacked[0])
	}
	if got != decimals {
		return fmt.Errorf("decimals() returned %d, want %d", got, decimals)
	}

	if _, err := i.feedABI.Unpack("latestAnswer", results[1].ReturnData); err != nil {
		return fmt.Errorf("decoding latestAnswer: %w", err)
	}
	return nil
}

func (i *Injector) probe(ctx context.Context, target common.Address) ([]outbound.Result, error) {
	decimalsData, err := i.feedABI.Pack("decimals")
	if err != nil {
		return nil, fmt.Errorf("packing decimals: %w", err)
	}
	answerData, err := i.feedABI.Pack("latestAnswer")
	if err != nil {
		return nil, fmt.Errorf("packing latestAnswer: %w", err)
	}

	results, err := i.client.BatchCall(ctx, []outbound.Call{
		{Target: target, CallData: decimalsData},
		{Target: target, CallData: answerData},
	})
	if err != nil {
		return nil, err
	}
	if len(results) != 2 {
		return nil, fmt.Errorf("expected 2 results, got %d", len(results))
	}
	return results, nil
}

// IsInjected reports whether target answers both decimals() and
// latestAnswer(). Any failure yields false.
func (i *Injector) IsInjected(ctx context.Context, target common.Address) bool {
	results, err := i.probe(ctx, target)
	if err != nil {
		return false
	}
	if _, err := i.feedABI.Unpack("decimals", results[0].ReturnData); err != nil {
		return false
	}
	out, err := i.feedABI.Unpack("latestAnswer", results[1].ReturnData)
	if err != nil || len(out) == 0 {
		return false
	}
	_, ok := out[0].(*big.Int)
	return ok
}

// HasMockCode reports whether target already runs the mock for decimals.
func (i *Injector) HasMockCode(ctx context.Context, target common.Address, decimals uint8) (bool, error) {
	artifact, err := i.artifacts.Artifact(decimals)
	if err != nil {
		return false, err
	}
	code, err := i.client.CodeAt(ctx, target)
	if err != nil {
		return false, fmt.Errorf("reading code at %s: %w", target.Hex(), err)
	}
	return bytes.Equal(code, artifact.DeployedBytecode), nil
}
