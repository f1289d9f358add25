// Package manipulator orchestrates discovery, injection, price setting and
// verification behind the inbound.OracleManipulator port.
package manipulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain"
	"github.com/archon-research/oracle-forge/internal/ports/inbound"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
	"github.com/archon-research/oracle-forge/internal/services/discovery"
	"github.com/archon-research/oracle-forge/internal/services/injection"
	"github.com/archon-research/oracle-forge/internal/services/pricing"
	"github.com/archon-research/oracle-forge/internal/services/verification"
)

const tracerName = "github.com/archon-research/oracle-forge/internal/services/manipulator"

// ErrNoOriginalValue is returned by Reset when nothing was recorded for the key.
var ErrNoOriginalValue = errors.New("no original value found")

// Config holds configuration for the engine.
type Config struct {
	// Network is the name of the fork the client points at, used in cache keys.
	Network string
	Logger  *slog.Logger
	Metrics outbound.MetricsRecorder
}

// ConfigDefaults returns the default engine configuration.
func ConfigDefaults() Config {
	return Config{
		Network: "fork",
	}
}

// Engine is bound to a single chain client and network.
type Engine struct {
	network   string
	client    outbound.ChainClient
	originals outbound.OriginalPriceStore
	reader    *blockchain.FeedReader
	discovery *discovery.Service
	injector  *injection.Injector
	setter    *pricing.Setter
	verifier  *verification.Verifier
	metrics   outbound.MetricsRecorder
	logger    *slog.Logger
}

var _ inbound.OracleManipulator = (*Engine)(nil)

// NewEngine wires the subsystems around client. Discovery tries the Aave V3
// adapter first, then the asset-info lending market adapter.
func NewEngine(
	config Config,
	client outbound.ChainClient,
	artifacts outbound.ArtifactProvider,
	originals outbound.OriginalPriceStore,
) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if originals == nil {
		return nil, fmt.Errorf("original price store cannot be nil")
	}
	defaults := ConfigDefaults()
	if config.Network == "" {
		config.Network = defaults.Network
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = outbound.NopMetrics{}
	}

	aave, err := discovery.NewAaveV3Adapter(client)
	if err != nil {
		return nil, fmt.Errorf("creating aave adapter: %w", err)
	}
	market, err := discovery.NewAssetInfoAdapter(client)
	if err != nil {
		return nil, fmt.Errorf("creating lending market adapter: %w", err)
	}

	disc, err := discovery.NewService(discovery.Config{Logger: config.Logger, Metrics: config.Metrics}, aave, market)
	if err != nil {
		return nil, fmt.Errorf("creating discovery service: %w", err)
	}
	injector, err := injection.NewInjector(injection.Config{Logger: config.Logger, Metrics: config.Metrics}, client, artifacts)
	if err != nil {
		return nil, fmt.Errorf("creating injector: %w", err)
	}
	setter, err := pricing.NewSetter(pricing.Config{Logger: config.Logger}, client)
	if err != nil {
		return nil, fmt.Errorf("creating price setter: %w", err)
	}
	verifier, err := verification.NewVerifier(verification.Config{Logger: config.Logger}, client,
		map[entity.ProtocolKind]verification.PriceAccessor{
			entity.ProtocolAaveV3:        aave,
			entity.ProtocolSparkLend:     aave,
			entity.ProtocolLendingMarket: market,
		})
	if err != nil {
		return nil, fmt.Errorf("creating verifier: %w", err)
	}
	reader, err := blockchain.NewFeedReader(client)
	if err != nil {
		return nil, err
	}

	return &Engine{
		network:   config.Network,
		client:    client,
		originals: originals,
		reader:    reader,
		discovery: disc,
		injector:  injector,
		setter:    setter,
		verifier:  verifier,
		metrics:   config.Metrics,
		logger:    config.Logger.With("component", "oracle-manipulator", "network", config.Network),
	}, nil
}

// Network returns the network name the engine is bound to.
func (e *Engine) Network() string {
	return e.network
}

func (e *Engine) checkNetwork(network string) error {
	if network == "" || strings.EqualFold(network, e.network) {
		return nil
	}
	return fmt.Errorf("request network %q does not match engine network %q", network, e.network)
}

// SetOraclePrice runs discovery, injection, price setting and verification.
// The first value observed for a protocol/asset pair is recorded for Reset.
func (e *Engine) SetOraclePrice(ctx context.Context, req entity.SetPriceRequest) (*entity.SetPriceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkNetwork(req.Network); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "manipulator.SetOraclePrice",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("protocol.kind", string(req.Kind)),
			attribute.String("protocol.address", req.Protocol.Hex()),
			attribute.String("asset.address", req.Asset.Hex()),
			attribute.String("mode", req.Mode()),
		),
	)
	defer span.End()

	resp, err := e.setOraclePrice(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set oracle price failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("feed.address", resp.Feed.Address.Hex()),
		attribute.Bool("feed.injected", resp.Injected),
		attribute.Bool("feed.matches", resp.FeedCheck.Matches),
	)
	return resp, nil
}

func (e *Engine) setOraclePrice(ctx context.Context, req entity.SetPriceRequest) (*entity.SetPriceResponse, error) {
	feed, err := e.discovery.DiscoverFeedFor(ctx, req.Kind, req.Protocol, req.Asset)
	if err != nil {
		return nil, err
	}

	key := entity.CacheKey(e.network, req.Protocol, req.Asset)
	injected, err := e.ensureMock(ctx, feed, key)
	if err != nil {
		return nil, err
	}

	mode := req.Mode()
	change, err := e.applyChange(ctx, req, feed)
	status := "success"
	if err != nil || !change.Succeeded {
		status = "failure"
	}
	e.metrics.RecordManipulation(ctx, mode, status)
	if err != nil {
		return nil, fmt.Errorf("setting %s price on feed %s: %w", mode, feed.Address.Hex(), err)
	}

	resp := &entity.SetPriceResponse{
		Feed:      *feed,
		Injected:  injected,
		Change:    *change,
		FeedCheck: e.verifier.VerifyFeedWithTolerance(ctx, feed.Address, change.NewValue, req.Tolerance),
	}

	if req.VerifyProtocol && !req.Bidirectional {
		check := e.verifier.VerifyProtocolSeesValue(ctx, req.Kind, req.Protocol, req.Asset, change.NewValue, req.Tolerance)
		resp.ProtocolCheck = &check
	}

	e.logger.Info("oracle price set",
		"protocol", req.Protocol.Hex(),
		"asset", req.Asset.Hex(),
		"feed", feed.Address.Hex(),
		"mode", mode,
		"old", blockchain.FormatFixed(change.OldValue, feed.Decimals),
		"new", blockchain.FormatFixed(change.NewValue, feed.Decimals),
		"direction", change.Direction,
		"feedMatches", resp.FeedCheck.Matches)
	return resp, nil
}

func (e *Engine) applyChange(ctx context.Context, req entity.SetPriceRequest, feed *entity.FeedInfo) (*entity.PriceChangeResult, error) {
	switch {
	case req.RawPrice != nil:
		return e.setter.SetAbsolute(ctx, feed.Address, req.RawPrice)
	case req.Percent != nil && req.Bidirectional:
		var observer pricing.Observer
		if req.VerifyProtocol {
			if observe, ok := e.verifier.Observer(req.Kind, req.Protocol, req.Asset); ok {
				observer = observe
			}
		}
		return e.setter.SetByBidirectionalFactor(ctx, feed.Address, feed.Decimals, *req.Percent, observer)
	case req.Percent != nil:
		return e.setter.SetByPercentage(ctx, feed.Address, *req.Percent)
	default:
		value, err := blockchain.ParseFixed(req.Price, feed.Decimals)
		if err != nil {
			return nil, err
		}
		return e.setter.SetAbsolute(ctx, feed.Address, value)
	}
}

// ensureMock records the live value under key and, unless the feed already
// runs mock code, injects the mock and seeds it with that value. It reports
// whether an injection happened.
func (e *Engine) ensureMock(ctx context.Context, feed *entity.FeedInfo, key string) (bool, error) {
	hasMock, err := e.injector.HasMockCode(ctx, feed.Address, feed.Decimals)
	if err != nil {
		return false, fmt.Errorf("inspecting feed %s: %w", feed.Address.Hex(), err)
	}

	live, err := e.reader.LatestValue(ctx, feed.Address)
	if err != nil {
		return false, fmt.Errorf("reading live value of %s: %w", feed.Address.Hex(), err)
	}
	stored, err := e.originals.PutIfAbsent(ctx, key, live)
	if err != nil {
		return false, fmt.Errorf("recording original value: %w", err)
	}
	if stored {
		e.logger.Debug("original value recorded", "key", key, "value", live.String())
	}

	if hasMock {
		return false, nil
	}
	if _, err := e.injector.Inject(ctx, feed.Address, feed.Decimals); err != nil {
		return false, err
	}
	if _, err := e.setter.SetAbsolute(ctx, feed.Address, live); err != nil {
		return true, fmt.Errorf("seeding mock at %s: %w", feed.Address.Hex(), err)
	}
	return true, nil
}

// Reset restores the recorded original and forgets it. With ToZero the feed
// is set to 0 and the original stays recorded.
func (e *Engine) Reset(ctx context.Context, req entity.ResetRequest) (*entity.ResetResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkNetwork(req.Network); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "manipulator.Reset",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("protocol.address", req.Protocol.Hex()),
			attribute.String("asset.address", req.Asset.Hex()),
			attribute.Bool("reset.to_zero", req.ToZero),
		),
	)
	defer span.End()

	resp, err := e.reset(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reset failed")
		return nil, err
	}
	return resp, nil
}

func (e *Engine) reset(ctx context.Context, req entity.ResetRequest) (*entity.ResetResponse, error) {
	key := entity.CacheKey(e.network, req.Protocol, req.Asset)
	var original *big.Int
	if !req.ToZero {
		value, ok, err := e.originals.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading original value: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoOriginalValue, key)
		}
		original = value
	}

	feed, err := e.discovery.DiscoverFeedFor(ctx, req.Kind, req.Protocol, req.Asset)
	if err != nil {
		return nil, err
	}
	if _, err := e.ensureMock(ctx, feed, key); err != nil {
		return nil, err
	}

	var change *entity.PriceChangeResult
	if req.ToZero {
		change, err = e.setter.ResetToZero(ctx, feed.Address)
	} else {
		change, err = e.setter.ResetToValue(ctx, feed.Address, original)
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	e.metrics.RecordManipulation(ctx, "reset", status)
	if err != nil {
		return nil, fmt.Errorf("resetting feed %s: %w", feed.Address.Hex(), err)
	}

	if !req.ToZero {
		if err := e.originals.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("clearing original value: %w", err)
		}
	}

	e.logger.Info("oracle price reset",
		"protocol", req.Protocol.Hex(),
		"asset", req.Asset.Hex(),
		"feed", feed.Address.Hex(),
		"toZero", req.ToZero,
		"value", change.NewValue.String())
	return &entity.ResetResponse{Feed: *feed, Change: *change}, nil
}

// DiscoverFeed locates the feed for asset, preferring adapters for kind.
func (e *Engine) DiscoverFeed(ctx context.Context, kind entity.ProtocolKind, protocol, asset common.Address) (*entity.FeedInfo, error) {
	return e.discovery.DiscoverFeedFor(ctx, kind, protocol, asset)
}

// DeployMockAt injects a mock at addr. A non-nil initial value is written
// after injection.
func (e *Engine) DeployMockAt(ctx context.Context, addr common.Address, decimals uint8, initial *big.Int) (entity.MockFeedHandle, error) {
	handle, err := e.injector.Inject(ctx, addr, decimals)
	if err != nil {
		return entity.MockFeedHandle{}, err
	}
	if initial != nil {
		if _, err := e.setter.SetAbsolute(ctx, addr, initial); err != nil {
			return handle, fmt.Errorf("seeding mock at %s: %w", addr.Hex(), err)
		}
	}
	return handle, nil
}

// VerifyValueAtFeed compares the value at feed with expected.
func (e *Engine) VerifyValueAtFeed(ctx context.Context, feed common.Address, expected *big.Int, tolerancePercent decimal.Decimal) entity.VerificationResult {
	return e.verifier.VerifyFeedWithTolerance(ctx, feed, expected, tolerancePercent)
}

// WriteMappingSlot overwrites mapping[key] and reads it back.
func (e *Engine) WriteMappingSlot(ctx context.Context, contract common.Address, baseSlot *uint256.Int, key common.Hash, value *big.Int) (common.Hash, error) {
	if baseSlot == nil || value == nil {
		return common.Hash{}, fmt.Errorf("base slot and value are required")
	}
	slot := blockchain.MappingSlot(key, baseSlot)
	word := blockchain.WordFromBig(value)
	if err := e.client.SetStorageAt(ctx, contract, slot, word); err != nil {
		return common.Hash{}, fmt.Errorf("writing slot %s of %s: %w", slot.Hex(), contract.Hex(), err)
	}
	got, err := e.client.StorageAt(ctx, contract, slot)
	if err != nil {
		return slot, fmt.Errorf("reading back slot %s: %w", slot.Hex(), err)
	}
	if got != word {
		return slot, fmt.Errorf("slot %s holds %s after write, expected %s", slot.Hex(), got.Hex(), word.Hex())
	}
	e.logger.Info("storage slot written", "contract", contract.Hex(), "slot", slot.Hex(), "value", value.String())
	return slot, nil
}
