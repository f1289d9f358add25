package manipulator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/archon-research/oracle-forge/internal/adapters/outbound/artifacts"
	"github.com/archon-research/oracle-forge/internal/adapters/outbound/memory"
	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain"
	"github.com/archon-research/oracle-forge/internal/services/discovery"
	"github.com/archon-research/oracle-forge/internal/testutil"
)

var (
	poolAddr     = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
	providerAddr = common.HexToAddress("0x2f39d218133AFaB8F2B819B1066c7E434Ad94E9e")
	oracleAddr   = common.HexToAddress("0x54586bE62E3c3580375aE3723C145253060Ca0C2")
	marketAddr   = common.HexToAddress("0xc3d688B66703497DAA19211EEdff47f25384cdc3")
	wethAddr     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	feedAddr     = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	usdcFeed     = common.HexToAddress("0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6")
)

const liveAnswer = 250000000000

type manipulation struct{ mode, status string }

type recordingMetrics struct {
	mu            sync.Mutex
	manipulations []manipulation
	injections    int
}

func (r *recordingMetrics) RecordManipulation(_ context.Context, mode, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manipulations = append(r.manipulations, manipulation{mode: mode, status: status})
}

func (r *recordingMetrics) RecordInjection(context.Context, uint8, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.injections++
}

func (r *recordingMetrics) RecordDiscovery(context.Context, string, time.Duration, string) {}

type fixture struct {
	chain     *testutil.FakeChain
	originals *memory.OriginalPriceStore
	metrics   *recordingMetrics
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chain := testutil.NewFakeChain()
	testutil.DeployAaveMarket(chain, testutil.AaveMarket{
		Pool:     poolAddr,
		Provider: providerAddr,
		Oracle:   oracleAddr,
		Sources:  map[common.Address]common.Address{wethAddr: feedAddr},
	})
	chain.Deploy(feedAddr, testutil.NewStaticFeed(8, big.NewInt(liveAnswer), "ETH / USD").Handler())

	f := &fixture{
		chain:     chain,
		originals: memory.NewOriginalPriceStore(),
		metrics:   &recordingMetrics{},
	}
	engine, err := NewEngine(Config{Network: "fork", Logger: testutil.DiscardLogger(), Metrics: f.metrics},
		chain, artifacts.NewProvider(), f.originals)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	f.engine = engine
	return f
}

func (f *fixture) original(t *testing.T) (*big.Int, bool) {
	t.Helper()
	v, ok, err := f.originals.Get(context.Background(), entity.CacheKey("fork", poolAddr, wethAddr))
	if err != nil {
		t.Fatal(err)
	}
	return v, ok
}

func pct(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestNewEngine_Validation(t *testing.T) {
	if _, err := NewEngine(Config{}, nil, artifacts.NewProvider(), memory.NewOriginalPriceStore()); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewEngine(Config{}, testutil.NewFakeChain(), artifacts.NewProvider(), nil); err == nil {
		t.Error("expected error for nil store")
	}
	e, err := NewEngine(Config{}, testutil.NewFakeChain(), artifacts.NewProvider(), memory.NewOriginalPriceStore())
	if err != nil {
		t.Fatal(err)
	}
	if e.Network() != "fork" {
		t.Errorf("Network() = %q, want fork", e.Network())
	}
}

func TestDeployMockAt_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	handle, err := f.engine.DeployMockAt(ctx, target, 8, big.NewInt(200000000000))
	if err != nil {
		t.Fatalf("DeployMockAt: %v", err)
	}
	if handle.Address != target || handle.Decimals != 8 {
		t.Errorf("handle = %+v", handle)
	}

	if got := f.engine.VerifyValueAtFeed(ctx, target, big.NewInt(200000000000), decimal.Zero); !got.Matches {
		t.Fatalf("expected match after deploy, got %+v", got)
	}

	result, err := f.engine.setter.SetByPercentage(ctx, target, decimal.NewFromInt(-20))
	if err != nil {
		t.Fatalf("SetByPercentage: %v", err)
	}
	if result.NewValue.Int64() != 160000000000 {
		t.Errorf("NewValue = %s, want 160000000000", result.NewValue)
	}
	if got := f.engine.VerifyValueAtFeed(ctx, target, big.NewInt(160000000000), decimal.Zero); !got.Matches {
		t.Errorf("expected match after percentage change, got %+v", got)
	}
}

func TestDeployMockAt_UnsupportedDecimals(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.DeployMockAt(context.Background(), feedAddr, 6, nil)
	if !errors.Is(err, entity.ErrUnsupportedDecimals) {
		t.Fatalf("expected ErrUnsupportedDecimals, got %v", err)
	}
}

func TestSetOraclePrice_AaveFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.engine.SetOraclePrice(ctx, entity.SetPriceRequest{
		Kind:           entity.ProtocolAaveV3,
		Protocol:       poolAddr,
		Asset:          wethAddr,
		RawPrice:       big.NewInt(200000000000),
		VerifyProtocol: true,
	})
	if err != nil {
		t.Fatalf("SetOraclePrice: %v", err)
	}
	if !resp.Injected {
		t.Error("expected first call to inject")
	}
	if resp.Feed.Address != feedAddr || resp.Feed.Decimals != 8 {
		t.Errorf("feed = %+v", resp.Feed)
	}
	if resp.Change.OldValue.Int64() != liveAnswer || resp.Change.NewValue.Int64() != 200000000000 {
		t.Errorf("change = %+v", resp.Change)
	}
	if !resp.FeedCheck.Matches {
		t.Errorf("feed check: %+v", resp.FeedCheck)
	}
	if resp.ProtocolCheck == nil || !resp.ProtocolCheck.Matches {
		t.Errorf("protocol check: %+v", resp.ProtocolCheck)
	}
	if v, ok := f.original(t); !ok || v.Int64() != liveAnswer {
		t.Errorf("original = %v, %v", v, ok)
	}

	resp, err = f.engine.SetOraclePrice(ctx, entity.SetPriceRequest{
		Kind:     entity.ProtocolAaveV3,
		Protocol: poolAddr,
		Asset:    wethAddr,
		Percent:  pct("-20"),
	})
	if err != nil {
		t.Fatalf("SetOraclePrice percent: %v", err)
	}
	if resp.Injected {
		t.Error("second call should reuse the injected mock")
	}
	if resp.Change.OldValue.Int64() != 200000000000 || resp.Change.NewValue.Int64() != 160000000000 {
		t.Errorf("change = %+v", resp.Change)
	}
	if !resp.FeedCheck.Matches {
		t.Errorf("feed check: %+v", resp.FeedCheck)
	}
	if resp.ProtocolCheck != nil {
		t.Error("protocol check should be skipped when not requested")
	}

	if v, _ := f.original(t); v.Int64() != liveAnswer {
		t.Errorf("original overwritten: %s", v)
	}

	reset, err := f.engine.Reset(ctx, entity.ResetRequest{Kind: entity.ProtocolAaveV3, Protocol: poolAddr, Asset: wethAddr})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if reset.Change.OldValue.Int64() != 160000000000 || reset.Change.NewValue.Int64() != liveAnswer {
		t.Errorf("reset change = %+v", reset.Change)
	}
	if f.originals.Len() != 0 {
		t.Error("reset should clear the original entry")
	}

	_, err = f.engine.Reset(ctx, entity.ResetRequest{Kind: entity.ProtocolAaveV3, Protocol: poolAddr, Asset: wethAddr})
	if !errors.Is(err, ErrNoOriginalValue) {
		t.Fatalf("expected ErrNoOriginalValue, got %v", err)
	}

	want := []manipulation{
		{mode: "absolute", status: "success"},
		{mode: "percentage", status: "success"},
		{mode: "reset", status: "success"},
	}
	if len(f.metrics.manipulations) != len(want) {
		t.Fatalf("manipulations = %+v", f.metrics.manipulations)
	}
	for i := range want {
		if f.metrics.manipulations[i] != want[i] {
			t.Errorf("manipulation %d = %+v, want %+v", i, f.metrics.manipulations[i], want[i])
		}
	}
	if f.metrics.injections != 1 {
		t.Errorf("injections = %d, want 1", f.metrics.injections)
	}
}

func TestSetOraclePrice_PriceString(t *testing.T) {
	f := newFixture(t)

	resp, err := f.engine.SetOraclePrice(context.Background(), entity.SetPriceRequest{
		Protocol: poolAddr,
		Asset:    wethAddr,
		Price:    "2000.5",
	})
	if err != nil {
		t.Fatalf("SetOraclePrice: %v", err)
	}
	if resp.Change.NewValue.Int64() != 200050000000 {
		t.Errorf("NewValue = %s, want 200050000000", resp.Change.NewValue)
	}
}

func TestSetOraclePrice_PriceTooPrecise(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.SetOraclePrice(context.Background(), entity.SetPriceRequest{
		Protocol: poolAddr,
		Asset:    wethAddr,
		Price:    "1.123456789",
	})
	if err == nil {
		t.Fatal("expected error for a price finer than the feed precision")
	}
	if f.metrics.manipulations[0].status != "failure" {
		t.Errorf("expected failure metric, got %+v", f.metrics.manipulations)
	}
}

func TestSetOraclePrice_Bidirectional(t *testing.T) {
	f := newFixture(t)

	resp, err := f.engine.SetOraclePrice(context.Background(), entity.SetPriceRequest{
		Kind:           entity.ProtocolAaveV3,
		Protocol:       poolAddr,
		Asset:          wethAddr,
		Percent:        pct("-20"),
		Bidirectional:  true,
		VerifyProtocol: true,
	})
	if err != nil {
		t.Fatalf("SetOraclePrice: %v", err)
	}
	if resp.Change.Direction != entity.DirectionForward {
		t.Errorf("Direction = %q, want forward", resp.Change.Direction)
	}
	if resp.Change.NewValue.Int64() != 200000000000 {
		t.Errorf("NewValue = %s, want 200000000000", resp.Change.NewValue)
	}
	if !resp.FeedCheck.Matches {
		t.Errorf("feed check: %+v", resp.FeedCheck)
	}
}

func TestSetOraclePrice_LendingMarket(t *testing.T) {
	chain := testutil.NewFakeChain()
	testutil.DeployLendingMarket(chain, testutil.LendingMarket{
		Market:   marketAddr,
		Base:     usdcAddr,
		BaseFeed: usdcFeed,
		Feeds:    map[common.Address]common.Address{wethAddr: feedAddr},
	})
	chain.Deploy(feedAddr, testutil.NewStaticFeed(8, big.NewInt(liveAnswer), "").Handler())
	chain.Deploy(usdcFeed, testutil.NewStaticFeed(8, big.NewInt(100000000), "").Handler())

	engine, err := NewEngine(Config{Logger: testutil.DiscardLogger()}, chain, artifacts.NewProvider(), memory.NewOriginalPriceStore())
	if err != nil {
		t.Fatal(err)
	}

	resp, err := engine.SetOraclePrice(context.Background(), entity.SetPriceRequest{
		Kind:           entity.ProtocolLendingMarket,
		Protocol:       marketAddr,
		Asset:          wethAddr,
		Percent:        pct("10"),
		VerifyProtocol: true,
	})
	if err != nil {
		t.Fatalf("SetOraclePrice: %v", err)
	}
	if resp.Change.NewValue.Int64() != 275000000000 {
		t.Errorf("NewValue = %s, want 275000000000", resp.Change.NewValue)
	}
	if resp.ProtocolCheck == nil || !resp.ProtocolCheck.Matches {
		t.Errorf("protocol check: %+v", resp.ProtocolCheck)
	}
}

func TestSetOraclePrice_PreconditionsSkipChain(t *testing.T) {
	tests := []struct {
		name    string
		req     entity.SetPriceRequest
		wantErr error
	}{
		{
			name:    "missing target",
			req:     entity.SetPriceRequest{Protocol: poolAddr, Asset: wethAddr},
			wantErr: entity.ErrMissingTarget,
		},
		{
			name: "wrong network",
			req:  entity.SetPriceRequest{Network: "mainnet", Protocol: poolAddr, Asset: wethAddr, Price: "1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.engine.SetOraclePrice(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
			if f.chain.CallCount != 0 || len(f.chain.Sent) != 0 {
				t.Error("preconditions must fail before any chain interaction")
			}
		})
	}
}

func TestSetOraclePrice_NetworkIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SetOraclePrice(context.Background(), entity.SetPriceRequest{
		Network: "FORK", Protocol: poolAddr, Asset: wethAddr, Price: "1",
	})
	if err != nil {
		t.Fatalf("SetOraclePrice: %v", err)
	}
}

func TestSetOraclePrice_DiscoveryFailure(t *testing.T) {
	f := newFixture(t)
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	_, err := f.engine.SetOraclePrice(context.Background(), entity.SetPriceRequest{
		Protocol: unknown, Asset: wethAddr, Price: "1",
	})
	var discErr *discovery.Error
	if !errors.As(err, &discErr) {
		t.Fatalf("expected *discovery.Error, got %v", err)
	}
	if len(discErr.Attempts) != 2 {
		t.Errorf("attempts = %+v", discErr.Attempts)
	}
	if len(f.chain.Sent) != 0 {
		t.Error("no transaction should be sent after discovery fails")
	}
}

func TestReset_ToZeroKeepsOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := entity.ResetRequest{Kind: entity.ProtocolAaveV3, Protocol: poolAddr, Asset: wethAddr, ToZero: true}

	resp, err := f.engine.Reset(ctx, req)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if resp.Change.NewValue.Sign() != 0 {
		t.Errorf("NewValue = %s, want 0", resp.Change.NewValue)
	}
	if v, ok := f.original(t); !ok || v.Int64() != liveAnswer {
		t.Errorf("original = %v, %v", v, ok)
	}

	req.ToZero = false
	resp, err = f.engine.Reset(ctx, req)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if resp.Change.NewValue.Int64() != liveAnswer {
		t.Errorf("NewValue = %s, want %d", resp.Change.NewValue, liveAnswer)
	}
}

func TestReset_NoOriginalSkipsChain(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Reset(context.Background(), entity.ResetRequest{Protocol: poolAddr, Asset: wethAddr})
	if !errors.Is(err, ErrNoOriginalValue) {
		t.Fatalf("expected ErrNoOriginalValue, got %v", err)
	}
	if err.Error() == ErrNoOriginalValue.Error() {
		t.Error("expected the key in the error message")
	}
	if f.chain.CallCount != 0 {
		t.Error("missing original should fail before any chain read")
	}
}

func TestDiscoverFeed(t *testing.T) {
	f := newFixture(t)

	feed, err := f.engine.DiscoverFeed(context.Background(), entity.ProtocolSparkLend, poolAddr, wethAddr)
	if err != nil {
		t.Fatalf("DiscoverFeed: %v", err)
	}
	if feed.Address != feedAddr || feed.Description != "ETH / USD" {
		t.Errorf("feed = %+v", feed)
	}
}

func TestWriteMappingSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	holder := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	base := uint256.NewInt(2)

	slot, err := f.engine.WriteMappingSlot(ctx, token, base, common.BytesToHash(holder.Bytes()), big.NewInt(1e18))
	if err != nil {
		t.Fatalf("WriteMappingSlot: %v", err)
	}
	if want := blockchain.AddressMappingSlot(holder, base); slot != want {
		t.Errorf("slot = %s, want %s", slot.Hex(), want.Hex())
	}
	if got := f.chain.Storage(token, slot); got != blockchain.WordFromBig(big.NewInt(1e18)) {
		t.Errorf("stored %s", got.Hex())
	}

	f.chain.SetStorageErr = errors.New("method not found")
	if _, err := f.engine.WriteMappingSlot(ctx, token, base, common.Hash{}, big.NewInt(1)); !errors.Is(err, f.chain.SetStorageErr) {
		t.Errorf("expected wrapped storage error, got %v", err)
	}
	if _, err := f.engine.WriteMappingSlot(ctx, token, nil, common.Hash{}, big.NewInt(1)); err == nil {
		t.Error("expected error for nil base slot")
	}
}
