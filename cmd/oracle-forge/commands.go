package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain"
)

type command func(ctx context.Context, logger *slog.Logger, args []string, out io.Writer) error

var commands = map[string]command{
	"set":      runSet,
	"reset":    runReset,
	"discover": runDiscover,
	"inject":   runInject,
	"verify":   runVerify,
	"slot":     runSlot,
}

// targetFlags are shared by commands that address a protocol/asset pair.
type targetFlags struct {
	protocol string
	asset    string
	kind     string
	network  string
}

func (t *targetFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&t.protocol, "protocol", "", "Protocol pool, addresses provider or market address (required)")
	fs.StringVar(&t.asset, "asset", "", "Asset token address (required)")
	fs.StringVar(&t.kind, "kind", "", "Protocol kind: aave-v3, sparklend or lending-market (default: from registry)")
	fs.StringVar(&t.network, "network", "", "Network the request targets (default: NETWORK)")
}

func (t *targetFlags) resolve() (protocol, asset common.Address, kind entity.ProtocolKind, err error) {
	if protocol, err = parseAddress("protocol", t.protocol); err != nil {
		return
	}
	if asset, err = parseAddress("asset", t.asset); err != nil {
		return
	}
	if kind, err = entity.ParseProtocolKind(t.kind); err != nil {
		return
	}
	if kind == "" {
		kind = blockchain.KindHint(protocol)
	}
	return
}

func parseSetFlags(args []string) (entity.SetPriceRequest, error) {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	var target targetFlags
	target.register(fs)
	price := fs.String("price", "", "Absolute price in human units, e.g. 2000.5")
	raw := fs.String("raw", "", "Absolute price in feed units, e.g. 200050000000")
	percent := fs.String("percent", "", "Relative change in percent, e.g. -20")
	bidirectional := fs.Bool("bidirectional", false, "Search forward and inverse factors (requires -percent)")
	verifyProtocol := fs.Bool("verify-protocol", false, "Also check the protocol's own price view")
	tolerance := fs.String("tolerance", "0", "Accepted deviation in percent")
	if err := fs.Parse(args); err != nil {
		return entity.SetPriceRequest{}, err
	}

	protocol, asset, kind, err := target.resolve()
	if err != nil {
		return entity.SetPriceRequest{}, err
	}
	req := entity.SetPriceRequest{
		Kind:           kind,
		Network:        target.network,
		Protocol:       protocol,
		Asset:          asset,
		Price:          *price,
		Bidirectional:  *bidirectional,
		VerifyProtocol: *verifyProtocol,
	}
	if *raw != "" {
		if req.RawPrice, err = parseBig("raw", *raw); err != nil {
			return entity.SetPriceRequest{}, err
		}
	}
	if *percent != "" {
		p, err := decimal.NewFromString(*percent)
		if err != nil {
			return entity.SetPriceRequest{}, fmt.Errorf("-percent must be a number: %w", err)
		}
		req.Percent = &p
	}
	if req.Tolerance, err = decimal.NewFromString(*tolerance); err != nil {
		return entity.SetPriceRequest{}, fmt.Errorf("-tolerance must be a number: %w", err)
	}
	return req, req.Validate()
}

func runSet(ctx context.Context, logger *slog.Logger, args []string, out io.Writer) error {
	req, err := parseSetFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, cleanup, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := engine.SetOraclePrice(ctx, req)
	if err != nil {
		return err
	}
	return reportSet(out, resp)
}

// reportSet prints the outcome of a set and returns an error when the change
// did not take effect or a check disagreed.
func reportSet(out io.Writer, resp *entity.SetPriceResponse) error {
	d := resp.Feed.Decimals
	fmt.Fprintf(out, "feed:      %s (%d decimals) %s\n", resp.Feed.Address.Hex(), d, resp.Feed.Description)
	fmt.Fprintf(out, "injected:  %t\n", resp.Injected)
	fmt.Fprintf(out, "old:       %s\n", blockchain.FormatFixed(resp.Change.OldValue, d))
	fmt.Fprintf(out, "new:       %s\n", blockchain.FormatFixed(resp.Change.NewValue, d))
	fmt.Fprintf(out, "tx:        %s\n", resp.Change.TxHash.Hex())
	if resp.Change.Direction != entity.DirectionNone {
		fmt.Fprintf(out, "direction: %s (succeeded: %t)\n", resp.Change.Direction, resp.Change.Succeeded)
	}
	printCheck(out, "feed", resp.FeedCheck)
	if resp.ProtocolCheck != nil {
		printCheck(out, "protocol", *resp.ProtocolCheck)
	}
	if !resp.Change.Succeeded {
		return errors.New("neither factor direction moved the protocol price as requested; feed restored")
	}
	if !resp.FeedCheck.Matches || (resp.ProtocolCheck != nil && !resp.ProtocolCheck.Matches) {
		return fmt.Errorf("verification failed")
	}
	return nil
}

func parseResetFlags(args []string) (entity.ResetRequest, error) {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	var target targetFlags
	target.register(fs)
	toZero := fs.Bool("zero", false, "Set the feed to 0 instead of restoring the original")
	if err := fs.Parse(args); err != nil {
		return entity.ResetRequest{}, err
	}
	protocol, asset, kind, err := target.resolve()
	if err != nil {
		return entity.ResetRequest{}, err
	}
	req := entity.ResetRequest{
		Kind:     kind,
		Network:  target.network,
		Protocol: protocol,
		Asset:    asset,
		ToZero:   *toZero,
	}
	return req, req.Validate()
}

func runReset(ctx context.Context, logger *slog.Logger, args []string, out io.Writer) error {
	req, err := parseResetFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, cleanup, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := engine.Reset(ctx, req)
	if err != nil {
		return err
	}
	d := resp.Feed.Decimals
	fmt.Fprintf(out, "feed: %s\n", resp.Feed.Address.Hex())
	fmt.Fprintf(out, "old:  %s\n", blockchain.FormatFixed(resp.Change.OldValue, d))
	fmt.Fprintf(out, "new:  %s\n", blockchain.FormatFixed(resp.Change.NewValue, d))
	fmt.Fprintf(out, "tx:   %s\n", resp.Change.TxHash.Hex())
	return nil
}

func runDiscover(ctx context.Context, logger *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	var target targetFlags
	target.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	protocol, asset, kind, err := target.resolve()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, cleanup, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	feed, err := engine.DiscoverFeed(ctx, kind, protocol, asset)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "feed:        %s\n", feed.Address.Hex())
	fmt.Fprintf(out, "decimals:    %d\n", feed.Decimals)
	fmt.Fprintf(out, "description: %s\n", feed.Description)
	return nil
}

func runInject(ctx context.Context, logger *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inject", flag.ContinueOnError)
	address := fs.String("address", "", "Address to replace with the mock (required)")
	decimals := fs.Uint("decimals", 8, "Mock precision: 8 or 18")
	value := fs.String("value", "", "Initial value in feed units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := parseAddress("address", *address)
	if err != nil {
		return err
	}
	if *decimals > 255 {
		return fmt.Errorf("-decimals out of range: %d", *decimals)
	}
	if err := entity.ValidateDecimals(uint8(*decimals)); err != nil {
		return err
	}
	var initial *big.Int
	if *value != "" {
		if initial, err = parseBig("value", *value); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, cleanup, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	handle, err := engine.DeployMockAt(ctx, addr, uint8(*decimals), initial)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "mock injected at %s (%d decimals)\n", handle.Address.Hex(), handle.Decimals)
	return nil
}

func runVerify(ctx context.Context, logger *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	feedFlag := fs.String("feed", "", "Feed address (required)")
	expectedFlag := fs.String("expected", "", "Expected value in feed units (required)")
	toleranceFlag := fs.String("tolerance", "0", "Accepted deviation in percent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	feed, err := parseAddress("feed", *feedFlag)
	if err != nil {
		return err
	}
	expected, err := parseBig("expected", *expectedFlag)
	if err != nil {
		return err
	}
	tolerance, err := decimal.NewFromString(*toleranceFlag)
	if err != nil {
		return fmt.Errorf("-tolerance must be a number: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, cleanup, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	result := engine.VerifyValueAtFeed(ctx, feed, expected, tolerance)
	printCheck(out, "feed", result)
	if !result.Matches {
		return fmt.Errorf("verification failed")
	}
	return nil
}

type slotFlags struct {
	contract common.Address
	baseSlot *uint256.Int
	key      common.Hash
	value    *big.Int
}

func parseSlotFlags(args []string) (slotFlags, error) {
	fs := flag.NewFlagSet("slot", flag.ContinueOnError)
	contract := fs.String("contract", "", "Contract whose storage is written")
	base := fs.String("slot", "", "Declaration slot of the mapping (required)")
	key := fs.String("key", "", "Mapping key: address, 32-byte hex word or integer (required)")
	value := fs.String("value", "", "Value to write; omit to only print the slot")
	if err := fs.Parse(args); err != nil {
		return slotFlags{}, err
	}

	var out slotFlags
	if *base == "" {
		return slotFlags{}, fmt.Errorf("-slot is required")
	}
	baseSlot, err := uint256.FromDecimal(*base)
	if err != nil {
		if baseSlot, err = uint256.FromHex(*base); err != nil {
			return slotFlags{}, fmt.Errorf("-slot must be a decimal or 0x-prefixed integer: %w", err)
		}
	}
	out.baseSlot = baseSlot

	if out.key, err = parseSlotKey(*key); err != nil {
		return slotFlags{}, err
	}

	if *value != "" {
		if out.value, err = parseBig("value", *value); err != nil {
			return slotFlags{}, err
		}
		if out.contract, err = parseAddress("contract", *contract); err != nil {
			return slotFlags{}, err
		}
	}
	return out, nil
}

func runSlot(ctx context.Context, logger *slog.Logger, args []string, out io.Writer) error {
	flags, err := parseSlotFlags(args)
	if err != nil {
		return err
	}

	if flags.value == nil {
		fmt.Fprintf(out, "slot: %s\n", blockchain.MappingSlot(flags.key, flags.baseSlot).Hex())
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, cleanup, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	slot, err := engine.WriteMappingSlot(ctx, flags.contract, flags.baseSlot, flags.key, flags.value)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "slot %s of %s set to %s\n", slot.Hex(), flags.contract.Hex(), flags.value)
	return nil
}

func printCheck(out io.Writer, name string, result entity.VerificationResult) {
	switch {
	case !result.Success:
		fmt.Fprintf(out, "%s check: read failed: %s\n", name, result.Message)
	case result.Matches:
		fmt.Fprintf(out, "%s check: ok (%s)\n", name, result.Actual)
	default:
		fmt.Fprintf(out, "%s check: mismatch: %s\n", name, result.Message)
	}
}

func parseAddress(name, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, fmt.Errorf("-%s is required", name)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("-%s is not a valid address: %q", name, s)
	}
	return common.HexToAddress(s), nil
}

func parseBig(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("-%s is required", name)
	}
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok {
		return nil, fmt.Errorf("-%s must be an integer: %q", name, s)
	}
	return v, nil
}

// parseSlotKey accepts an address (left-padded), a full 32-byte word or an integer.
func parseSlotKey(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return common.Hash{}, fmt.Errorf("-key is required")
	case common.IsHexAddress(s):
		return common.BytesToHash(common.HexToAddress(s).Bytes()), nil
	case strings.HasPrefix(s, "0x") && len(s) == 2+2*common.HashLength:
		b, err := hexutil.Decode(s)
		if err != nil {
			return common.Hash{}, fmt.Errorf("-key is not valid hex: %w", err)
		}
		return common.BytesToHash(b), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("-key must be an address, 32-byte hex word or integer: %q", s)
	}
	return common.Hash(v.Bytes32()), nil
}
