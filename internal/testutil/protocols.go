package testutil

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-forge/internal/pkg/blockchain/abis"
)

// AaveMarket is a minimal Aave V3 deployment: Pool, PoolAddressesProvider
// and an AaveOracle whose getAssetPrice reads the source feed live.
type AaveMarket struct {
	Pool     common.Address
	Provider common.Address
	Oracle   common.Address
	Sources  map[common.Address]common.Address
}

// DeployAaveMarket registers the market's contracts on chain.
func DeployAaveMarket(chain *FakeChain, m AaveMarket) {
	poolABI := mustABI(abis.GetAavePoolABI())
	providerABI := mustABI(abis.GetPoolAddressesProviderABI())
	oracleABI := mustABI(abis.GetAaveOracleABI())

	chain.Deploy(m.Pool, ABIContract(poolABI, map[string]MethodFunc{
		"ADDRESSES_PROVIDER": func([]any) ([]any, error) { return []any{m.Provider}, nil },
	}))
	chain.Deploy(m.Provider, ABIContract(providerABI, map[string]MethodFunc{
		"getPriceOracle": func([]any) ([]any, error) { return []any{m.Oracle}, nil },
		"getPool":        func([]any) ([]any, error) { return []any{m.Pool}, nil },
	}))
	chain.Deploy(m.Oracle, ABIContract(oracleABI, map[string]MethodFunc{
		"getSourceOfAsset": func(args []any) ([]any, error) {
			return []any{m.Sources[args[0].(common.Address)]}, nil
		},
		"getAssetPrice": func(args []any) ([]any, error) {
			source, ok := m.Sources[args[0].(common.Address)]
			if !ok {
				return nil, fmt.Errorf("%w: no source", ErrReverted)
			}
			answer, err := readLatestAnswer(chain, source)
			if err != nil {
				return nil, err
			}
			if answer.Sign() <= 0 {
				return []any{new(big.Int)}, nil
			}
			return []any{answer}, nil
		},
	}))
}

// LendingMarket is a minimal asset-info lending market.
type LendingMarket struct {
	Market   common.Address
	Base     common.Address
	BaseFeed common.Address
	Feeds    map[common.Address]common.Address
}

// DeployLendingMarket registers the market on chain. getAssetInfoByAddress
// reverts for unlisted assets; getPrice reads the named feed live.
func DeployLendingMarket(chain *FakeChain, m LendingMarket) {
	marketABI := mustABI(abis.GetLendingMarketABI())

	chain.Deploy(m.Market, ABIContract(marketABI, map[string]MethodFunc{
		"baseToken":          func([]any) ([]any, error) { return []any{m.Base}, nil },
		"baseTokenPriceFeed": func([]any) ([]any, error) { return []any{m.BaseFeed}, nil },
		"numAssets":          func([]any) ([]any, error) { return []any{uint8(len(m.Feeds))}, nil },
		"getAssetInfoByAddress": func(args []any) ([]any, error) {
			asset := args[0].(common.Address)
			feed, ok := m.Feeds[asset]
			if !ok {
				return nil, fmt.Errorf("%w: BadAsset()", ErrReverted)
			}
			return []any{abis.AssetInfo{
				Asset:                     asset,
				PriceFeed:                 feed,
				Scale:                     1e18,
				BorrowCollateralFactor:    8e17,
				LiquidateCollateralFactor: 85e16,
				LiquidationFactor:         95e16,
				SupplyCap:                 big.NewInt(1e6),
			}}, nil
		},
		"getPrice": func(args []any) ([]any, error) {
			answer, err := readLatestAnswer(chain, args[0].(common.Address))
			if err != nil {
				return nil, err
			}
			return []any{answer}, nil
		},
	}))
}

func readLatestAnswer(chain *FakeChain, feed common.Address) (*big.Int, error) {
	feedABI := mustABI(abis.GetAggregatorV3ABI())
	data, err := feedABI.Pack("latestAnswer")
	if err != nil {
		return nil, err
	}
	out, err := chain.CallContract(context.Background(), feed, data)
	if err != nil {
		return nil, err
	}
	unpacked, err := feedABI.Unpack("latestAnswer", out)
	if err != nil {
		return nil, err
	}
	return unpacked[0].(*big.Int), nil
}

func mustABI[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("loading ABI: %v", err))
	}
	return v
}
