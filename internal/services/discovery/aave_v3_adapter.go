package discovery

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

var _ outbound.FeedAdapter = (*AaveV3Adapter)(nil)

// AaveV3Adapter resolves feeds for Aave V3 pools and their forks (SparkLend)
// through PoolAddressesProvider.getPriceOracle() and the oracle's
// getSourceOfAsset(). The protocol address may be the Pool or the provider.
type AaveV3Adapter struct {
	client      outbound.ChainClient
	reader      *blockchain.FeedReader
	poolABI     *abi.ABI
	providerABI *abi.ABI
	oracleABI   *abi.ABI
}

// NewAaveV3Adapter creates a new AaveV3Adapter.
func NewAaveV3Adapter(client outbound.ChainClient) (*AaveV3Adapter, error) {
	reader, err := blockchain.NewFeedReader(client)
	if err != nil {
		return nil, err
	}
	poolABI, err := abis.GetAavePoolABI()
	if err != nil {
		return nil, fmt.Errorf("loading Pool ABI: %w", err)
	}
	providerABI, err := abis.GetPoolAddressesProviderABI()
	if err != nil {
		return nil, fmt.Errorf("loading PoolAddressesProvider ABI: %w", err)
	}
	oracleABI, err := abis.GetAaveOracleABI()
	if err != nil {
		return nil, fmt.Errorf("loading AaveOracle ABI: %w", err)
	}
	return &AaveV3Adapter{
		client:      client,
		reader:      reader,
		poolABI:     poolABI,
		providerABI: providerABI,
		oracleABI:   oracleABI,
	}, nil
}

func (a *AaveV3Adapter) Name() string {
	return string(entity.ProtocolAaveV3)
}

// Supports reports whether kind belongs to the Aave V3 family.
func (a *AaveV3Adapter) Supports(kind entity.ProtocolKind) bool {
	return kind.IsAaveFamily()
}

func (a *AaveV3Adapter) CanHandle(ctx context.Context, protocol, _ common.Address) (bool, error) {
	if _, err := a.PriceOracle(ctx, protocol); err != nil {
		return false, nil
	}
	return true, nil
}

func (a *AaveV3Adapter) DiscoverFeed(ctx context.Context, protocol, asset common.Address) (*entity.FeedInfo, error) {
	oracle, err := a.PriceOracle(ctx, protocol)
	if err != nil {
		return nil, err
	}

	source, err := blockchain.CallAddress(ctx, a.client, a.oracleABI, oracle, "getSourceOfAsset", asset)
	if err != nil {
		return nil, fmt.Errorf("resolving source of asset: %w", err)
	}
	return describeFeed(ctx, a.reader, source, asset)
}

// PriceOracle resolves the AaveOracle used by protocol.
func (a *AaveV3Adapter) PriceOracle(ctx context.Context, protocol common.Address) (common.Address, error) {
	provider, err := a.addressesProvider(ctx, protocol)
	if err != nil {
		return common.Address{}, err
	}
	oracle, err := blockchain.CallAddress(ctx, a.client, a.providerABI, provider, "getPriceOracle")
	if err != nil {
		return common.Address{}, fmt.Errorf("resolving price oracle: %w", err)
	}
	if oracle == (common.Address{}) {
		return common.Address{}, fmt.Errorf("provider %s has no price oracle", provider.Hex())
	}
	return oracle, nil
}

// ProtocolPrice reads the oracle's getAssetPrice(asset), the value the pool
// uses for health factor checks.
func (a *AaveV3Adapter) ProtocolPrice(ctx context.Context, protocol, asset common.Address) (*big.Int, error) {
	oracle, err := a.PriceOracle(ctx, protocol)
	if err != nil {
		return nil, err
	}
	unpacked, err := blockchain.CallView(ctx, a.client, a.oracleABI, oracle, "getAssetPrice", asset)
	if err != nil {
		return nil, err
	}
	price, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getAssetPrice type %T", unpacked[0])
	}
	return price, nil
}

// addressesProvider returns the PoolAddressesProvider for a Pool, or the
// protocol address itself when it already is a provider.
func (a *AaveV3Adapter) addressesProvider(ctx context.Context, protocol common.Address) (common.Address, error) {
	provider, poolErr := blockchain.CallAddress(ctx, a.client, a.poolABI, protocol, "ADDRESSES_PROVIDER")
	if poolErr == nil && provider != (common.Address{}) {
		return provider, nil
	}
	if _, err := blockchain.CallAddress(ctx, a.client, a.providerABI, protocol, "getPriceOracle"); err == nil {
		return protocol, nil
	}
	if poolErr == nil {
		poolErr = fmt.Errorf("ADDRESSES_PROVIDER returned the zero address")
	}
	return common.Address{}, fmt.Errorf("%s is neither an Aave V3 pool nor an addresses provider: %w", protocol.Hex(), poolErr)
}
