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

var _ outbound.FeedAdapter = (*AssetInfoAdapter)(nil)

// AssetInfoAdapter resolves feeds for lending markets that keep a per-asset
// info record with an embedded price feed, plus a separate feed for the base
// token.
type AssetInfoAdapter struct {
	client    outbound.ChainClient
	reader    *blockchain.FeedReader
	marketABI *abi.ABI
}

// NewAssetInfoAdapter creates a new AssetInfoAdapter.
func NewAssetInfoAdapter(client outbound.ChainClient) (*AssetInfoAdapter, error) {
	reader, err := blockchain.NewFeedReader(client)
	if err != nil {
		return nil, err
	}
	marketABI, err := abis.GetLendingMarketABI()
	if err != nil {
		return nil, fmt.Errorf("loading lending market ABI: %w", err)
	}
	return &AssetInfoAdapter{client: client, reader: reader, marketABI: marketABI}, nil
}

func (a *AssetInfoAdapter) Name() string {
	return string(entity.ProtocolLendingMarket)
}

func (a *AssetInfoAdapter) Supports(kind entity.ProtocolKind) bool {
	return kind == entity.ProtocolLendingMarket
}

// CanHandle probes baseToken() and numAssets(); both must answer.
func (a *AssetInfoAdapter) CanHandle(ctx context.Context, protocol, _ common.Address) (bool, error) {
	if _, err := blockchain.CallAddress(ctx, a.client, a.marketABI, protocol, "baseToken"); err != nil {
		return false, nil
	}
	if _, err := blockchain.CallView(ctx, a.client, a.marketABI, protocol, "numAssets"); err != nil {
		return false, nil
	}
	return true, nil
}

func (a *AssetInfoAdapter) DiscoverFeed(ctx context.Context, protocol, asset common.Address) (*entity.FeedInfo, error) {
	feed, err := a.priceFeed(ctx, protocol, asset)
	if err != nil {
		return nil, err
	}
	return describeFeed(ctx, a.reader, feed, asset)
}

// ProtocolPrice reads getPrice(priceFeed), the market's own view of the feed.
func (a *AssetInfoAdapter) ProtocolPrice(ctx context.Context, protocol, asset common.Address) (*big.Int, error) {
	feed, err := a.priceFeed(ctx, protocol, asset)
	if err != nil {
		return nil, err
	}
	unpacked, err := blockchain.CallView(ctx, a.client, a.marketABI, protocol, "getPrice", feed)
	if err != nil {
		return nil, err
	}
	price, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getPrice type %T", unpacked[0])
	}
	return price, nil
}

func (a *AssetInfoAdapter) priceFeed(ctx context.Context, protocol, asset common.Address) (common.Address, error) {
	base, err := blockchain.CallAddress(ctx, a.client, a.marketABI, protocol, "baseToken")
	if err != nil {
		return common.Address{}, fmt.Errorf("reading base token: %w", err)
	}
	if asset == base {
		feed, err := blockchain.CallAddress(ctx, a.client, a.marketABI, protocol, "baseTokenPriceFeed")
		if err != nil {
			return common.Address{}, fmt.Errorf("reading base token price feed: %w", err)
		}
		return feed, nil
	}

	unpacked, err := blockchain.CallView(ctx, a.client, a.marketABI, protocol, "getAssetInfoByAddress", asset)
	if err != nil {
		return common.Address{}, fmt.Errorf("reading asset info: %w", err)
	}
	info, ok := abi.ConvertType(unpacked[0], new(abis.AssetInfo)).(*abis.AssetInfo)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected asset info type %T", unpacked[0])
	}
	return info.PriceFeed, nil
}
