package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
)

// FeedAdapter locates the price feed a specific protocol family reads for an asset.
// Adapters are stateless and tried in priority order by the discovery service.
type FeedAdapter interface {
	// Name identifies the adapter in aggregated discovery errors.
	Name() string

	// CanHandle reports whether protocol looks like an instance this adapter understands.
	CanHandle(ctx context.Context, protocol, asset common.Address) (bool, error)

	// DiscoverFeed returns the feed the protocol consults for asset.
	DiscoverFeed(ctx context.Context, protocol, asset common.Address) (*entity.FeedInfo, error)
}
