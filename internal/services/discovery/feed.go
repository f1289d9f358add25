package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/pkg/blockchain"
)

// ErrFeedNotFound is returned when a protocol reports the zero address as an asset's feed.
var ErrFeedNotFound = errors.New("feed not found")

// describeFeed turns a resolved feed address into FeedInfo. decimals() is
// mandatory; description() is read best-effort.
func describeFeed(ctx context.Context, reader *blockchain.FeedReader, feed, asset common.Address) (*entity.FeedInfo, error) {
	if feed == (common.Address{}) {
		return nil, fmt.Errorf("%w for asset %s", ErrFeedNotFound, asset.Hex())
	}

	decimals, err := reader.Decimals(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("reading decimals of feed %s: %w", feed.Hex(), err)
	}

	description, _ := reader.Description(ctx, feed)
	return entity.NewFeedInfo(feed, decimals, description)
}
