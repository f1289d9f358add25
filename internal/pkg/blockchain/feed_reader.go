package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-forge/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

// RoundData is the decoded latestRoundData() tuple.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// FeedReader reads AggregatorV3-style feeds, real or mocked.
type FeedReader struct {
	client  outbound.ChainClient
	feedABI *abi.ABI
}

// NewFeedReader creates a new FeedReader.
func NewFeedReader(client outbound.ChainClient) (*FeedReader, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	feedABI, err := abis.GetAggregatorV3ABI()
	if err != nil {
		return nil, fmt.Errorf("loading AggregatorV3 ABI: %w", err)
	}
	return &FeedReader{client: client, feedABI: feedABI}, nil
}

// ABI returns the parsed AggregatorV3 ABI used by the reader.
func (r *FeedReader) ABI() *abi.ABI {
	return r.feedABI
}

// Decimals reads decimals(). Values above 255 cannot occur for a uint8 output.
func (r *FeedReader) Decimals(ctx context.Context, feed common.Address) (uint8, error) {
	unpacked, err := CallView(ctx, r.client, r.feedABI, feed, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := unpacked[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", unpacked[0])
	}
	return d, nil
}

// LatestAnswer reads latestAnswer().
func (r *FeedReader) LatestAnswer(ctx context.Context, feed common.Address) (*big.Int, error) {
	unpacked, err := CallView(ctx, r.client, r.feedABI, feed, "latestAnswer")
	if err != nil {
		return nil, err
	}
	answer, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected latestAnswer type %T", unpacked[0])
	}
	return answer, nil
}

// LatestRoundData reads latestRoundData().
func (r *FeedReader) LatestRoundData(ctx context.Context, feed common.Address) (*RoundData, error) {
	unpacked, err := CallView(ctx, r.client, r.feedABI, feed, "latestRoundData")
	if err != nil {
		return nil, err
	}
	if len(unpacked) != 5 {
		return nil, fmt.Errorf("latestRoundData returned %d values, want 5", len(unpacked))
	}
	out := make([]*big.Int, 5)
	for i, v := range unpacked {
		b, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected latestRoundData field %d type %T", i, v)
		}
		out[i] = b
	}
	return &RoundData{
		RoundID:         out[0],
		Answer:          out[1],
		StartedAt:       out[2],
		UpdatedAt:       out[3],
		AnsweredInRound: out[4],
	}, nil
}

// LatestValue reads the feed's current value, trying latestRoundData() first
// and falling back to latestAnswer() for adapters that only implement the
// legacy accessor.
func (r *FeedReader) LatestValue(ctx context.Context, feed common.Address) (*big.Int, error) {
	round, roundErr := r.LatestRoundData(ctx, feed)
	if roundErr == nil {
		return round.Answer, nil
	}
	answer, err := r.LatestAnswer(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("reading feed %s: latestRoundData: %v; latestAnswer: %w", feed.Hex(), roundErr, err)
	}
	return answer, nil
}

// Description reads description(). Feeds without one report ok=false.
func (r *FeedReader) Description(ctx context.Context, feed common.Address) (string, bool) {
	unpacked, err := CallView(ctx, r.client, r.feedABI, feed, "description")
	if err != nil {
		return "", false
	}
	s, ok := unpacked[0].(string)
	return s, ok
}
