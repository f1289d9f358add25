// Package inbound defines the operations the engine exposes to callers.
package inbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
)

// OracleManipulator is the surface used by test authors against a forked chain.
type OracleManipulator interface {
	// SetOraclePrice discovers the feed behind protocol/asset, swaps in a
	// mock if needed and moves its value.
	SetOraclePrice(ctx context.Context, req entity.SetPriceRequest) (*entity.SetPriceResponse, error)

	// Reset restores the first recorded value for protocol/asset, or sets 0.
	Reset(ctx context.Context, req entity.ResetRequest) (*entity.ResetResponse, error)

	// DiscoverFeed locates the feed a protocol reads for asset.
	DiscoverFeed(ctx context.Context, kind entity.ProtocolKind, protocol, asset common.Address) (*entity.FeedInfo, error)

	// DeployMockAt injects the mock for decimals at addr, optionally seeding it.
	DeployMockAt(ctx context.Context, addr common.Address, decimals uint8, initial *big.Int) (entity.MockFeedHandle, error)

	// VerifyValueAtFeed compares what feed reports with expected.
	VerifyValueAtFeed(ctx context.Context, feed common.Address, expected *big.Int, tolerancePercent decimal.Decimal) entity.VerificationResult

	// WriteMappingSlot writes value into mapping[key] of the mapping declared
	// at baseSlot in contract and returns the slot written.
	WriteMappingSlot(ctx context.Context, contract common.Address, baseSlot *uint256.Int, key common.Hash, value *big.Int) (common.Hash, error)
}
