package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Direction reports which hypothesis the bidirectional factor search settled on.
type Direction string

const (
	DirectionNone    Direction = ""
	DirectionForward Direction = "forward"
	DirectionInverse Direction = "inverse"
	DirectionUnknown Direction = "unknown"
)

// PriceChangeResult is returned by every price-mutating operation.
// OldValue is always read before the mutating transaction is sent.
type PriceChangeResult struct {
	OldValue  *big.Int
	NewValue  *big.Int
	TxHash    common.Hash
	Succeeded bool
	Direction Direction
}
