package pricing

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrZeroBaseline is returned when a relative change is requested against a
// feed that currently reports 0.
var ErrZeroBaseline = errors.New("cannot apply percentage change: current value is 0")

// VerificationFailure means the setter transaction was mined but the feed
// does not report the value that was written.
type VerificationFailure struct {
	Feed     common.Address
	Expected *big.Int
	Actual   *big.Int
}

func (e *VerificationFailure) Error() string {
	return fmt.Sprintf("feed %s reports %s after update, expected %s", e.Feed.Hex(), e.Actual, e.Expected)
}
