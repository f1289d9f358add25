package outbound

import (
	"context"
	"math/big"
)

// OriginalPriceStore records the pre-manipulation price per
// network:protocol:asset key so a later reset can restore it.
type OriginalPriceStore interface {
	// Get returns the recorded value and whether one exists.
	Get(ctx context.Context, key string) (*big.Int, bool, error)

	// PutIfAbsent stores value only when key has no entry yet.
	// Returns true if the value was stored.
	PutIfAbsent(ctx context.Context, key string, value *big.Int) (bool, error)

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
