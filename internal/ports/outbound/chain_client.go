package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DevNodeConvention names the debug-RPC namespace a fork node exposes for
// state overrides ("anvil_setCode" vs "hardhat_setCode").
type DevNodeConvention string

const (
	ConventionAnvil   DevNodeConvention = "anvil"
	ConventionHardhat DevNodeConvention = "hardhat"
)

// Method returns the namespaced RPC method name, e.g. "anvil_setCode".
func (c DevNodeConvention) Method(name string) string {
	return string(c) + "_" + name
}

// ChainClient is the typed view of a forked chain's JSON-RPC endpoint.
type ChainClient interface {
	// ChainID returns the chain id the client was validated against.
	ChainID() *big.Int

	// CallContract executes a read-only eth_call against the latest block.
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// BatchCall executes several eth_calls in one round trip. Calls with
	// AllowFailure set report a failed Result instead of failing the batch.
	BatchCall(ctx context.Context, calls []Call) ([]Result, error)

	// SendTransaction signs and submits a transaction calling to with data.
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)

	// WaitMined blocks until the transaction is included. A reverted
	// transaction is returned as an error.
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// CodeAt returns the runtime code at addr.
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)

	// StorageAt returns the raw 32-byte value stored at slot.
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)

	// SetCode overwrites the runtime code at addr using the given debug namespace.
	SetCode(ctx context.Context, convention DevNodeConvention, addr common.Address, code []byte) error

	// SetStorageAt overwrites one storage slot. The debug namespace is detected
	// on first use and reused for the lifetime of the client.
	SetStorageAt(ctx context.Context, addr common.Address, slot, value common.Hash) error
}
