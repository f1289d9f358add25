package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

// CallView packs method with args, executes an eth_call against target and
// returns the unpacked outputs.
func CallView(
	ctx context.Context,
	client outbound.ChainClient,
	contractABI *abi.ABI,
	target common.Address,
	method string,
	args ...any,
) ([]any, error) {
	callData, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	returnData, err := client.CallContract(ctx, target, callData)
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", method, target.Hex(), err)
	}

	unpacked, err := contractABI.Unpack(method, returnData)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s from %s: %w", method, target.Hex(), err)
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("%s on %s returned no values", method, target.Hex())
	}
	return unpacked, nil
}

// CallAddress calls a view method returning a single address.
func CallAddress(
	ctx context.Context,
	client outbound.ChainClient,
	contractABI *abi.ABI,
	target common.Address,
	method string,
	args ...any,
) (common.Address, error) {
	unpacked, err := CallView(ctx, client, contractABI, target, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := unpacked[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected return type %T from %s", unpacked[0], method)
	}
	return addr, nil
}
