package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// RawSlot returns the storage location of a plain state variable declared at index.
func RawSlot(index *uint256.Int) common.Hash {
	return common.Hash(index.Bytes32())
}

// MappingSlot returns keccak256(key ‖ pad32(baseSlot)), the location of
// mapping[key] for a single-level mapping declared at baseSlot. key must
// already be left-padded to 32 bytes.
func MappingSlot(key common.Hash, baseSlot *uint256.Int) common.Hash {
	slot := baseSlot.Bytes32()
	return crypto.Keccak256Hash(key.Bytes(), slot[:])
}

// AddressMappingSlot locates mapping(address => ...)[addr].
func AddressMappingSlot(addr common.Address, baseSlot *uint256.Int) common.Hash {
	return MappingSlot(common.BytesToHash(addr.Bytes()), baseSlot)
}

// UintMappingSlot locates mapping(uint256 => ...)[key].
func UintMappingSlot(key *uint256.Int, baseSlot *uint256.Int) common.Hash {
	return MappingSlot(common.Hash(key.Bytes32()), baseSlot)
}

// WordFromBig encodes v as a 32-byte storage word. Negative values use
// two's complement, matching int256 storage.
func WordFromBig(v *big.Int) common.Hash {
	return common.BytesToHash(math.U256Bytes(new(big.Int).Set(v)))
}
