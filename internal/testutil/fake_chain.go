package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/oracle-forge/internal/adapters/outbound/artifacts"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

// ErrReverted is returned by FakeChain for calls the target contract rejects.
var ErrReverted = errors.New("execution reverted")

// ContractHandler answers calls to a contract that is not an injected mock.
type ContractHandler func(ctx context.Context, data []byte) ([]byte, error)

// mockRuntime describes a registered mock runtime code.
type mockRuntime struct {
	decimals    uint8
	description string
	abi         *abi.ABI
}

// FakeChain is an in-memory outbound.ChainClient. Addresses whose code equals
// a mock artifact's runtime code behave like that mock, reading and writing
// storage slots 0 (answer), 1 (updatedAt) and 2 (round id). Other addresses
// are served by registered ContractHandlers.
type FakeChain struct {
	mu sync.Mutex

	chainID   *big.Int
	code      map[common.Address][]byte
	storage   map[common.Address]map[common.Hash]common.Hash
	handlers  map[common.Address]ContractHandler
	mocks     map[string]mockRuntime
	receipts  map[common.Hash]*types.Receipt
	supported map[outbound.DevNodeConvention]bool
	nonce     uint64

	// Timestamp is written to the updatedAt slot on every mock update.
	Timestamp uint64

	// SetCodeCalls records every SetCode attempt in order, including rejected ones.
	SetCodeCalls []outbound.DevNodeConvention
	// Sent records the calldata of every submitted transaction.
	Sent []SentTx
	// CallCount counts eth_call executions, batched or not.
	CallCount int

	// CallErr, when set, fails every CallContract.
	CallErr error
	// SendErr, when set, fails every SendTransaction.
	SendErr error
	// SetStorageErr, when set, fails every SetStorageAt.
	SetStorageErr error
}

// SentTx is one transaction submitted to the FakeChain.
type SentTx struct {
	Hash common.Hash
	To   common.Address
	Data []byte
}

var _ outbound.ChainClient = (*FakeChain)(nil)

// NewFakeChain returns a chain with id 31337 that accepts both anvil and
// hardhat debug methods and recognizes the embedded mock artifacts.
func NewFakeChain() *FakeChain {
	f := &FakeChain{
		chainID:  big.NewInt(31337),
		code:     make(map[common.Address][]byte),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		handlers: make(map[common.Address]ContractHandler),
		mocks:    make(map[string]mockRuntime),
		receipts: make(map[common.Hash]*types.Receipt),
		supported: map[outbound.DevNodeConvention]bool{
			outbound.ConventionAnvil:   true,
			outbound.ConventionHardhat: true,
		},
		Timestamp: 1700000000,
	}

	provider := artifacts.NewProvider()
	for _, d := range []uint8{8, 18} {
		a, err := provider.Artifact(d)
		if err != nil {
			panic(fmt.Sprintf("loading mock artifact: %v", err))
		}
		f.mocks[string(a.DeployedBytecode)] = mockRuntime{
			decimals:    d,
			description: fmt.Sprintf("Mock Aggregator (%d decimals)", d),
			abi:         a.ABI,
		}
	}
	return f
}

// SupportConventions restricts which debug namespaces SetCode accepts.
func (f *FakeChain) SupportConventions(conventions ...outbound.DevNodeConvention) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supported = make(map[outbound.DevNodeConvention]bool)
	for _, c := range conventions {
		f.supported[c] = true
	}
}

// SetChainID overrides the reported chain id.
func (f *FakeChain) SetChainID(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainID = big.NewInt(id)
}

// Deploy registers a handler-backed contract at addr with placeholder code.
func (f *FakeChain) Deploy(addr common.Address, handler ContractHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[addr] = handler
	f.code[addr] = []byte{0x60, 0x00, 0x60, 0x00, 0xfd}
}

// PutCode writes raw code at addr without going through SetCode.
func (f *FakeChain) PutCode(addr common.Address, code []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code[addr] = bytes.Clone(code)
}

// PutStorage writes a storage word directly.
func (f *FakeChain) PutStorage(addr common.Address, slot, value common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putStorageLocked(addr, slot, value)
}

// Storage reads a storage word directly.
func (f *FakeChain) Storage(addr common.Address, slot common.Hash) common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storage[addr][slot]
}

func (f *FakeChain) ChainID() *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.chainID)
}

func (f *FakeChain) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.CallCount++
	if f.CallErr != nil {
		err := f.CallErr
		f.mu.Unlock()
		return nil, err
	}
	if mock, ok := f.mocks[string(f.code[to])]; ok {
		defer f.mu.Unlock()
		return f.readMockLocked(to, mock, data)
	}
	handler := f.handlers[to]
	f.mu.Unlock()

	if handler == nil {
		return nil, fmt.Errorf("%w: no contract at %s", ErrReverted, to.Hex())
	}
	return handler(ctx, data)
}

func (f *FakeChain) BatchCall(ctx context.Context, calls []outbound.Call) ([]outbound.Result, error) {
	results := make([]outbound.Result, len(calls))
	for i, c := range calls {
		data, err := f.CallContract(ctx, c.Target, c.CallData)
		if err != nil {
			if !c.AllowFailure {
				return nil, fmt.Errorf("call %d to %s: %w", i, c.Target.Hex(), err)
			}
			results[i] = outbound.Result{Success: false}
			continue
		}
		results[i] = outbound.Result{Success: true, ReturnData: data}
	}
	return results, nil
}

func (f *FakeChain) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}

	f.mu.Lock()
	if f.SendErr != nil {
		err := f.SendErr
		f.mu.Unlock()
		return common.Hash{}, err
	}
	f.nonce++
	hash := crypto.Keccak256Hash(to.Bytes(), data, new(big.Int).SetUint64(f.nonce).Bytes())

	if mock, ok := f.mocks[string(f.code[to])]; ok {
		err := f.writeMockLocked(to, mock, data)
		if err != nil {
			f.mu.Unlock()
			return common.Hash{}, err
		}
	} else {
		handler := f.handlers[to]
		f.mu.Unlock()
		if handler == nil {
			return common.Hash{}, fmt.Errorf("%w: no contract at %s", ErrReverted, to.Hex())
		}
		if _, err := handler(ctx, data); err != nil {
			return common.Hash{}, err
		}
		f.mu.Lock()
	}

	f.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(f.nonce),
	}
	f.Sent = append(f.Sent, SentTx{Hash: hash, To: to, Data: bytes.Clone(data)})
	f.mu.Unlock()
	return hash, nil
}

func (f *FakeChain) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", txHash.Hex(), ethereum.NotFound)
	}
	return receipt, nil
}

func (f *FakeChain) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Clone(f.code[addr]), nil
}

func (f *FakeChain) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	return f.Storage(addr, slot), nil
}

func (f *FakeChain) SetCode(ctx context.Context, convention outbound.DevNodeConvention, addr common.Address, code []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetCodeCalls = append(f.SetCodeCalls, convention)
	if !f.supported[convention] {
		return fmt.Errorf("the method %s does not exist/is not available", convention.Method("setCode"))
	}
	f.code[addr] = bytes.Clone(code)
	return nil
}

func (f *FakeChain) SetStorageAt(ctx context.Context, addr common.Address, slot, value common.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetStorageErr != nil {
		return f.SetStorageErr
	}
	f.putStorageLocked(addr, slot, value)
	return nil
}

func (f *FakeChain) putStorageLocked(addr common.Address, slot, value common.Hash) {
	if f.storage[addr] == nil {
		f.storage[addr] = make(map[common.Hash]common.Hash)
	}
	f.storage[addr][slot] = value
}

var (
	slotAnswer    = common.BigToHash(big.NewInt(0))
	slotUpdatedAt = common.BigToHash(big.NewInt(1))
	slotRound     = common.BigToHash(big.NewInt(2))
)

func (f *FakeChain) readMockLocked(addr common.Address, mock mockRuntime, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrReverted
	}
	method, err := mock.abi.MethodById(data[:4])
	if err != nil {
		return nil, ErrReverted
	}

	slots := f.storage[addr]
	answer := signedWord(slots[slotAnswer])
	updatedAt := slots[slotUpdatedAt].Big()
	round := slots[slotRound].Big()

	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(mock.decimals)
	case "latestAnswer":
		return method.Outputs.Pack(answer)
	case "latestTimestamp":
		return method.Outputs.Pack(updatedAt)
	case "latestRound":
		return method.Outputs.Pack(round)
	case "latestRoundData":
		return method.Outputs.Pack(round, answer, updatedAt, updatedAt, round)
	case "description":
		return method.Outputs.Pack(mock.description)
	case "version":
		return method.Outputs.Pack(big.NewInt(4))
	case "updateAnswer", "setPrice":
		// A call simulates the write without persisting it.
		return nil, nil
	}
	return nil, ErrReverted
}

func (f *FakeChain) writeMockLocked(addr common.Address, mock mockRuntime, data []byte) error {
	if len(data) < 4 {
		return ErrReverted
	}
	method, err := mock.abi.MethodById(data[:4])
	if err != nil {
		return ErrReverted
	}
	if method.Name != "updateAnswer" && method.Name != "setPrice" {
		// View methods cost gas but change nothing.
		return nil
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 1 {
		return fmt.Errorf("%w: bad %s arguments", ErrReverted, method.Name)
	}
	value, ok := args[0].(*big.Int)
	if !ok {
		return fmt.Errorf("%w: bad %s argument type %T", ErrReverted, method.Name, args[0])
	}

	round := new(big.Int).Add(f.storage[addr][slotRound].Big(), big.NewInt(1))
	f.putStorageLocked(addr, slotAnswer, twosComplement(value))
	f.putStorageLocked(addr, slotUpdatedAt, common.BigToHash(new(big.Int).SetUint64(f.Timestamp)))
	f.putStorageLocked(addr, slotRound, common.BigToHash(round))
	return nil
}

var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

func signedWord(h common.Hash) *big.Int {
	v := h.Big()
	if v.Bit(255) == 1 {
		v.Sub(v, two256)
	}
	return v
}

func twosComplement(v *big.Int) common.Hash {
	if v.Sign() < 0 {
		return common.BigToHash(new(big.Int).Add(v, two256))
	}
	return common.BigToHash(v)
}
