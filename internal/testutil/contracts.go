package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/archon-research/oracle-forge/internal/pkg/blockchain/abis"
)

// MethodFunc returns the outputs for one ABI method given its decoded inputs.
type MethodFunc func(args []any) ([]any, error)

// ABIContract builds a ContractHandler that decodes calldata against
// contractABI and dispatches to methods by name. Unknown selectors revert.
func ABIContract(contractABI *abi.ABI, methods map[string]MethodFunc) ContractHandler {
	return func(_ context.Context, data []byte) ([]byte, error) {
		if len(data) < 4 {
			return nil, ErrReverted
		}
		method, err := contractABI.MethodById(data[:4])
		if err != nil {
			return nil, ErrReverted
		}
		fn, ok := methods[method.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s not implemented", ErrReverted, method.Name)
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", ErrReverted, method.Name, err)
		}
		out, err := fn(args)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(out...)
	}
}

// StaticFeed is a settable stand-in for a live AggregatorV3 feed.
type StaticFeed struct {
	mu          sync.Mutex
	decimals    uint8
	answer      *big.Int
	description string

	// NoRoundData makes latestRoundData revert, leaving only latestAnswer.
	NoRoundData bool
}

// NewStaticFeed creates a feed reporting answer at the given precision.
func NewStaticFeed(decimals uint8, answer *big.Int, description string) *StaticFeed {
	return &StaticFeed{decimals: decimals, answer: new(big.Int).Set(answer), description: description}
}

// SetAnswer changes the reported answer.
func (s *StaticFeed) SetAnswer(v *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = new(big.Int).Set(v)
}

// Handler returns the ContractHandler serving this feed.
func (s *StaticFeed) Handler() ContractHandler {
	feedABI, err := abis.GetAggregatorV3ABI()
	if err != nil {
		panic(fmt.Sprintf("loading AggregatorV3 ABI: %v", err))
	}
	current := func() *big.Int {
		s.mu.Lock()
		defer s.mu.Unlock()
		return new(big.Int).Set(s.answer)
	}
	methods := map[string]MethodFunc{
		"decimals": func([]any) ([]any, error) {
			return []any{s.decimals}, nil
		},
		"latestAnswer": func([]any) ([]any, error) {
			return []any{current()}, nil
		},
		"latestRoundData": func([]any) ([]any, error) {
			if s.NoRoundData {
				return nil, ErrReverted
			}
			one := big.NewInt(1)
			ts := big.NewInt(1700000000)
			return []any{one, current(), ts, ts, one}, nil
		},
	}
	if s.description != "" {
		methods["description"] = func([]any) ([]any, error) {
			return []any{s.description}, nil
		}
	}
	return ABIContract(feedABI, methods)
}
