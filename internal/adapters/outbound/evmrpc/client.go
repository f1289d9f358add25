// Package evmrpc implements outbound.ChainClient over a fork node's JSON-RPC
// endpoint, including the anvil_* and hardhat_* state override methods.
package evmrpc

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/archon-research/oracle-forge/internal/pkg/retry"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.ChainClient
var _ outbound.ChainClient = (*Client)(nil)

// Client talks to a single fork node.
type Client struct {
	config  ClientConfig
	rpc     *rpc.Client
	eth     *ethclient.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address

	// sendMu serializes nonce selection and submission.
	sendMu sync.Mutex

	storageMu         sync.Mutex
	storageConvention outbound.DevNodeConvention
}

// Dial connects to the node and validates its chain id.
func Dial(ctx context.Context, config ClientConfig, logger *slog.Logger) (*Client, error) {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(config.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	rpcClient, err := rpc.DialContext(ctx, config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", config.RPCURL, err)
	}

	c := &Client{
		config: config,
		rpc:    rpcClient,
		eth:    ethclient.NewClient(rpcClient),
		logger: logger.With("component", "evm-rpc"),
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
	}
	if config.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	if err := c.wait(ctx); err != nil {
		rpcClient.Close()
		return nil, err
	}
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("fetching chain id: %w", err)
	}
	if config.ChainID != nil && chainID.Cmp(config.ChainID) != 0 {
		rpcClient.Close()
		return nil, fmt.Errorf("chain id mismatch: node reports %s, expected %s", chainID, config.ChainID)
	}
	c.chainID = chainID

	c.logger.Info("connected to node", "url", config.RPCURL, "chainID", chainID, "sender", c.from.Hex())
	return c, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Sender returns the address transactions are signed with.
func (c *Client) Sender() common.Address {
	return c.from
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// ethCallArg mirrors go-ethereum's internal callMsg JSON encoding for eth_call.
type ethCallArg struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// BatchCall sends all calls in a single JSON-RPC batch request.
func (c *Client) BatchCall(ctx context.Context, calls []outbound.Call) ([]outbound.Result, error) {
	if len(calls) == 0 {
		return []outbound.Result{}, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	elems := make([]rpc.BatchElem, len(calls))
	hexResults := make([]hexutil.Bytes, len(calls))
	for i, call := range calls {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				ethCallArg{
					To:   call.Target.Hex(),
					Data: "0x" + hex.EncodeToString(call.CallData),
				},
				"latest",
			},
			Result: &hexResults[i],
		}
	}

	if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("batch eth_call failed: %w", err)
	}

	results := make([]outbound.Result, len(calls))
	for i, elem := range elems {
		if elem.Error != nil {
			if !calls[i].AllowFailure {
				return nil, fmt.Errorf("call to %s failed: %w", calls[i].Target.Hex(), elem.Error)
			}
			results[i] = outbound.Result{Success: false}
			continue
		}
		results[i] = outbound.Result{Success: true, ReturnData: hexResults[i]}
	}
	return results, nil
}

// SendTransaction signs a legacy transaction from the configured account and
// submits it. Gas is estimated and scaled by GasMultiplier.
func (c *Client) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.wait(ctx); err != nil {
		return common.Hash{}, err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching nonce: %w", err)
	}

	if err := c.wait(ctx); err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching gas price: %w", err)
	}

	if err := c.wait(ctx); err != nil {
		return common.Hash{}, err
	}
	estimate, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimating gas for call to %s: %w", to.Hex(), err)
	}
	gas := uint64(math.Round(float64(estimate) * c.config.GasMultiplier))

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}

	if err := c.wait(ctx); err != nil {
		return common.Hash{}, err
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("sending transaction: %w", err)
	}

	c.logger.Debug("transaction sent", "hash", signed.Hash().Hex(), "to", to.Hex(), "nonce", nonce, "gas", gas)
	return signed.Hash(), nil
}

// WaitMined polls for the receipt until it appears or ReceiptMaxPolls is spent.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = c.config.ReceiptMaxPolls
	cfg.InitialBackoff = c.config.ReceiptPollInterval
	cfg.MaxBackoff = 20 * c.config.ReceiptPollInterval
	cfg.BackoffFactor = 1.5
	isRetryable := func(err error) bool {
		return errors.Is(err, ethereum.NotFound)
	}

	receipt, err := retry.Do(ctx, cfg, isRetryable, nil, func() (*types.Receipt, error) {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		return c.eth.TransactionReceipt(ctx, txHash)
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for receipt of %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted in block %s", txHash.Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.CodeAt(ctx, addr, nil)
}

func (c *Client) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	if err := c.wait(ctx); err != nil {
		return common.Hash{}, err
	}
	raw, err := c.eth.StorageAt(ctx, addr, slot, nil)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

// RawCall invokes an arbitrary JSON-RPC method, such as a node debug extension.
func (c *Client) RawCall(ctx context.Context, result any, method string, args ...any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.rpc.CallContext(ctx, result, method, args...)
}

// SetCode replaces the runtime code at addr with <convention>_setCode.
func (c *Client) SetCode(ctx context.Context, convention outbound.DevNodeConvention, addr common.Address, code []byte) error {
	var result any
	method := convention.Method("setCode")
	if err := c.RawCall(ctx, &result, method, addr, hexutil.Bytes(code)); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// SetStorageAt writes one storage word. The first successful namespace is
// remembered; anvil is tried before hardhat.
func (c *Client) SetStorageAt(ctx context.Context, addr common.Address, slot, value common.Hash) error {
	c.storageMu.Lock()
	defer c.storageMu.Unlock()

	if c.storageConvention != "" {
		return c.setStorage(ctx, c.storageConvention, addr, slot, value)
	}

	var errs []error
	for _, convention := range []outbound.DevNodeConvention{outbound.ConventionAnvil, outbound.ConventionHardhat} {
		err := c.setStorage(ctx, convention, addr, slot, value)
		if err == nil {
			c.storageConvention = convention
			c.logger.Debug("detected storage override method", "convention", convention)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("node supports neither setStorageAt method: %w", errors.Join(errs...))
}

func (c *Client) setStorage(ctx context.Context, convention outbound.DevNodeConvention, addr common.Address, slot, value common.Hash) error {
	// hardhat validates the slot as a QUANTITY and rejects leading zeros.
	var slotArg any = slot
	if convention == outbound.ConventionHardhat {
		slotArg = hexutil.EncodeBig(slot.Big())
	}

	var result any
	method := convention.Method("setStorageAt")
	if err := c.RawCall(ctx, &result, method, addr, slotArg, value); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}
