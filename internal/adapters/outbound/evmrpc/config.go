package evmrpc

import (
	"math/big"
	"time"

	"github.com/archon-research/oracle-forge/internal/pkg/blockchain"
	"github.com/archon-research/oracle-forge/internal/pkg/retry"
)

// ClientConfig holds configuration for the fork node client.
type ClientConfig struct {
	// RPCURL is the HTTP or WebSocket JSON-RPC endpoint of the fork node.
	RPCURL string

	// ChainID is the chain id the node must report. Nil skips the check.
	ChainID *big.Int

	// PrivateKey is the hex-encoded key used to sign transactions.
	PrivateKey string

	// RequestsPerSecond throttles outgoing RPC requests. Zero means unlimited.
	RequestsPerSecond float64

	// ReceiptPollInterval is the initial wait between receipt polls.
	ReceiptPollInterval time.Duration

	// ReceiptMaxPolls bounds how many times WaitMined polls for a receipt.
	ReceiptMaxPolls int

	// GasMultiplier scales eth_estimateGas results to leave headroom.
	GasMultiplier float64
}

// ClientConfigDefaults returns a config with default values for a local
// anvil or hardhat node.
func ClientConfigDefaults() ClientConfig {
	polling := retry.DefaultConfig()
	return ClientConfig{
		RPCURL:              "http://127.0.0.1:8545",
		ChainID:             big.NewInt(blockchain.DevChainID),
		PrivateKey:          blockchain.DevAccountPrivateKey,
		ReceiptPollInterval: polling.InitialBackoff,
		ReceiptMaxPolls:     polling.MaxRetries,
		GasMultiplier:       1.2,
	}
}

func (c *ClientConfig) applyDefaults() {
	defaults := ClientConfigDefaults()
	if c.RPCURL == "" {
		c.RPCURL = defaults.RPCURL
	}
	if c.PrivateKey == "" {
		c.PrivateKey = defaults.PrivateKey
	}
	if c.ReceiptPollInterval == 0 {
		c.ReceiptPollInterval = defaults.ReceiptPollInterval
	}
	if c.ReceiptMaxPolls == 0 {
		c.ReceiptMaxPolls = defaults.ReceiptMaxPolls
	}
	if c.GasMultiplier == 0 {
		c.GasMultiplier = defaults.GasMultiplier
	}
}
