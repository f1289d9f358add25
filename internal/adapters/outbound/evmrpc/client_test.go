package evmrpc

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/oracle-forge/internal/pkg/retry"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
	"github.com/archon-research/oracle-forge/internal/testutil"
)

var (
	devAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	feedAddr   = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
)

func dialTest(t *testing.T, node *testutil.MockEthRPC) *Client {
	t.Helper()
	cfg := ClientConfigDefaults()
	cfg.RPCURL = node.URL
	cfg.ReceiptPollInterval = time.Millisecond
	client, err := Dial(context.Background(), cfg, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func paramsOf(t *testing.T, raw json.RawMessage) []json.RawMessage {
	t.Helper()
	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		t.Errorf("decoding params: %v", err)
	}
	return params
}

func TestClientConfigDefaults_ReceiptPolling(t *testing.T) {
	polling := retry.DefaultConfig()
	cfg := ClientConfigDefaults()
	if cfg.ReceiptPollInterval != polling.InitialBackoff {
		t.Errorf("ReceiptPollInterval = %v, want %v", cfg.ReceiptPollInterval, polling.InitialBackoff)
	}
	if cfg.ReceiptMaxPolls != polling.MaxRetries {
		t.Errorf("ReceiptMaxPolls = %d, want %d", cfg.ReceiptMaxPolls, polling.MaxRetries)
	}

	var zero ClientConfig
	zero.applyDefaults()
	if zero.ReceiptPollInterval != polling.InitialBackoff || zero.ReceiptMaxPolls != polling.MaxRetries {
		t.Errorf("applyDefaults = %v/%d", zero.ReceiptPollInterval, zero.ReceiptMaxPolls)
	}
}

func TestDial_ChainIDMismatch(t *testing.T) {
	node := testutil.StartMockEthRPC(t, "0x1", nil)

	cfg := ClientConfigDefaults()
	cfg.RPCURL = node.URL
	_, err := Dial(context.Background(), cfg, testutil.DiscardLogger())
	if err == nil {
		t.Fatal("expected chain id mismatch error")
	}
	if !strings.Contains(err.Error(), "chain id mismatch") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDial_DerivesSender(t *testing.T) {
	node := testutil.StartMockEthRPC(t, "0x7a69", nil)
	client := dialTest(t, node)

	if client.Sender() != devAccount {
		t.Errorf("Sender = %s, want %s", client.Sender().Hex(), devAccount.Hex())
	}
	if client.ChainID().Int64() != 31337 {
		t.Errorf("ChainID = %s", client.ChainID())
	}
}

func TestDial_InvalidPrivateKey(t *testing.T) {
	cfg := ClientConfigDefaults()
	cfg.PrivateKey = "0xnothex"
	if _, err := Dial(context.Background(), cfg, testutil.DiscardLogger()); err == nil {
		t.Fatal("expected private key error")
	}
}

func TestCallContract(t *testing.T) {
	node := testutil.StartMockEthRPC(t, "0x7a69", map[string]testutil.RPCMethod{
		"eth_call": func(json.RawMessage) (any, *testutil.RPCError) {
			return "0x0000000000000000000000000000000000000000000000000000000000000008", nil
		},
	})
	client := dialTest(t, node)

	out, err := client.CallContract(context.Background(), feedAddr, []byte{0x31, 0x3c, 0xe5, 0x67})
	if err != nil {
		t.Fatalf("CallContract: %v", err)
	}
	if new(big.Int).SetBytes(out).Int64() != 8 {
		t.Errorf("CallContract returned %x", out)
	}
}

func TestBatchCall_AllowFailure(t *testing.T) {
	node := testutil.StartMockEthRPC(t, "0x7a69", map[string]testutil.RPCMethod{
		"eth_call": func(params json.RawMessage) (any, *testutil.RPCError) {
			var args []struct {
				To   string `json:"to"`
				Data string `json:"data"`
			}
			_ = json.Unmarshal(params, &args)
			if len(args) > 0 && args[0].Data == "0xdeadbeef" {
				return nil, &testutil.RPCError{Code: 3, Message: "execution reverted"}
			}
			return "0x01", nil
		},
	})
	client := dialTest(t, node)

	calls := []outbound.Call{
		{Target: feedAddr, CallData: []byte{0x01}},
		{Target: feedAddr, CallData: []byte{0xde, 0xad, 0xbe, 0xef}, AllowFailure: true},
	}
	results, err := client.BatchCall(context.Background(), calls)
	if err != nil {
		t.Fatalf("BatchCall: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if !results[0].Success || len(results[0].ReturnData) != 1 || results[0].ReturnData[0] != 0x01 {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].Success {
		t.Errorf("second result should have failed")
	}

	calls[1].AllowFailure = false
	if _, err := client.BatchCall(context.Background(), calls); err == nil {
		t.Error("expected error when a required call fails")
	}

	empty, err := client.BatchCall(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty batch = %v, %v", empty, err)
	}
}

func TestSetCode_UsesConventionNamespace(t *testing.T) {
	var gotParams json.RawMessage
	node := testutil.StartMockEthRPC(t, "0x7a69", map[string]testutil.RPCMethod{
		"hardhat_setCode": func(params json.RawMessage) (any, *testutil.RPCError) {
			gotParams = params
			return true, nil
		},
	})
	client := dialTest(t, node)
	ctx := context.Background()

	if err := client.SetCode(ctx, outbound.ConventionAnvil, feedAddr, []byte{0x60, 0x00}); err == nil {
		t.Fatal("expected anvil_setCode to fail on a hardhat node")
	}
	if err := client.SetCode(ctx, outbound.ConventionHardhat, feedAddr, []byte{0x60, 0x00}); err != nil {
		t.Fatalf("hardhat_setCode: %v", err)
	}

	params := paramsOf(t, gotParams)
	if len(params) != 2 {
		t.Fatalf("got %d params", len(params))
	}
	var code string
	_ = json.Unmarshal(params[1], &code)
	if code != "0x6000" {
		t.Errorf("code param = %q", code)
	}
	if node.CallCount("anvil_setCode") != 1 || node.CallCount("hardhat_setCode") != 1 {
		t.Errorf("calls = %v", node.Calls())
	}
}

func TestSetStorageAt_DetectsOnce(t *testing.T) {
	var slots []string
	node := testutil.StartMockEthRPC(t, "0x7a69", map[string]testutil.RPCMethod{
		"hardhat_setStorageAt": func(params json.RawMessage) (any, *testutil.RPCError) {
			var args []string
			_ = json.Unmarshal(params, &args)
			if len(args) == 3 {
				slots = append(slots, args[1])
			}
			return true, nil
		},
	})
	client := dialTest(t, node)
	ctx := context.Background()

	value := common.BigToHash(big.NewInt(200000000000))
	for i := 0; i < 2; i++ {
		if err := client.SetStorageAt(ctx, feedAddr, common.BigToHash(big.NewInt(3)), value); err != nil {
			t.Fatalf("SetStorageAt #%d: %v", i, err)
		}
	}

	if got := node.CallCount("anvil_setStorageAt"); got != 1 {
		t.Errorf("anvil_setStorageAt called %d times, want 1", got)
	}
	if got := node.CallCount("hardhat_setStorageAt"); got != 2 {
		t.Errorf("hardhat_setStorageAt called %d times, want 2", got)
	}
	for _, s := range slots {
		if s != "0x3" {
			t.Errorf("hardhat slot param = %q, want 0x3", s)
		}
	}
}

func TestSetStorageAt_NeitherSupported(t *testing.T) {
	node := testutil.StartMockEthRPC(t, "0x7a69", nil)
	client := dialTest(t, node)

	err := client.SetStorageAt(context.Background(), feedAddr, common.Hash{}, common.Hash{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "anvil_setStorageAt") || !strings.Contains(err.Error(), "hardhat_setStorageAt") {
		t.Errorf("error should name both methods: %v", err)
	}
}

func receiptJSON(hash string, status string) map[string]any {
	return map[string]any{
		"transactionHash":   hash,
		"transactionIndex":  "0x0",
		"blockHash":         "0x" + strings.Repeat("11", 32),
		"blockNumber":       "0x5",
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x1",
		"contractAddress":   nil,
		"logs":              []any{},
		"logsBloom":         "0x" + strings.Repeat("00", 256),
		"status":            status,
		"type":              "0x0",
	}
}

func TestWaitMined_PollsUntilReceipt(t *testing.T) {
	txHash := common.HexToHash("0xabc1")
	polls := 0
	node := testutil.StartMockEthRPC(t, "0x7a69", map[string]testutil.RPCMethod{
		"eth_getTransactionReceipt": func(json.RawMessage) (any, *testutil.RPCError) {
			polls++
			if polls < 3 {
				return nil, nil
			}
			return receiptJSON(txHash.Hex(), "0x1"), nil
		},
	})
	client := dialTest(t, node)

	receipt, err := client.WaitMined(context.Background(), txHash)
	if err != nil {
		t.Fatalf("WaitMined: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Errorf("status = %d", receipt.Status)
	}
	if polls != 3 {
		t.Errorf("polled %d times, want 3", polls)
	}
}

func TestWaitMined_Reverted(t *testing.T) {
	txHash := common.HexToHash("0xabc2")
	node := testutil.StartMockEthRPC(t, "0x7a69", map[string]testutil.RPCMethod{
		"eth_getTransactionReceipt": func(json.RawMessage) (any, *testutil.RPCError) {
			return receiptJSON(txHash.Hex(), "0x0"), nil
		},
	})
	client := dialTest(t, node)

	if _, err := client.WaitMined(context.Background(), txHash); err == nil || !strings.Contains(err.Error(), "reverted") {
		t.Fatalf("expected revert error, got %v", err)
	}
}

func TestWaitMined_GivesUp(t *testing.T) {
	node := testutil.StartMockEthRPC(t, "0x7a69", map[string]testutil.RPCMethod{
		"eth_getTransactionReceipt": func(json.RawMessage) (any, *testutil.RPCError) {
			return nil, nil
		},
	})
	cfg := ClientConfigDefaults()
	cfg.RPCURL = node.URL
	cfg.ReceiptPollInterval = time.Millisecond
	cfg.ReceiptMaxPolls = 3
	client, err := Dial(context.Background(), cfg, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if _, err := client.WaitMined(context.Background(), common.HexToHash("0xabc3")); err == nil {
		t.Fatal("expected error after exhausting polls")
	}
	if got := node.CallCount("eth_getTransactionReceipt"); got != 4 {
		t.Errorf("polled %d times, want 4", got)
	}
}

func TestSendTransaction_SignsLegacyTx(t *testing.T) {
	var raw string
	node := testutil.StartMockEthRPC(t, "0x7a69", map[string]testutil.RPCMethod{
		"eth_getTransactionCount": func(json.RawMessage) (any, *testutil.RPCError) { return "0x3", nil },
		"eth_gasPrice":            func(json.RawMessage) (any, *testutil.RPCError) { return "0x3b9aca00", nil },
		"eth_estimateGas":         func(json.RawMessage) (any, *testutil.RPCError) { return "0x7530", nil },
		"eth_sendRawTransaction": func(params json.RawMessage) (any, *testutil.RPCError) {
			var args []string
			_ = json.Unmarshal(params, &args)
			if len(args) == 1 {
				raw = args[0]
			}
			return "0x" + strings.Repeat("22", 32), nil
		},
	})
	client := dialTest(t, node)

	data := []byte{0xa8, 0x7a, 0x20, 0xce}
	hash, err := client.SendTransaction(context.Background(), feedAddr, data)
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}

	rawBytes, err := hexutil.Decode(raw)
	if err != nil {
		t.Fatalf("decoding raw tx: %v", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawBytes); err != nil {
		t.Fatalf("unmarshal tx: %v", err)
	}

	if tx.Hash() != hash {
		t.Errorf("returned hash %s, signed tx hash %s", hash.Hex(), tx.Hash().Hex())
	}
	if tx.Type() != types.LegacyTxType {
		t.Errorf("tx type = %d, want legacy", tx.Type())
	}
	if tx.Nonce() != 3 {
		t.Errorf("nonce = %d, want 3", tx.Nonce())
	}
	if tx.Gas() != 36000 {
		t.Errorf("gas = %d, want 36000", tx.Gas())
	}
	if tx.GasPrice().Int64() != 1000000000 {
		t.Errorf("gas price = %s", tx.GasPrice())
	}
	if *tx.To() != feedAddr {
		t.Errorf("to = %s", tx.To().Hex())
	}

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), tx)
	if err != nil {
		t.Fatalf("recovering sender: %v", err)
	}
	if sender != devAccount {
		t.Errorf("sender = %s, want %s", sender.Hex(), devAccount.Hex())
	}
}

func TestRateLimiter(t *testing.T) {
	node := testutil.StartMockEthRPC(t, "0x7a69", map[string]testutil.RPCMethod{
		"eth_getCode": func(json.RawMessage) (any, *testutil.RPCError) { return "0x6000", nil },
	})
	cfg := ClientConfigDefaults()
	cfg.RPCURL = node.URL
	cfg.RequestsPerSecond = 1000
	client, err := Dial(context.Background(), cfg, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	code, err := client.CodeAt(context.Background(), feedAddr)
	if err != nil {
		t.Fatalf("CodeAt: %v", err)
	}
	if len(code) != 2 {
		t.Errorf("code = %x", code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.CodeAt(ctx, feedAddr); err == nil {
		t.Error("expected cancelled context to fail")
	}
}
