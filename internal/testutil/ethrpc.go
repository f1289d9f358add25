package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCMethod answers one JSON-RPC method. Returning a non-nil *RPCError
// produces an error response.
type RPCMethod func(params json.RawMessage) (any, *RPCError)

// MockEthRPC is an httptest JSON-RPC node serving a fixed method table. It
// accepts single and batched requests and records every method called.
type MockEthRPC struct {
	*httptest.Server

	mu      sync.Mutex
	methods map[string]RPCMethod
	calls   []string
}

// StartMockEthRPC starts a node that answers eth_chainId with chainIDHex and
// dispatches everything else to methods. Unknown methods return -32601.
func StartMockEthRPC(t *testing.T, chainIDHex string, methods map[string]RPCMethod) *MockEthRPC {
	t.Helper()

	m := &MockEthRPC{methods: map[string]RPCMethod{
		"eth_chainId": func(json.RawMessage) (any, *RPCError) { return chainIDHex, nil },
	}}
	for name, fn := range methods {
		m.methods[name] = fn
	}

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")

		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var reqs []JSONRPCRequest
			if err := json.Unmarshal(trimmed, &reqs); err != nil {
				WriteRPCError(w, json.RawMessage(`1`), -32700, "parse error")
				return
			}
			responses := make([]map[string]any, 0, len(reqs))
			for _, req := range reqs {
				responses = append(responses, m.respond(req))
			}
			_ = json.NewEncoder(w).Encode(responses)
			return
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			WriteRPCError(w, json.RawMessage(`1`), -32700, "parse error")
			return
		}
		_ = json.NewEncoder(w).Encode(m.respond(req))
	}))
	t.Cleanup(m.Close)
	return m
}

// Calls returns the methods received so far, in order.
func (m *MockEthRPC) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times method was received.
func (m *MockEthRPC) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *MockEthRPC) respond(req JSONRPCRequest) map[string]any {
	m.mu.Lock()
	m.calls = append(m.calls, req.Method)
	fn, ok := m.methods[req.Method]
	m.mu.Unlock()

	if !ok {
		return errorResponse(req.ID, -32601, "the method "+req.Method+" does not exist/is not available")
	}
	result, rpcErr := fn(req.Params)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}
	return map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
}

func errorResponse(id json.RawMessage, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   RPCError{Code: code, Message: message},
	}
}

// WriteRPCResult writes a JSON-RPC success response.
func WriteRPCResult(w http.ResponseWriter, id, result json.RawMessage) {
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"result":  result,
	})
}

// WriteRPCError writes a JSON-RPC error response.
func WriteRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	_ = json.NewEncoder(w).Encode(errorResponse(id, code, message))
}
