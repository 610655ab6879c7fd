package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// balanceOfSelector is keccak256("balanceOf(address)")[:4].
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// RPCClient is a minimal Ethereum JSON-RPC client for balance reads.
type RPCClient struct {
	url        string
	httpClient *http.Client
	requestID  atomic.Int64
}

func NewRPCClient(url string) *RPCClient {
	return &RPCClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GetBalance returns the native balance of address in wei.
func (c *RPCClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	raw, err := c.callHex(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// TokenBalance returns the ERC-20 balance of holder at token in base units.
func (c *RPCClient) TokenBalance(ctx context.Context, token, holder string) (*big.Int, error) {
	addr, err := addressBytes(holder)
	if err != nil {
		return nil, err
	}
	calldata := make([]byte, 0, 36)
	calldata = append(calldata, balanceOfSelector...)
	calldata = append(calldata, make([]byte, 12)...)
	calldata = append(calldata, addr...)

	raw, err := c.EthCall(ctx, token, calldata)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// EthCall executes a read-only contract call and returns the raw result bytes.
func (c *RPCClient) EthCall(ctx context.Context, to string, calldata []byte) ([]byte, error) {
	return c.callHex(ctx, "eth_call", map[string]string{
		"to":   to,
		"data": "0x" + hex.EncodeToString(calldata),
	}, "latest")
}

func (c *RPCClient) callHex(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s failed: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	var hexResult string
	if err := json.Unmarshal(rpcResp.Result, &hexResult); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	hexResult = strings.TrimPrefix(hexResult, "0x")
	if len(hexResult)%2 == 1 {
		hexResult = "0" + hexResult
	}
	return hex.DecodeString(hexResult)
}

func addressBytes(address string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if len(trimmed) != 40 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return b, nil
}
