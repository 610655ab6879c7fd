package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/basedagent/basedagent/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x1111111111111111111111111111111111111111"

func TestBlob_EmptyAndDecode(t *testing.T) {
	assert.True(t, Blob("").Empty())
	assert.True(t, Blob("  \n").Empty())
	assert.False(t, Blob(`{"wallet_id":"w"}`).Empty())

	_, err := Decode("")
	assert.ErrorIs(t, err, ErrNoWallet)

	_, err = Decode("not json")
	assert.ErrorIs(t, err, ErrMalformedBlob)

	_, err = Decode(`{"network_id":"base-sepolia"}`)
	assert.ErrorIs(t, err, ErrMalformedBlob)

	d, err := Decode(`{"wallet_id":"w-1","seed":"s","network_id":"base-sepolia","default_address_id":"` + testAddress + `"}`)
	require.NoError(t, err)
	assert.Equal(t, "w-1", d.WalletID)
	assert.Equal(t, testAddress, d.DefaultAddressID)
}

func TestEncodeDecode(t *testing.T) {
	in := Data{WalletID: "w-2", NetworkID: "base-mainnet", DefaultAddressID: testAddress}
	b, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		raw      string
		decimals int
		want     string
	}{
		{"0", 18, "0"},
		{"1000000000000000000", 18, "1"},
		{"1500000000000000000", 18, "1.5"},
		{"1234567", 6, "1.234567"},
		{"10", 6, "0.00001"},
	}
	for _, tt := range tests {
		v, _ := new(big.Int).SetString(tt.raw, 10)
		assert.Equal(t, tt.want, FormatUnits(v, tt.decimals), tt.raw)
	}
	assert.Equal(t, "0", FormatUnits(nil, 18))
}

func TestNormalizeAsset(t *testing.T) {
	a, err := NormalizeAsset(" ETH ")
	require.NoError(t, err)
	assert.Equal(t, AssetETH, a)

	_, err = NormalizeAsset("eurc")
	assert.ErrorIs(t, err, ErrUnsupportedAsset)
}

func newRPCServer(t *testing.T, handle func(method string, params []json.RawMessage) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     int64             `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, rerr := handle(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rerr != nil {
			resp["error"] = rerr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCClient_GetBalance(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "eth_getBalance", method)
		var addr string
		_ = json.Unmarshal(params[0], &addr)
		assert.Equal(t, testAddress, addr)
		return "0xde0b6b3a7640000", nil // 1e18
	})

	wei, err := NewRPCClient(srv.URL).GetBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", wei.String())
}

func TestRPCClient_TokenBalanceCalldata(t *testing.T) {
	token := "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "eth_call", method)
		var call map[string]string
		require.NoError(t, json.Unmarshal(params[0], &call))
		assert.Equal(t, token, call["to"])
		want := "0x70a08231" + strings.Repeat("0", 24) + strings.TrimPrefix(testAddress, "0x")
		assert.Equal(t, want, call["data"])

		out := make([]byte, 32)
		big.NewInt(2500000).FillBytes(out)
		return "0x" + hex.EncodeToString(out), nil
	})

	bal, err := NewRPCClient(srv.URL).TokenBalance(context.Background(), token, testAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(2500000), bal.Int64())
}

func TestRPCClient_Error(t *testing.T) {
	srv := newRPCServer(t, func(string, []json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "header not found"}
	})

	_, err := NewRPCClient(srv.URL).GetBalance(context.Background(), testAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header not found")
}

func TestRPCClient_InvalidHolder(t *testing.T) {
	_, err := NewRPCClient("http://unused").TokenBalance(context.Background(), "0xtoken", "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func newWalletServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testService(apiBase, rpcURL string) *Service {
	return NewService(config.WalletConfig{
		APIBase:          apiBase,
		APIKeyName:       "organizations/x/apiKeys/y",
		APIKeyPrivateKey: "secret",
		NetworkID:        "base-sepolia",
		RPCURL:           rpcURL,
		USDCContract:     "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PaymentLinkBase:  "https://frameskit.vercel.app/payment",
	})
}

func TestService_Provision(t *testing.T) {
	srv := newWalletServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/wallets", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "organizations/x/apiKeys/y", r.Header.Get("X-Api-Key-Name"))

		var body createWalletRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "base-sepolia", body.Wallet.NetworkID)

		_, _ = w.Write([]byte(`{"id":"w-9","network_id":"base-sepolia","seed":"abc","default_address":{"address_id":"` + testAddress + `"}}`))
	})

	blob, err := testService(srv.URL, "").Provision(context.Background())
	require.NoError(t, err)

	d, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, Data{WalletID: "w-9", Seed: "abc", NetworkID: "base-sepolia", DefaultAddressID: testAddress}, d)
}

func TestService_ProvisionFailure(t *testing.T) {
	srv := newWalletServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	})

	_, err := testService(srv.URL, "").Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestService_ProvisionNotConfigured(t *testing.T) {
	svc := NewService(config.WalletConfig{APIBase: "http://unused", NetworkID: "base-sepolia"})
	_, err := svc.Provision(context.Background())
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestService_Balance(t *testing.T) {
	rpc := newRPCServer(t, func(method string, _ []json.RawMessage) (interface{}, *rpcError) {
		switch method {
		case "eth_getBalance":
			return "0x2386f26fc10000", nil // 0.01 ETH
		case "eth_call":
			out := make([]byte, 32)
			big.NewInt(12_500000).FillBytes(out)
			return "0x" + hex.EncodeToString(out), nil
		}
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	})
	svc := testService("http://unused", rpc.URL)
	d := Data{WalletID: "w", DefaultAddressID: testAddress}

	eth, err := svc.Balance(context.Background(), d, "ETH")
	require.NoError(t, err)
	assert.Equal(t, "0.01", eth)

	usdc, err := svc.Balance(context.Background(), d, "usdc")
	require.NoError(t, err)
	assert.Equal(t, "12.5", usdc)

	_, err = svc.Balance(context.Background(), d, "doge")
	assert.ErrorIs(t, err, ErrUnsupportedAsset)
}

func TestService_Transfer(t *testing.T) {
	srv := newWalletServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/w-1/addresses/"+testAddress+"/transfers", r.URL.Path)

		var body TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, TransferRequest{
			Amount:      "2.5",
			AssetID:     AssetUSDC,
			Destination: "vitalik.eth",
			NetworkID:   "base-mainnet",
			Gasless:     true,
		}, body)

		_, _ = w.Write([]byte(`{"transaction_hash":"0xabc","transaction_link":"https://basescan.org/tx/0xabc","status":"complete"}`))
	})
	svc := testService(srv.URL, "")
	d := Data{WalletID: "w-1", NetworkID: "base-mainnet", DefaultAddressID: testAddress}

	res, err := svc.Transfer(context.Background(), d, "2.5", "USDC", "vitalik.eth")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.TransactionHash)
	assert.Equal(t, "complete", res.Status)
}

func TestService_TransferValidation(t *testing.T) {
	svc := testService("http://unused", "")
	d := Data{WalletID: "w-1", DefaultAddressID: testAddress}
	ctx := context.Background()

	_, err := svc.Transfer(ctx, d, "1", "btc", testAddress)
	assert.ErrorIs(t, err, ErrUnsupportedAsset)

	_, err = svc.Transfer(ctx, d, "-1", "eth", testAddress)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Transfer(ctx, d, "abc", "eth", testAddress)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Transfer(ctx, d, "1", "eth", "0x123")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestService_PaymentLink(t *testing.T) {
	svc := testService("http://unused", "")
	d := Data{WalletID: "w", DefaultAddressID: testAddress}

	got := svc.PaymentLink(d, "0.01", "ETH")
	assert.Equal(t,
		"Hey there! Can you send me 0.01 ETH to this address: https://frameskit.vercel.app/payment?amount=0.01&token=ETH&receiver="+testAddress+"?",
		got)
}
