package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basedagent/basedagent/pkg/wallet"
)

type fakeWalletOperator struct {
	balance     string
	balanceErr  error
	transfer    wallet.TransferResult
	transferErr error

	gotAsset  string
	gotAmount string
	gotDest   string
}

func (f *fakeWalletOperator) Balance(_ context.Context, _ wallet.Data, asset string) (string, error) {
	f.gotAsset = asset
	return f.balance, f.balanceErr
}

func (f *fakeWalletOperator) Transfer(_ context.Context, _ wallet.Data, amount, asset, dest string) (wallet.TransferResult, error) {
	f.gotAmount, f.gotAsset, f.gotDest = amount, asset, dest
	return f.transfer, f.transferErr
}

func (f *fakeWalletOperator) PaymentLink(d wallet.Data, amount, token string) string {
	return "pay " + amount + " " + token + " to " + d.DefaultAddressID
}

var testWallet = wallet.Data{
	WalletID:         "w-1",
	NetworkID:        "base-sepolia",
	DefaultAddressID: "0xabc",
}

func walletRegistry(op WalletOperator) *ToolRegistry {
	r := NewToolRegistry()
	RegisterWalletTools(r, op, testWallet)
	return r
}

func TestRegisterWalletTools(t *testing.T) {
	r := walletRegistry(&fakeWalletOperator{})
	assert.Equal(t, []string{"get_balance", "get_wallet_details", "request_funds_on_mainnet", "transfer"}, r.Names())
}

func TestWalletDetailsTool(t *testing.T) {
	res := walletRegistry(&fakeWalletOperator{}).Run(context.Background(), "get_wallet_details", nil)
	require.False(t, res.IsError)
	assert.Equal(t, "Wallet: w-1 on network: base-sepolia with default address: 0xabc", res.ForLLM)
}

func TestBalanceTool(t *testing.T) {
	op := &fakeWalletOperator{balance: "1.5"}
	res := walletRegistry(op).Run(context.Background(), "get_balance", map[string]interface{}{"asset_id": "eth"})
	require.False(t, res.IsError, res.ForLLM)
	assert.Equal(t, "eth", op.gotAsset)
	assert.Equal(t, "Balance of ETH at address 0xabc: 1.5", res.ForLLM)
}

func TestBalanceTool_Errors(t *testing.T) {
	op := &fakeWalletOperator{balanceErr: wallet.ErrUnsupportedAsset}
	r := walletRegistry(op)

	res := r.Run(context.Background(), "get_balance", map[string]interface{}{})
	assert.True(t, res.IsError)
	assert.Contains(t, res.ForLLM, "asset_id is required")

	res = r.Run(context.Background(), "get_balance", map[string]interface{}{"asset_id": "doge"})
	assert.True(t, res.IsError)
	assert.True(t, errors.Is(res.Err, wallet.ErrUnsupportedAsset))
	assert.Contains(t, res.ForLLM, "Error getting balance")
}

func TestTransferTool_AcceptsNumericAmount(t *testing.T) {
	op := &fakeWalletOperator{transfer: wallet.TransferResult{
		TransactionHash: "0xhash",
		TransactionLink: "https://sepolia.basescan.org/tx/0xhash",
	}}
	res := walletRegistry(op).Run(context.Background(), "transfer", map[string]interface{}{
		"amount":      0.25,
		"asset_id":    "usdc",
		"destination": "vitalik.eth",
	})
	require.False(t, res.IsError, res.ForLLM)
	assert.Equal(t, "0.25", op.gotAmount)
	assert.Equal(t, "usdc", op.gotAsset)
	assert.Equal(t, "vitalik.eth", op.gotDest)
	assert.Contains(t, res.ForLLM, "Transferred 0.25 USDC to vitalik.eth.")
	assert.Contains(t, res.ForLLM, "Transaction hash: 0xhash")
	assert.Contains(t, res.ForLLM, "Transaction link: https://sepolia.basescan.org/tx/0xhash")
}

func TestTransferTool_StringAmountAndFailure(t *testing.T) {
	op := &fakeWalletOperator{transferErr: wallet.ErrInvalidAddress}
	res := walletRegistry(op).Run(context.Background(), "transfer", map[string]interface{}{
		"amount":      " 1 ",
		"asset_id":    "eth",
		"destination": "nowhere",
	})
	assert.Equal(t, "1", op.gotAmount)
	assert.True(t, res.IsError)
	assert.True(t, errors.Is(res.Err, wallet.ErrInvalidAddress))
}

func TestTransferTool_RejectsBadAmountType(t *testing.T) {
	op := &fakeWalletOperator{}
	res := walletRegistry(op).Run(context.Background(), "transfer", map[string]interface{}{
		"amount":      []interface{}{1},
		"asset_id":    "eth",
		"destination": "0xdef",
	})
	assert.True(t, res.IsError)
	assert.Empty(t, op.gotAmount)
}

func TestRequestFundsTool(t *testing.T) {
	r := walletRegistry(&fakeWalletOperator{})

	res := r.Run(context.Background(), "request_funds_on_mainnet", map[string]interface{}{"amount": 0.5, "token": "ETH"})
	require.False(t, res.IsError, res.ForLLM)
	assert.Equal(t, "pay 0.5 ETH to 0xabc", res.ForLLM)

	res = r.Run(context.Background(), "request_funds_on_mainnet", map[string]interface{}{"amount": 10, "token": "USDC"})
	assert.Equal(t, "pay 10 USDC to 0xabc", res.ForLLM)

	res = r.Run(context.Background(), "request_funds_on_mainnet", map[string]interface{}{"amount": 0, "token": "USDC"})
	assert.True(t, res.IsError)

	res = r.Run(context.Background(), "request_funds_on_mainnet", map[string]interface{}{"amount": 1})
	assert.True(t, res.IsError)
}

func TestWalletToolSchemas(t *testing.T) {
	schema := (&TransferTool{}).Parameters()
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")
	assert.ElementsMatch(t, []interface{}{"amount", "asset_id", "destination"}, schema["required"])

	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	asset, ok := props["asset_id"].(map[string]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"eth", "usdc"}, asset["enum"])

	empty := (&WalletDetailsTool{}).Parameters()
	assert.Equal(t, "object", empty["type"])
	assert.Contains(t, empty, "properties")
}

func TestDecodeArgs(t *testing.T) {
	type args struct {
		Name  string  `json:"name"`
		Count float64 `json:"count"`
	}
	got, err := DecodeArgs[args](map[string]interface{}{"name": "x", "count": 3})
	require.NoError(t, err)
	assert.Equal(t, args{Name: "x", Count: 3}, got)

	_, err = DecodeArgs[args](map[string]interface{}{"count": "three"})
	assert.Error(t, err)
}
