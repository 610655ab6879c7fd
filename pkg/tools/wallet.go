package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/basedagent/basedagent/pkg/wallet"
)

// WalletOperator performs wallet actions for the tools below.
type WalletOperator interface {
	Balance(ctx context.Context, d wallet.Data, asset string) (string, error)
	Transfer(ctx context.Context, d wallet.Data, amount, asset, destination string) (wallet.TransferResult, error)
	PaymentLink(d wallet.Data, amount, token string) string
}

// RegisterWalletTools adds every wallet tool bound to d.
func RegisterWalletTools(r *ToolRegistry, op WalletOperator, d wallet.Data) {
	r.Register(&WalletDetailsTool{data: d})
	r.Register(&BalanceTool{op: op, data: d})
	r.Register(&TransferTool{op: op, data: d})
	r.Register(&RequestFundsTool{op: op, data: d})
}

// Amount accepts either a JSON string or number.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a number or numeric string")
	}
	*a = Amount(n.String())
	return nil
}

type WalletDetailsTool struct {
	data wallet.Data
}

func (t *WalletDetailsTool) Name() string { return "get_wallet_details" }

func (t *WalletDetailsTool) Description() string {
	return "Get the agent wallet's id, network and default address."
}

func (t *WalletDetailsTool) Parameters() map[string]interface{} {
	return SchemaFor[struct{}]()
}

func (t *WalletDetailsTool) Execute(_ context.Context, _ map[string]interface{}) *ToolResult {
	return NewToolResult(fmt.Sprintf("Wallet: %s on network: %s with default address: %s",
		t.data.WalletID, t.data.NetworkID, t.data.DefaultAddressID))
}

type balanceArgs struct {
	AssetID string `json:"asset_id" jsonschema:"description=Asset to check: eth or usdc,enum=eth,enum=usdc"`
}

type BalanceTool struct {
	op   WalletOperator
	data wallet.Data
}

func (t *BalanceTool) Name() string { return "get_balance" }

func (t *BalanceTool) Description() string {
	return "Get the agent wallet's balance of an asset (eth or usdc)."
}

func (t *BalanceTool) Parameters() map[string]interface{} {
	return SchemaFor[balanceArgs]()
}

func (t *BalanceTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	in, err := DecodeArgs[balanceArgs](args)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if strings.TrimSpace(in.AssetID) == "" {
		return ErrorResult("asset_id is required")
	}

	bal, err := t.op.Balance(ctx, t.data, in.AssetID)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error getting balance: %v", err)).WithError(err)
	}
	return NewToolResult(fmt.Sprintf("Balance of %s at address %s: %s",
		strings.ToUpper(in.AssetID), t.data.DefaultAddressID, bal))
}

type transferArgs struct {
	Amount      Amount `json:"amount" jsonschema:"description=Amount of the asset to send as a decimal number"`
	AssetID     string `json:"asset_id" jsonschema:"description=Asset to send: eth or usdc,enum=eth,enum=usdc"`
	Destination string `json:"destination" jsonschema:"description=Destination 0x address or ENS/basename"`
}

type TransferTool struct {
	op   WalletOperator
	data wallet.Data
}

func (t *TransferTool) Name() string { return "transfer" }

func (t *TransferTool) Description() string {
	return "Transfer ETH or USDC from the agent wallet to a destination address. USDC transfers are gasless. Confirm with the user before calling."
}

func (t *TransferTool) Parameters() map[string]interface{} {
	return SchemaFor[transferArgs]()
}

func (t *TransferTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	in, err := DecodeArgs[transferArgs](args)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	res, err := t.op.Transfer(ctx, t.data, string(in.Amount), in.AssetID, in.Destination)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error transferring the asset: %v", err)).WithError(err)
	}

	msg := fmt.Sprintf("Transferred %s %s to %s.", in.Amount, strings.ToUpper(in.AssetID), in.Destination)
	if res.TransactionHash != "" {
		msg += "\nTransaction hash: " + res.TransactionHash
	}
	if res.TransactionLink != "" {
		msg += "\nTransaction link: " + res.TransactionLink
	}
	return NewToolResult(msg)
}

type requestFundsArgs struct {
	Amount float64 `json:"amount" jsonschema:"description=The amount of funds needed. Can be a decimal number."`
	Token  string  `json:"token" jsonschema:"description=The token symbol (e.g. ETH or USDC)"`
}

type RequestFundsTool struct {
	op   WalletOperator
	data wallet.Data
}

func (t *RequestFundsTool) Name() string { return "request_funds_on_mainnet" }

func (t *RequestFundsTool) Description() string {
	return "Generate a payment request link when the agent has insufficient funds on mainnet. " +
		"The link directs to a payment portal where users can send funds to the agent's wallet."
}

func (t *RequestFundsTool) Parameters() map[string]interface{} {
	return SchemaFor[requestFundsArgs]()
}

func (t *RequestFundsTool) Execute(_ context.Context, args map[string]interface{}) *ToolResult {
	in, err := DecodeArgs[requestFundsArgs](args)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if in.Amount <= 0 {
		return ErrorResult("amount must be positive")
	}
	if strings.TrimSpace(in.Token) == "" {
		return ErrorResult("token is required")
	}
	amount := strconv.FormatFloat(in.Amount, 'f', -1, 64)
	return NewToolResult(t.op.PaymentLink(t.data, amount, strings.TrimSpace(in.Token)))
}
