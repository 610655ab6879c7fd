package wallet

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/basedagent/basedagent/pkg/config"
)

const (
	AssetETH  = "eth"
	AssetUSDC = "usdc"
)

var assetDecimals = map[string]int{
	AssetETH:  18,
	AssetUSDC: 6,
}

// Provisioner mints a new wallet and returns its serialized export.
type Provisioner interface {
	Provision(ctx context.Context) (Blob, error)
}

// Service bundles the wallet service client and chain reads for one network.
type Service struct {
	client          *Client
	rpc             *RPCClient
	networkID       string
	usdcContract    string
	paymentLinkBase string
}

func NewService(cfg config.WalletConfig) *Service {
	return &Service{
		client:          NewClient(cfg.APIBase, cfg.APIKeyName, cfg.APIKeyPrivateKey),
		rpc:             NewRPCClient(cfg.RPCURL),
		networkID:       cfg.NetworkID,
		usdcContract:    cfg.USDCContract,
		paymentLinkBase: cfg.PaymentLinkBase,
	}
}

func (s *Service) Provision(ctx context.Context) (Blob, error) {
	d, err := s.client.CreateWallet(ctx, s.networkID)
	if err != nil {
		return "", err
	}
	return Encode(d)
}

// NormalizeAsset lowercases asset and rejects anything but ETH and USDC.
func NormalizeAsset(asset string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(asset))
	if _, ok := assetDecimals[a]; !ok {
		return "", fmt.Errorf("%w: %q (only ETH and USDC are supported)", ErrUnsupportedAsset, asset)
	}
	return a, nil
}

// Balance returns the wallet's balance of asset as a decimal string.
func (s *Service) Balance(ctx context.Context, d Data, asset string) (string, error) {
	a, err := NormalizeAsset(asset)
	if err != nil {
		return "", err
	}
	if d.DefaultAddressID == "" {
		return "", fmt.Errorf("%w: wallet has no default address", ErrMalformedBlob)
	}

	var raw *big.Int
	switch a {
	case AssetETH:
		raw, err = s.rpc.GetBalance(ctx, d.DefaultAddressID)
	case AssetUSDC:
		raw, err = s.rpc.TokenBalance(ctx, s.usdcContract, d.DefaultAddressID)
	}
	if err != nil {
		return "", fmt.Errorf("read %s balance: %w", a, err)
	}
	return FormatUnits(raw, assetDecimals[a]), nil
}

// Transfer validates the request and hands it to the wallet service. USDC
// moves gasless.
func (s *Service) Transfer(ctx context.Context, d Data, amount, asset, destination string) (TransferResult, error) {
	a, err := NormalizeAsset(asset)
	if err != nil {
		return TransferResult{}, err
	}
	amt, err := parseAmount(amount)
	if err != nil {
		return TransferResult{}, err
	}
	dest := strings.TrimSpace(destination)
	if !isDestination(dest) {
		return TransferResult{}, fmt.Errorf("%w: %q", ErrInvalidAddress, destination)
	}

	network := d.NetworkID
	if network == "" {
		network = s.networkID
	}
	return s.client.Transfer(ctx, d, TransferRequest{
		Amount:      amt,
		AssetID:     a,
		Destination: dest,
		NetworkID:   network,
		Gasless:     a == AssetUSDC,
	})
}

// PaymentLink builds the funding request message pointing at the wallet's address.
func (s *Service) PaymentLink(d Data, amount, token string) string {
	link := fmt.Sprintf("%s?amount=%s&token=%s&receiver=%s",
		s.paymentLinkBase,
		url.QueryEscape(amount),
		url.QueryEscape(token),
		url.QueryEscape(d.DefaultAddressID))
	return fmt.Sprintf("Hey there! Can you send me %s %s to this address: %s?", amount, token, link)
}

// FormatUnits renders v scaled down by 10^decimals without trailing zeros.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	s := new(big.Rat).SetFrac(v, denom).FloatString(decimals)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

func parseAmount(amount string) (string, error) {
	a := strings.TrimSpace(amount)
	r, ok := new(big.Rat).SetString(a)
	if !ok || r.Sign() <= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return a, nil
}

func isDestination(dest string) bool {
	if _, err := addressBytes(dest); err == nil {
		return true
	}
	// ENS and basename destinations are resolved by the wallet service.
	return strings.HasSuffix(strings.ToLower(dest), ".eth") && len(dest) > len(".eth")
}
