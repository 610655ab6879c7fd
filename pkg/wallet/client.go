package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("wallet: service credentials not configured")

// Client calls the custodial wallet service's REST API.
type Client struct {
	apiBase    string
	keyName    string
	keySecret  string
	httpClient *http.Client
}

func NewClient(apiBase, keyName, keySecret string) *Client {
	return &Client{
		apiBase:    strings.TrimRight(apiBase, "/"),
		keyName:    keyName,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type createWalletRequest struct {
	Wallet struct {
		NetworkID string `json:"network_id"`
	} `json:"wallet"`
}

type walletResponse struct {
	ID             string `json:"id"`
	NetworkID      string `json:"network_id"`
	Seed           string `json:"seed"`
	DefaultAddress struct {
		AddressID string `json:"address_id"`
	} `json:"default_address"`
}

// CreateWallet mints a new wallet on networkID and returns its export data.
func (c *Client) CreateWallet(ctx context.Context, networkID string) (Data, error) {
	var req createWalletRequest
	req.Wallet.NetworkID = networkID

	var resp walletResponse
	if err := c.do(ctx, http.MethodPost, "/v1/wallets", req, &resp); err != nil {
		return Data{}, fmt.Errorf("create wallet: %w", err)
	}
	if resp.ID == "" {
		return Data{}, fmt.Errorf("create wallet: response has no wallet id")
	}
	network := resp.NetworkID
	if network == "" {
		network = networkID
	}
	return Data{
		WalletID:         resp.ID,
		Seed:             resp.Seed,
		NetworkID:        network,
		DefaultAddressID: resp.DefaultAddress.AddressID,
	}, nil
}

type TransferRequest struct {
	Amount      string `json:"amount"`
	AssetID     string `json:"asset_id"`
	Destination string `json:"destination"`
	NetworkID   string `json:"network_id"`
	Gasless     bool   `json:"gasless"`
}

type TransferResult struct {
	TransactionHash string `json:"transaction_hash"`
	TransactionLink string `json:"transaction_link"`
	Status          string `json:"status"`
}

// Transfer sends funds from the wallet's default address.
func (c *Client) Transfer(ctx context.Context, d Data, req TransferRequest) (TransferResult, error) {
	if d.DefaultAddressID == "" {
		return TransferResult{}, fmt.Errorf("transfer: %w: wallet has no default address", ErrMalformedBlob)
	}
	path := fmt.Sprintf("/v1/wallets/%s/addresses/%s/transfers", url.PathEscape(d.WalletID), url.PathEscape(d.DefaultAddressID))

	var out TransferResult
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return TransferResult{}, fmt.Errorf("transfer: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if c.apiBase == "" || c.keyName == "" || c.keySecret == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.keySecret)
	req.Header.Set("X-Api-Key-Name", c.keyName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("wallet service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
