// Package wallet talks to the custodial wallet service and the chain RPC
// on behalf of a user's agent wallet.
package wallet

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Blob is the serialized wallet export kept in the wallet record. Only this
// package looks inside it.
type Blob string

// Empty reports whether the blob carries no wallet.
func (b Blob) Empty() bool {
	return strings.TrimSpace(string(b)) == ""
}

// Data is the decoded wallet export.
type Data struct {
	WalletID         string `json:"wallet_id"`
	Seed             string `json:"seed,omitempty"`
	NetworkID        string `json:"network_id"`
	DefaultAddressID string `json:"default_address_id,omitempty"`
}

func Decode(b Blob) (Data, error) {
	if b.Empty() {
		return Data{}, ErrNoWallet
	}
	var d Data
	if err := json.Unmarshal([]byte(b), &d); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if d.WalletID == "" {
		return Data{}, fmt.Errorf("%w: missing wallet_id", ErrMalformedBlob)
	}
	return d, nil
}

func Encode(d Data) (Blob, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode wallet data: %w", err)
	}
	return Blob(raw), nil
}
