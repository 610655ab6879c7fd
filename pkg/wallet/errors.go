package wallet

import "errors"

var (
	ErrNoWallet         = errors.New("wallet: no wallet")
	ErrMalformedBlob    = errors.New("wallet: malformed wallet blob")
	ErrUnsupportedAsset = errors.New("wallet: unsupported asset")
	ErrInvalidAmount    = errors.New("wallet: invalid amount")
	ErrInvalidAddress   = errors.New("wallet: invalid address")
)
