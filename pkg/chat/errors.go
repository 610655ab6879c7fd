package chat

import "errors"

var (
	ErrWalletProvisioning = errors.New("chat: wallet provisioning failed")
	ErrAgentInvocation    = errors.New("chat: agent invocation failed")
	ErrInvalidRequest     = errors.New("chat: user and prompt are required")
)
