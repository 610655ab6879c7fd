// Package chat runs one chat request end to end: resolve the user's wallet,
// load the transcript, invoke the agent and persist the new turn.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/basedagent/basedagent/pkg/agent"
	"github.com/basedagent/basedagent/pkg/logger"
	"github.com/basedagent/basedagent/pkg/session"
	"github.com/basedagent/basedagent/pkg/wallet"
)

const component = "chat"

// Invoker runs one agent turn.
type Invoker interface {
	Invoke(ctx context.Context, inv agent.Invocation) (string, error)
}

type Options struct {
	// SerializePerUser holds a per-user lock around the whole request.
	SerializePerUser bool
}

type Service struct {
	wallets     *session.WalletManager
	history     *session.HistoryManager
	provisioner wallet.Provisioner
	invoker     Invoker
	locks       *userLocks
}

func NewService(wallets *session.WalletManager, history *session.HistoryManager, provisioner wallet.Provisioner, invoker Invoker, opts Options) *Service {
	s := &Service{
		wallets:     wallets,
		history:     history,
		provisioner: provisioner,
		invoker:     invoker,
	}
	if opts.SerializePerUser {
		s.locks = newUserLocks()
	}
	return s
}

// Chat handles prompt from userID and returns the agent's reply. On agent
// failure the stored transcript is left untouched.
func (s *Service) Chat(ctx context.Context, userID, prompt string) (string, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(prompt) == "" {
		return "", ErrInvalidRequest
	}
	start := time.Now()
	s.stage(userID, "start", nil)

	if s.locks != nil {
		release, err := s.locks.acquire(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("wait for user lock: %w", err)
		}
		defer release()
	}

	blob, err := s.resolveWallet(ctx, userID)
	if err != nil {
		return "", err
	}
	s.stage(userID, "wallet_resolved", map[string]interface{}{"has_wallet": !blob.Empty()})

	prior := s.history.Get(ctx, userID)
	transcript := make([]session.Turn, 0, len(prior)+2)
	transcript = append(transcript, prior...)
	transcript = append(transcript, session.Turn{Role: session.RoleUser, Content: prompt})
	s.stage(userID, "history_resolved", map[string]interface{}{"prior_turns": len(prior)})

	reply, err := s.invoker.Invoke(ctx, agent.Invocation{
		UserID:     userID,
		Wallet:     blob,
		Transcript: transcript,
	})
	if err != nil {
		logger.ErrorCF(component, "Agent invocation failed; transcript left unchanged",
			map[string]interface{}{
				"user":  userID,
				"error": err.Error(),
			})
		s.stage(userID, "agent_failed", nil)
		s.stage(userID, "error_reported", nil)
		return "", fmt.Errorf("%w: %w", ErrAgentInvocation, err)
	}
	s.stage(userID, "agent_invoked", map[string]interface{}{"reply_chars": len(reply)})

	transcript = append(transcript, session.Turn{Role: session.RoleAssistant, Content: reply})
	if !s.history.Save(ctx, userID, transcript) {
		logger.WarnCF(component, "Transcript not persisted; returning reply anyway",
			map[string]interface{}{"user": userID})
	}
	s.stage(userID, "persisted", map[string]interface{}{"turns": len(transcript)})

	s.stage(userID, "done", map[string]interface{}{"duration_ms": time.Since(start).Milliseconds()})
	return reply, nil
}

// resolveWallet returns the stored wallet, minting and saving one when the
// user has none. A failed save yields an empty blob.
func (s *Service) resolveWallet(ctx context.Context, userID string) (wallet.Blob, error) {
	if blob, ok := s.wallets.Get(ctx, userID); ok {
		return blob, nil
	}

	minted, err := s.provisioner.Provision(ctx)
	if err != nil {
		logger.ErrorCF(component, "Wallet provisioning failed",
			map[string]interface{}{
				"user":  userID,
				"error": err.Error(),
			})
		return "", fmt.Errorf("%w: %w", ErrWalletProvisioning, err)
	}

	if !s.wallets.Save(ctx, userID, minted) {
		logger.WarnCF(component, "Wallet not persisted; continuing without wallet",
			map[string]interface{}{"user": userID})
		return "", nil
	}
	logger.InfoCF(component, "Wallet provisioned", map[string]interface{}{"user": userID})

	// Another process may have saved first; its wallet is the one kept, so
	// minted is only usable once read back.
	stored, ok := s.wallets.Get(ctx, userID)
	if !ok {
		logger.WarnCF(component, "Saved wallet could not be read back; continuing without wallet",
			map[string]interface{}{"user": userID})
		return "", nil
	}
	return stored, nil
}

func (s *Service) stage(userID, stage string, fields map[string]interface{}) {
	f := map[string]interface{}{
		"user":  userID,
		"stage": stage,
	}
	for k, v := range fields {
		f[k] = v
	}
	logger.DebugCF(component, "Chat request stage", f)
}
