// Package session keeps per-user state in the key-value store: the wallet
// record and the chat transcript.
package session

import (
	"context"

	"github.com/basedagent/basedagent/pkg/kvstore"
	"github.com/basedagent/basedagent/pkg/logger"
	"github.com/basedagent/basedagent/pkg/wallet"
)

const component = "session"

// WriteMode selects how a wallet record is written.
type WriteMode int

const (
	// WriteGuarded checks for an existing record and writes only when absent.
	WriteGuarded WriteMode = iota
	// WriteAtomic uses the store's set-if-absent primitive.
	WriteAtomic
)

func WalletKey(userID string) string { return "wallet:" + userID }

// WalletManager stores at most one wallet per user. A record, once written,
// is never overwritten or expired.
type WalletManager struct {
	store kvstore.Store
	mode  WriteMode
}

func NewWalletManager(store kvstore.Store, mode WriteMode) *WalletManager {
	return &WalletManager{store: store, mode: mode}
}

// Get returns the user's wallet blob. A missing key, a store failure and a
// blank blob all read as absent.
func (m *WalletManager) Get(ctx context.Context, userID string) (wallet.Blob, bool) {
	raw, ok := m.store.Get(ctx, WalletKey(userID))
	if !ok {
		return "", false
	}
	blob := wallet.Blob(raw)
	if blob.Empty() {
		return "", false
	}
	return blob, true
}

// Save writes blob unless the user already has a wallet. It returns false
// only when the store failed.
func (m *WalletManager) Save(ctx context.Context, userID string, blob wallet.Blob) bool {
	key := WalletKey(userID)

	if m.mode == WriteAtomic {
		created, ok := m.store.SetIfAbsent(ctx, key, string(blob), 0)
		if ok && !created {
			logger.DebugCF(component, "Wallet already present, skipping save", map[string]interface{}{"user": userID})
		}
		return ok
	}

	exists, ok := m.store.Exists(ctx, key)
	if !ok {
		// An unanswered existence check must not fall through to Set.
		return false
	}
	if exists {
		logger.DebugCF(component, "Wallet already present, skipping save", map[string]interface{}{"user": userID})
		return true
	}
	return m.store.Set(ctx, key, string(blob), 0)
}
