package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/basedagent/basedagent/pkg/kvstore"
	"github.com/basedagent/basedagent/pkg/logger"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultHistoryTTL = 7 * 24 * time.Hour
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func HistoryKey(userID string) string { return "chat:" + userID }

// HistoryManager stores each user's transcript as a JSON array that expires
// ttl after the last write.
type HistoryManager struct {
	store kvstore.Store
	ttl   time.Duration
}

func NewHistoryManager(store kvstore.Store, ttl time.Duration) *HistoryManager {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &HistoryManager{store: store, ttl: ttl}
}

func (m *HistoryManager) TTL() time.Duration { return m.ttl }

// Get returns the stored transcript, or an empty one when the key is missing,
// expired, unreadable or malformed.
func (m *HistoryManager) Get(ctx context.Context, userID string) []Turn {
	raw, ok := m.store.Get(ctx, HistoryKey(userID))
	if !ok {
		return []Turn{}
	}
	turns, err := DecodeTranscript(raw)
	if err != nil {
		logger.WarnCF(component, "Discarding malformed transcript", map[string]interface{}{
			"user":  userID,
			"error": err.Error(),
		})
		return []Turn{}
	}
	return turns
}

// Save replaces the whole transcript and restarts its expiry.
func (m *HistoryManager) Save(ctx context.Context, userID string, turns []Turn) bool {
	if turns == nil {
		turns = []Turn{}
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		logger.ErrorCF(component, "Failed to encode transcript", map[string]interface{}{
			"user":  userID,
			"error": err.Error(),
		})
		return false
	}
	return m.store.Set(ctx, HistoryKey(userID), string(raw), m.ttl)
}

// DecodeTranscript reads either the role-tagged layout or the older layout
// of bare strings, which come back as user turns.
func DecodeTranscript(raw string) ([]Turn, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}

	turns := make([]Turn, 0, len(items))
	for _, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			turns = append(turns, Turn{Role: RoleUser, Content: text})
			continue
		}
		var t Turn
		if err := json.Unmarshal(item, &t); err != nil {
			return nil, err
		}
		if t.Role == "" {
			t.Role = RoleUser
		}
		turns = append(turns, t)
	}
	return turns, nil
}
