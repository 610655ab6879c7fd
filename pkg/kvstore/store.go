// Package kvstore is a fail-soft key-value client. Data operations never
// return errors: failures are logged and reported as absent or false.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const component = "kvstore"

var ErrUnsupportedScheme = errors.New("kvstore: unsupported url scheme")

// Store is a string key-value store with optional per-key expiry.
// A zero ttl means the key never expires.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	// SetIfAbsent writes only when key is unset. created reports whether this
	// call wrote the value; ok is false on store failure.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (created, ok bool)
	// Exists reports whether key is set; ok is false on store failure, in
	// which case exists carries no information.
	Exists(ctx context.Context, key string) (exists, ok bool)
	Ping(ctx context.Context) error
	Close() error
}

// Open picks a backend by URL scheme: redis:// and rediss:// use Redis,
// sqlite://<path> and file:<path> use an on-disk SQLite database.
func Open(rawURL string) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}

	switch u.Scheme {
	case "redis", "rediss":
		return NewRedisStore(rawURL)
	case "sqlite":
		path := strings.TrimPrefix(rawURL, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite store url has no path: %q", rawURL)
		}
		return NewSQLiteStore(path)
	case "file":
		path := u.Opaque
		if path == "" {
			path = u.Path
		}
		if path == "" {
			return nil, fmt.Errorf("file store url has no path: %q", rawURL)
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// redactURL strips credentials so store URLs can be logged.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid>"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}
