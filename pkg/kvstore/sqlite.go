package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/basedagent/basedagent/pkg/logger"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-node Store kept in a local SQLite file. Expired
// keys are hidden on read and purged by an optional cron-scheduled sweeper.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

type SQLiteOption func(*SQLiteStore)

// WithClock replaces the wall clock used for expiry decisions.
func WithClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) { s.now = now }
}

func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One shared connection avoids SQLite writer lock contention between goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			expires_at_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS kv_expires_idx ON kv(expires_at_ms) WHERE expires_at_ms > 0;`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init kv schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) nowMS() int64 { return s.now().UnixMilli() }

func (s *SQLiteStore) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixMilli()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool) {
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at_ms FROM kv WHERE key = ?`, key)
	var value string
	var expires int64
	if err := row.Scan(&value, &expires); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logFailure("get", key, err)
		}
		return "", false
	}
	if expires > 0 && expires <= s.nowMS() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND expires_at_ms = ?`, key, expires)
		return "", false
	}
	return value, true
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv(key, value, updated_at_ms, expires_at_ms)
VALUES(?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value = excluded.value,
	updated_at_ms = excluded.updated_at_ms,
	expires_at_ms = excluded.expires_at_ms`, key, value, s.nowMS(), s.expiry(ttl))
	if err != nil {
		s.logFailure("set", key, err)
		return false
	}
	return true
}

// SetIfAbsent treats an expired row as absent and replaces it.
func (s *SQLiteStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, bool) {
	now := s.nowMS()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO kv(key, value, updated_at_ms, expires_at_ms)
VALUES(?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value = excluded.value,
	updated_at_ms = excluded.updated_at_ms,
	expires_at_ms = excluded.expires_at_ms
WHERE kv.expires_at_ms > 0 AND kv.expires_at_ms <= ?`, key, value, now, s.expiry(ttl), now)
	if err != nil {
		s.logFailure("setnx", key, err)
		return false, false
	}
	n, err := res.RowsAffected()
	if err != nil {
		s.logFailure("setnx", key, err)
		return false, false
	}
	return n > 0, true
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, bool) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM kv WHERE key = ? AND (expires_at_ms = 0 OR expires_at_ms > ?)`, key, s.nowMS()).Scan(&n)
	if err != nil {
		s.logFailure("exists", key, err)
		return false, false
	}
	return n > 0, true
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite %s: %w", s.path, err)
	}
	return nil
}

// Sweep deletes every expired row and returns how many were removed.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at_ms > 0 AND expires_at_ms <= ?`, s.nowMS())
	if err != nil {
		return 0, fmt.Errorf("sweep expired keys: %w", err)
	}
	return res.RowsAffected()
}

// StartSweeper runs Sweep on the given cron schedule until ctx is done or
// the store is closed. Calling it again replaces the running sweeper.
func (s *SQLiteStore) StartSweeper(ctx context.Context, schedule string) error {
	gron := gronx.New()
	if !gron.IsValid(schedule) {
		return fmt.Errorf("invalid sweep schedule %q", schedule)
	}

	s.stopSweeper()

	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.sweepMu.Lock()
	s.sweepCancel = cancel
	s.sweepDone = done
	s.sweepMu.Unlock()

	go s.sweepLoop(sweepCtx, schedule, done)
	logger.InfoCF(component, "Expiry sweeper started", map[string]interface{}{
		"path":     s.path,
		"schedule": schedule,
	})
	return nil
}

func (s *SQLiteStore) sweepLoop(ctx context.Context, schedule string, done chan struct{}) {
	defer close(done)
	for {
		wait, err := s.nextSweep(schedule)
		if err != nil {
			logger.ErrorCF(component, "Sweep schedule failed", map[string]interface{}{
				"schedule": schedule,
				"error":    err.Error(),
			})
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		n, err := s.Sweep(ctx)
		if err != nil {
			logger.WarnCF(component, "Expiry sweep failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		if n > 0 {
			logger.DebugCF(component, "Expired keys purged", map[string]interface{}{"count": n})
		}
	}
}

// nextSweep is the wait until the schedule's next tick on the store clock.
func (s *SQLiteStore) nextSweep(schedule string) (time.Duration, error) {
	now := s.now()
	next, err := gronx.NextTickAfter(schedule, now, false)
	if err != nil {
		return 0, err
	}
	return next.Sub(now), nil
}

func (s *SQLiteStore) stopSweeper() {
	s.sweepMu.Lock()
	cancel, done := s.sweepCancel, s.sweepDone
	s.sweepCancel, s.sweepDone = nil, nil
	s.sweepMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.stopSweeper()
	return s.db.Close()
}

func (s *SQLiteStore) logFailure(op, key string, err error) {
	logger.ErrorCF(component, "SQLite operation failed", map[string]interface{}{
		"op":    op,
		"key":   key,
		"path":  s.path,
		"error": err.Error(),
	})
}
