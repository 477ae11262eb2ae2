// Package cache keeps JSON snapshots of chain reads in SQLite so repeated
// commands and server requests skip the RPC round trip.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const writeLockTimeout = 5 * time.Second

// State describes where a ReadThrough value came from.
type State string

const (
	StateFresh State = "hit"
	StateMiss  State = "miss"
	StateStale State = "stale"
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

// Entry is one stored snapshot.
type Entry struct {
	Value     []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

func (e Entry) Age(now time.Time) time.Duration {
	return max(now.Sub(e.StoredAt), 0)
}

func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

func Open(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	for _, q := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS snapshots (key TEXT PRIMARY KEY, value BLOB NOT NULL, stored_at INTEGER NOT NULL, expires_at INTEGER NOT NULL);",
	} {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath), now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup returns the snapshot under key whether or not it has expired.
func (s *Store) Lookup(key string) (Entry, bool, error) {
	var (
		value           []byte
		stored, expires int64
	)
	err := s.db.QueryRow("SELECT value, stored_at, expires_at FROM snapshots WHERE key = ?", key).Scan(&value, &stored, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	return Entry{Value: value, StoredAt: time.UnixMilli(stored), ExpiresAt: time.UnixMilli(expires)}, true, nil
}

// Put stores value under key until ttl elapses. Writers in other processes
// share the lock file.
func (s *Store) Put(key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeLockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil || !locked {
		return fmt.Errorf("lock cache: %w", errors.Join(err, ctx.Err()))
	}
	defer func() { _ = s.lock.Unlock() }()

	now := s.now()
	_, err = s.db.Exec(`
		INSERT INTO snapshots (key, value, stored_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, stored_at=excluded.stored_at, expires_at=excluded.expires_at
	`, key, value, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

// Prune drops snapshots that expired more than grace ago and reports how many
// were removed.
func (s *Store) Prune(grace time.Duration) (int64, error) {
	res, err := s.db.Exec("DELETE FROM snapshots WHERE expires_at < ?", s.now().Add(-grace).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return res.RowsAffected()
}

// Result is a ReadThrough value with its provenance.
type Result[T any] struct {
	Value T
	State State
	Age   time.Duration
}

// ReadThrough serves a fresh snapshot of key, or calls fetch and stores what
// it returns for ttl. When fetch fails, a snapshot no older than ttl+maxStale
// is returned instead with State stale. Cache read and write failures never
// fail the call.
func ReadThrough[T any](ctx context.Context, s *Store, key string, ttl, maxStale time.Duration, fetch func(context.Context) (T, error)) (Result[T], error) {
	if s == nil {
		v, err := fetch(ctx)
		return Result[T]{Value: v, State: StateMiss}, err
	}
	now := s.now()
	entry, found, _ := s.Lookup(key)
	var cached T
	if found && json.Unmarshal(entry.Value, &cached) != nil {
		found = false
	}
	if found && !entry.Expired(now) {
		return Result[T]{Value: cached, State: StateFresh, Age: entry.Age(now)}, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		if found && !now.After(entry.ExpiresAt.Add(maxStale)) {
			return Result[T]{Value: cached, State: StateStale, Age: entry.Age(now)}, nil
		}
		var zero T
		return Result[T]{Value: zero, State: StateMiss}, err
	}
	if buf, mErr := json.Marshal(v); mErr == nil {
		_ = s.Put(key, buf, ttl)
	}
	return Result[T]{Value: v, State: StateMiss}, nil
}
