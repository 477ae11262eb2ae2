// Package history persists processed intents and serves them back per user,
// newest first.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/intentfi/intentfi/internal/intent"
	_ "modernc.org/sqlite"
)

const defaultListLimit = 50

// Store is an append-only collection of stored intents.
type Store interface {
	Insert(ctx context.Context, rec intent.StoredIntent) error
	ListByUser(ctx context.Context, userAddress string, limit int) ([]intent.StoredIntent, error)
}

type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenSQLite(path, lockPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create intent store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create intent lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open intent sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS intents (
			id TEXT PRIMARY KEY,
			user_address TEXT NOT NULL,
			type TEXT NOT NULL,
			chain TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_intents_user_created ON intents(user_address, created_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.ExecContext(context.Background(), q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init intent schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, lock: flock.New(lockPath)}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert writes rec once. Stored intents are immutable, so a second insert
// with the same id is ignored.
func (s *SQLiteStore) Insert(ctx context.Context, rec intent.StoredIntent) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("insert intent: missing id")
	}
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock intent store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock intent store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO intents (id, user_address, type, chain, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, addressKey(rec.UserAddress), string(rec.Type), rec.Chain, created.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userAddress string, limit int) ([]intent.StoredIntent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM intents WHERE user_address = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		addressKey(userAddress), limit)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	out := make([]intent.StoredIntent, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan intent row: %w", err)
		}
		var rec intent.StoredIntent
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode intent row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intent rows: %w", err)
	}
	return out, nil
}

func addressKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
