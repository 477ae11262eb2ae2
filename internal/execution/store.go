package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const (
	defaultListLimit = 20
	lockTimeout      = 5 * time.Second
)

// ErrActionNotFound is returned by Get for an unknown action id.
var ErrActionNotFound = errors.New("action not found")

var journalSchema = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	`CREATE TABLE IF NOT EXISTS actions (
		action_id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		status TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		from_address TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	);`,
	"CREATE INDEX IF NOT EXISTS idx_actions_updated ON actions(updated_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_actions_status_updated ON actions(status, updated_at DESC);",
}

// Store journals every attempted integration write so operators can see what
// was signed, on which chain, and how far each action got.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	Status    string
	ChainID   string
	Operation string
	Limit     int
}

func OpenStore(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create action journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open action journal: %w", err)
	}
	for _, q := range journalSchema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init action journal: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts or replaces an action. Writers from other processes are
// serialised through the lock file.
func (s *Store) Save(action Action) error {
	if strings.TrimSpace(action.ActionID) == "" {
		return fmt.Errorf("save action: missing action id")
	}
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		return fmt.Errorf("lock action journal: %w", errors.Join(err, ctx.Err()))
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	now := time.Now().UTC().Unix()
	_, err = s.db.Exec(`
		INSERT INTO actions (action_id, operation, status, chain_id, from_address, tx_hash, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(action_id) DO UPDATE SET
			status=excluded.status,
			from_address=excluded.from_address,
			tx_hash=excluded.tx_hash,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, action.ActionID, action.Operation, string(action.Status), action.ChainID, action.FromAddress, action.LastTxHash(),
		unixOr(action.CreatedAt, now), unixOr(action.UpdatedAt, now), payload)
	if err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (s *Store) Get(actionID string) (Action, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM actions WHERE action_id = ?", actionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
	}
	if err != nil {
		return Action{}, fmt.Errorf("read action: %w", err)
	}
	return decodeAction(payload)
}

// List returns matching actions, most recently updated first.
func (s *Store) List(filter ListFilter) ([]Action, error) {
	var (
		where []string
		args  []any
	)
	for column, value := range map[string]string{
		"status":    filter.Status,
		"chain_id":  filter.ChainID,
		"operation": filter.Operation,
	} {
		if v := strings.TrimSpace(value); v != "" {
			where = append(where, column+" = ?")
			args = append(args, v)
		}
	}
	query := "SELECT payload FROM actions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY updated_at DESC, action_id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	actions := make([]Action, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		action, err := decodeAction(payload)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return actions, nil
}

func decodeAction(payload []byte) (Action, error) {
	var action Action
	if err := json.Unmarshal(payload, &action); err != nil {
		return Action{}, fmt.Errorf("decode action payload: %w", err)
	}
	return action, nil
}

func unixOr(rfc3339 string, fallback int64) int64 {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return fallback
	}
	return t.UTC().Unix()
}
