package history

import (
	"context"
	"sort"
	"sync"

	"github.com/intentfi/intentfi/internal/intent"
)

// MemoryStore keeps intents in process memory. It backs the tiered store
// while the primary database is unreachable.
type MemoryStore struct {
	mu      sync.RWMutex
	records []intent.StoredIntent
	ids     map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

func (m *MemoryStore) Insert(_ context.Context, rec intent.StoredIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[rec.ID]; ok {
		return nil
	}
	m.ids[rec.ID] = struct{}{}
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userAddress string, limit int) ([]intent.StoredIntent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	key := addressKey(userAddress)
	m.mu.RLock()
	out := make([]intent.StoredIntent, 0)
	for i := len(m.records) - 1; i >= 0; i-- {
		if addressKey(m.records[i].UserAddress) == key {
			out = append(out, m.records[i])
		}
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func sortNewestFirst(records []intent.StoredIntent) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
