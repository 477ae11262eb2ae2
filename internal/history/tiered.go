package history

import (
	"context"
	"sync/atomic"

	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/metrics"
	"go.uber.org/zap"
)

// TieredStore writes to a primary store and falls back to a secondary one
// when the primary fails. While any operation is being served by the
// secondary the store is degraded; the next successful primary call clears
// the flag.
type TieredStore struct {
	primary   Store
	secondary Store
	logger    *zap.Logger
	degraded  atomic.Bool
}

func NewTieredStore(primary, secondary Store, logger *zap.Logger) *TieredStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secondary == nil {
		secondary = NewMemoryStore()
	}
	return &TieredStore{primary: primary, secondary: secondary, logger: logger}
}

// Degraded reports whether the secondary tier is currently in use.
func (t *TieredStore) Degraded() bool {
	return t.degraded.Load()
}

func (t *TieredStore) Insert(ctx context.Context, rec intent.StoredIntent) error {
	if t.primary != nil {
		err := t.primary.Insert(ctx, rec)
		if err == nil {
			t.markHealthy()
			return nil
		}
		t.markDegraded("insert", err)
	}
	return t.secondary.Insert(ctx, rec)
}

// ListByUser merges both tiers so records written while degraded stay
// visible after the primary recovers.
func (t *TieredStore) ListByUser(ctx context.Context, userAddress string, limit int) ([]intent.StoredIntent, error) {
	fallback, err := t.secondary.ListByUser(ctx, userAddress, limit)
	if err != nil {
		return nil, err
	}
	if t.primary == nil {
		return fallback, nil
	}
	records, err := t.primary.ListByUser(ctx, userAddress, limit)
	if err != nil {
		t.markDegraded("list", err)
		return fallback, nil
	}
	t.markHealthy()
	if len(fallback) == 0 {
		return records, nil
	}
	return mergeNewestFirst(records, fallback, limit), nil
}

func (t *TieredStore) markDegraded(op string, err error) {
	metrics.StorageErrors.WithLabelValues(op).Inc()
	if !t.degraded.Swap(true) {
		metrics.StorageDegraded.Set(1)
		t.logger.Warn("intent storage degraded, serving from memory", zap.String("op", op), zap.Error(err))
		return
	}
	t.logger.Debug("primary intent storage still failing", zap.String("op", op), zap.Error(err))
}

func (t *TieredStore) markHealthy() {
	if t.degraded.Swap(false) {
		metrics.StorageDegraded.Set(0)
		t.logger.Info("intent storage recovered")
	}
}

func mergeNewestFirst(a, b []intent.StoredIntent, limit int) []intent.StoredIntent {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]intent.StoredIntent, 0, len(a)+len(b))
	for _, set := range [][]intent.StoredIntent{a, b} {
		for _, rec := range set {
			if _, ok := seen[rec.ID]; ok {
				continue
			}
			seen[rec.ID] = struct{}{}
			out = append(out, rec)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
