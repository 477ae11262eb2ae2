// Package balances keeps a periodically refreshed view of the token balances
// held by tracked wallets.
package balances

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/intentfi/intentfi/internal/id"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/metrics"
	"github.com/intentfi/intentfi/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval   = 60 * time.Second
	DefaultMaxTracked = 1000
	DefaultIdleTTL    = 30 * time.Minute
	maxConcurrent     = 4
)

// Reader reads a single token balance.
type Reader interface {
	TokenBalance(ctx context.Context, req integration.BalanceRequest) (integration.Balance, error)
}

type wallet struct {
	chainID int64
	address string
}

// Snapshot is the latest set of balances read for one wallet.
type Snapshot struct {
	Balances    map[string]string `json:"balances"`
	RefreshedAt time.Time         `json:"refreshedAt"`
}

type Refresher struct {
	reader     Reader
	networks   *registry.Table
	interval   time.Duration
	maxTracked int
	idleTTL    time.Duration
	now        func() time.Time
	logger     *zap.Logger

	mu        sync.RWMutex
	tracked   map[wallet]time.Time // last time each wallet was asked about
	snapshots map[wallet]Snapshot
}

type Option func(*Refresher)

// WithMaxTracked caps the number of wallets refreshed per tick. The least
// recently seen wallet is dropped to make room.
func WithMaxTracked(n int) Option {
	return func(r *Refresher) { r.maxTracked = n }
}

// WithIdleTTL drops wallets nobody asked about for d.
func WithIdleTTL(d time.Duration) Option {
	return func(r *Refresher) { r.idleTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

func New(reader Reader, networks *registry.Table, interval time.Duration, logger *zap.Logger, opts ...Option) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Refresher{
		reader:     reader,
		networks:   networks,
		interval:   interval,
		maxTracked: DefaultMaxTracked,
		idleTTL:    DefaultIdleTTL,
		now:        time.Now,
		logger:     logger,
		tracked:    make(map[wallet]time.Time),
		snapshots:  make(map[wallet]Snapshot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func walletKey(chainID int64, address string) wallet {
	return wallet{chainID: chainID, address: strings.ToLower(strings.TrimSpace(address))}
}

// Track adds a wallet to the periodic refresh, or marks it as seen again.
// Invalid addresses and unsupported chains are rejected.
func (r *Refresher) Track(chainID int64, address string) error {
	if _, err := id.ParseAddress(address); err != nil {
		return fmt.Errorf("track wallet %q: %w", address, err)
	}
	if _, ok := r.networks.Lookup(chainID); !ok {
		return fmt.Errorf("track wallet: chain %d is not a supported network", chainID)
	}
	key := walletKey(chainID, address)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracked[key]; !ok && r.maxTracked > 0 && len(r.tracked) >= r.maxTracked {
		r.evictOldestLocked()
	}
	r.tracked[key] = r.now()
	return nil
}

// Tracked returns the number of wallets in the periodic refresh.
func (r *Refresher) Tracked() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tracked)
}

func (r *Refresher) evictOldestLocked() {
	var (
		oldest wallet
		seen   time.Time
		found  bool
	)
	for w, at := range r.tracked {
		if !found || at.Before(seen) {
			oldest, seen, found = w, at, true
		}
	}
	if found {
		r.dropLocked(oldest)
	}
}

func (r *Refresher) dropLocked(w wallet) {
	delete(r.tracked, w)
	delete(r.snapshots, w)
}

// pruneIdle drops wallets not seen within the idle TTL.
func (r *Refresher) pruneIdle() {
	if r.idleTTL <= 0 {
		return
	}
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for w, at := range r.tracked {
		if at.Before(cutoff) {
			r.dropLocked(w)
			dropped++
		}
	}
	if dropped > 0 {
		r.logger.Debug("dropped idle wallets", zap.Int("count", dropped), zap.Int("tracked", len(r.tracked)))
	}
}

// Run refreshes every tracked wallet once per interval until ctx ends.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.RefreshNow(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("balance refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RefreshNow drops idle wallets, then refreshes the rest concurrently.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	r.pruneIdle()
	r.mu.RLock()
	wallets := make([]wallet, 0, len(r.tracked))
	for w := range r.tracked {
		wallets = append(wallets, w)
	}
	r.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, w := range wallets {
		g.Go(func() error {
			return r.refreshWallet(gctx, w)
		})
	}
	err := g.Wait()
	metrics.BalanceRefreshes.WithLabelValues(metrics.BoolLabel(err == nil)).Inc()
	return err
}

func (r *Refresher) refreshWallet(ctx context.Context, w wallet) error {
	network, ok := r.networks.Lookup(w.chainID)
	if !ok {
		return nil
	}
	var (
		mu       sync.Mutex
		balances = make(map[string]string, len(network.Tokens))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, token := range network.Tokens {
		g.Go(func() error {
			bal, err := r.reader.TokenBalance(gctx, integration.BalanceRequest{ChainID: w.chainID, Token: token.Symbol, Owner: w.address})
			if err != nil {
				r.logger.Debug("token balance read failed",
					zap.Int64("chain_id", w.chainID),
					zap.String("token", token.Symbol),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			balances[token.Symbol] = bal.Balance
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	if _, ok := r.tracked[w]; ok {
		r.snapshots[w] = Snapshot{Balances: balances, RefreshedAt: r.now().UTC()}
	}
	r.mu.Unlock()
	return nil
}

// Snapshot returns the last refreshed balances for a wallet.
func (r *Refresher) Snapshot(chainID int64, address string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snapshots[walletKey(chainID, address)]
	return snap, ok
}

// HeldTokens lists the symbols with a non-zero balance, in network order. A
// wallet seen for the first time is tracked and read immediately.
func (r *Refresher) HeldTokens(ctx context.Context, chainID int64, address string) ([]string, error) {
	if err := r.Track(chainID, address); err != nil {
		return nil, err
	}
	key := walletKey(chainID, address)
	snap, ok := r.Snapshot(chainID, address)
	if !ok {
		if err := r.refreshWallet(ctx, key); err != nil {
			return nil, err
		}
		snap, _ = r.Snapshot(chainID, address)
	}
	network, _ := r.networks.Lookup(chainID)
	held := make([]string, 0, len(snap.Balances))
	for _, token := range network.Tokens {
		if positive(snap.Balances[token.Symbol]) {
			held = append(held, token.Symbol)
		}
	}
	return held, nil
}

func positive(v string) bool {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(v))
	return ok && r.Sign() > 0
}
