package app

import (
	"context"
	"time"

	"github.com/intentfi/intentfi/internal/balances"
	"github.com/intentfi/intentfi/internal/cache"
	"github.com/intentfi/intentfi/internal/circuitbreaker"
	"github.com/intentfi/intentfi/internal/config"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/execution"
	"github.com/intentfi/intentfi/internal/execution/signer"
	"github.com/intentfi/intentfi/internal/history"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/integration/onchain"
	"github.com/intentfi/intentfi/internal/integration/remote"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/planner"
	"github.com/intentfi/intentfi/internal/registry"
	"github.com/intentfi/intentfi/internal/wallet"
	"go.uber.org/zap"
)

const breakerWindow = time.Minute

// dependencies opens each backing component on first use and closes them in
// reverse order when the command finishes.
type dependencies struct {
	settings config.Settings
	logger   *zap.Logger

	networks  *registry.Table
	localKey  *signer.Local
	keyErr    error
	keyLoaded bool
	cache     *cache.Store
	actions   *execution.Store
	intents   *history.TieredStore
	recorder  *history.Recorder
	service   integration.Service
	refresher *balances.Refresher
	planner   *planner.Chain
	pipeline  *intent.Pipeline

	closers []func()
}

func (s *runtimeState) stack() *dependencies {
	if s.deps == nil {
		logger := s.logger
		if logger == nil {
			logger = zap.NewNop()
		}
		s.deps = &dependencies{settings: s.settings, logger: logger}
	}
	return s.deps
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *dependencies) Networks() *registry.Table {
	if d.networks == nil {
		overrides := make(map[int64]registry.Override, len(d.settings.Networks))
		for chainID, n := range d.settings.Networks {
			overrides[chainID] = registry.Override{RPCURL: n.RPCURL, LendingPool: n.LendingPool, StakingPool: n.StakingPool}
		}
		d.networks = registry.Default().WithOverrides(overrides)
	}
	return d.networks
}

// Signer loads the local signing key once. Commands that only read keep
// working without one.
func (d *dependencies) Signer() (*signer.Local, error) {
	if !d.keyLoaded {
		d.keyLoaded = true
		d.localKey, d.keyErr = signer.Load(d.settings.KeySource)
		if d.keyErr != nil {
			d.keyErr = clierr.Wrap(clierr.CodeSigner, "load signing key", d.keyErr)
		}
	}
	return d.localKey, d.keyErr
}

func (d *dependencies) Cache() (*cache.Store, error) {
	if d.cache == nil {
		store, err := cache.Open(d.settings.CachePath, d.settings.CacheLockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeStorage, "open cache", err)
		}
		if n, err := store.Prune(onchain.PoolMaxStale); err != nil {
			d.logger.Warn("cache prune failed", zap.Error(err))
		} else if n > 0 {
			d.logger.Debug("pruned cache", zap.Int64("snapshots", n))
		}
		d.cache = store
		d.closers = append(d.closers, func() { _ = store.Close() })
	}
	return d.cache, nil
}

func (d *dependencies) Actions() (*execution.Store, error) {
	if d.actions == nil {
		store, err := execution.OpenStore(d.settings.ActionStorePath, d.settings.ActionLockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeStorage, "open action store", err)
		}
		d.actions = store
		d.closers = append(d.closers, func() { _ = store.Close() })
	}
	return d.actions, nil
}

// History returns the intent store and its recorder. When the SQLite file
// cannot be opened intents are kept in memory and the store reports itself
// degraded from the first failed write.
func (d *dependencies) History() (*history.TieredStore, *history.Recorder) {
	if d.intents == nil {
		var primary history.Store
		sqlite, err := history.OpenSQLite(d.settings.IntentStorePath, d.settings.IntentLockPath)
		if err != nil {
			d.logger.Warn("intent store unavailable, using memory", zap.String("path", d.settings.IntentStorePath), zap.Error(err))
		} else {
			primary = sqlite
			d.closers = append(d.closers, func() { _ = sqlite.Close() })
		}
		d.intents = history.NewTieredStore(primary, history.NewMemoryStore(), d.logger)
		d.recorder = history.NewRecorder(d.intents, d.logger)
		d.closers = append(d.closers, d.recorder.Wait)
	}
	return d.intents, d.recorder
}

// Integration builds the blockchain integration for the configured mode.
func (d *dependencies) Integration() (integration.Service, error) {
	if d.service != nil {
		return d.service, nil
	}
	if d.settings.IntegrationMode == config.IntegrationRemote {
		d.service = remote.New(d.settings.IntegrationURL, d.settings.IntegrationToken, d.settings.Timeout, d.settings.Retries, d.logger)
		return d.service, nil
	}

	var txSigner signer.Signer
	if local, err := d.Signer(); err == nil {
		txSigner = local
	} else {
		d.logger.Warn("no signing key, on-chain writes are disabled", zap.Error(err))
	}
	store, err := d.Cache()
	if err != nil {
		return nil, err
	}
	journal, err := d.Actions()
	if err != nil {
		return nil, err
	}
	opts := execution.DefaultExecuteOptions()
	opts.Logger = d.logger
	d.service = onchain.New(d.Networks(), txSigner, opts, d.logger,
		onchain.WithCache(store, onchain.DefaultPoolTTL),
		onchain.WithJournal(journal))
	return d.service, nil
}

func (d *dependencies) Balances() (*balances.Refresher, error) {
	if d.refresher == nil {
		svc, err := d.Integration()
		if err != nil {
			return nil, err
		}
		d.refresher = balances.New(svc, d.Networks(), d.settings.BalanceRefreshInterval, d.logger)
	}
	return d.refresher, nil
}

// Planner chains the configured LLM providers ahead of the keyword heuristic.
func (d *dependencies) Planner(ctx context.Context) *planner.Chain {
	if d.planner != nil {
		return d.planner
	}
	networks := d.Networks()
	chain := planner.NewChain(d.settings.LLMTimeout, d.logger)
	if d.settings.OpenAIAPIKey != "" {
		chain.Add(planner.NewOpenAI(d.settings.OpenAIAPIKey, d.settings.OpenAIBaseURL, d.settings.OpenAIModel, networks), d.breaker("openai"))
	}
	if d.settings.GeminiAPIKey != "" {
		gemini, err := planner.NewGemini(ctx, d.settings.GeminiAPIKey, d.settings.GeminiModel, networks)
		if err != nil {
			d.logger.Warn("gemini planner disabled", zap.Error(err))
		} else {
			chain.Add(gemini, d.breaker("gemini"))
		}
	}
	chain.Add(planner.NewHeuristic(networks), nil)
	d.planner = chain
	return chain
}

func (d *dependencies) breaker(name string) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(name, d.settings.BreakerThreshold, breakerWindow, d.settings.BreakerReset, d.logger)
}

// Pipeline wires extractor, planner chain and dispatcher together.
func (d *dependencies) Pipeline(ctx context.Context) (*intent.Pipeline, error) {
	if d.pipeline != nil {
		return d.pipeline, nil
	}
	svc, err := d.Integration()
	if err != nil {
		return nil, err
	}
	refresher, err := d.Balances()
	if err != nil {
		return nil, err
	}
	_, recorder := d.History()
	networks := d.Networks()
	dispatcher := intent.NewDispatcher(svc, networks, d.logger,
		intent.WithAllowedOperations(d.settings.AllowedOperations),
		intent.WithRecorder(recorder))
	d.pipeline = intent.NewPipeline(intent.NewExtractor(networks, refresher), d.Planner(ctx), dispatcher, d.logger)
	return d.pipeline, nil
}

// Wallet builds a transfer executor that signs with the local key and talks
// to the chain's RPC endpoint. It returns the sending address alongside.
func (d *dependencies) Wallet(ctx context.Context, chainID int64) (*wallet.Executor, string, error) {
	local, err := d.Signer()
	if err != nil {
		return nil, "", err
	}
	networks := d.Networks()
	network, ok := networks.Lookup(chainID)
	if !ok {
		return nil, "", clierr.New(clierr.CodeUnsupported, "unsupported chain id")
	}
	upstream, err := wallet.DialRPC(ctx, network.RPCURL)
	if err != nil {
		return nil, "", err
	}
	d.closers = append(d.closers, upstream.Close)

	var resolver wallet.NameResolver
	if d.settings.ENSRPCURL != "" {
		ens, err := wallet.DialRPC(ctx, d.settings.ENSRPCURL)
		if err != nil {
			d.logger.Warn("ens resolution disabled", zap.Error(err))
		} else {
			d.closers = append(d.closers, ens.Close)
			resolver = wallet.NewENSResolver(ens)
		}
	}
	logger := d.logger.With(zap.Int64("chain_id", chainID))
	executor := wallet.NewExecutor(wallet.NewSignerProvider(local, upstream, chainID), networks, resolver, logger,
		wallet.WithStateObserver(func(state wallet.State) {
			logger.Debug("transfer state", zap.String("state", string(state)))
		}))
	return executor, local.Address().Hex(), nil
}
