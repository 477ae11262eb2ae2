// Package onchain serves the integration contract by calling the lending and
// staking pool contracts directly over JSON-RPC. Writes are built as
// execution actions and signed with the configured key.
package onchain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/intentfi/intentfi/internal/cache"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/execution"
	"github.com/intentfi/intentfi/internal/execution/signer"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/registry"
	"go.uber.org/zap"
)

// DefaultPoolTTL bounds how long pool listings are served from cache.
// PoolMaxStale is how much longer a listing may stand in when the RPC fails.
const (
	DefaultPoolTTL = 30 * time.Second
	PoolMaxStale   = 10 * time.Minute
)

// ChainReader is the read side of an RPC connection.
type ChainReader interface {
	ethereum.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

type Dialer func(ctx context.Context, rpcURL string) (ChainReader, error)

// Executor signs and submits every step of an action.
type Executor func(ctx context.Context, action *execution.Action) error

func DialEthClient(ctx context.Context, rpcURL string) (ChainReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type Service struct {
	networks *registry.Table
	signer   signer.Signer
	dial     Dialer
	execute  Executor
	cache    *cache.Store
	journal  *execution.Store
	poolTTL  time.Duration
	logger   *zap.Logger
}

var _ integration.Service = (*Service)(nil)

type Option func(*Service)

func WithDialer(d Dialer) Option {
	return func(s *Service) { s.dial = d }
}

func WithExecutor(e Executor) Option {
	return func(s *Service) { s.execute = e }
}

// WithCache serves pool listings from store for the pool TTL, and for up to
// PoolMaxStale beyond it while the RPC is failing.
func WithCache(store *cache.Store, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = store
		if ttl > 0 {
			s.poolTTL = ttl
		}
	}
}

// WithJournal records every attempted action in store.
func WithJournal(store *execution.Store) Option {
	return func(s *Service) { s.journal = store }
}

// New builds a Service. txSigner may be nil, in which case reads work and
// writes fail with a signer error.
func New(networks *registry.Table, txSigner signer.Signer, opts execution.ExecuteOptions, logger *zap.Logger, options ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	s := &Service{
		networks: networks,
		signer:   txSigner,
		dial:     DialEthClient,
		poolTTL:  DefaultPoolTTL,
		logger:   logger,
	}
	s.execute = func(ctx context.Context, action *execution.Action) error {
		return execution.ExecuteAction(ctx, action, txSigner, opts)
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Service) Deposit(ctx context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return s.lend(ctx, "deposit", req, true)
}

func (s *Service) Withdraw(ctx context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return s.lend(ctx, "withdraw", req, false)
}

func (s *Service) Borrow(ctx context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return s.lend(ctx, "borrow", req, false)
}

func (s *Service) Repay(ctx context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return s.lend(ctx, "repay", req, true)
}

func (s *Service) lend(ctx context.Context, method string, req integration.LendRequest, approve bool) (integration.TxResult, error) {
	network, err := s.network(req.ChainID)
	if err != nil {
		return integration.TxResult{}, err
	}
	action, err := buildLendAction(network, method, req.Token, req.Amount, approve)
	if err != nil {
		return integration.TxResult{}, err
	}
	return s.run(ctx, &action)
}

func (s *Service) Stake(ctx context.Context, req integration.StakeRequest) (integration.TxResult, error) {
	return s.stakeAmount(ctx, "stake", req, true)
}

func (s *Service) Unstake(ctx context.Context, req integration.StakeRequest) (integration.TxResult, error) {
	return s.stakeAmount(ctx, "unstake", req, false)
}

// stakeAmount reads the pool's staking token first so the amount can be
// scaled by its decimals.
func (s *Service) stakeAmount(ctx context.Context, method string, req integration.StakeRequest, approve bool) (integration.TxResult, error) {
	network, err := s.network(req.ChainID)
	if err != nil {
		return integration.TxResult{}, err
	}
	pool, err := contractAddress(network, network.StakingPool, "staking pool")
	if err != nil {
		return integration.TxResult{}, err
	}
	if req.PoolID < 0 {
		return integration.TxResult{}, clierr.New(clierr.CodeUsage, "pool id must not be negative")
	}
	var info rawPool
	err = s.withReader(ctx, network, func(r ChainReader) error {
		info, err = readPool(ctx, r, pool, req.PoolID)
		return err
	})
	if err != nil {
		return integration.TxResult{}, err
	}
	if method == "stake" && !info.active {
		return integration.Failed("pool " + formatID(req.PoolID) + " is not active"), nil
	}
	action, err := buildStakeAction(network, pool, method, req.PoolID, info.stakingToken, req.Amount, approve)
	if err != nil {
		return integration.TxResult{}, err
	}
	return s.run(ctx, &action)
}

func (s *Service) ClaimRewards(ctx context.Context, req integration.PoolRequest) (integration.TxResult, error) {
	return s.poolCall(ctx, "claimRewards", req)
}

func (s *Service) EmergencyWithdraw(ctx context.Context, req integration.PoolRequest) (integration.TxResult, error) {
	return s.poolCall(ctx, "emergencyWithdraw", req)
}

func (s *Service) poolCall(ctx context.Context, method string, req integration.PoolRequest) (integration.TxResult, error) {
	network, err := s.network(req.ChainID)
	if err != nil {
		return integration.TxResult{}, err
	}
	action, err := buildPoolCallAction(network, method, req.PoolID)
	if err != nil {
		return integration.TxResult{}, err
	}
	return s.run(ctx, &action)
}

func (s *Service) CreatePool(ctx context.Context, req integration.CreatePoolRequest) (integration.TxResult, error) {
	network, err := s.network(req.ChainID)
	if err != nil {
		return integration.TxResult{}, err
	}
	action, err := buildCreatePoolAction(network, req)
	if err != nil {
		return integration.TxResult{}, err
	}
	return s.run(ctx, &action)
}

func (s *Service) ListToken(ctx context.Context, req integration.TokenPriceRequest) (integration.TxResult, error) {
	return s.priceCall(ctx, "listToken", req)
}

func (s *Service) SetTokenPrice(ctx context.Context, req integration.TokenPriceRequest) (integration.TxResult, error) {
	return s.priceCall(ctx, "setTokenPrice", req)
}

func (s *Service) priceCall(ctx context.Context, method string, req integration.TokenPriceRequest) (integration.TxResult, error) {
	network, err := s.network(req.ChainID)
	if err != nil {
		return integration.TxResult{}, err
	}
	action, err := buildPriceAction(network, method, req.Token, req.Price)
	if err != nil {
		return integration.TxResult{}, err
	}
	return s.run(ctx, &action)
}

// run journals action as planned, executes it, then journals the outcome.
// Execution failures come back as an unsuccessful TxResult, not an error.
func (s *Service) run(ctx context.Context, action *execution.Action) (integration.TxResult, error) {
	if s.signer == nil {
		return integration.TxResult{}, clierr.New(clierr.CodeSigner, "no signing key configured for on-chain writes")
	}
	s.save(action)
	err := s.execute(ctx, action)
	s.save(action)
	if err != nil {
		s.logger.Warn("action failed",
			zap.String("action_id", action.ActionID),
			zap.String("operation", action.Operation),
			zap.Error(err))
		return integration.Failed(failureMessage(err)), nil
	}
	s.logger.Info("action completed",
		zap.String("action_id", action.ActionID),
		zap.String("operation", action.Operation),
		zap.String("tx_hash", action.LastTxHash()))
	return integration.TxResult{Success: true, TransactionHash: action.LastTxHash()}, nil
}

func (s *Service) save(action *execution.Action) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Save(*action); err != nil {
		s.logger.Warn("journal action",
			zap.String("action_id", action.ActionID),
			zap.String("status", string(action.Status)),
			zap.Error(err))
	}
}

func (s *Service) network(chainID int64) (registry.Network, error) {
	network, ok := s.networks.Lookup(chainID)
	if !ok {
		return registry.Network{}, clierr.New(clierr.CodeUnsupported, "chain "+formatID(chainID)+" is not a supported network")
	}
	return network, nil
}

func (s *Service) withReader(ctx context.Context, network registry.Network, fn func(ChainReader) error) error {
	if strings.TrimSpace(network.RPCURL) == "" {
		return clierr.New(clierr.CodeUsage, "no rpc url configured for "+network.Name)
	}
	reader, err := s.dial(ctx, network.RPCURL)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	defer reader.Close()
	return fn(reader)
}

func failureMessage(err error) string {
	if cErr, ok := clierr.As(err); ok {
		return cErr.Message
	}
	return err.Error()
}
