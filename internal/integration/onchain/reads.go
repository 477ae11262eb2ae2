package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/intentfi/intentfi/internal/cache"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/id"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/registry"
	"go.uber.org/zap"
)

// maxPools caps how many pools a listing walks.
const maxPools = 64

// quoteDecimals is the precision of computed quote amounts.
const quoteDecimals = 6

type rawPool struct {
	stakingToken common.Address
	rewardToken  common.Address
	rewardRate   *big.Int
	totalStaked  *big.Int
	active       bool
}

func (s *Service) TokenBalance(ctx context.Context, req integration.BalanceRequest) (integration.Balance, error) {
	network, err := s.network(req.ChainID)
	if err != nil {
		return integration.Balance{}, err
	}
	owner, err := s.owner(req.Owner)
	if err != nil {
		return integration.Balance{}, err
	}
	token, ok := network.Token(req.Token)
	if !ok {
		return integration.Balance{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("token %s is not listed on %s", strings.ToUpper(strings.TrimSpace(req.Token)), network.Name))
	}

	var raw *big.Int
	err = s.withReader(ctx, network, func(r ChainReader) error {
		if token.Address == "" {
			raw, err = r.BalanceAt(ctx, owner, nil)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
			}
			return nil
		}
		out, err := call(ctx, r, common.HexToAddress(token.Address), erc20ABI, "balanceOf", owner)
		if err != nil {
			return err
		}
		raw, err = bigOut(out, 0)
		return err
	})
	if err != nil {
		return integration.Balance{}, err
	}
	return integration.Balance{
		ChainID:  network.ChainID,
		Token:    token.Symbol,
		Owner:    owner.Hex(),
		Balance:  id.FormatBaseUnits(raw, token.Decimals),
		Raw:      raw.String(),
		Decimals: token.Decimals,
	}, nil
}

func (s *Service) PoolInformation(ctx context.Context, chainID int64) ([]integration.PoolInfo, error) {
	network, err := s.network(chainID)
	if err != nil {
		return nil, err
	}
	pool, err := contractAddress(network, network.StakingPool, "staking pool")
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("pools:%d:%s", chainID, strings.ToLower(pool.Hex()))
	res, err := cache.ReadThrough(ctx, s.cache, key, s.poolTTL, PoolMaxStale, func(ctx context.Context) ([]integration.PoolInfo, error) {
		var pools []integration.PoolInfo
		err := s.withReader(ctx, network, func(r ChainReader) error {
			out, err := call(ctx, r, pool, stakingABI, "poolLength")
			if err != nil {
				return err
			}
			length, err := bigOut(out, 0)
			if err != nil {
				return err
			}
			n := length.Int64()
			if !length.IsInt64() || n > maxPools {
				n = maxPools
			}
			pools = make([]integration.PoolInfo, 0, n)
			for i := int64(0); i < n; i++ {
				info, err := readPool(ctx, r, pool, i)
				if err != nil {
					return err
				}
				pools = append(pools, poolInfo(network, i, info))
			}
			return nil
		})
		return pools, err
	})
	if err != nil {
		return nil, err
	}
	if res.State == cache.StateStale {
		s.logger.Warn("serving stale pool listing", zap.Int64("chain_id", chainID), zap.Duration("age", res.Age))
	}
	return res.Value, nil
}

func (s *Service) UserPoolInformation(ctx context.Context, req integration.UserPoolRequest) (integration.UserPoolInfo, error) {
	network, err := s.network(req.ChainID)
	if err != nil {
		return integration.UserPoolInfo{}, err
	}
	pool, err := contractAddress(network, network.StakingPool, "staking pool")
	if err != nil {
		return integration.UserPoolInfo{}, err
	}
	user, err := s.owner(req.User)
	if err != nil {
		return integration.UserPoolInfo{}, err
	}
	var out integration.UserPoolInfo
	err = s.withReader(ctx, network, func(r ChainReader) error {
		info, err := readPool(ctx, r, pool, req.PoolID)
		if err != nil {
			return err
		}
		values, err := call(ctx, r, pool, stakingABI, "getUserInfo", big.NewInt(req.PoolID), user)
		if err != nil {
			return err
		}
		staked, err := bigOut(values, 0)
		if err != nil {
			return err
		}
		pending, err := bigOut(values, 1)
		if err != nil {
			return err
		}
		out = integration.UserPoolInfo{
			PoolID:         req.PoolID,
			User:           user.Hex(),
			Staked:         id.FormatBaseUnits(staked, decimalsOf(network, info.stakingToken)),
			PendingRewards: id.FormatBaseUnits(pending, decimalsOf(network, info.rewardToken)),
		}
		return nil
	})
	return out, err
}

// Quote prices a swap from the lending pool's oracle prices. It is an
// estimate; no swap is executed.
func (s *Service) Quote(ctx context.Context, req integration.QuoteRequest) (integration.Quote, error) {
	network, err := s.network(req.ChainID)
	if err != nil {
		return integration.Quote{}, err
	}
	pool, err := contractAddress(network, network.LendingPool, "lending pool")
	if err != nil {
		return integration.Quote{}, err
	}
	from, fromAddr, err := erc20Token(network, req.FromToken)
	if err != nil {
		return integration.Quote{}, err
	}
	to, toAddr, err := erc20Token(network, req.ToToken)
	if err != nil {
		return integration.Quote{}, err
	}
	if !id.IsDecimal(req.Amount) {
		return integration.Quote{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q must be in decimal form like 1.23", req.Amount))
	}
	amount, ok := new(big.Rat).SetString(strings.TrimSpace(req.Amount))
	if !ok {
		return integration.Quote{}, clierr.New(clierr.CodeUsage, "invalid quote amount")
	}

	var fromPrice, toPrice *big.Int
	err = s.withReader(ctx, network, func(r ChainReader) error {
		if fromPrice, err = tokenPrice(ctx, r, pool, fromAddr); err != nil {
			return err
		}
		toPrice, err = tokenPrice(ctx, r, pool, toAddr)
		return err
	})
	if err != nil {
		return integration.Quote{}, err
	}
	if fromPrice.Sign() == 0 || toPrice.Sign() == 0 {
		return integration.Quote{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("no oracle price for %s/%s on %s", from.Symbol, to.Symbol, network.Name))
	}
	out := new(big.Rat).Mul(amount, new(big.Rat).SetFrac(fromPrice, toPrice))
	places := quoteDecimals
	if to.Decimals < places {
		places = to.Decimals
	}
	return integration.Quote{
		ChainID:   network.ChainID,
		FromToken: from.Symbol,
		ToToken:   to.Symbol,
		AmountIn:  id.NormalizeDecimal(req.Amount),
		AmountOut: id.NormalizeDecimal(out.FloatString(places)),
	}, nil
}

func (s *Service) owner(input string) (common.Address, error) {
	if strings.TrimSpace(input) == "" {
		if s.signer == nil {
			return common.Address{}, clierr.New(clierr.CodeUsage, "owner address is required")
		}
		return s.signer.Address(), nil
	}
	addr, err := id.ParseAddress(input)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUsage, "invalid owner address", err)
	}
	return addr, nil
}

func tokenPrice(ctx context.Context, r ChainReader, pool, token common.Address) (*big.Int, error) {
	out, err := call(ctx, r, pool, lendingABI, "getTokenPrice", token)
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0)
}

func readPool(ctx context.Context, r ChainReader, pool common.Address, poolID int64) (rawPool, error) {
	values, err := call(ctx, r, pool, stakingABI, "getPoolInfo", big.NewInt(poolID))
	if err != nil {
		return rawPool{}, err
	}
	if len(values) != 5 {
		return rawPool{}, clierr.New(clierr.CodeUnavailable, "unexpected getPoolInfo response")
	}
	stakingToken, ok1 := values[0].(common.Address)
	rewardToken, ok2 := values[1].(common.Address)
	rate, ok3 := values[2].(*big.Int)
	total, ok4 := values[3].(*big.Int)
	active, ok5 := values[4].(bool)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return rawPool{}, clierr.New(clierr.CodeUnavailable, "unexpected getPoolInfo response")
	}
	return rawPool{stakingToken: stakingToken, rewardToken: rewardToken, rewardRate: rate, totalStaked: total, active: active}, nil
}

func poolInfo(network registry.Network, poolID int64, raw rawPool) integration.PoolInfo {
	return integration.PoolInfo{
		PoolID:       poolID,
		StakingToken: symbolOf(network, raw.stakingToken),
		RewardToken:  symbolOf(network, raw.rewardToken),
		RewardRate:   id.FormatBaseUnits(raw.rewardRate, decimalsOf(network, raw.rewardToken)),
		TotalStaked:  id.FormatBaseUnits(raw.totalStaked, decimalsOf(network, raw.stakingToken)),
		Active:       raw.active,
	}
}

func symbolOf(network registry.Network, addr common.Address) string {
	if token, ok := tokenByAddress(network, addr); ok {
		return token.Symbol
	}
	return addr.Hex()
}

func decimalsOf(network registry.Network, addr common.Address) int {
	if token, ok := tokenByAddress(network, addr); ok {
		return token.Decimals
	}
	return 18
}

func call(ctx context.Context, r ChainReader, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method+" call", err)
	}
	raw, err := r.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "call "+method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode "+method, err)
	}
	return out, nil
}

func bigOut(values []any, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, clierr.New(clierr.CodeUnavailable, "missing return value")
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "unexpected return type")
	}
	return v, nil
}
