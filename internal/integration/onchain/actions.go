package onchain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/execution"
	"github.com/intentfi/intentfi/internal/id"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/registry"
)

// Token prices on the lending pool carry 18 decimals.
const priceDecimals = 18

var (
	erc20ABI   = mustABI(registry.ERC20ABI)
	lendingABI = mustABI(registry.LendingPoolABI)
	stakingABI = mustABI(registry.StakingPoolABI)
)

func buildLendAction(network registry.Network, method, symbol, amount string, approve bool) (execution.Action, error) {
	pool, err := contractAddress(network, network.LendingPool, "lending pool")
	if err != nil {
		return execution.Action{}, err
	}
	token, tokenAddr, err := erc20Token(network, symbol)
	if err != nil {
		return execution.Action{}, err
	}
	baseUnits, err := positiveAmount(amount, token.Decimals)
	if err != nil {
		return execution.Action{}, err
	}
	data, err := lendingABI.Pack(method, tokenAddr, baseUnits)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack "+method+" calldata", err)
	}

	action := newAction(network, method, baseUnits)
	if approve {
		step, err := approvalStep(network, token, tokenAddr, pool, baseUnits)
		if err != nil {
			return execution.Action{}, err
		}
		action.Steps = append(action.Steps, step)
	}
	action.Steps = append(action.Steps, callStep(network, method, execution.StepTypeLend, pool, data,
		fmt.Sprintf("%s %s %s", method, id.NormalizeDecimal(amount), token.Symbol)))
	return action, nil
}

func buildStakeAction(network registry.Network, pool common.Address, method string, poolID int64, stakingToken common.Address, amount string, approve bool) (execution.Action, error) {
	token, ok := tokenByAddress(network, stakingToken)
	if !ok {
		// Unlisted staking tokens are assumed to use 18 decimals.
		token = registry.Token{Symbol: stakingToken.Hex(), Address: stakingToken.Hex(), Decimals: 18}
	}
	baseUnits, err := positiveAmount(amount, token.Decimals)
	if err != nil {
		return execution.Action{}, err
	}
	data, err := stakingABI.Pack(method, big.NewInt(poolID), baseUnits)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack "+method+" calldata", err)
	}
	action := newAction(network, method, baseUnits)
	if approve {
		step, err := approvalStep(network, token, stakingToken, pool, baseUnits)
		if err != nil {
			return execution.Action{}, err
		}
		action.Steps = append(action.Steps, step)
	}
	action.Steps = append(action.Steps, callStep(network, method, execution.StepTypeStake, pool, data,
		fmt.Sprintf("%s %s %s in pool %d", method, id.NormalizeDecimal(amount), token.Symbol, poolID)))
	return action, nil
}

func buildPoolCallAction(network registry.Network, method string, poolID int64) (execution.Action, error) {
	pool, err := contractAddress(network, network.StakingPool, "staking pool")
	if err != nil {
		return execution.Action{}, err
	}
	if poolID < 0 {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "pool id must not be negative")
	}
	data, err := stakingABI.Pack(method, big.NewInt(poolID))
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack "+method+" calldata", err)
	}
	action := newAction(network, method, nil)
	action.Steps = append(action.Steps, callStep(network, method, execution.StepTypeStake, pool, data,
		fmt.Sprintf("%s for pool %d", method, poolID)))
	return action, nil
}

func buildCreatePoolAction(network registry.Network, req integration.CreatePoolRequest) (execution.Action, error) {
	pool, err := contractAddress(network, network.StakingPool, "staking pool")
	if err != nil {
		return execution.Action{}, err
	}
	_, stakingAddr, err := erc20Token(network, req.StakingToken)
	if err != nil {
		return execution.Action{}, err
	}
	reward, rewardAddr, err := erc20Token(network, req.RewardToken)
	if err != nil {
		return execution.Action{}, err
	}
	rate, err := positiveAmount(req.RewardRate, reward.Decimals)
	if err != nil {
		return execution.Action{}, err
	}
	data, err := stakingABI.Pack("createPool", stakingAddr, rewardAddr, rate)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack createPool calldata", err)
	}
	action := newAction(network, "createPool", nil)
	action.Steps = append(action.Steps, callStep(network, "createPool", execution.StepTypeAdmin, pool, data,
		fmt.Sprintf("create pool staking %s for %s", strings.ToUpper(req.StakingToken), reward.Symbol)))
	return action, nil
}

func buildPriceAction(network registry.Network, method, symbol, price string) (execution.Action, error) {
	pool, err := contractAddress(network, network.LendingPool, "lending pool")
	if err != nil {
		return execution.Action{}, err
	}
	token, tokenAddr, err := erc20Token(network, symbol)
	if err != nil {
		return execution.Action{}, err
	}
	scaled, err := positiveAmount(price, priceDecimals)
	if err != nil {
		return execution.Action{}, err
	}
	data, err := lendingABI.Pack(method, tokenAddr, scaled)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack "+method+" calldata", err)
	}
	action := newAction(network, method, nil)
	action.Steps = append(action.Steps, callStep(network, method, execution.StepTypeAdmin, pool, data,
		fmt.Sprintf("%s %s at %s", method, token.Symbol, id.NormalizeDecimal(price))))
	return action, nil
}

func newAction(network registry.Network, operation string, input *big.Int) execution.Action {
	action := execution.NewAction(execution.NewActionID(), operation, execution.CAIP2(network.ChainID), execution.Constraints{Simulate: true})
	if input != nil {
		action.InputAmount = input.String()
	}
	return action
}

func approvalStep(network registry.Network, token registry.Token, tokenAddr, spender common.Address, amount *big.Int) (execution.ActionStep, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return execution.ActionStep{}, clierr.Wrap(clierr.CodeInternal, "pack approval calldata", err)
	}
	return execution.ActionStep{
		StepID:      "approve-token",
		Type:        execution.StepTypeApproval,
		Status:      execution.StepStatusPending,
		ChainID:     execution.CAIP2(network.ChainID),
		RPCURL:      network.RPCURL,
		Description: fmt.Sprintf("Approve %s for spender", strings.ToUpper(token.Symbol)),
		Target:      tokenAddr.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
	}, nil
}

func callStep(network registry.Network, method string, kind execution.StepType, target common.Address, data []byte, description string) execution.ActionStep {
	return execution.ActionStep{
		StepID:      method,
		Type:        kind,
		Status:      execution.StepStatusPending,
		ChainID:     execution.CAIP2(network.ChainID),
		RPCURL:      network.RPCURL,
		Description: description,
		Target:      target.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
	}
}

func contractAddress(network registry.Network, addr, label string) (common.Address, error) {
	clean := strings.TrimSpace(addr)
	if clean == "" {
		return common.Address{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no %s contract configured on %s", label, network.Name))
	}
	if !common.IsHexAddress(clean) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s address on %s is not a valid EVM address", label, network.Name))
	}
	return common.HexToAddress(clean), nil
}

// erc20Token resolves a listed token that has a contract address. Native
// currencies without a wrapped address cannot be sent to the pools.
func erc20Token(network registry.Network, symbol string) (registry.Token, common.Address, error) {
	token, ok := network.Token(symbol)
	if !ok {
		return registry.Token{}, common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("token %s is not listed on %s", strings.ToUpper(strings.TrimSpace(symbol)), network.Name))
	}
	if !common.IsHexAddress(token.Address) {
		return registry.Token{}, common.Address{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("token %s has no contract on %s", token.Symbol, network.Name))
	}
	return token, common.HexToAddress(token.Address), nil
}

func tokenByAddress(network registry.Network, addr common.Address) (registry.Token, bool) {
	for _, token := range network.Tokens {
		if token.Address != "" && common.HexToAddress(token.Address) == addr {
			return token, true
		}
	}
	return registry.Token{}, false
}

func positiveAmount(amount string, decimals int) (*big.Int, error) {
	out, err := id.ToBaseUnits(amount, decimals)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "invalid amount", err)
	}
	if out.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}
	return out, nil
}

func formatID(v int64) string {
	return strconv.FormatInt(v, 10)
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
