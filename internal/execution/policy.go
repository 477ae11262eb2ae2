package execution

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/registry"
)

var (
	policyERC20ABI   = mustPolicyABI(registry.ERC20ABI)
	policyLendingABI = mustPolicyABI(registry.LendingPoolABI)
	policyStakingABI = mustPolicyABI(registry.StakingPoolABI)

	policyApproveSelector = policyERC20ABI.Methods["approve"].ID
)

// validateStepPolicy checks a step's calldata against what its type allows
// before anything is signed.
func validateStepPolicy(action *Action, step *ActionStep, data []byte, opts ExecuteOptions) error {
	if step == nil {
		return clierr.New(clierr.CodeInternal, "missing action step")
	}
	if !common.IsHexAddress(step.Target) {
		return clierr.New(clierr.CodeUsage, "invalid step target address")
	}

	switch step.Type {
	case StepTypeApproval:
		return validateApprovalPolicy(action, data, opts)
	case StepTypeLend:
		return validateSelector(policyLendingABI, data, "deposit", "withdraw", "borrow", "repay")
	case StepTypeStake:
		return validateSelector(policyStakingABI, data, "stake", "unstake", "claimRewards", "emergencyWithdraw")
	case StepTypeAdmin:
		if err := validateSelector(policyStakingABI, data, "createPool"); err == nil {
			return nil
		}
		return validateSelector(policyLendingABI, data, "listToken", "setTokenPrice")
	default:
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("unknown step type %q", step.Type))
	}
}

func validateApprovalPolicy(action *Action, data []byte, opts ExecuteOptions) error {
	if len(data) < 4 || !bytes.Equal(data[:4], policyApproveSelector) {
		return clierr.New(clierr.CodeActionPlan, "approval step must use ERC20 approve(spender,amount)")
	}
	args, err := policyERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeActionPlan, "approval step calldata is invalid")
	}
	spender, ok := toAddress(args[0])
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid spender")
	}
	amount, ok := toBigInt(args[1])
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid approval amount")
	}
	if opts.AllowMaxApproval {
		return nil
	}
	if action == nil {
		return clierr.New(clierr.CodeActionPlan, "cannot validate approval bounds without action context")
	}
	requested, ok := parsePositiveBaseUnits(action.InputAmount)
	if !ok {
		return clierr.New(clierr.CodeActionPlan, "cannot validate approval bounds for non-numeric input amount")
	}
	if amount.Cmp(requested) > 0 {
		return clierr.New(clierr.CodeActionPlan,
			fmt.Sprintf("approval amount %s exceeds requested input amount %s", amount.String(), requested.String()))
	}
	return nil
}

func validateSelector(contract abi.ABI, data []byte, methods ...string) error {
	if len(data) < 4 {
		return clierr.New(clierr.CodeActionPlan, "step calldata is missing a method selector")
	}
	for _, name := range methods {
		if bytes.Equal(data[:4], contract.Methods[name].ID) {
			return nil
		}
	}
	return clierr.New(clierr.CodeActionPlan, "step calls a method outside "+strings.Join(methods, ", "))
}

func parsePositiveBaseUnits(value string) (*big.Int, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, false
	}
	parsed, ok := new(big.Int).SetString(v, 10)
	if !ok || parsed.Sign() <= 0 {
		return nil, false
	}
	return parsed, true
}

func toAddress(v any) (common.Address, bool) {
	switch value := v.(type) {
	case common.Address:
		return value, true
	case *common.Address:
		if value == nil {
			return common.Address{}, false
		}
		return *value, true
	default:
		return common.Address{}, false
	}
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}

func mustPolicyABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
