package intent

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/metrics"
	"github.com/intentfi/intentfi/internal/policy"
	"github.com/intentfi/intentfi/internal/registry"
	"go.uber.org/zap"
)

// Integration is the part of the blockchain-integration service the
// dispatcher drives.
type Integration interface {
	Deposit(ctx context.Context, req integration.LendRequest) (integration.TxResult, error)
	Withdraw(ctx context.Context, req integration.LendRequest) (integration.TxResult, error)
	Borrow(ctx context.Context, req integration.LendRequest) (integration.TxResult, error)
	Repay(ctx context.Context, req integration.LendRequest) (integration.TxResult, error)
	Stake(ctx context.Context, req integration.StakeRequest) (integration.TxResult, error)
	Unstake(ctx context.Context, req integration.StakeRequest) (integration.TxResult, error)
	TokenBalance(ctx context.Context, req integration.BalanceRequest) (integration.Balance, error)
	PoolInformation(ctx context.Context, chainID int64) ([]integration.PoolInfo, error)
	Quote(ctx context.Context, req integration.QuoteRequest) (integration.Quote, error)
}

// Dispatcher executes parsed operations against the integration service and
// reports each as a Step. It never returns an error: failures become failed
// steps.
type Dispatcher struct {
	svc      Integration
	networks *registry.Table
	recorder Recorder
	allowed  []string
	logger   *zap.Logger
}

type DispatcherOption func(*Dispatcher)

// WithAllowedOperations restricts which operations may be dispatched.
func WithAllowedOperations(ops []string) DispatcherOption {
	return func(d *Dispatcher) { d.allowed = ops }
}

func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

func NewDispatcher(svc Integration, networks *registry.Table, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{svc: svc, networks: networks, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ExecuteAll runs ops strictly in order, each after the previous result is
// known. When any step completed the intent is recorded without blocking.
func (d *Dispatcher) ExecuteAll(ctx context.Context, in Intent, ops []ParsedOperation) []Step {
	steps := make([]Step, 0, len(ops))
	for _, op := range ops {
		if op.Owner == "" {
			op.Owner = in.UserAddress
		}
		steps = append(steps, d.Execute(ctx, op))
	}
	d.record(in, steps)
	return steps
}

func (d *Dispatcher) record(in Intent, steps []Step) {
	if d.recorder == nil {
		return
	}
	completed := false
	for _, step := range steps {
		if step.Status == StepComplete {
			completed = true
			break
		}
	}
	if !completed {
		return
	}
	if strings.TrimSpace(in.UserAddress) == "" {
		d.logger.Debug("skipping intent record for anonymous preview")
		return
	}
	d.recorder.RecordAsync(RecordRequest{
		UserAddress: in.UserAddress,
		Description: in.RawText,
		Chain:       PlanChain(steps),
		Type:        DeriveStepsType(steps),
		Steps:       steps,
	})
}

// Execute dispatches one operation.
func (d *Dispatcher) Execute(ctx context.Context, op ParsedOperation) Step {
	start := time.Now()
	step := d.execute(ctx, op)
	metrics.DispatchTotal.WithLabelValues(string(op.Operation), string(step.Status)).Inc()
	metrics.DispatchDuration.WithLabelValues(string(op.Operation)).Observe(time.Since(start).Seconds())
	d.logger.Info("dispatched operation",
		zap.String("operation", string(op.Operation)),
		zap.Int64("chain_id", op.ChainID),
		zap.String("status", string(step.Status)),
		zap.Duration("elapsed", time.Since(start)))
	return step
}

func (d *Dispatcher) execute(ctx context.Context, op ParsedOperation) Step {
	chain := d.networks.ChainName(op.ChainID)
	step := Step{Chain: chain, Status: StepProcessing}

	if op.SkipReason != "" {
		step.Fail(fmt.Sprintf("Skipped %s: %s.", describeOperation(op), op.SkipReason))
		return step
	}
	if err := policy.CheckOperationAllowed(d.allowed, string(op.Operation)); err != nil {
		step.Fail(fmt.Sprintf("%s is disabled on this server.", capitalize(string(op.Operation))))
		return step
	}
	if msg := missingSlots(op); msg != "" {
		step.Fail(msg)
		return step
	}

	switch op.Operation {
	case OpDeposit, OpWithdraw, OpBorrow, OpRepay:
		return d.lend(ctx, op, step)
	case OpStake, OpUnstake:
		return d.stake(ctx, op, step)
	case OpBalanceOf:
		bal, err := d.svc.TokenBalance(ctx, integration.BalanceRequest{ChainID: op.ChainID, Token: op.Token, Owner: op.Owner})
		if err != nil {
			d.logFailure(op, err)
			step.Fail(fmt.Sprintf("Could not read your %s balance on %s: %s. Check the token symbol or try again.", op.Token, chain, errMessage(err)))
			return step
		}
		step.Status = StepComplete
		step.Description = fmt.Sprintf("Your %s balance on %s is %s %s.", op.Token, chain, bal.Balance, op.Token)
		return step
	case OpGetPoolInformation:
		pools, err := d.svc.PoolInformation(ctx, op.ChainID)
		if err != nil {
			d.logFailure(op, err)
			step.Fail(fmt.Sprintf("Could not load staking pools on %s: %s. Try again shortly.", chain, errMessage(err)))
			return step
		}
		step.Status = StepComplete
		step.Description = describePools(chain, pools)
		return step
	case OpQuote:
		q, err := d.svc.Quote(ctx, integration.QuoteRequest{ChainID: op.ChainID, FromToken: op.FromToken, ToToken: op.ToToken, Amount: op.Amount})
		if err != nil {
			d.logFailure(op, err)
			step.Fail(fmt.Sprintf("Could not quote %s %s to %s on %s: %s.", op.Amount, op.FromToken, op.ToToken, chain, errMessage(err)))
			return step
		}
		step.Status = StepComplete
		step.Description = fmt.Sprintf("Quote: %s %s ≈ %s %s on %s.", q.AmountIn, q.FromToken, q.AmountOut, q.ToToken, chain)
		return step
	case OpSwap:
		step.Fail(fmt.Sprintf("Swapping %s %s to %s on %s is not available through the integration service. Ask for a quote instead, e.g. \"quote %s %s to %s\".",
			op.Amount, op.FromToken, op.ToToken, chain, op.Amount, op.FromToken, op.ToToken))
		return step
	case OpTransfer:
		if MissingRecipient(op.Recipient) {
			step.Fail(fmt.Sprintf("Sending %s %s needs a recipient. Reply with a 0x address or an ENS name.", op.Amount, op.Token))
			return step
		}
		step.Status = StepPending
		step.Description = fmt.Sprintf("Send %s %s to %s on %s. Approve the transfer in your wallet.", op.Amount, op.Token, op.Recipient, chain)
		step.Transfer = &TransferRequest{ChainID: op.ChainID, Token: op.Token, Amount: op.Amount, Recipient: op.Recipient}
		return step
	default:
		step.Fail("I couldn't map this request to a supported operation. Try rephrasing, e.g. \"Deposit 10 USDC on Celo\".")
		return step
	}
}

func (d *Dispatcher) lend(ctx context.Context, op ParsedOperation, step Step) Step {
	req := integration.LendRequest{ChainID: op.ChainID, Token: op.Token, Amount: op.Amount}
	var (
		res integration.TxResult
		err error
	)
	switch op.Operation {
	case OpDeposit:
		res, err = d.svc.Deposit(ctx, req)
	case OpWithdraw:
		res, err = d.svc.Withdraw(ctx, req)
	case OpBorrow:
		res, err = d.svc.Borrow(ctx, req)
	case OpRepay:
		res, err = d.svc.Repay(ctx, req)
	}
	done := fmt.Sprintf("%s %s %s on %s.", pastTense(op.Operation), op.Amount, op.Token, step.Chain)
	return d.settle(op, step, res, err, done)
}

func (d *Dispatcher) stake(ctx context.Context, op ParsedOperation, step Step) Step {
	req := integration.StakeRequest{ChainID: op.ChainID, PoolID: op.PoolID, Amount: op.Amount}
	var (
		res integration.TxResult
		err error
	)
	preposition := "in"
	if op.Operation == OpStake {
		res, err = d.svc.Stake(ctx, req)
	} else {
		preposition = "from"
		res, err = d.svc.Unstake(ctx, req)
	}
	done := fmt.Sprintf("%s %s %s %s pool %d on %s.", pastTense(op.Operation), op.Amount, op.Token, preposition, op.PoolID, step.Chain)
	return d.settle(op, step, res, err, done)
}

func (d *Dispatcher) settle(op ParsedOperation, step Step, res integration.TxResult, err error, done string) Step {
	if err != nil {
		d.logFailure(op, err)
		step.Fail(fmt.Sprintf("Failed to %s: %s. You can retry, or check your balance and network.", describeOperation(op), errMessage(err)))
		return step
	}
	if !res.Success {
		reason := strings.TrimSpace(res.Error)
		if reason == "" {
			reason = "the transaction was not successful"
		}
		d.logFailure(op, clierr.New(clierr.CodeDispatch, reason))
		step.Fail(fmt.Sprintf("Failed to %s: %s. You can retry, or check your balance and network.", describeOperation(op), reason))
		return step
	}
	step.Description = done
	step.Complete(res.TransactionHash)
	return step
}

func (d *Dispatcher) logFailure(op ParsedOperation, err error) {
	d.logger.Warn("integration call failed",
		zap.String("operation", string(op.Operation)),
		zap.Int64("chain_id", op.ChainID),
		zap.Error(err))
}

func missingSlots(op ParsedOperation) string {
	switch op.Operation {
	case OpDeposit, OpWithdraw, OpBorrow, OpRepay, OpStake, OpUnstake, OpSwap, OpQuote, OpTransfer:
		if !validAmount(op.Amount) {
			return fmt.Sprintf("I need a positive amount to %s. Please tell me how much, e.g. \"%s 10 USDC\".", op.Operation, op.Operation)
		}
		if op.Token == "" && op.FromToken == "" {
			return fmt.Sprintf("I need to know which token to %s. Please include the token symbol.", op.Operation)
		}
	case OpBalanceOf:
		if op.Token == "" {
			return "Which token balance should I check? Please include the token symbol."
		}
	}
	return ""
}

func validAmount(v string) bool {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(v))
	return ok && r.Sign() > 0
}

func describeOperation(op ParsedOperation) string {
	switch op.Operation {
	case OpStake:
		return fmt.Sprintf("stake %s %s in pool %d", op.Amount, op.Token, op.PoolID)
	case OpUnstake:
		return fmt.Sprintf("unstake %s %s from pool %d", op.Amount, op.Token, op.PoolID)
	case OpBalanceOf:
		return fmt.Sprintf("check the %s balance", op.Token)
	case OpGetPoolInformation:
		return "load pool information"
	case OpSwap, OpQuote:
		return fmt.Sprintf("%s %s %s to %s", op.Operation, op.Amount, op.FromToken, op.ToToken)
	case OpUnknown:
		return "an unrecognised step"
	default:
		return strings.TrimSpace(fmt.Sprintf("%s %s %s", op.Operation, op.Amount, op.Token))
	}
}

func describePools(chain string, pools []integration.PoolInfo) string {
	if len(pools) == 0 {
		return fmt.Sprintf("No staking pools are available on %s.", chain)
	}
	parts := make([]string, 0, len(pools))
	for _, p := range pools {
		state := "active"
		if !p.Active {
			state = "inactive"
		}
		parts = append(parts, fmt.Sprintf("pool %d (%s, %s staked)", p.PoolID, state, p.TotalStaked))
	}
	return fmt.Sprintf("Found %d staking pools on %s: %s.", len(pools), chain, strings.Join(parts, "; "))
}

func pastTense(op Operation) string {
	switch op {
	case OpDeposit:
		return "Deposited"
	case OpWithdraw:
		return "Withdrew"
	case OpBorrow:
		return "Borrowed"
	case OpRepay:
		return "Repaid"
	case OpStake:
		return "Staked"
	case OpUnstake:
		return "Unstaked"
	default:
		return capitalize(string(op))
	}
}

func capitalize(v string) string {
	if v == "" {
		return v
	}
	return strings.ToUpper(v[:1]) + v[1:]
}

func errMessage(err error) string {
	if cErr, ok := clierr.As(err); ok {
		return cErr.Message
	}
	return err.Error()
}
