package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depositOp() ParsedOperation {
	return ParsedOperation{Operation: OpDeposit, Token: "USDC", Amount: "10", ChainID: celoChainID, PoolID: DefaultPoolID}
}

func TestDispatchSuccessCarriesHash(t *testing.T) {
	svc := &fakeIntegration{result: integration.TxResult{Success: true, TransactionHash: "0xabc"}}
	step := NewDispatcher(svc, registry.Default(), nil).Execute(context.Background(), depositOp())

	assert.Equal(t, StepComplete, step.Status)
	assert.Equal(t, "0xabc", step.TransactionHash)
	assert.Equal(t, "Celo", step.Chain)
	assert.Equal(t, "Deposited 10 USDC on Celo.", step.Description)
	assert.Equal(t, integration.LendRequest{ChainID: celoChainID, Token: "USDC", Amount: "10"}, svc.lastLend)
}

func TestDispatchFailureHasNoHash(t *testing.T) {
	svc := &fakeIntegration{result: integration.TxResult{Success: false, TransactionHash: "0xdead", Error: "insufficient allowance"}}
	step := NewDispatcher(svc, registry.Default(), nil).Execute(context.Background(), depositOp())

	assert.Equal(t, StepFailed, step.Status)
	assert.Empty(t, step.TransactionHash)
	assert.Contains(t, step.Description, "insufficient allowance")

	svc = &fakeIntegration{err: errors.New("connection refused")}
	step = NewDispatcher(svc, registry.Default(), nil).Execute(context.Background(), depositOp())
	assert.Equal(t, StepFailed, step.Status)
	assert.Contains(t, step.Description, "connection refused")
}

func TestDispatchSkipsWithoutCallingIntegration(t *testing.T) {
	svc := &fakeIntegration{}
	d := NewDispatcher(svc, registry.Default(), nil, WithAllowedOperations([]string{"read-only"}))

	op := depositOp()
	op.SkipReason = "chain 999 is not a supported network"
	step := d.Execute(context.Background(), op)
	assert.Equal(t, StepFailed, step.Status)
	assert.Contains(t, step.Description, "Skipped deposit 10 USDC")

	step = d.Execute(context.Background(), depositOp())
	assert.Equal(t, "Deposit is disabled on this server.", step.Description)

	op = depositOp()
	op.Operation = OpBalanceOf
	op.Amount = ""
	op.Token = ""
	step = d.Execute(context.Background(), op)
	assert.Equal(t, StepFailed, step.Status)

	op = ParsedOperation{Operation: OpStake, Amount: "0", Token: "CELO", ChainID: celoChainID}
	step = NewDispatcher(svc, registry.Default(), nil).Execute(context.Background(), op)
	assert.Contains(t, step.Description, "positive amount")

	assert.Zero(t, svc.callCount())
}

func TestDispatchReadsAndTransfers(t *testing.T) {
	svc := &fakeIntegration{
		balance: "12.5",
		pools:   []integration.PoolInfo{{PoolID: 4, Active: true, TotalStaked: "100"}},
	}
	d := NewDispatcher(svc, registry.Default(), nil)

	step := d.Execute(context.Background(), ParsedOperation{Operation: OpBalanceOf, Token: "USDC", ChainID: celoChainID})
	assert.Equal(t, "Your USDC balance on Celo is 12.5 USDC.", step.Description)

	step = d.Execute(context.Background(), ParsedOperation{Operation: OpGetPoolInformation, ChainID: celoChainID})
	assert.Equal(t, "Found 1 staking pools on Celo: pool 4 (active, 100 staked).", step.Description)

	step = d.Execute(context.Background(), ParsedOperation{Operation: OpSwap, Amount: "5", Token: "USDC", FromToken: "USDC", ToToken: "CELO", ChainID: celoChainID})
	assert.Equal(t, StepFailed, step.Status)
	assert.Contains(t, step.Description, "quote 5 USDC to CELO")

	step = d.Execute(context.Background(), ParsedOperation{Operation: OpTransfer, Amount: "1", Token: "CELO", Recipient: "alice.eth", ChainID: celoChainID})
	assert.Equal(t, StepPending, step.Status)
	require.NotNil(t, step.Transfer)
	assert.Equal(t, "alice.eth", step.Transfer.Recipient)

	step = d.Execute(context.Background(), ParsedOperation{Operation: OpTransfer, Amount: "1", Token: "CELO", Recipient: "N/A", ChainID: celoChainID})
	assert.Equal(t, StepFailed, step.Status)
	assert.Nil(t, step.Transfer)
	assert.Contains(t, step.Description, "needs a recipient")
}

func TestExecuteAllRecordsOnlyCompletedWalletPlans(t *testing.T) {
	rec := &fakeRecorder{}
	ok := &fakeIntegration{result: integration.TxResult{Success: true, TransactionHash: "0xabc"}}
	d := NewDispatcher(ok, registry.Default(), nil, WithRecorder(rec))

	steps := d.ExecuteAll(context.Background(), Intent{RawText: "Deposit 10 USDC", ChainID: celoChainID, UserAddress: "0xuser"}, []ParsedOperation{depositOp()})
	require.Len(t, steps, 1)
	got := rec.recorded()
	require.Len(t, got, 1)
	assert.Equal(t, TypeDeposit, got[0].Type)
	assert.Equal(t, "Celo", got[0].Chain)
	assert.Equal(t, "Deposit 10 USDC", got[0].Description)

	d.ExecuteAll(context.Background(), Intent{RawText: "Deposit 10 USDC", ChainID: celoChainID}, []ParsedOperation{depositOp()})
	assert.Len(t, rec.recorded(), 1, "anonymous previews are not recorded")

	failing := &fakeIntegration{result: integration.Failed("reverted")}
	NewDispatcher(failing, registry.Default(), nil, WithRecorder(rec)).
		ExecuteAll(context.Background(), Intent{RawText: "Deposit 10 USDC", UserAddress: "0xuser"}, []ParsedOperation{depositOp()})
	assert.Len(t, rec.recorded(), 1, "plans without a completed step are not recorded")
}

func TestExecuteAllRunsInOrder(t *testing.T) {
	svc := &fakeIntegration{result: integration.TxResult{Success: true, TransactionHash: "0x1"}}
	d := NewDispatcher(svc, registry.Default(), nil)
	ops := []ParsedOperation{
		depositOp(),
		{Operation: OpBorrow, Token: "USDC", Amount: "2", ChainID: celoChainID},
		{Operation: OpRepay, Token: "USDC", Amount: "2", ChainID: celoChainID},
	}
	steps := d.ExecuteAll(context.Background(), Intent{}, ops)
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"deposit", "borrow", "repay"}, svc.calls)
}
