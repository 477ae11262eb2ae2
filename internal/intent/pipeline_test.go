package intent

import (
	"context"
	"testing"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	svc      *fakeIntegration
	planner  *fakePlanner
	recorder *fakeRecorder
	pipeline *Pipeline
}

func newPipelineFixture() *pipelineFixture {
	networks := registry.Default()
	f := &pipelineFixture{
		svc:      &fakeIntegration{result: integration.TxResult{Success: true, TransactionHash: "0xabc"}},
		planner:  &fakePlanner{},
		recorder: &fakeRecorder{},
	}
	dispatcher := NewDispatcher(f.svc, networks, nil, WithRecorder(f.recorder))
	f.pipeline = NewPipeline(NewExtractor(networks, nil), f.planner, dispatcher, nil)
	return f
}

func TestProcessDepositEndToEnd(t *testing.T) {
	f := newPipelineFixture()
	plan, err := f.pipeline.Process(context.Background(), Intent{RawText: "Deposit 10 USDC on Celo", ChainID: celoChainID, UserAddress: "0xuser"})
	require.NoError(t, err)

	assert.Equal(t, KindPlan, plan.Kind)
	assert.Equal(t, "extractor", plan.Source)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, StepComplete, plan.Steps[0].Status)
	assert.Equal(t, "Deposited 10 USDC on Celo.", plan.Steps[0].Description)
	assert.Equal(t, "0xabc", plan.Steps[0].TransactionHash)
	assert.Equal(t, "Done.", plan.Message)
	assert.Zero(t, f.planner.calls)

	got := f.recorder.recorded()
	require.Len(t, got, 1)
	assert.Equal(t, TypeDeposit, got[0].Type)
}

func TestProcessShortCircuits(t *testing.T) {
	f := newPipelineFixture()

	plan, err := f.pipeline.Process(context.Background(), Intent{RawText: "What is the capital of France?", ChainID: celoChainID, UserAddress: "0xuser"})
	require.NoError(t, err)
	assert.Equal(t, KindOffTopic, plan.Kind)
	assert.Equal(t, RefusalMessage, plan.Message)
	assert.NotNil(t, plan.Steps)
	assert.Empty(t, plan.Steps)

	plan, err = f.pipeline.Process(context.Background(), Intent{RawText: "hi", ChainID: celoChainID})
	require.NoError(t, err)
	assert.Equal(t, KindGreeting, plan.Kind)
	assert.Equal(t, WelcomeSuggestions, plan.Suggestions)

	assert.Zero(t, f.planner.calls)
	assert.Zero(t, f.svc.callCount())
	assert.Empty(t, f.recorder.recorded())
}

func TestProcessRejectsEmptyText(t *testing.T) {
	f := newPipelineFixture()
	_, err := f.pipeline.Process(context.Background(), Intent{RawText: "   "})
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))
}

func TestProcessNeedsTokenPrompt(t *testing.T) {
	f := newPipelineFixture()
	plan, err := f.pipeline.Process(context.Background(), Intent{RawText: "check my balance", ChainID: celoChainID})
	require.NoError(t, err)
	assert.Equal(t, KindNeedsInput, plan.Kind)
	assert.Equal(t, []string{"CELO", "USDC", "cUSD"}, plan.Options)
	assert.Zero(t, f.svc.callCount())
}

func TestProcessFallsBackToPlanner(t *testing.T) {
	f := newPipelineFixture()
	f.planner.proposal = Proposal{Source: "openai", Operations: []ParsedOperation{
		{Operation: OpDeposit, Token: "USDC", Amount: "5", ChainID: celoChainID},
		{Operation: OpStake, Token: "CELO", Amount: "5", PoolID: 4, ChainID: celoChainID},
	}}
	plan, err := f.pipeline.Process(context.Background(), Intent{RawText: "Diversify my portfolio", ChainID: celoChainID, UserAddress: "0xuser"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.planner.calls)
	assert.Equal(t, "openai", plan.Source)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, []string{"deposit", "stake"}, f.svc.calls)
}

func TestProcessDescriptivePlanIsNotExecuted(t *testing.T) {
	f := newPipelineFixture()
	f.planner.proposal = Proposal{Source: "gemini", Steps: []Step{
		{Description: "Bridge USDC to Base", Chain: "Base", TransactionHash: "0xfake"},
	}}
	plan, err := f.pipeline.Process(context.Background(), Intent{RawText: "Diversify my portfolio", ChainID: celoChainID})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, StepPending, plan.Steps[0].Status)
	assert.Empty(t, plan.Steps[0].TransactionHash)
	assert.Zero(t, f.svc.callCount())
}

func TestProcessPlannerErrors(t *testing.T) {
	f := newPipelineFixture()
	f.planner.err = clierr.New(clierr.CodePlanGeneration, "all providers failed")
	_, err := f.pipeline.Process(context.Background(), Intent{RawText: "Diversify my portfolio", ChainID: celoChainID})
	assert.True(t, clierr.HasCode(err, clierr.CodePlanGeneration))

	f.planner.err = nil
	f.planner.proposal = Proposal{Source: "openai"}
	_, err = f.pipeline.Process(context.Background(), Intent{RawText: "Diversify my portfolio", ChainID: celoChainID})
	assert.True(t, clierr.HasCode(err, clierr.CodePlanGeneration))
}

func TestRunReportsStages(t *testing.T) {
	f := newPipelineFixture()
	var stages []Stage
	_, err := f.pipeline.Run(context.Background(), "Deposit 1 USDC", StaticSession(celoChainID, ""), func(s Stage) { stages = append(stages, s) })
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageClassifying, StageExtracting, StageDispatching}, stages)
}

func TestProcessTransferWithoutRecipientAsksForOne(t *testing.T) {
	f := newPipelineFixture()
	for _, text := range []string{"send 5 CELO", "Transfer 2 USDC to N/A"} {
		plan, err := f.pipeline.Process(context.Background(), Intent{RawText: text, ChainID: celoChainID, UserAddress: "0xuser"})
		require.NoError(t, err, text)
		assert.Equal(t, KindNeedsInput, plan.Kind, text)
		assert.Empty(t, plan.Steps, text)
		assert.True(t, plan.AwaitingRecipient(), text)
	}
	assert.Zero(t, f.svc.callCount())

	f.planner.proposal = Proposal{
		Operations: []ParsedOperation{{Operation: OpTransfer, Amount: "1", Token: "CELO", Recipient: "N/A", ChainID: celoChainID}},
		Source:     "openai",
	}
	plan, err := f.pipeline.Process(context.Background(), Intent{RawText: "pay my friend one celo", ChainID: celoChainID})
	require.NoError(t, err)
	assert.Equal(t, KindNeedsInput, plan.Kind)
	assert.Equal(t, "openai", plan.Source)

	resumed, err := f.pipeline.ProvideRecipient(context.Background(), plan, "pay my friend one celo", "bob.eth", StaticSession(celoChainID, ""), nil)
	require.NoError(t, err)
	require.Equal(t, 0, resumed.NeedsSignature())
	assert.Equal(t, "bob.eth", resumed.Steps[0].Transfer.Recipient)
	assert.Equal(t, "openai", resumed.Source)

	_, err = f.pipeline.ProvideRecipient(context.Background(), Plan{}, "x", "bob.eth", StaticSession(celoChainID, ""), nil)
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))
}
