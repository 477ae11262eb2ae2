package intent

import (
	"context"
	"fmt"
	"testing"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/registry"
	"github.com/intentfi/intentfi/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recipient = "0x00000000000000000000000000000000000000bb"

func newTestConversation(session Session, w TransferExecutor, rec Recorder) *Conversation {
	f := newPipelineFixture()
	return NewConversation(f.pipeline, session, registry.Default(), nil,
		WithTransferExecutor(w), WithConversationRecorder(rec))
}

func TestConversationTransferConfirmed(t *testing.T) {
	w := &fakeWallet{result: wallet.Result{State: wallet.StateConfirmed, Hash: "0xhash"}}
	rec := &fakeRecorder{}
	c := newTestConversation(StaticSession(celoChainID, "0xaa"), w, rec)

	plan, err := c.Send(context.Background(), "Send 1 CELO to "+recipient)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.NeedsSignature())
	assert.Equal(t, StateAwaitingWalletSignature, c.State())

	_, err = c.Send(context.Background(), "hi")
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))

	step, err := c.ConfirmTransfer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepComplete, step.Status)
	assert.Equal(t, "0xhash", step.TransactionHash)
	assert.Empty(t, step.PendingHash)
	assert.Equal(t, StateDone, c.State())
	require.Len(t, w.got, 1)
	assert.Equal(t, "0xaa", w.got[0].From)

	got := rec.recorded()
	require.Len(t, got, 1)
	assert.Equal(t, TypeTransfer, got[0].Type)

	msgs := c.Messages()
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, step.Description, msgs[len(msgs)-1].Text)
}

func TestConversationRereadsSessionAtConfirm(t *testing.T) {
	w := &fakeWallet{result: wallet.Result{Hash: "0xhash"}}
	session := &mutableSession{chainID: celoChainID, address: "0xaa"}
	c := newTestConversation(session, w, nil)

	_, err := c.Send(context.Background(), "Send 1 CELO to "+recipient)
	require.NoError(t, err)

	session.set(84532, "0xaa")
	_, err = c.ConfirmTransfer(context.Background())
	assert.ErrorIs(t, err, wallet.ErrWrongNetwork)
	msgs := c.Messages()
	assert.Contains(t, msgs[len(msgs)-1].Text, "Switch to Celo")

	session.set(celoChainID, "")
	_, err = c.ConfirmTransfer(context.Background())
	assert.ErrorIs(t, err, wallet.ErrNotConnected)
	assert.Empty(t, w.got)
	assert.Equal(t, StateAwaitingWalletSignature, c.State())
}

func TestConversationConfirmationTimeoutKeepsPendingHash(t *testing.T) {
	w := &fakeWallet{
		result: wallet.Result{State: wallet.StateFailed, Hash: "0xhash"},
		err:    fmt.Errorf("wait for receipt: %w", wallet.ErrConfirmationTimeout),
	}
	c := newTestConversation(StaticSession(celoChainID, "0xaa"), w, nil)
	_, err := c.Send(context.Background(), "Send 1 CELO to "+recipient)
	require.NoError(t, err)

	step, err := c.ConfirmTransfer(context.Background())
	assert.ErrorIs(t, err, wallet.ErrConfirmationTimeout)
	assert.Equal(t, StepProcessing, step.Status)
	assert.Equal(t, "0xhash", step.PendingHash)
	assert.Empty(t, step.TransactionHash)
	assert.Contains(t, step.Description, "not confirmed within 60 seconds")
}

func TestConversationConfirmationTimeoutReportsExecutorWait(t *testing.T) {
	w := &fakeWallet{
		result: wallet.Result{State: wallet.StateFailed, Hash: "0xhash", ConfirmTimeout: 90 * time.Second},
		err:    wallet.ErrConfirmationTimeout,
	}
	c := newTestConversation(StaticSession(celoChainID, "0xaa"), w, nil)
	_, err := c.Send(context.Background(), "Send 1 CELO to "+recipient)
	require.NoError(t, err)

	step, err := c.ConfirmTransfer(context.Background())
	assert.ErrorIs(t, err, wallet.ErrConfirmationTimeout)
	assert.Contains(t, step.Description, "not confirmed within 90 seconds")
}

func TestConversationWalletFailure(t *testing.T) {
	w := &fakeWallet{err: wallet.ErrInsufficientFunds}
	c := newTestConversation(StaticSession(celoChainID, "0xaa"), w, nil)
	_, err := c.Send(context.Background(), "Send 1 CELO to "+recipient)
	require.NoError(t, err)

	step, err := c.ConfirmTransfer(context.Background())
	assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	assert.Equal(t, StepFailed, step.Status)
	assert.Contains(t, step.Description, "balance is too low")
	assert.Equal(t, StateFailed, c.State())
}

func TestConversationRejectTransfer(t *testing.T) {
	w := &fakeWallet{}
	c := newTestConversation(StaticSession(celoChainID, "0xaa"), w, nil)
	_, err := c.Send(context.Background(), "Send 1 CELO to "+recipient)
	require.NoError(t, err)

	step, err := c.RejectTransfer()
	require.NoError(t, err)
	assert.Equal(t, StepFailed, step.Status)
	assert.Equal(t, StateDone, c.State())
	assert.Empty(t, w.got)

	_, err = c.ConfirmTransfer(context.Background())
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))
}

func TestConversationPipelineFailure(t *testing.T) {
	c := newTestConversation(StaticSession(celoChainID, "0xaa"), nil, nil)
	_, err := c.Send(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State())
	msgs := c.Messages()
	assert.Equal(t, RoleAssistant, msgs[len(msgs)-1].Role)

	plan, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, KindGreeting, plan.Kind)
	assert.Equal(t, StateDone, c.State())
}

func TestConversationAsksForMissingRecipient(t *testing.T) {
	w := &fakeWallet{result: wallet.Result{State: wallet.StateConfirmed, Hash: "0xhash"}}
	rec := &fakeRecorder{}
	c := newTestConversation(StaticSession(celoChainID, "0xaa"), w, rec)

	plan, err := c.Send(context.Background(), "send 5 CELO")
	require.NoError(t, err)
	assert.Equal(t, KindNeedsInput, plan.Kind)
	assert.Empty(t, plan.Steps)
	assert.Equal(t, -1, plan.NeedsSignature())
	assert.Contains(t, plan.Message, "Who should receive 5 CELO")
	assert.Equal(t, StateDone, c.State())

	_, err = c.ConfirmTransfer(context.Background())
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))
	assert.Empty(t, w.got)

	plan, err = c.Send(context.Background(), "to "+recipient)
	require.NoError(t, err)
	require.Equal(t, 0, plan.NeedsSignature())
	assert.Equal(t, recipient, plan.Steps[0].Transfer.Recipient)
	assert.Equal(t, "5", plan.Steps[0].Transfer.Amount)
	assert.Equal(t, StateAwaitingWalletSignature, c.State())

	step, err := c.ConfirmTransfer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepComplete, step.Status)
	require.Len(t, w.got, 1)
	assert.Equal(t, recipient, w.got[0].Recipient)

	got := rec.recorded()
	require.Len(t, got, 1)
	assert.Equal(t, "send 5 CELO", got[0].Description)
}

func TestConversationRecipientPromptYieldsToNewRequest(t *testing.T) {
	c := newTestConversation(StaticSession(celoChainID, "0xaa"), &fakeWallet{}, nil)

	plan, err := c.Send(context.Background(), "send 5 CELO")
	require.NoError(t, err)
	require.True(t, plan.AwaitingRecipient())

	plan, err = c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, KindGreeting, plan.Kind)
	assert.False(t, c.Plan().AwaitingRecipient())
}

func TestRecipientReply(t *testing.T) {
	cases := map[string]string{
		recipient:              recipient,
		"to alice.eth":         "alice.eth",
		"  vitalik.eth. ":      "vitalik.eth",
		"send 5 CELO":          "",
		"alice":                "",
		"to the moon and back": "",
	}
	for text, want := range cases {
		got, ok := recipientReply(text)
		assert.Equal(t, want != "", ok, text)
		assert.Equal(t, want, got, text)
	}
}
