package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/registry"
	"github.com/intentfi/intentfi/internal/wallet"
	"go.uber.org/zap"
)

// TurnState is the state of the current conversation turn.
type TurnState string

const (
	StateIdle                    TurnState = "idle"
	StateClassifying             TurnState = "classifying"
	StateExtracting              TurnState = "extracting"
	StatePlanning                TurnState = "planning"
	StateDispatching             TurnState = "dispatching"
	StateAwaitingWalletSignature TurnState = "awaiting_wallet_signature"
	StateDone                    TurnState = "done"
	StateFailed                  TurnState = "failed"
)

// Busy reports whether a turn is still running.
func (s TurnState) Busy() bool {
	switch s {
	case StateClassifying, StateExtracting, StatePlanning, StateDispatching:
		return true
	}
	return false
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Options   []string  `json:"options,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TransferExecutor signs and submits a client-side transfer.
type TransferExecutor interface {
	Transfer(ctx context.Context, t wallet.Transfer, onSubmitted func(hash string)) (wallet.Result, error)
}

// Conversation drives the pipeline turn by turn and keeps the chat transcript
// and the steps of the latest plan.
type Conversation struct {
	pipeline *Pipeline
	session  Session
	wallet   TransferExecutor
	networks *registry.Table
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	state    TurnState
	messages []Message
	plan     Plan
	text     string
}

type ConversationOption func(*Conversation)

func WithTransferExecutor(w TransferExecutor) ConversationOption {
	return func(c *Conversation) { c.wallet = w }
}

func WithConversationRecorder(r Recorder) ConversationOption {
	return func(c *Conversation) { c.recorder = r }
}

func NewConversation(pipeline *Pipeline, session Session, networks *registry.Table, logger *zap.Logger, opts ...ConversationOption) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conversation{
		pipeline: pipeline,
		session:  session,
		networks: networks,
		logger:   logger,
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conversation) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Plan returns a copy of the latest plan.
func (c *Conversation) Plan() Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	plan := c.plan
	plan.Steps = append([]Step(nil), c.plan.Steps...)
	return plan
}

// Send runs one turn for the user's text.
func (c *Conversation) Send(ctx context.Context, text string) (Plan, error) {
	c.mu.Lock()
	if c.state.Busy() {
		c.mu.Unlock()
		return Plan{}, clierr.New(clierr.CodeUsage, "a request is already being processed")
	}
	if c.state == StateAwaitingWalletSignature {
		c.mu.Unlock()
		return Plan{}, clierr.New(clierr.CodeUsage, "confirm or reject the pending transfer first")
	}
	c.appendLocked(RoleUser, text, nil)
	waiting := c.plan
	recipient, isRecipient := recipientReply(text)
	resume := waiting.AwaitingRecipient() && isRecipient
	if !resume {
		c.text = text
	}
	original := c.text
	c.mu.Unlock()

	var (
		plan Plan
		err  error
	)
	if resume {
		plan, err = c.pipeline.ProvideRecipient(ctx, waiting, original, recipient, c.session, c.observe)
	} else {
		plan, err = c.pipeline.Run(ctx, text, c.session, c.observe)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		c.plan = Plan{}
		c.appendLocked(RoleAssistant, failureMessage(err), nil)
		return Plan{}, err
	}
	c.plan = plan
	options := plan.Options
	if len(options) == 0 {
		options = plan.Suggestions
	}
	c.appendLocked(RoleAssistant, plan.Message, options)
	if plan.NeedsSignature() >= 0 {
		c.state = StateAwaitingWalletSignature
	} else {
		c.state = StateDone
	}
	return plan, nil
}

func (c *Conversation) observe(stage Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch stage {
	case StageClassifying:
		c.state = StateClassifying
	case StageExtracting:
		c.state = StateExtracting
	case StagePlanning:
		c.state = StatePlanning
	case StageDispatching:
		c.state = StateDispatching
	}
}

// ConfirmTransfer signs the pending transfer step with the wallet and waits
// for it to confirm.
func (c *Conversation) ConfirmTransfer(ctx context.Context) (Step, error) {
	c.mu.Lock()
	idx := c.plan.NeedsSignature()
	if c.state != StateAwaitingWalletSignature || idx < 0 {
		c.mu.Unlock()
		return Step{}, clierr.New(clierr.CodeUsage, "no transfer is waiting for a signature")
	}
	if c.wallet == nil {
		c.mu.Unlock()
		return Step{}, clierr.New(clierr.CodeUnsupported, "no wallet is configured for transfers")
	}
	req := *c.plan.Steps[idx].Transfer

	address := c.session.Address()
	if address == "" {
		c.appendLocked(RoleAssistant, "Connect your wallet to approve this transfer.", nil)
		c.mu.Unlock()
		return Step{}, clierr.Wrap(clierr.CodeWallet, "wallet not connected", wallet.ErrNotConnected)
	}
	if current := c.session.ChainID(); current != req.ChainID {
		c.appendLocked(RoleAssistant, fmt.Sprintf("Your wallet is on %s. Switch to %s and confirm again.",
			c.networks.ChainName(current), c.networks.ChainName(req.ChainID)), nil)
		c.mu.Unlock()
		return Step{}, clierr.Wrap(clierr.CodeWallet, "wallet is connected to another network", wallet.ErrWrongNetwork)
	}
	c.plan.Steps[idx].Status = StepProcessing
	c.mu.Unlock()

	res, err := c.wallet.Transfer(ctx, wallet.Transfer{
		ChainID:   req.ChainID,
		Token:     req.Token,
		Amount:    req.Amount,
		Recipient: req.Recipient,
		From:      address,
	}, func(hash string) {
		c.mu.Lock()
		c.plan.Steps[idx].PendingHash = hash
		c.mu.Unlock()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	step := &c.plan.Steps[idx]
	chain := c.networks.ChainName(req.ChainID)
	switch {
	case err == nil:
		step.Description = fmt.Sprintf("Sent %s %s to %s on %s.", req.Amount, req.Token, req.Recipient, chain)
		step.Complete(res.Hash)
		c.state = StateDone
		c.appendLocked(RoleAssistant, step.Description, nil)
		c.recordTransferLocked(address, *step)
	case errors.Is(err, wallet.ErrConfirmationTimeout):
		// The transaction may still land; keep it processing with its hash.
		step.Status = StepProcessing
		if res.Hash != "" {
			step.PendingHash = res.Hash
		}
		waited := res.ConfirmTimeout
		if waited <= 0 {
			waited = wallet.ConfirmationTimeout
		}
		step.Description = fmt.Sprintf("Transfer of %s %s submitted on %s but not confirmed within %s. It may still confirm; check the explorer before retrying.",
			req.Amount, req.Token, chain, waitDuration(waited))
		c.state = StateDone
		c.appendLocked(RoleAssistant, step.Description, nil)
	default:
		step.Fail(walletFailure(err))
		c.state = StateFailed
		c.appendLocked(RoleAssistant, step.Description, nil)
	}
	c.logger.Info("transfer finished",
		zap.String("state", string(res.State)),
		zap.String("step_status", string(step.Status)),
		zap.Error(err))
	return *step, err
}

// RejectTransfer declines the pending transfer without contacting the wallet.
func (c *Conversation) RejectTransfer() (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.plan.NeedsSignature()
	if c.state != StateAwaitingWalletSignature || idx < 0 {
		return Step{}, clierr.New(clierr.CodeUsage, "no transfer is waiting for a signature")
	}
	step := &c.plan.Steps[idx]
	step.Fail("You rejected the transfer. Nothing was sent.")
	c.state = StateDone
	c.appendLocked(RoleAssistant, step.Description, nil)
	return *step, nil
}

func (c *Conversation) recordTransferLocked(address string, step Step) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordAsync(RecordRequest{
		UserAddress: address,
		Description: c.text,
		Chain:       step.Chain,
		Type:        DeriveStepsType([]Step{step}),
		Steps:       []Step{step},
	})
}

func (c *Conversation) appendLocked(role Role, text string, options []string) {
	c.messages = append(c.messages, Message{Role: role, Text: text, Options: options, CreatedAt: c.now()})
}

// recipientReply accepts a bare "0x..." address or ENS name, optionally
// prefixed with "to", as the answer to a recipient prompt.
func recipientReply(text string) (string, bool) {
	v := strings.TrimSpace(text)
	if len(v) > 3 && strings.EqualFold(v[:3], "to ") {
		v = strings.TrimSpace(v[3:])
	}
	v = strings.TrimRight(v, ".,!?")
	if v == "" || strings.ContainsAny(v, " \t") {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(v), "0x") || strings.Contains(v, ".") {
		return v, true
	}
	return "", false
}

func waitDuration(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}
	return fmt.Sprintf("%d seconds", int(d.Seconds()))
}

func failureMessage(err error) string {
	switch {
	case clierr.HasCode(err, clierr.CodeUsage):
		return "Please type what you would like to do, e.g. \"Deposit 10 USDC on Celo\"."
	case clierr.HasCode(err, clierr.CodePlanGeneration):
		return "I couldn't build a plan for that request. Try rephrasing it with an amount, token and network."
	default:
		return "Something went wrong while processing your request. Please try again."
	}
}

func walletFailure(err error) string {
	switch {
	case errors.Is(err, wallet.ErrMissingRecipient):
		return "I need a recipient for this transfer. Reply with an address or ENS name, e.g. \"send 1 CELO to vitalik.eth\"."
	case errors.Is(err, wallet.ErrInvalidAddress):
		return "The recipient address is not valid. Check the address and its checksum, then try again."
	case errors.Is(err, wallet.ErrUnresolvableName):
		return "I couldn't resolve that recipient name. Check the spelling or use a 0x address."
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "Your balance is too low for this transfer plus gas. Top up your wallet and try again."
	case errors.Is(err, wallet.ErrNonceConflict):
		return "Your wallet kept reporting a nonce conflict. Wait for pending transactions to confirm, then retry."
	case errors.Is(err, wallet.ErrRejected):
		return "You rejected the transfer in your wallet. Nothing was sent."
	case errors.Is(err, wallet.ErrReverted):
		return "The transfer reverted on-chain. Check the token balance and recipient, then retry."
	case errors.Is(err, wallet.ErrUnsupportedToken):
		return "That token is not available on this network. Pick one of the network's listed tokens."
	default:
		return fmt.Sprintf("The transfer failed: %s. Please try again.", errMessage(err))
	}
}
