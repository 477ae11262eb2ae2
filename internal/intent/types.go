package intent

import (
	"context"
	"strings"
	"time"
)

type Operation string

const (
	OpDeposit            Operation = "deposit"
	OpWithdraw           Operation = "withdraw"
	OpBorrow             Operation = "borrow"
	OpRepay              Operation = "repay"
	OpStake              Operation = "stake"
	OpUnstake            Operation = "unstake"
	OpBalanceOf          Operation = "balanceOf"
	OpGetPoolInformation Operation = "getPoolInformation"
	OpSwap               Operation = "swap"
	OpQuote              Operation = "quote"
	OpTransfer           Operation = "transfer"
	OpUnknown            Operation = "unknown"
)

// DefaultPoolID is used whenever a stake or unstake request names no pool.
const DefaultPoolID int64 = 4

// ParseOperation maps a model- or user-supplied function name onto an
// Operation. Names are matched case-insensitively, with a few aliases.
func ParseOperation(name string) Operation {
	switch normalizeName(name) {
	case "deposit", "supply":
		return OpDeposit
	case "withdraw":
		return OpWithdraw
	case "borrow":
		return OpBorrow
	case "repay":
		return OpRepay
	case "stake":
		return OpStake
	case "unstake":
		return OpUnstake
	case "balanceof", "gettokenbalance", "balance":
		return OpBalanceOf
	case "getpoolinformation", "getpools", "poolinfo", "poolinformation":
		return OpGetPoolInformation
	case "swap", "exchange":
		return OpSwap
	case "quote", "getquote":
		return OpQuote
	case "transfer", "send":
		return OpTransfer
	default:
		return OpUnknown
	}
}

// IsWrite reports whether the operation moves funds.
func (o Operation) IsWrite() bool {
	switch o {
	case OpDeposit, OpWithdraw, OpBorrow, OpRepay, OpStake, OpUnstake, OpSwap, OpTransfer:
		return true
	default:
		return false
	}
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepComplete   StepStatus = "complete"
	StepFailed     StepStatus = "failed"
)

// Intent is one user submission.
type Intent struct {
	RawText     string `json:"rawText"`
	ChainID     int64  `json:"chainId"`
	UserAddress string `json:"userAddress"`
}

// ParsedOperation is the typed result of slot extraction or model planning.
type ParsedOperation struct {
	Operation Operation `json:"operation"`
	Token     string    `json:"token,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	PoolID    int64     `json:"poolId"`
	ChainID   int64     `json:"chainId"`
	FromToken string    `json:"fromToken,omitempty"`
	ToToken   string    `json:"toToken,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	// Owner is the wallet balance reads are made for.
	Owner string `json:"owner,omitempty"`
	// SkipReason is set when the operation must not reach the integration,
	// e.g. a model-supplied chain id that is not in the network table.
	SkipReason string `json:"skipReason,omitempty"`
}

// TransferRequest describes a transfer that needs a direct wallet signature.
type TransferRequest struct {
	ChainID   int64  `json:"chainId"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

// Step is one entry of an execution plan.
type Step struct {
	Description     string           `json:"description"`
	Chain           string           `json:"chain"`
	TransactionHash string           `json:"transactionHash,omitempty"`
	Status          StepStatus       `json:"status"`
	PendingHash     string           `json:"pendingTransactionHash,omitempty"`
	Transfer        *TransferRequest `json:"transfer,omitempty"`
}

// Complete marks the step complete with its final hash, dropping any
// provisional one.
func (s *Step) Complete(txHash string) {
	s.Status = StepComplete
	s.TransactionHash = txHash
	s.PendingHash = ""
}

// Fail marks the step failed. Failed steps never carry a hash.
func (s *Step) Fail(description string) {
	s.Status = StepFailed
	s.Description = description
	s.TransactionHash = ""
	s.PendingHash = ""
}

type PlanKind string

const (
	KindPlan       PlanKind = "plan"
	KindGreeting   PlanKind = "greeting"
	KindOffTopic   PlanKind = "off_topic"
	KindNeedsInput PlanKind = "needs_input"
)

// Plan is the execution plan returned to callers. Short-circuit outcomes
// (greetings, refusals, disambiguation prompts) carry no steps.
type Plan struct {
	Kind        PlanKind `json:"kind"`
	Steps       []Step   `json:"steps"`
	Message     string   `json:"message,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Options     []string `json:"options,omitempty"`
	Source      string   `json:"source,omitempty"`

	// pending holds the operations of a transfer plan that stopped to ask
	// for a recipient.
	pending []ParsedOperation
}

// HasCompleted reports whether at least one step reached complete.
func (p Plan) HasCompleted() bool {
	for _, step := range p.Steps {
		if step.Status == StepComplete {
			return true
		}
	}
	return false
}

// NeedsSignature returns the index of the first step waiting for a wallet
// signature, or -1.
func (p Plan) NeedsSignature() int {
	for i, step := range p.Steps {
		if step.Transfer != nil && step.Status == StepPending {
			return i
		}
	}
	return -1
}

// AwaitingRecipient reports whether the plan stopped to ask for a transfer
// recipient.
func (p Plan) AwaitingRecipient() bool {
	return p.Kind == KindNeedsInput && len(p.pending) > 0
}

// MissingRecipient reports whether a transfer recipient was left out.
func MissingRecipient(recipient string) bool {
	r := strings.TrimSpace(recipient)
	return r == "" || strings.EqualFold(r, "N/A")
}

type IntentType string

const (
	TypeDeposit  IntentType = "deposit"
	TypeWithdraw IntentType = "withdraw"
	TypeBorrow   IntentType = "borrow"
	TypeRepay    IntentType = "repay"
	TypeSwap     IntentType = "swap"
	TypeStake    IntentType = "stake"
	TypeUnstake  IntentType = "unstake"
	TypeClaim    IntentType = "claim"
	TypeTransfer IntentType = "transfer"
	TypeOther    IntentType = "other"
)

// ValidIntentType reports whether v names a stored intent type.
func ValidIntentType(v string) bool {
	switch IntentType(v) {
	case TypeDeposit, TypeWithdraw, TypeBorrow, TypeRepay, TypeSwap, TypeStake, TypeUnstake, TypeClaim, TypeTransfer, TypeOther:
		return true
	default:
		return false
	}
}

// StoredIntent is the persisted record of a processed intent.
type StoredIntent struct {
	ID          string     `json:"id"`
	UserAddress string     `json:"userAddress"`
	Description string     `json:"description"`
	Chain       string     `json:"chain"`
	Type        IntentType `json:"type"`
	Steps       []Step     `json:"steps"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Proposal is what a plan provider returns. Exactly one of Operations (to be
// dispatched) or Steps (descriptive only) is populated.
type Proposal struct {
	Source     string
	Operations []ParsedOperation
	Steps      []Step
}

// Planner turns an utterance into a proposal without side effects.
type Planner interface {
	GeneratePlan(ctx context.Context, utterance string, chainID int64) (Proposal, error)
}

// RecordRequest is the input to the intent recorder.
type RecordRequest struct {
	UserAddress string
	Description string
	Chain       string
	Type        IntentType
	Steps       []Step
}

// Recorder persists processed intents. RecordAsync must not block.
type Recorder interface {
	RecordAsync(req RecordRequest)
}
