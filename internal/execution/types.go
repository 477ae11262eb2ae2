package execution

import "time"

type ActionStatus string

type StepStatus string

type StepType string

const (
	ActionStatusPlanned   ActionStatus = "planned"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusSimulated StepStatus = "simulated"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusFailed    StepStatus = "failed"
)

const (
	StepTypeApproval StepType = "approval"
	StepTypeLend     StepType = "lend_call"
	StepTypeStake    StepType = "stake_call"
	StepTypeAdmin    StepType = "admin_call"
)

type Constraints struct {
	Simulate bool `json:"simulate"`
}

// ActionStep is one transaction of an action.
type ActionStep struct {
	StepID      string     `json:"step_id"`
	Type        StepType   `json:"type"`
	Status      StepStatus `json:"status"`
	ChainID     string     `json:"chain_id"`
	RPCURL      string     `json:"rpc_url,omitempty"`
	Description string     `json:"description,omitempty"`
	Target      string     `json:"target"`
	Data        string     `json:"data"`
	Value       string     `json:"value"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Action is an ordered set of transactions serving one integration call,
// e.g. an ERC-20 approval followed by a lending pool deposit.
type Action struct {
	ActionID    string       `json:"action_id"`
	Operation   string       `json:"operation"`
	Status      ActionStatus `json:"status"`
	ChainID     string       `json:"chain_id"`
	FromAddress string       `json:"from_address,omitempty"`
	InputAmount string       `json:"input_amount,omitempty"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
	Constraints Constraints  `json:"constraints"`
	Steps       []ActionStep `json:"steps"`
}

func NewAction(actionID, operation, chainID string, constraints Constraints) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:    actionID,
		Operation:   operation,
		Status:      ActionStatusPlanned,
		ChainID:     chainID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Constraints: constraints,
		Steps:       []ActionStep{},
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// LastTxHash returns the hash of the final submitted step, which is the one
// callers report.
func (a Action) LastTxHash() string {
	for i := len(a.Steps) - 1; i >= 0; i-- {
		if a.Steps[i].TxHash != "" {
			return a.Steps[i].TxHash
		}
	}
	return ""
}

// CAIP2 renders an EVM chain id the way action steps carry it.
func CAIP2(chainID int64) string {
	return "eip155:" + formatInt(chainID)
}
