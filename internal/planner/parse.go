package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/registry"
)

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

func (s looseString) int64() int64 {
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

type operationStep struct {
	Chain    string      `json:"chain"`
	Token    string      `json:"token"`
	ChainID  looseString `json:"chainId"`
	Amount   looseString `json:"amount"`
	Function string      `json:"function"`
	PoolID   looseString `json:"poolId"`
	ToToken  string      `json:"toToken"`
}

type descriptiveStep struct {
	Description string `json:"description"`
	Chain       string `json:"chain"`
}

// stepsArray returns the raw "steps" array of a model reply.
func stepsArray(content string) (json.RawMessage, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(content)), &body); err != nil {
		return nil, clierr.Wrap(clierr.CodePlanGeneration, "model reply is not a JSON object", err)
	}
	raw, ok := body["steps"]
	trimmed := bytes.TrimSpace(raw)
	if !ok || len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, clierr.New(clierr.CodePlanGeneration, "model reply has no steps array")
	}
	return raw, nil
}

// parseOperations converts the primary model's reply into dispatchable
// operations. Steps on chains missing from the network table are kept with
// a skip reason.
func parseOperations(content string, networks *registry.Table, chainID int64) ([]intent.ParsedOperation, error) {
	raw, err := stepsArray(content)
	if err != nil {
		return nil, err
	}
	var steps []operationStep
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, clierr.Wrap(clierr.CodePlanGeneration, "decode model steps", err)
	}
	if len(steps) == 0 {
		return nil, clierr.New(clierr.CodePlanGeneration, "model returned an empty plan")
	}

	ops := make([]intent.ParsedOperation, 0, len(steps))
	for _, s := range steps {
		op := intent.ParsedOperation{
			Operation: intent.ParseOperation(s.Function),
			Amount:    string(s.Amount),
			ChainID:   s.ChainID.int64(),
			PoolID:    s.PoolID.int64(),
		}
		if op.ChainID == 0 {
			op.ChainID = chainID
		}
		if op.PoolID <= 0 {
			op.PoolID = intent.DefaultPoolID
		}
		network, ok := networks.Lookup(op.ChainID)
		if !ok {
			op.SkipReason = fmt.Sprintf("chain %d is not a supported network", op.ChainID)
		}
		op.Token = tokenSymbol(network, s.Token)
		if op.Operation == intent.OpQuote || op.Operation == intent.OpSwap {
			op.FromToken = op.Token
			op.ToToken = tokenSymbol(network, s.ToToken)
			if op.ToToken == "" {
				op.ToToken = network.DefaultStable
			}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// parseDescriptive converts the secondary model's reply into pending steps.
func parseDescriptive(content string) ([]intent.Step, error) {
	raw, err := stepsArray(content)
	if err != nil {
		return nil, err
	}
	var steps []descriptiveStep
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, clierr.Wrap(clierr.CodePlanGeneration, "decode model steps", err)
	}
	out := make([]intent.Step, 0, len(steps))
	for _, s := range steps {
		desc := strings.TrimSpace(s.Description)
		if desc == "" {
			continue
		}
		chain := strings.TrimSpace(s.Chain)
		if chain == "" {
			chain = "N/A"
		}
		out = append(out, intent.Step{Description: desc, Chain: chain, Status: intent.StepPending})
	}
	if len(out) == 0 {
		return nil, clierr.New(clierr.CodePlanGeneration, "model returned an empty plan")
	}
	return out, nil
}

func tokenSymbol(network registry.Network, symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ""
	}
	if token, ok := network.Token(symbol); ok {
		return token.Symbol
	}
	return strings.ToUpper(symbol)
}
