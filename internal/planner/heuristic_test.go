package planner

import (
	"context"
	"testing"

	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicBuckets(t *testing.T) {
	h := NewHeuristic(registry.Default())
	cases := map[string]string{
		"maximise my APY":                   "Compare lending and staking yields on Celo",
		"diversify into bitcoin":            "Review your current token balances on Celo",
		"buy every monday when RSI < 30":    "Define the trigger condition and the amount per order",
		"bridge my funds somewhere cheaper": "Check your CELO balance on Celo covers gas",
		"make me rich":                      "Clarify the goal, amount and token",
	}
	for text, first := range cases {
		proposal, err := h.Generate(context.Background(), text, 44787)
		require.NoError(t, err, text)
		require.NotEmpty(t, proposal.Steps, text)
		assert.Equal(t, first, proposal.Steps[0].Description, text)
		for _, step := range proposal.Steps {
			assert.Equal(t, intent.StepPending, step.Status)
			assert.Empty(t, step.TransactionHash)
		}
	}
}

func TestHeuristicGenericPlanHasFiveSteps(t *testing.T) {
	proposal, err := NewHeuristic(registry.Default()).Generate(context.Background(), "something else", 999)
	require.NoError(t, err)
	assert.Len(t, proposal.Steps, 5)
	assert.Equal(t, "N/A", proposal.Steps[0].Chain)
}
