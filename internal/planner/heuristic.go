package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/registry"
)

const SourceHeuristic = "heuristic"

type bucket struct {
	keywords []string
	steps    func(chain string, n registry.Network) []string
}

var buckets = []bucket{
	{
		keywords: []string{"yield", "earn", "apy"},
		steps: func(chain string, n registry.Network) []string {
			return []string{
				fmt.Sprintf("Compare lending and staking yields on %s", chain),
				fmt.Sprintf("Deposit idle %s into the lending pool", stable(n)),
				fmt.Sprintf("Stake %s in pool %d for rewards", native(n), intent.DefaultPoolID),
				"Claim and compound rewards periodically",
			}
		},
	},
	{
		keywords: []string{"diversify", "portfolio", "bitcoin"},
		steps: func(chain string, n registry.Network) []string {
			return []string{
				fmt.Sprintf("Review your current token balances on %s", chain),
				"Pick a target allocation across stablecoins and volatile assets",
				fmt.Sprintf("Quote swaps from over-weight assets into %s", stable(n)),
				"Execute the swaps in small batches",
				"Re-check the allocation and repeat monthly",
			}
		},
	},
	{
		keywords: []string{"every", "when", "rsi"},
		steps: func(chain string, n registry.Network) []string {
			return []string{
				"Define the trigger condition and the amount per order",
				fmt.Sprintf("Keep enough %s on %s for gas", native(n), chain),
				"Watch the price feed until the condition is met",
				"Submit the order and confirm it in your wallet",
			}
		},
	},
	{
		keywords: []string{"gas", "move", "transfer", "bridge"},
		steps: func(chain string, n registry.Network) []string {
			return []string{
				fmt.Sprintf("Check your %s balance on %s covers gas", native(n), chain),
				"Withdraw any positions you want to move",
				"Bridge the funds to the destination network",
				"Deposit the bridged funds into the destination pool",
			}
		},
	},
}

// Heuristic returns a canned plan picked by keyword. It never fails and
// makes no external calls.
type Heuristic struct {
	networks *registry.Table
}

func NewHeuristic(networks *registry.Table) *Heuristic {
	return &Heuristic{networks: networks}
}

func (h *Heuristic) Name() string { return SourceHeuristic }

func (h *Heuristic) Generate(_ context.Context, utterance string, chainID int64) (intent.Proposal, error) {
	network, _ := h.networks.Lookup(chainID)
	chain := h.networks.ChainName(chainID)
	lower := strings.ToLower(utterance)

	descriptions := genericSteps(chain)
	for _, b := range buckets {
		if containsAny(lower, b.keywords) {
			descriptions = b.steps(chain, network)
			break
		}
	}
	steps := make([]intent.Step, len(descriptions))
	for i, d := range descriptions {
		steps[i] = intent.Step{Description: d, Chain: chain, Status: intent.StepPending}
	}
	return intent.Proposal{Source: SourceHeuristic, Steps: steps}, nil
}

func genericSteps(chain string) []string {
	return []string{
		"Clarify the goal, amount and token",
		fmt.Sprintf("Connect your wallet on %s", chain),
		"Check balances and gas",
		"Run the matching deposit, stake or swap",
		"Review the result in your intent history",
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func stable(n registry.Network) string {
	if n.DefaultStable == "" {
		return "USDC"
	}
	return n.DefaultStable
}

func native(n registry.Network) string {
	if n.NativeSymbol == "" {
		return "the native token"
	}
	return n.NativeSymbol
}
