package intent

import "strings"

var typeKeywords = []struct {
	typ      IntentType
	keywords []string
}{
	{TypeUnstake, []string{"unstake"}},
	{TypeDeposit, []string{"deposit", "supply", "supplied"}},
	{TypeWithdraw, []string{"withdraw", "withdrew"}},
	{TypeBorrow, []string{"borrow"}},
	{TypeRepay, []string{"repay", "repaid"}},
	{TypeSwap, []string{"swap", "exchange"}},
	{TypeStake, []string{"stake"}},
	{TypeClaim, []string{"claim"}},
	{TypeTransfer, []string{"transfer", "send", "sent"}},
}

// DeriveType classifies a plan by keyword over its lower-cased, concatenated
// step descriptions. Unstake is checked before stake since one contains the
// other.
func DeriveType(descriptions []string) IntentType {
	text := strings.ToLower(strings.Join(descriptions, " "))
	for _, entry := range typeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.typ
			}
		}
	}
	return TypeOther
}

// DeriveStepsType is DeriveType over a plan's steps.
func DeriveStepsType(steps []Step) IntentType {
	descriptions := make([]string, 0, len(steps))
	for _, step := range steps {
		descriptions = append(descriptions, step.Description)
	}
	return DeriveType(descriptions)
}

// PlanChain summarises the chain a plan ran on: the single chain name when all
// steps agree, "Multiple" otherwise, "N/A" for an empty plan.
func PlanChain(steps []Step) string {
	chain := ""
	for _, step := range steps {
		c := strings.TrimSpace(step.Chain)
		if c == "" {
			continue
		}
		if chain == "" {
			chain = c
			continue
		}
		if !strings.EqualFold(chain, c) {
			return "Multiple"
		}
	}
	if chain == "" {
		return "N/A"
	}
	return chain
}
