package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/intentfi/intentfi/internal/registry"
)

type promptNetwork struct {
	ChainID        int64    `json:"chainId"`
	Name           string   `json:"name"`
	NativeCurrency string   `json:"nativeCurrency"`
	DefaultStable  string   `json:"defaultStable"`
	Tokens         []string `json:"tokens"`
}

func networkTableJSON(networks *registry.Table) string {
	rows := make([]promptNetwork, 0)
	for _, n := range networks.All() {
		rows = append(rows, promptNetwork{
			ChainID:        n.ChainID,
			Name:           n.Label,
			NativeCurrency: n.NativeSymbol,
			DefaultStable:  n.DefaultStable,
			Tokens:         n.TokenSymbols(),
		})
	}
	buf, _ := json.Marshal(rows)
	return string(buf)
}

const operationsPrompt = `You convert DeFi requests into contract calls.
Reply with a single JSON object and nothing else:
{"steps":[{"chain":string,"token":string,"chainId":number,"amount":string,"function":string,"poolId":number,"toToken":string}]}
Allowed functions: deposit, withdraw, borrow, repay, stake, unstake, balanceOf, getPoolInformation, quote.
The user's wallet is connected to chainId %d. Use it unless the request names another network.
Only use chainIds and tokens from this network table: %s
Use poolId 4 when no pool is named. Amounts are decimal strings in whole tokens.`

func operationsSystemPrompt(networks *registry.Table, chainID int64) string {
	return fmt.Sprintf(operationsPrompt, chainID, networkTableJSON(networks))
}

const stepsPrompt = `You are a DeFi assistant. Break the request below into a short list of execution steps.
Reply with JSON only: {"steps":[{"description":string,"chain":string}]}
The user's wallet is connected to chainId %d. Known networks: %s

Request: %s`

func stepsUserPrompt(networks *registry.Table, chainID int64, utterance string) string {
	return fmt.Sprintf(stepsPrompt, chainID, networkTableJSON(networks), utterance)
}

// stripFences removes a surrounding markdown code fence some models add
// even when asked for bare JSON.
func stripFences(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "```") {
		return v
	}
	v = strings.TrimPrefix(v, "```")
	if nl := strings.IndexByte(v, '\n'); nl >= 0 {
		v = v[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "```"))
}
