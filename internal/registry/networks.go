package registry

import (
	"sort"
	"strconv"
	"strings"
)

type Token struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address,omitempty"`
	Decimals int    `json:"decimals"`
}

// Network is one row of the fixed network table. It is the ground truth
// handed to the planner prompt and the lookup the dispatcher resolves
// chain, token, and contract parameters against.
type Network struct {
	ChainID        int64    `json:"chainId"`
	Name           string   `json:"name"`
	Label          string   `json:"label"`
	Aliases        []string `json:"-"`
	RPCURL         string   `json:"rpc"`
	ExplorerURL    string   `json:"explorer,omitempty"`
	NativeSymbol   string   `json:"nativeCurrency"`
	NativeDecimals int      `json:"-"`
	DefaultStable  string   `json:"defaultStable"`
	LendingPool    string   `json:"lendingPool,omitempty"`
	StakingPool    string   `json:"stakingPool,omitempty"`
	Tokens         []Token  `json:"tokens"`
}

// Token looks up a token by symbol, case-insensitively.
func (n Network) Token(symbol string) (Token, bool) {
	want := strings.ToUpper(strings.TrimSpace(symbol))
	for _, token := range n.Tokens {
		if strings.ToUpper(token.Symbol) == want {
			return token, true
		}
	}
	return Token{}, false
}

func (n Network) IsNative(symbol string) bool {
	return strings.EqualFold(strings.TrimSpace(symbol), n.NativeSymbol)
}

func (n Network) TokenSymbols() []string {
	out := make([]string, 0, len(n.Tokens))
	for _, token := range n.Tokens {
		out = append(out, token.Symbol)
	}
	return out
}

// Override replaces per-network settings loaded from configuration.
type Override struct {
	RPCURL      string
	LendingPool string
	StakingPool string
}

type Table struct {
	byID map[int64]Network
}

var defaultNetworks = []Network{
	{
		ChainID:        44787,
		Name:           "Celo",
		Label:          "Celo Alfajores",
		Aliases:        []string{"celo", "alfajores", "celo alfajores", "celo-alfajores"},
		RPCURL:         "https://alfajores-forno.celo-testnet.org",
		ExplorerURL:    "https://alfajores.celoscan.io",
		NativeSymbol:   "CELO",
		NativeDecimals: 18,
		DefaultStable:  "USDC",
		Tokens: []Token{
			{Symbol: "CELO", Address: "0xF194afDf50B03e69Bd7D057c1Aa9e10c9954E4C9", Decimals: 18},
			{Symbol: "USDC", Address: "0x2F25deB3848C207fc8E0c34035B3Ba7fC157602B", Decimals: 6},
			{Symbol: "cUSD", Address: "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1", Decimals: 18},
		},
	},
	{
		ChainID:        11155111,
		Name:           "Sepolia",
		Label:          "Ethereum Sepolia",
		Aliases:        []string{"sepolia", "ethereum", "eth sepolia", "ethereum sepolia"},
		RPCURL:         "https://ethereum-sepolia-rpc.publicnode.com",
		ExplorerURL:    "https://sepolia.etherscan.io",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		DefaultStable:  "USDC",
		Tokens: []Token{
			{Symbol: "ETH", Decimals: 18},
			{Symbol: "WETH", Address: "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14", Decimals: 18},
			{Symbol: "USDC", Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", Decimals: 6},
		},
	},
	{
		ChainID:        84532,
		Name:           "Base",
		Label:          "Base Sepolia",
		Aliases:        []string{"base", "base sepolia", "base-sepolia"},
		RPCURL:         "https://sepolia.base.org",
		ExplorerURL:    "https://sepolia.basescan.org",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		DefaultStable:  "USDC",
		Tokens: []Token{
			{Symbol: "ETH", Decimals: 18},
			{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
			{Symbol: "USDC", Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Decimals: 6},
		},
	},
	{
		ChainID:        421614,
		Name:           "Arbitrum",
		Label:          "Arbitrum Sepolia",
		Aliases:        []string{"arbitrum", "arb", "arbitrum sepolia", "arbitrum-sepolia"},
		RPCURL:         "https://sepolia-rollup.arbitrum.io/rpc",
		ExplorerURL:    "https://sepolia.arbiscan.io",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		DefaultStable:  "USDC",
		Tokens: []Token{
			{Symbol: "ETH", Decimals: 18},
			{Symbol: "WETH", Address: "0x980B62Da83eFf3D4576C647993b0c1D7faf17c73", Decimals: 18},
			{Symbol: "USDC", Address: "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d", Decimals: 6},
		},
	},
	{
		ChainID:        43113,
		Name:           "Avalanche",
		Label:          "Avalanche Fuji",
		Aliases:        []string{"avalanche", "avax", "fuji", "avalanche fuji"},
		RPCURL:         "https://api.avax-test.network/ext/bc/C/rpc",
		ExplorerURL:    "https://testnet.snowtrace.io",
		NativeSymbol:   "AVAX",
		NativeDecimals: 18,
		DefaultStable:  "USDC",
		Tokens: []Token{
			{Symbol: "AVAX", Decimals: 18},
			{Symbol: "WAVAX", Address: "0xd00ae08403B9bbb9124bB305C09058E32C39A48c", Decimals: 18},
			{Symbol: "USDC", Address: "0x5425890298aed601595a70AB815c96711a31Bc65", Decimals: 6},
		},
	},
}

// Default returns the built-in network table.
func Default() *Table {
	t := &Table{byID: make(map[int64]Network, len(defaultNetworks))}
	for _, network := range defaultNetworks {
		t.byID[network.ChainID] = cloneNetwork(network)
	}
	return t
}

// WithOverrides returns a copy of the table with configured RPC and contract
// addresses applied. Overrides for unknown chains are ignored.
func (t *Table) WithOverrides(overrides map[int64]Override) *Table {
	out := &Table{byID: make(map[int64]Network, len(t.byID))}
	for id, network := range t.byID {
		if o, ok := overrides[id]; ok {
			if strings.TrimSpace(o.RPCURL) != "" {
				network.RPCURL = strings.TrimSpace(o.RPCURL)
			}
			if strings.TrimSpace(o.LendingPool) != "" {
				network.LendingPool = strings.TrimSpace(o.LendingPool)
			}
			if strings.TrimSpace(o.StakingPool) != "" {
				network.StakingPool = strings.TrimSpace(o.StakingPool)
			}
		}
		out.byID[id] = cloneNetwork(network)
	}
	return out
}

func (t *Table) Lookup(chainID int64) (Network, bool) {
	if t == nil {
		return Network{}, false
	}
	network, ok := t.byID[chainID]
	return network, ok
}

// Resolve accepts a numeric chain id, a network name, or an alias.
func (t *Table) Resolve(input string) (Network, bool) {
	clean := strings.ToLower(strings.TrimSpace(input))
	if clean == "" {
		return Network{}, false
	}
	if n, err := strconv.ParseInt(clean, 10, 64); err == nil {
		return t.Lookup(n)
	}
	for _, network := range t.byID {
		if strings.ToLower(network.Name) == clean || strings.ToLower(network.Label) == clean {
			return network, true
		}
		for _, alias := range network.Aliases {
			if alias == clean {
				return network, true
			}
		}
	}
	return Network{}, false
}

// All returns the networks ordered by chain id.
func (t *Table) All() []Network {
	out := make([]Network, 0, len(t.byID))
	for _, network := range t.byID {
		out = append(out, network)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// ChainName returns the short display name for a chain, or "N/A" when the
// chain is not in the table.
func (t *Table) ChainName(chainID int64) string {
	if network, ok := t.Lookup(chainID); ok {
		return network.Name
	}
	return "N/A"
}

func cloneNetwork(n Network) Network {
	n.Aliases = append([]string(nil), n.Aliases...)
	n.Tokens = append([]Token(nil), n.Tokens...)
	return n
}
