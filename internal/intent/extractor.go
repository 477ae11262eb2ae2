package intent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/intentfi/intentfi/internal/registry"
)

const (
	amountPattern = `(\d+(?:\.\d+)?)`
	tokenPattern  = `([a-z][a-z0-9]{0,11})`
)

// Holdings reports the token symbols a wallet currently holds on a chain.
type Holdings interface {
	HeldTokens(ctx context.Context, chainID int64, address string) ([]string, error)
}

// Extraction is the result of a direct slot match.
type Extraction struct {
	Rule      string
	Operation ParsedOperation
	// NeedsToken is set when a balance check named no token; Options then
	// lists the tokens the user can pick from.
	NeedsToken bool
	Options    []string
}

type slots struct {
	groups  []string
	text    string
	chainID int64
	network registry.Network
	known   bool
}

type rule struct {
	name    string
	pattern *regexp.Regexp
	build   func(e *Extractor, s slots) ParsedOperation
}

// Extractor matches utterances against an ordered rule table without calling
// a model. The first matching rule wins.
type Extractor struct {
	networks *registry.Table
	holdings Holdings
	rules    []rule
}

var (
	chainSuffixPattern = regexp.MustCompile(`(?i)\s+on\s+(?:the\s+)?([a-z][a-z0-9 \-]*?)(?:\s+(?:network|chain|testnet|mainnet))?\s*[.!?]*$`)
	poolPattern        = regexp.MustCompile(`(?i)\bpool\s*(?:#|id|number|no\.?)?\s*(\d+)\b`)
	tokenStopwords     = map[string]struct{}{
		"in": {}, "into": {}, "to": {}, "on": {}, "from": {}, "pool": {}, "for": {}, "of": {},
		"my": {}, "the": {}, "your": {}, "wallet": {}, "token": {}, "tokens": {}, "account": {},
		"check": {}, "show": {}, "get": {}, "what": {}, "whats": {}, "is": {}, "me": {},
	}
)

// balanceQuery only matches utterances that ask about a balance, so
// "stake 10 CELO from my balance" falls through to the stake rule.
var balanceQuery = mustRule(`^(?:please\s+)?(?:(?:can|could)\s+you\s+)?` +
	`(?:check|show|get|view|display|fetch|see|tell\s+me|what(?:'s|s|\s+is|\s+are)?)\b[^.!?]*?\bbalances?\b` +
	`|^(?:my\s+)?(?:[a-z0-9]+\s+)?balances?\b` +
	`|\bhow\s+much\s+` + tokenPattern + `\s+do\s+i\s+(?:have|hold|own)\b`)

func NewExtractor(networks *registry.Table, holdings Holdings) *Extractor {
	e := &Extractor{networks: networks, holdings: holdings}
	e.rules = []rule{
		{name: "deposit", pattern: mustRule(`\b(?:deposit|supply)\s+` + amountPattern + `\s+` + tokenPattern + `\b`), build: lendBuilder(OpDeposit)},
		{name: "withdraw", pattern: mustRule(`\bwithdraw\s+` + amountPattern + `\s+` + tokenPattern + `\b`), build: lendBuilder(OpWithdraw)},
		{name: "borrow", pattern: mustRule(`\bborrow\s+` + amountPattern + `\s+` + tokenPattern + `\b`), build: lendBuilder(OpBorrow)},
		{name: "repay", pattern: mustRule(`\brepay\s+` + amountPattern + `\s+` + tokenPattern + `\b`), build: lendBuilder(OpRepay)},
		{name: "balance", pattern: balanceQuery, build: buildBalance},
		{name: "unstake", pattern: mustRule(`\bunstake\s+` + amountPattern + `(?:\s+` + tokenPattern + `)?`), build: stakeBuilder(OpUnstake)},
		{name: "stake", pattern: mustRule(`\bstake\s+` + amountPattern + `(?:\s+` + tokenPattern + `)?`), build: stakeBuilder(OpStake)},
		{name: "pool-info", pattern: mustRule(`\bpool\s+(?:info|information|details|stats)\b|\b(?:show|list|get|view)\s+(?:me\s+)?(?:all\s+)?(?:the\s+)?(?:staking\s+)?pools\b|\b(?:staking|available)\s+pools\b`), build: buildPoolInfo},
		{name: "transfer", pattern: mustRule(`\b(?:send|transfer)\s+` + amountPattern + `\s+` + tokenPattern + `(?:\s+to\s+(\S+))?`), build: buildTransfer},
		{name: "quote", pattern: mustRule(`\b(?:quote|price)\s+(?:for\s+)?(?:swapping\s+)?` + amountPattern + `\s+` + tokenPattern + `(?:\s+(?:to|for|into)\s+` + tokenPattern + `)?`), build: swapBuilder(OpQuote)},
		{name: "swap", pattern: mustRule(`\b(?:swap|exchange|convert)\s+` + amountPattern + `\s+` + tokenPattern + `(?:\s+(?:to|for|into)\s+` + tokenPattern + `)?`), build: swapBuilder(OpSwap)},
	}
	return e
}

func mustRule(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

// Extract returns the first rule match for utterance. ok is false when no
// rule matched and the caller should fall through to model planning.
func (e *Extractor) Extract(ctx context.Context, utterance string, chainID int64, userAddress string) (Extraction, bool) {
	text, chainName := splitChain(utterance)
	resolvedID := chainID
	unknownChain := ""
	if chainName != "" {
		if network, ok := e.networks.Resolve(chainName); ok {
			resolvedID = network.ChainID
		} else {
			unknownChain = chainName
		}
	}
	network, known := e.networks.Lookup(resolvedID)

	for _, r := range e.rules {
		groups := r.pattern.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		op := r.build(e, slots{groups: groups, text: text, chainID: resolvedID, network: network, known: known})
		op.ChainID = resolvedID
		switch {
		case unknownChain != "":
			op.SkipReason = fmt.Sprintf("%s is not a supported network", strings.TrimSpace(unknownChain))
		case !known:
			op.SkipReason = fmt.Sprintf("chain %d is not a supported network", resolvedID)
		}
		if r.name == "balance" && op.Token == "" && op.SkipReason == "" {
			return Extraction{
				Rule:       r.name,
				Operation:  op,
				NeedsToken: true,
				Options:    e.heldTokens(ctx, network, userAddress),
			}, true
		}
		return Extraction{Rule: r.name, Operation: op}, true
	}
	return Extraction{}, false
}

func (e *Extractor) heldTokens(ctx context.Context, network registry.Network, userAddress string) []string {
	if e.holdings != nil && strings.TrimSpace(userAddress) != "" {
		held, err := e.holdings.HeldTokens(ctx, network.ChainID, userAddress)
		if err == nil && len(held) > 0 {
			return held
		}
	}
	return network.TokenSymbols()
}

func splitChain(utterance string) (string, string) {
	text := strings.TrimSpace(utterance)
	m := chainSuffixPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return text, ""
	}
	return strings.TrimSpace(text[:m[0]]), strings.TrimSpace(text[m[2]:m[3]])
}

// canonicalToken maps a user-typed symbol onto the network's spelling.
func canonicalToken(network registry.Network, symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ""
	}
	if token, ok := network.Token(symbol); ok {
		return token.Symbol
	}
	return strings.ToUpper(symbol)
}

func tokenGroup(network registry.Network, v string) string {
	if _, stop := tokenStopwords[strings.ToLower(v)]; stop {
		return ""
	}
	return canonicalToken(network, v)
}

func lendBuilder(op Operation) func(*Extractor, slots) ParsedOperation {
	return func(_ *Extractor, s slots) ParsedOperation {
		return ParsedOperation{
			Operation: op,
			Amount:    s.groups[1],
			Token:     tokenGroup(s.network, s.groups[2]),
			PoolID:    DefaultPoolID,
		}
	}
}

func stakeBuilder(op Operation) func(*Extractor, slots) ParsedOperation {
	return func(_ *Extractor, s slots) ParsedOperation {
		token := tokenGroup(s.network, s.groups[2])
		if token == "" {
			token = s.network.NativeSymbol
		}
		return ParsedOperation{
			Operation: op,
			Amount:    s.groups[1],
			Token:     token,
			PoolID:    poolFrom(s.text),
		}
	}
}

func buildBalance(_ *Extractor, s slots) ParsedOperation {
	token := ""
	if len(s.groups) > 1 && s.groups[1] != "" {
		token = tokenGroup(s.network, s.groups[1])
	}
	if token == "" {
		token = balanceToken(s.network, s.text)
	}
	return ParsedOperation{Operation: OpBalanceOf, Token: token, PoolID: DefaultPoolID}
}

var balanceTokenPatterns = []*regexp.Regexp{
	mustRule(`\bbalances?\s+(?:of|for|in)\s+` + tokenPattern + `\b`),
	mustRule(`\b` + tokenPattern + `\s+balances?\b`),
}

func balanceToken(network registry.Network, text string) string {
	for _, p := range balanceTokenPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if token := tokenGroup(network, m[1]); token != "" {
				return token
			}
		}
	}
	return ""
}

func buildPoolInfo(_ *Extractor, _ slots) ParsedOperation {
	return ParsedOperation{Operation: OpGetPoolInformation, PoolID: DefaultPoolID}
}

func buildTransfer(_ *Extractor, s slots) ParsedOperation {
	recipient := strings.TrimRight(s.groups[3], ".,!?")
	if recipient == "" {
		recipient = "N/A"
	}
	return ParsedOperation{
		Operation: OpTransfer,
		Amount:    s.groups[1],
		Token:     tokenGroup(s.network, s.groups[2]),
		Recipient: recipient,
		PoolID:    DefaultPoolID,
	}
}

func swapBuilder(op Operation) func(*Extractor, slots) ParsedOperation {
	return func(_ *Extractor, s slots) ParsedOperation {
		from := tokenGroup(s.network, s.groups[2])
		to := tokenGroup(s.network, s.groups[3])
		if to == "" {
			to = defaultDestination(s.network, s.known, from)
		}
		return ParsedOperation{
			Operation: op,
			Amount:    s.groups[1],
			Token:     from,
			FromToken: from,
			ToToken:   to,
			PoolID:    DefaultPoolID,
		}
	}
}

// defaultDestination picks the swap target when none was named: the chain's
// stablecoin, or its native token when the source already is that stablecoin.
func defaultDestination(network registry.Network, known bool, from string) string {
	stable, native := "USDC", "ETH"
	if known {
		stable, native = network.DefaultStable, network.NativeSymbol
	}
	if strings.EqualFold(from, stable) {
		return native
	}
	return stable
}

func poolFrom(text string) int64 {
	if m := poolPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return n
		}
	}
	return DefaultPoolID
}
