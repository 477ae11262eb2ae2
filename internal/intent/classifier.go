package intent

import (
	"slices"
	"strings"
	"unicode"
)

type Classification int

const (
	InDomain Classification = iota
	Greeting
	OffTopic
)

func (c Classification) String() string {
	switch c {
	case Greeting:
		return "greeting"
	case OffTopic:
		return "off_topic"
	default:
		return "in_domain"
	}
}

const (
	WelcomeMessage = "Hi! I'm the IntentFI assistant. Tell me what you want to do on-chain and I'll plan and run it for you."
	RefusalMessage = "I can only help with DeFi actions like deposits, withdrawals, borrowing, staking, swaps and balance checks. Try something like \"Deposit 10 USDC on Celo\"."
)

// WelcomeSuggestions are offered alongside the greeting reply.
var WelcomeSuggestions = []string{
	"Deposit 10 USDC on Celo",
	"Stake 5 CELO in pool 4",
	"Check my USDC balance",
	"Show pool information",
}

var greetings = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "hiya": {}, "howdy": {}, "yo": {}, "sup": {}, "gm": {},
	"greetings": {}, "hi there": {}, "hello there": {}, "hey there": {},
	"good morning": {}, "good afternoon": {}, "good evening": {},
	"whats up": {}, "what's up": {},
}

var interrogatives = []string{"who is", "what is", "when did", "where is"}

var financialKeywords = map[string]struct{}{
	"deposit": {}, "withdraw": {}, "borrow": {}, "repay": {}, "lend": {}, "loan": {}, "supply": {},
	"stake": {}, "unstake": {}, "staking": {}, "reward": {}, "claim": {}, "pool": {},
	"swap": {}, "exchange": {}, "quote": {}, "price": {}, "bridge": {}, "transfer": {}, "send": {},
	"balance": {}, "wallet": {}, "token": {}, "portfolio": {}, "diversify": {}, "rebalance": {},
	"yield": {}, "apy": {}, "apr": {}, "earn": {}, "interest": {}, "liquidity": {}, "invest": {},
	"defi": {}, "crypto": {}, "gas": {}, "fee": {}, "chain": {}, "rsi": {},
	"celo": {}, "cusd": {}, "usdc": {}, "usdt": {}, "eth": {}, "ethereum": {}, "weth": {},
	"btc": {}, "bitcoin": {}, "avax": {}, "arbitrum": {}, "base": {}, "sepolia": {},
}

// Classify decides whether an utterance should enter the pipeline. It is
// pure and has no side effects.
func Classify(utterance string) Classification {
	norm := normalizeUtterance(utterance)
	if _, ok := greetings[norm]; ok {
		return Greeting
	}
	lower := strings.ToLower(utterance)
	question := strings.Contains(lower, "?")
	for _, p := range interrogatives {
		if strings.Contains(lower, p) {
			question = true
			break
		}
	}
	if question && !HasFinancialKeyword(utterance) {
		return OffTopic
	}
	return InDomain
}

// HasFinancialKeyword reports whether any word of the utterance is a known
// financial keyword or an inflection of one ("deposited", "staking",
// "swapping"). Longer words that merely start with a keyword, such as
// "baseball" or "earnest", do not count.
func HasFinancialKeyword(utterance string) bool {
	for _, word := range words(utterance) {
		if _, ok := financialKeywords[word]; ok {
			return true
		}
		for kw := range financialKeywords {
			if len(kw) >= 4 && inflectionOf(word, kw) {
				return true
			}
		}
	}
	return false
}

var inflections = []string{"s", "es", "ed", "d", "ing", "er", "ers", "ings"}

// inflectionOf reports whether word is kw plus a regular English suffix,
// allowing a dropped final "e" (stake, staking) or a doubled final consonant
// (swap, swapping).
func inflectionOf(word, kw string) bool {
	stems := []string{kw, kw + kw[len(kw)-1:]}
	if strings.HasSuffix(kw, "e") {
		stems = append(stems, kw[:len(kw)-1])
	}
	for _, stem := range stems {
		rest, ok := strings.CutPrefix(word, stem)
		if !ok || rest == "" {
			continue
		}
		if slices.Contains(inflections, rest) {
			return true
		}
	}
	return false
}

func normalizeUtterance(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimFunc(v, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) })
	return strings.Join(strings.Fields(v), " ")
}

func words(v string) []string {
	return strings.FieldsFunc(strings.ToLower(v), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalizeName(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(v)
}
