package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/id"
	"github.com/intentfi/intentfi/internal/metrics"
	"github.com/intentfi/intentfi/internal/registry"
	"go.uber.org/zap"
)

const (
	ConfirmationTimeout = 60 * time.Second
	NonceRetryDelay     = 2 * time.Second
	MaxNonceRetries     = 2
	NativeGasLimit      = 100_000
	TokenGasLimit       = 150_000
	// NativeGasMargin is kept on top of a native transfer amount for gas.
	NativeGasMargin = "0.005"

	userRejectedCode = 4001
)

var (
	ErrMissingRecipient    = errors.New("missing recipient")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrUnresolvableName    = errors.New("unresolvable name")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrNonceConflict       = errors.New("nonce conflict")
	ErrRejected            = errors.New("rejected by user")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrReverted            = errors.New("transaction reverted")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrWrongNetwork        = errors.New("wallet on wrong network")
	ErrUnsupportedToken    = errors.New("unsupported token")
	ErrInvalidAmount       = errors.New("invalid amount")
)

type State string

const (
	StateIdle             State = "idle"
	StateAddressResolving State = "address_resolving"
	StateBalanceChecking  State = "balance_checking"
	StateSigning          State = "signing"
	StateSubmitted        State = "submitted"
	StateConfirmed        State = "confirmed"
	StateFailed           State = "failed"
)

// Transfer is a native or ERC-20 transfer to sign with the wallet.
type Transfer struct {
	ChainID   int64
	Token     string
	Amount    string
	Recipient string
	// From is the sending account. When empty, the first eth_accounts entry
	// is used.
	From string
}

type Result struct {
	State     State  `json:"state"`
	Hash      string `json:"hash,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Attempts  int    `json:"attempts"`

	// ConfirmTimeout is how long the executor waited for a receipt.
	ConfirmTimeout time.Duration `json:"-"`
}

type Executor struct {
	provider       Provider
	networks       *registry.Table
	resolver       NameResolver
	logger         *zap.Logger
	sleep          func(ctx context.Context, d time.Duration) error
	confirmTimeout time.Duration
	pollInterval   time.Duration
	onState        func(State)
}

type Option func(*Executor)

// WithSleep replaces the back-off between nonce retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

func WithConfirmTimeout(d time.Duration) Option {
	return func(e *Executor) { e.confirmTimeout = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) { e.pollInterval = d }
}

// WithStateObserver reports every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(e *Executor) { e.onState = fn }
}

func NewExecutor(provider Provider, networks *registry.Table, resolver NameResolver, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		provider:       provider,
		networks:       networks,
		resolver:       resolver,
		logger:         logger,
		sleep:          sleepContext,
		confirmTimeout: ConfirmationTimeout,
		pollInterval:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer runs one transfer through resolution, balance checks, signing and
// confirmation. onSubmitted receives the provisional hash as soon as the
// wallet returns it. On ErrConfirmationTimeout the result still carries that
// hash: the transaction may confirm later.
func (e *Executor) Transfer(ctx context.Context, t Transfer, onSubmitted func(hash string)) (Result, error) {
	res := Result{State: StateIdle}
	e.transition(&res, StateAddressResolving)
	recipient, err := e.resolveRecipient(ctx, t.Recipient)
	if err != nil {
		return e.fail(&res, err)
	}
	res.Recipient = recipient.Hex()

	network, ok := e.networks.Lookup(t.ChainID)
	if !ok {
		return e.fail(&res, walletError(ErrWrongNetwork, fmt.Sprintf("chain %d is not a supported network", t.ChainID), nil))
	}
	from, err := e.sender(ctx, t.From)
	if err != nil {
		return e.fail(&res, err)
	}

	e.transition(&res, StateBalanceChecking)
	args, err := e.buildArgs(ctx, network, t, from, recipient)
	if err != nil {
		return e.fail(&res, err)
	}

	e.transition(&res, StateSigning)
	hash, err := e.submit(ctx, &res, args)
	if err != nil {
		return e.fail(&res, err)
	}
	res.Hash = hash
	e.transition(&res, StateSubmitted)
	if onSubmitted != nil {
		onSubmitted(hash)
	}

	res.ConfirmTimeout = e.confirmTimeout
	if err := e.waitForReceipt(ctx, hash); err != nil {
		return e.fail(&res, err)
	}
	e.transition(&res, StateConfirmed)
	metrics.TransfersTotal.WithLabelValues(string(StateConfirmed), "").Inc()
	e.logger.Info("transfer confirmed",
		zap.Int64("chain_id", t.ChainID),
		zap.String("token", t.Token),
		zap.String("tx_hash", hash),
		zap.Int("attempts", res.Attempts))
	return res, nil
}

func (e *Executor) resolveRecipient(ctx context.Context, raw string) (common.Address, error) {
	recipient := strings.TrimSpace(raw)
	if recipient == "" || strings.EqualFold(recipient, "N/A") {
		return common.Address{}, walletError(ErrMissingRecipient, "a recipient address or name is required", nil)
	}
	if strings.HasPrefix(strings.ToLower(recipient), "0x") {
		addr, err := id.ParseAddress(recipient)
		if err != nil {
			return common.Address{}, walletError(ErrInvalidAddress, "recipient "+recipient+" is not a valid address", err)
		}
		return addr, nil
	}
	if !id.LooksLikeName(recipient) {
		return common.Address{}, walletError(ErrInvalidAddress, "recipient "+recipient+" is neither an address nor a name", nil)
	}
	if e.resolver == nil {
		return common.Address{}, walletError(ErrUnresolvableName, "name resolution is not configured", nil)
	}
	addr, err := e.resolver.Resolve(ctx, recipient)
	if err != nil {
		return common.Address{}, walletError(ErrUnresolvableName, "could not resolve "+recipient, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, walletError(ErrUnresolvableName, recipient+" has no address record", nil)
	}
	return addr, nil
}

func (e *Executor) sender(ctx context.Context, from string) (common.Address, error) {
	if strings.TrimSpace(from) != "" {
		addr, err := id.ParseAddress(from)
		if err != nil {
			return common.Address{}, walletError(ErrInvalidAddress, "sender "+from+" is not a valid address", err)
		}
		return addr, nil
	}
	var accounts []string
	if err := e.call(ctx, &accounts, "eth_accounts"); err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 || !common.IsHexAddress(accounts[0]) {
		return common.Address{}, walletError(ErrNotConnected, "no wallet account is connected", nil)
	}
	return common.HexToAddress(accounts[0]), nil
}

func (e *Executor) buildArgs(ctx context.Context, network registry.Network, t Transfer, from, recipient common.Address) (TxArgs, error) {
	var gasPrice hexutil.Big
	if err := e.call(ctx, &gasPrice, "eth_gasPrice"); err != nil {
		return TxArgs{}, err
	}
	var nativeBalance hexutil.Big
	if err := e.call(ctx, &nativeBalance, "eth_getBalance", from.Hex(), "latest"); err != nil {
		return TxArgs{}, err
	}
	decimals := network.NativeDecimals
	if decimals == 0 {
		decimals = 18
	}

	if network.IsNative(t.Token) {
		amount, err := parseAmount(t.Amount, decimals)
		if err != nil {
			return TxArgs{}, err
		}
		margin, _ := id.ToBaseUnits(NativeGasMargin, decimals)
		need := new(big.Int).Add(amount, margin)
		if nativeBalance.ToInt().Cmp(need) < 0 {
			return TxArgs{}, walletError(ErrInsufficientFunds, fmt.Sprintf("balance %s %s is below %s plus %s for gas",
				id.FormatBaseUnits(nativeBalance.ToInt(), decimals), network.NativeSymbol, t.Amount, NativeGasMargin), nil)
		}
		return TxArgs{
			From:  from.Hex(),
			To:    recipient.Hex(),
			Value: hexutil.EncodeBig(amount),
			Gas:   hexutil.EncodeUint64(NativeGasLimit),
		}, nil
	}

	token, ok := network.Token(t.Token)
	if !ok || !common.IsHexAddress(token.Address) {
		return TxArgs{}, walletError(ErrUnsupportedToken, fmt.Sprintf("%s is not listed on %s", t.Token, network.Name), nil)
	}
	amount, err := parseAmount(t.Amount, token.Decimals)
	if err != nil {
		return TxArgs{}, err
	}
	tokenAddr := common.HexToAddress(token.Address)
	balanceData, err := erc20ABI.Pack("balanceOf", from)
	if err != nil {
		return TxArgs{}, clierr.Wrap(clierr.CodeInternal, "pack balanceOf", err)
	}
	out, err := ethCall(ctx, e.provider, tokenAddr, balanceData)
	if err != nil {
		return TxArgs{}, classifyRequestError("read token balance", err)
	}
	tokenBalance := new(big.Int).SetBytes(out)
	if tokenBalance.Cmp(amount) < 0 {
		return TxArgs{}, walletError(ErrInsufficientFunds, fmt.Sprintf("%s balance %s is below %s",
			token.Symbol, id.FormatBaseUnits(tokenBalance, token.Decimals), t.Amount), nil)
	}
	gasCost := new(big.Int).Mul(gasPrice.ToInt(), big.NewInt(TokenGasLimit))
	if nativeBalance.ToInt().Cmp(gasCost) < 0 {
		return TxArgs{}, walletError(ErrInsufficientFunds, fmt.Sprintf("%s balance is too low to pay gas for a token transfer", network.NativeSymbol), nil)
	}
	data, err := erc20ABI.Pack("transfer", recipient, amount)
	if err != nil {
		return TxArgs{}, clierr.Wrap(clierr.CodeInternal, "pack transfer", err)
	}
	return TxArgs{
		From:  from.Hex(),
		To:    tokenAddr.Hex(),
		Value: "0x0",
		Data:  hexutil.Encode(data),
		Gas:   hexutil.EncodeUint64(TokenGasLimit),
	}, nil
}

// submit sends the transaction, retrying nonce conflicts with a fresh copy of
// the arguments each time.
func (e *Executor) submit(ctx context.Context, res *Result, args TxArgs) (string, error) {
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1
		tx := args
		var hash string
		err := e.call(ctx, &hash, "eth_sendTransaction", tx)
		if err == nil {
			return hash, nil
		}
		if errors.Is(err, ErrRejected) {
			return "", err
		}
		if !isNonceError(err) {
			return "", err
		}
		if attempt >= MaxNonceRetries {
			return "", walletError(ErrNonceConflict, fmt.Sprintf("nonce conflict persisted after %d attempts", attempt+1), err)
		}
		metrics.NonceRetries.Inc()
		e.logger.Warn("nonce conflict, retrying transfer", zap.Int("attempt", attempt+1), zap.Error(err))
		if err := e.sleep(ctx, NonceRetryDelay); err != nil {
			return "", clierr.Wrap(clierr.CodeWallet, "transfer cancelled", err)
		}
	}
}

type receipt struct {
	Status string `json:"status"`
}

func (e *Executor) waitForReceipt(ctx context.Context, hash string) error {
	waitCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		raw, err := e.provider.Request(waitCtx, "eth_getTransactionReceipt", hash)
		if err == nil && len(raw) > 0 && string(raw) != "null" {
			var rcpt receipt
			if err := json.Unmarshal(raw, &rcpt); err != nil {
				return clierr.Wrap(clierr.CodeWallet, "decode receipt", err)
			}
			if rcpt.Status == "0x1" {
				return nil
			}
			return walletError(ErrReverted, "transaction "+hash+" reverted", nil)
		}
		if err != nil && waitCtx.Err() == nil {
			e.logger.Debug("receipt poll failed", zap.String("tx_hash", hash), zap.Error(err))
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return clierr.Wrap(clierr.CodeWallet, "transfer cancelled", ctx.Err())
			}
			return walletError(ErrConfirmationTimeout, fmt.Sprintf("transaction %s not confirmed within %s", hash, e.confirmTimeout), nil)
		case <-ticker.C:
		}
	}
}

func (e *Executor) call(ctx context.Context, out any, method string, params ...any) error {
	raw, err := e.provider.Request(ctx, method, params...)
	if err != nil {
		return classifyRequestError(method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return clierr.Wrap(clierr.CodeWallet, "decode "+method+" response", err)
	}
	return nil
}

func (e *Executor) transition(res *Result, state State) {
	res.State = state
	if e.onState != nil {
		e.onState(state)
	}
}

func (e *Executor) fail(res *Result, err error) (Result, error) {
	e.transition(res, StateFailed)
	metrics.TransfersTotal.WithLabelValues(string(StateFailed), reason(err)).Inc()
	e.logger.Warn("transfer failed", zap.String("reason", reason(err)), zap.Error(err))
	return *res, err
}

func classifyRequestError(method string, err error) error {
	if code, ok := ErrorCode(err); ok && code == userRejectedCode {
		return walletError(ErrRejected, "request rejected in wallet", err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "user rejected") || strings.Contains(strings.ToLower(err.Error()), "user denied") {
		return walletError(ErrRejected, "request rejected in wallet", err)
	}
	return clierr.Wrap(clierr.CodeWallet, method+" failed", err)
}

func isNonceError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce") ||
		strings.Contains(msg, "already mined") ||
		strings.Contains(msg, "replacement transaction underpriced")
}

func parseAmount(v string, decimals int) (*big.Int, error) {
	amount, err := id.ToBaseUnits(v, decimals)
	if err != nil || amount.Sign() <= 0 {
		return nil, walletError(ErrInvalidAmount, "amount "+v+" must be a positive decimal", err)
	}
	return amount, nil
}

func walletError(kind error, message string, cause error) error {
	if cause != nil {
		return clierr.Wrap(clierr.CodeWallet, message, fmt.Errorf("%w: %v", kind, cause))
	}
	return clierr.Wrap(clierr.CodeWallet, message, kind)
}

func reason(err error) string {
	for _, kind := range []error{
		ErrMissingRecipient, ErrInvalidAddress, ErrUnresolvableName, ErrInsufficientFunds,
		ErrNonceConflict, ErrRejected, ErrConfirmationTimeout, ErrReverted,
		ErrNotConnected, ErrWrongNetwork, ErrUnsupportedToken, ErrInvalidAmount,
	} {
		if errors.Is(err, kind) {
			return strings.ReplaceAll(kind.Error(), " ", "_")
		}
	}
	return "other"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var erc20ABI = mustABI(registry.ERC20ABI)
