// Package remote serves the integration contract by forwarding every call
// to another service that exposes the /api/blockchain routes.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/httpx"
	"github.com/intentfi/intentfi/internal/integration"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	reads   *httpx.Client
	writes  *httpx.Client
	logger  *zap.Logger
}

var _ integration.Service = (*Client)(nil)

// New builds a client for baseURL. Reads are retried; writes never are, so
// a transaction is not submitted twice. token, when set, is sent as a bearer
// credential.
func New(baseURL, token string, timeout time.Duration, retries int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []httpx.Option{httpx.WithBearerToken(token), httpx.WithLogger(logger)}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		reads:   httpx.New(timeout, retries, opts...),
		writes:  httpx.New(timeout, 0, opts...),
		logger:  logger,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (e envelope) reason() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// rejectedError marks an answer with success=false: the remote side ran the
// call and it failed.
type rejectedError struct {
	message string
}

func (e *rejectedError) Error() string { return e.message }

func (c *Client) Deposit(ctx context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return c.write(ctx, "deposit", req)
}

func (c *Client) Withdraw(ctx context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return c.write(ctx, "withdraw", req)
}

func (c *Client) Borrow(ctx context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return c.write(ctx, "borrow", req)
}

func (c *Client) Repay(ctx context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return c.write(ctx, "repay", req)
}

func (c *Client) Stake(ctx context.Context, req integration.StakeRequest) (integration.TxResult, error) {
	return c.write(ctx, "stake", req)
}

func (c *Client) Unstake(ctx context.Context, req integration.StakeRequest) (integration.TxResult, error) {
	return c.write(ctx, "unstake", req)
}

func (c *Client) ClaimRewards(ctx context.Context, req integration.PoolRequest) (integration.TxResult, error) {
	return c.write(ctx, "claim-rewards", req)
}

func (c *Client) EmergencyWithdraw(ctx context.Context, req integration.PoolRequest) (integration.TxResult, error) {
	return c.write(ctx, "emergency-withdraw", req)
}

func (c *Client) CreatePool(ctx context.Context, req integration.CreatePoolRequest) (integration.TxResult, error) {
	return c.write(ctx, "create-pool", req)
}

func (c *Client) ListToken(ctx context.Context, req integration.TokenPriceRequest) (integration.TxResult, error) {
	return c.write(ctx, "list-token", req)
}

func (c *Client) SetTokenPrice(ctx context.Context, req integration.TokenPriceRequest) (integration.TxResult, error) {
	return c.write(ctx, "set-tokenprice", req)
}

func (c *Client) TokenBalance(ctx context.Context, req integration.BalanceRequest) (integration.Balance, error) {
	var out integration.Balance
	err := c.post(ctx, c.reads, "balance", req, &out)
	return out, err
}

func (c *Client) PoolInformation(ctx context.Context, chainID int64) ([]integration.PoolInfo, error) {
	var out []integration.PoolInfo
	err := c.post(ctx, c.reads, "getpools", map[string]int64{"chainId": chainID}, &out)
	return out, err
}

func (c *Client) UserPoolInformation(ctx context.Context, req integration.UserPoolRequest) (integration.UserPoolInfo, error) {
	var out integration.UserPoolInfo
	err := c.post(ctx, c.reads, "getUserPoolInfo", req, &out)
	return out, err
}

func (c *Client) Quote(ctx context.Context, req integration.QuoteRequest) (integration.Quote, error) {
	var out integration.Quote
	err := c.post(ctx, c.reads, "quote", req, &out)
	return out, err
}

func (c *Client) write(ctx context.Context, route string, req any) (integration.TxResult, error) {
	var out integration.TxResult
	err := c.post(ctx, c.writes, route, req, &out)
	var rejected *rejectedError
	if errors.As(err, &rejected) {
		return integration.Failed(rejected.message), nil
	}
	if err != nil {
		return integration.TxResult{}, err
	}
	if out.Error == "" {
		// The envelope already reported success; data may carry only the hash.
		out.Success = true
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, client *httpx.Client, route string, body any, out any) error {
	var env envelope
	err := client.PostJSON(ctx, c.baseURL+"/api/blockchain/"+route, body, &env)
	if err != nil {
		var statusErr *httpx.StatusError
		if !errors.As(err, &statusErr) || json.Unmarshal(statusErr.Body, &env) != nil || env.reason() == "" {
			c.logger.Warn("integration request failed", zap.String("route", route), zap.Error(err))
			return err
		}
		switch {
		case clierr.HasCode(err, clierr.CodeUnsupported):
			return clierr.New(clierr.CodeUsage, env.reason())
		case clierr.HasCode(err, clierr.CodeUnavailable):
			return clierr.Wrap(clierr.CodeDispatch, env.reason(), &rejectedError{message: env.reason()})
		default:
			return err
		}
	}
	if !env.Success {
		msg := env.reason()
		if msg == "" {
			msg = route + " failed"
		}
		return clierr.Wrap(clierr.CodeDispatch, msg, &rejectedError{message: msg})
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "decode "+route+" response", err)
	}
	return nil
}
