// Package wallet signs and submits client-side transfers through a wallet
// capability, resolving recipients and checking balances first.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	clierr "github.com/intentfi/intentfi/internal/errors"
)

// Provider is the single wallet capability every component talks to: an
// EIP-1193 style request function.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// RPCProvider forwards requests to a JSON-RPC endpoint. Signing methods only
// work when the endpoint manages the account.
type RPCProvider struct {
	client *rpc.Client
}

func DialRPC(ctx context.Context, url string) (*RPCProvider, error) {
	if strings.TrimSpace(url) == "" {
		return nil, clierr.New(clierr.CodeUsage, "wallet rpc url is required")
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect wallet rpc", err)
	}
	return &RPCProvider{client: client}, nil
}

func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

func (p *RPCProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := p.client.CallContext(ctx, &out, method, params...); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *RPCProvider) Close() {
	if p != nil && p.client != nil {
		p.client.Close()
	}
}

// ErrorCode extracts an EIP-1193 / JSON-RPC error code, if err carries one.
func ErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}
