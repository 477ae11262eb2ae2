package intent

import (
	"context"
	"sync"

	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/wallet"
)

type fakeIntegration struct {
	mu       sync.Mutex
	calls    []string
	result   integration.TxResult
	err      error
	balance  string
	pools    []integration.PoolInfo
	lastLend integration.LendRequest
}

func (f *fakeIntegration) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeIntegration) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeIntegration) lend(name string, req integration.LendRequest) (integration.TxResult, error) {
	f.record(name)
	f.mu.Lock()
	f.lastLend = req
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeIntegration) Deposit(_ context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return f.lend("deposit", req)
}

func (f *fakeIntegration) Withdraw(_ context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return f.lend("withdraw", req)
}

func (f *fakeIntegration) Borrow(_ context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return f.lend("borrow", req)
}

func (f *fakeIntegration) Repay(_ context.Context, req integration.LendRequest) (integration.TxResult, error) {
	return f.lend("repay", req)
}

func (f *fakeIntegration) Stake(context.Context, integration.StakeRequest) (integration.TxResult, error) {
	f.record("stake")
	return f.result, f.err
}

func (f *fakeIntegration) Unstake(context.Context, integration.StakeRequest) (integration.TxResult, error) {
	f.record("unstake")
	return f.result, f.err
}

func (f *fakeIntegration) TokenBalance(_ context.Context, req integration.BalanceRequest) (integration.Balance, error) {
	f.record("balance")
	return integration.Balance{ChainID: req.ChainID, Token: req.Token, Owner: req.Owner, Balance: f.balance}, f.err
}

func (f *fakeIntegration) PoolInformation(context.Context, int64) ([]integration.PoolInfo, error) {
	f.record("pools")
	return f.pools, f.err
}

func (f *fakeIntegration) Quote(_ context.Context, req integration.QuoteRequest) (integration.Quote, error) {
	f.record("quote")
	return integration.Quote{ChainID: req.ChainID, FromToken: req.FromToken, ToToken: req.ToToken, AmountIn: req.Amount, AmountOut: "2.5"}, f.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []RecordRequest
}

func (f *fakeRecorder) RecordAsync(req RecordRequest) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
}

func (f *fakeRecorder) recorded() []RecordRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordRequest(nil), f.requests...)
}

type fakePlanner struct {
	proposal Proposal
	err      error
	calls    int
}

func (f *fakePlanner) GeneratePlan(context.Context, string, int64) (Proposal, error) {
	f.calls++
	return f.proposal, f.err
}

type fakeHoldings []string

func (f fakeHoldings) HeldTokens(context.Context, int64, string) ([]string, error) {
	return f, nil
}

type fakeWallet struct {
	result wallet.Result
	err    error
	got    []wallet.Transfer
}

func (f *fakeWallet) Transfer(_ context.Context, t wallet.Transfer, onSubmitted func(string)) (wallet.Result, error) {
	f.got = append(f.got, t)
	if f.result.Hash != "" && onSubmitted != nil {
		onSubmitted(f.result.Hash)
	}
	return f.result, f.err
}

// mutableSession lets tests switch network or disconnect between calls.
type mutableSession struct {
	mu      sync.Mutex
	chainID int64
	address string
}

func (s *mutableSession) ChainID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainID
}

func (s *mutableSession) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

func (s *mutableSession) set(chainID int64, address string) {
	s.mu.Lock()
	s.chainID, s.address = chainID, address
	s.mu.Unlock()
}
