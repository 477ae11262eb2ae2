// Package integration defines the blockchain-integration contract: lending
// pool, staking pool and token reads/writes keyed by chain id. Writes return a
// TxResult; an error means the call could not be attempted at all.
package integration

import "context"

type LendRequest struct {
	ChainID int64  `json:"chainId"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

type StakeRequest struct {
	ChainID int64  `json:"chainId"`
	PoolID  int64  `json:"poolId"`
	Amount  string `json:"amount"`
}

type PoolRequest struct {
	ChainID int64 `json:"chainId"`
	PoolID  int64 `json:"poolId"`
}

type BalanceRequest struct {
	ChainID int64  `json:"chainId"`
	Token   string `json:"token"`
	// Owner defaults to the service's own signing address when empty.
	Owner string `json:"owner,omitempty"`
}

type UserPoolRequest struct {
	ChainID int64  `json:"chainId"`
	PoolID  int64  `json:"poolId"`
	User    string `json:"userAddress"`
}

type QuoteRequest struct {
	ChainID   int64  `json:"chainId"`
	FromToken string `json:"fromToken"`
	ToToken   string `json:"toToken"`
	Amount    string `json:"amount"`
}

type CreatePoolRequest struct {
	ChainID      int64  `json:"chainId"`
	StakingToken string `json:"stakingToken"`
	RewardToken  string `json:"rewardToken"`
	RewardRate   string `json:"rewardRate"`
}

type TokenPriceRequest struct {
	ChainID int64  `json:"chainId"`
	Token   string `json:"token"`
	Price   string `json:"price"`
}

type TxResult struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Failed builds an unsuccessful TxResult.
func Failed(msg string) TxResult {
	return TxResult{Success: false, Error: msg}
}

type Balance struct {
	ChainID  int64  `json:"chainId"`
	Token    string `json:"token"`
	Owner    string `json:"owner"`
	Balance  string `json:"balance"`
	Raw      string `json:"raw"`
	Decimals int    `json:"decimals"`
}

type PoolInfo struct {
	PoolID       int64  `json:"poolId"`
	StakingToken string `json:"stakingToken"`
	RewardToken  string `json:"rewardToken"`
	RewardRate   string `json:"rewardRate"`
	TotalStaked  string `json:"totalStaked"`
	Active       bool   `json:"active"`
}

type UserPoolInfo struct {
	PoolID         int64  `json:"poolId"`
	User           string `json:"userAddress"`
	Staked         string `json:"staked"`
	PendingRewards string `json:"pendingRewards"`
}

type Quote struct {
	ChainID   int64  `json:"chainId"`
	FromToken string `json:"fromToken"`
	ToToken   string `json:"toToken"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
}

// Service is the full integration surface served under /api/blockchain.
type Service interface {
	Deposit(ctx context.Context, req LendRequest) (TxResult, error)
	Withdraw(ctx context.Context, req LendRequest) (TxResult, error)
	Borrow(ctx context.Context, req LendRequest) (TxResult, error)
	Repay(ctx context.Context, req LendRequest) (TxResult, error)
	Stake(ctx context.Context, req StakeRequest) (TxResult, error)
	Unstake(ctx context.Context, req StakeRequest) (TxResult, error)
	ClaimRewards(ctx context.Context, req PoolRequest) (TxResult, error)
	EmergencyWithdraw(ctx context.Context, req PoolRequest) (TxResult, error)
	TokenBalance(ctx context.Context, req BalanceRequest) (Balance, error)
	PoolInformation(ctx context.Context, chainID int64) ([]PoolInfo, error)
	UserPoolInformation(ctx context.Context, req UserPoolRequest) (UserPoolInfo, error)
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	CreatePool(ctx context.Context, req CreatePoolRequest) (TxResult, error)
	ListToken(ctx context.Context, req TokenPriceRequest) (TxResult, error)
	SetTokenPrice(ctx context.Context, req TokenPriceRequest) (TxResult, error)
}
