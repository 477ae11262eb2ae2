package app

import (
	"context"
	"errors"
	"strings"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/execution"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/intentfi/intentfi/internal/model"
	"github.com/spf13/cobra"
)

type integrationCall func(ctx context.Context, svc integration.Service) (any, error)

// runIntegration runs one integration call under the request timeout and
// reports the integration mode as the provider.
func (s *runtimeState) runIntegration(cmd *cobra.Command, call integrationCall) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout+execution.DefaultExecuteOptions().StepTimeout)
	defer cancel()
	svc, err := s.stack().Integration()
	if err != nil {
		return err
	}
	start := time.Now()
	data, err := call(ctx, svc)
	statuses := []model.ProviderStatus{{Name: s.settings.IntegrationMode, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
	s.lastProviders = statuses
	if err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, statuses)
}

// txOutcome turns an unsuccessful write into a dispatch error so the exit
// code reflects it.
func txOutcome(res integration.TxResult, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if !res.Success {
		msg := res.Error
		if strings.TrimSpace(msg) == "" {
			msg = "transaction failed"
		}
		return nil, clierr.New(clierr.CodeDispatch, msg)
	}
	return res, nil
}

func (s *runtimeState) newChainCommand() *cobra.Command {
	root := &cobra.Command{Use: "chain", Short: "Direct lending, staking and token calls"}

	type lendFn func(context.Context, integration.LendRequest) (integration.TxResult, error)
	lendCommand := func(use, short string, pick func(integration.Service) lendFn) *cobra.Command {
		var req integration.LendRequest
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				req.ChainID = s.settings.DefaultChainID
				return s.runIntegration(cmd, func(ctx context.Context, svc integration.Service) (any, error) {
					return txOutcome(pick(svc)(ctx, req))
				})
			},
		}
		cmd.Flags().StringVar(&req.Token, "token", "", "Token symbol")
		cmd.Flags().StringVar(&req.Amount, "amount", "", "Decimal amount")
		_ = cmd.MarkFlagRequired("token")
		_ = cmd.MarkFlagRequired("amount")
		return cmd
	}
	root.AddCommand(lendCommand("deposit", "Deposit into the lending pool", func(svc integration.Service) lendFn { return svc.Deposit }))
	root.AddCommand(lendCommand("withdraw", "Withdraw from the lending pool", func(svc integration.Service) lendFn { return svc.Withdraw }))
	root.AddCommand(lendCommand("borrow", "Borrow from the lending pool", func(svc integration.Service) lendFn { return svc.Borrow }))
	root.AddCommand(lendCommand("repay", "Repay a lending pool loan", func(svc integration.Service) lendFn { return svc.Repay }))

	type stakeFn func(context.Context, integration.StakeRequest) (integration.TxResult, error)
	stakeCommand := func(use, short string, pick func(integration.Service) stakeFn) *cobra.Command {
		var req integration.StakeRequest
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				req.ChainID = s.settings.DefaultChainID
				return s.runIntegration(cmd, func(ctx context.Context, svc integration.Service) (any, error) {
					return txOutcome(pick(svc)(ctx, req))
				})
			},
		}
		cmd.Flags().Int64Var(&req.PoolID, "pool-id", 0, "Staking pool id")
		cmd.Flags().StringVar(&req.Amount, "amount", "", "Decimal amount")
		_ = cmd.MarkFlagRequired("pool-id")
		_ = cmd.MarkFlagRequired("amount")
		return cmd
	}
	root.AddCommand(stakeCommand("stake", "Stake into a staking pool", func(svc integration.Service) stakeFn { return svc.Stake }))
	root.AddCommand(stakeCommand("unstake", "Unstake from a staking pool", func(svc integration.Service) stakeFn { return svc.Unstake }))

	type poolFn func(context.Context, integration.PoolRequest) (integration.TxResult, error)
	poolCommand := func(use, short string, pick func(integration.Service) poolFn) *cobra.Command {
		var req integration.PoolRequest
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				req.ChainID = s.settings.DefaultChainID
				return s.runIntegration(cmd, func(ctx context.Context, svc integration.Service) (any, error) {
					return txOutcome(pick(svc)(ctx, req))
				})
			},
		}
		cmd.Flags().Int64Var(&req.PoolID, "pool-id", 0, "Staking pool id")
		_ = cmd.MarkFlagRequired("pool-id")
		return cmd
	}
	root.AddCommand(poolCommand("claim-rewards", "Claim staking rewards", func(svc integration.Service) poolFn { return svc.ClaimRewards }))
	root.AddCommand(poolCommand("emergency-withdraw", "Withdraw a stake without rewards", func(svc integration.Service) poolFn { return svc.EmergencyWithdraw }))

	var balance integration.BalanceRequest
	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Read a native or token balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			balance.ChainID = s.settings.DefaultChainID
			return s.runIntegration(cmd, func(ctx context.Context, svc integration.Service) (any, error) {
				return svc.TokenBalance(ctx, balance)
			})
		},
	}
	balanceCmd.Flags().StringVar(&balance.Token, "token", "", "Token symbol")
	balanceCmd.Flags().StringVar(&balance.Owner, "owner", "", "Owner address (defaults to the signing key)")
	_ = balanceCmd.MarkFlagRequired("token")
	root.AddCommand(balanceCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "List staking pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runIntegration(cmd, func(ctx context.Context, svc integration.Service) (any, error) {
				return svc.PoolInformation(ctx, s.settings.DefaultChainID)
			})
		},
	}
	root.AddCommand(poolsCmd)

	var userPool integration.UserPoolRequest
	userPoolCmd := &cobra.Command{
		Use:   "user-pool",
		Short: "Read a wallet's stake and pending rewards in a pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userPool.ChainID = s.settings.DefaultChainID
			userPool.User = s.userAddress(userPool.User)
			if userPool.User == "" {
				return clierr.New(clierr.CodeUsage, "--user is required")
			}
			return s.runIntegration(cmd, func(ctx context.Context, svc integration.Service) (any, error) {
				return svc.UserPoolInformation(ctx, userPool)
			})
		},
	}
	userPoolCmd.Flags().Int64Var(&userPool.PoolID, "pool-id", 0, "Staking pool id")
	userPoolCmd.Flags().StringVar(&userPool.User, "user", "", "Wallet address (defaults to the signing key)")
	_ = userPoolCmd.MarkFlagRequired("pool-id")
	root.AddCommand(userPoolCmd)

	var quote integration.QuoteRequest
	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a token conversion from oracle prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			quote.ChainID = s.settings.DefaultChainID
			return s.runIntegration(cmd, func(ctx context.Context, svc integration.Service) (any, error) {
				return svc.Quote(ctx, quote)
			})
		},
	}
	quoteCmd.Flags().StringVar(&quote.FromToken, "from", "", "Token to sell")
	quoteCmd.Flags().StringVar(&quote.ToToken, "to", "", "Token to buy")
	quoteCmd.Flags().StringVar(&quote.Amount, "amount", "", "Decimal amount of the sold token")
	_ = quoteCmd.MarkFlagRequired("from")
	_ = quoteCmd.MarkFlagRequired("to")
	_ = quoteCmd.MarkFlagRequired("amount")
	root.AddCommand(quoteCmd)

	return root
}

func (s *runtimeState) newNetworksCommand() *cobra.Command {
	root := &cobra.Command{Use: "networks", Short: "Supported networks"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List networks with their tokens and contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.stack().Networks().All(), nil)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Inspect the on-chain action journal"}

	var filter execution.ListFilter
	var chainID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := s.stack().Actions()
			if err != nil {
				return err
			}
			if chainID > 0 {
				filter.ChainID = execution.CAIP2(chainID)
			}
			items, err := store.List(filter)
			if err != nil {
				return clierr.Wrap(clierr.CodeStorage, "list actions", err)
			}
			if items == nil {
				items = []execution.Action{}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	list.Flags().StringVar(&filter.Status, "status", "", "Filter by status (planned|running|completed|failed)")
	list.Flags().StringVar(&filter.Operation, "operation", "", "Filter by operation, e.g. deposit or stake")
	list.Flags().Int64Var(&chainID, "chain", 0, "Filter by chain id")
	list.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum actions to return")
	root.AddCommand(list)

	show := &cobra.Command{
		Use:   "show <action-id>",
		Short: "Show one action with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.stack().Actions()
			if err != nil {
				return err
			}
			action, err := store.Get(strings.TrimSpace(args[0]))
			if errors.Is(err, execution.ErrActionNotFound) {
				return clierr.Wrap(clierr.CodeUsage, "load action", err)
			}
			if err != nil {
				return clierr.Wrap(clierr.CodeStorage, "load action", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil)
		},
	}
	root.AddCommand(show)
	return root
}
