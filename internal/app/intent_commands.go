package app

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intentfi/intentfi/internal/api"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/model"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

const intentTimeout = 3 * time.Minute

func (s *runtimeState) newServeCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the intent and blockchain HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d := s.stack()
			pipeline, err := d.Pipeline(ctx)
			if err != nil {
				return err
			}
			svc, err := d.Integration()
			if err != nil {
				return err
			}
			refresher, err := d.Balances()
			if err != nil {
				return err
			}
			intents, recorder := d.History()

			addr := s.settings.ListenAddr
			if strings.TrimSpace(listen) != "" {
				addr = listen
			}
			if !s.settings.DevMode {
				gin.SetMode(gin.ReleaseMode)
			}
			server := api.New(api.Deps{
				Processor:   pipeline,
				History:     recorder,
				Integration: svc,
				Storage:     intents,
			}, api.Options{
				CORSOrigins: s.settings.CORSOrigins,
				DevMode:     s.settings.DevMode,
			}, s.logger)

			s.logger.Info("starting api",
				zap.String("addr", addr),
				zap.String("integration", s.settings.IntegrationMode),
				zap.Strings("planners", d.Planner(ctx).Providers()))
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return refresher.Run(gctx) })
			g.Go(func() error { return server.Run(gctx, addr) })
			if err := g.Wait(); err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "serve http api", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides server.listen)")
	return cmd
}

func (s *runtimeState) newIntentCommand() *cobra.Command {
	root := &cobra.Command{Use: "intent", Short: "Process and review intents"}

	var processUser string
	processCmd := &cobra.Command{
		Use:   "process <text>",
		Short: "Turn a natural-language intent into an executed plan",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), intentTimeout)
			defer cancel()
			d := s.stack()
			pipeline, err := d.Pipeline(ctx)
			if err != nil {
				return err
			}
			user := s.userAddress(processUser)
			start := time.Now()
			plan, err := pipeline.Process(ctx, intent.Intent{
				RawText:     strings.Join(args, " "),
				ChainID:     s.settings.DefaultChainID,
				UserAddress: user,
			})
			source := plan.Source
			if source == "" {
				source = "pipeline"
			}
			statuses := []model.ProviderStatus{{Name: source, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
			s.lastProviders = statuses
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plan, statuses)
		},
	}
	processCmd.Flags().StringVar(&processUser, "user", "", "Wallet address the intent acts for (defaults to the signing key)")
	root.AddCommand(processCmd)

	var historyUser string
	var historyLimit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List stored intents for a wallet, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user := s.userAddress(historyUser)
			if user == "" {
				return clierr.New(clierr.CodeUsage, "--user is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			_, recorder := s.stack().History()
			records, err := recorder.Fetch(ctx, user, historyLimit)
			if err != nil {
				return err
			}
			if records == nil {
				records = []intent.StoredIntent{}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), records, nil)
		},
	}
	historyCmd.Flags().StringVar(&historyUser, "user", "", "Wallet address (defaults to the signing key)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum records to return (0 uses the store default)")
	root.AddCommand(historyCmd)

	return root
}

// userAddress falls back to the local signing key's address when no explicit
// address was given.
func (s *runtimeState) userAddress(explicit string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	if local, err := s.stack().Signer(); err == nil {
		return local.Address().Hex()
	}
	return ""
}
