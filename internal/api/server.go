// Package api serves the intent pipeline and the blockchain integration over
// HTTP with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Processor runs one intent through the pipeline.
type Processor interface {
	Process(ctx context.Context, in intent.Intent) (intent.Plan, error)
}

// History stores and fetches processed intents synchronously.
type History interface {
	Record(ctx context.Context, req intent.RecordRequest) (string, error)
	Fetch(ctx context.Context, userAddress string, limit int) ([]intent.StoredIntent, error)
}

// StorageHealth reports whether intent storage fell back to memory.
type StorageHealth interface {
	Degraded() bool
}

type Deps struct {
	Processor   Processor
	History     History
	Integration integration.Service
	Storage     StorageHealth
}

type Options struct {
	CORSOrigins []string
	// DevMode includes internal error details in 500 responses.
	DevMode bool
	// HistoryLimit caps /api/intent/history results; zero uses the store default.
	HistoryLimit int
}

type Server struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	engine *gin.Engine
}

func New(deps Deps, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware(opts.CORSOrigins), requestMetrics(), requestLog(logger))

	s := &Server{deps: deps, opts: opts, logger: logger, engine: engine}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/ready", s.ready)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	intents := s.engine.Group("/api/intent")
	{
		intents.POST("/process", s.processIntent)
		intents.POST("/submit", s.submitIntent)
		intents.GET("/history", s.intentHistory)
		intents.POST("/store", s.storeIntent)
	}

	chain := s.engine.Group("/api/blockchain")
	{
		chain.POST("/deposit", s.lend(integration.Service.Deposit))
		chain.POST("/withdraw", s.lend(integration.Service.Withdraw))
		chain.POST("/borrow", s.lend(integration.Service.Borrow))
		chain.POST("/repay", s.lend(integration.Service.Repay))
		chain.POST("/stake", s.stake(integration.Service.Stake))
		chain.POST("/unstake", s.stake(integration.Service.Unstake))
		chain.POST("/claim-rewards", s.pool(integration.Service.ClaimRewards))
		chain.POST("/emergency-withdraw", s.pool(integration.Service.EmergencyWithdraw))
		chain.POST("/getpools", s.getPools)
		chain.POST("/getUserPoolInfo", s.getUserPoolInfo)
		chain.POST("/create-pool", s.createPool)
		chain.POST("/list-token", s.tokenPrice(integration.Service.ListToken))
		chain.POST("/set-tokenprice", s.tokenPrice(integration.Service.SetTokenPrice))
		chain.POST("/balance", s.balance)
		chain.POST("/quote", s.quote)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) ready(c *gin.Context) {
	degraded := s.deps.Storage != nil && s.deps.Storage.Degraded()
	status := "ready"
	if degraded {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "storageDegraded": degraded})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		if len(origins) == 0 {
			cfg.AllowAllOrigins = true
		} else {
			cfg.AllowOrigins = origins
		}
	}
	return cors.New(cfg)
}
