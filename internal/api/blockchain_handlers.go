package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/integration"
	"go.uber.org/zap"
)

type (
	lendFunc  func(integration.Service, context.Context, integration.LendRequest) (integration.TxResult, error)
	stakeFunc func(integration.Service, context.Context, integration.StakeRequest) (integration.TxResult, error)
	poolFunc  func(integration.Service, context.Context, integration.PoolRequest) (integration.TxResult, error)
	priceFunc func(integration.Service, context.Context, integration.TokenPriceRequest) (integration.TxResult, error)
)

func (s *Server) lend(fn lendFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindParams[integration.LendRequest](c, "chainId", "token", "amount")
		if !ok {
			return
		}
		res, err := fn(s.deps.Integration, c.Request.Context(), req)
		s.respondTx(c, res, err)
	}
}

func (s *Server) stake(fn stakeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindParams[integration.StakeRequest](c, "chainId", "poolId", "amount")
		if !ok {
			return
		}
		res, err := fn(s.deps.Integration, c.Request.Context(), req)
		s.respondTx(c, res, err)
	}
}

func (s *Server) pool(fn poolFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindParams[integration.PoolRequest](c, "chainId", "poolId")
		if !ok {
			return
		}
		res, err := fn(s.deps.Integration, c.Request.Context(), req)
		s.respondTx(c, res, err)
	}
}

func (s *Server) tokenPrice(fn priceFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindParams[integration.TokenPriceRequest](c, "chainId", "token", "price")
		if !ok {
			return
		}
		res, err := fn(s.deps.Integration, c.Request.Context(), req)
		s.respondTx(c, res, err)
	}
}

func (s *Server) createPool(c *gin.Context) {
	req, ok := bindParams[integration.CreatePoolRequest](c, "chainId", "stakingToken", "rewardToken", "rewardRate")
	if !ok {
		return
	}
	res, err := s.deps.Integration.CreatePool(c.Request.Context(), req)
	s.respondTx(c, res, err)
}

func (s *Server) getPools(c *gin.Context) {
	req, ok := bindParams[integration.PoolRequest](c, "chainId")
	if !ok {
		return
	}
	pools, err := s.deps.Integration.PoolInformation(c.Request.Context(), req.ChainID)
	if err != nil {
		s.respondIntegrationError(c, err)
		return
	}
	if pools == nil {
		pools = []integration.PoolInfo{}
	}
	respondOK(c, pools)
}

func (s *Server) getUserPoolInfo(c *gin.Context) {
	req, ok := bindParams[integration.UserPoolRequest](c, "chainId", "poolId", "userAddress")
	if !ok {
		return
	}
	info, err := s.deps.Integration.UserPoolInformation(c.Request.Context(), req)
	if err != nil {
		s.respondIntegrationError(c, err)
		return
	}
	respondOK(c, info)
}

func (s *Server) balance(c *gin.Context) {
	req, ok := bindParams[integration.BalanceRequest](c, "chainId", "token")
	if !ok {
		return
	}
	bal, err := s.deps.Integration.TokenBalance(c.Request.Context(), req)
	if err != nil {
		s.respondIntegrationError(c, err)
		return
	}
	respondOK(c, bal)
}

func (s *Server) quote(c *gin.Context) {
	req, ok := bindParams[integration.QuoteRequest](c, "chainId", "fromToken", "toToken", "amount")
	if !ok {
		return
	}
	q, err := s.deps.Integration.Quote(c.Request.Context(), req)
	if err != nil {
		s.respondIntegrationError(c, err)
		return
	}
	respondOK(c, q)
}

// bindParams decodes the body into T after checking that every required
// key is present and non-empty.
func bindParams[T any](c *gin.Context, required ...string) (T, bool) {
	var out T
	raw, err := c.GetRawData()
	if err != nil {
		respondInvalid(c, "could not read request body")
		return out, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		respondInvalid(c, "request body must be a JSON object")
		return out, false
	}
	for _, key := range required {
		v, ok := fields[key]
		if !ok || string(v) == "null" || string(v) == `""` {
			respondInvalid(c, key+" is required")
			return out, false
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		respondInvalid(c, "invalid request params: "+err.Error())
		return out, false
	}
	return out, true
}

func (s *Server) respondTx(c *gin.Context, res integration.TxResult, err error) {
	if err != nil {
		s.respondIntegrationError(c, err)
		return
	}
	if !res.Success {
		s.logger.Info("integration call failed", zap.String("route", c.FullPath()), zap.String("error", res.Error))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": res.Error})
		return
	}
	respondOK(c, res)
}

func (s *Server) respondIntegrationError(c *gin.Context, err error) {
	if clierr.HasCode(err, clierr.CodeUsage) || clierr.HasCode(err, clierr.CodeUnsupported) {
		s.respondError(c, "", err)
		return
	}
	s.logger.Warn("integration call errored", zap.String("route", c.FullPath()), zap.Error(err))
	msg := err.Error()
	if cErr, ok := clierr.As(err); ok {
		msg = cErr.Message
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": msg})
}
