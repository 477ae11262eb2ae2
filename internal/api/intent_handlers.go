package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/intentfi/intentfi/internal/intent"
	"go.uber.org/zap"
)

type processRequest struct {
	Intent      *string `json:"intent"`
	ChainID     int64   `json:"chainId"`
	UserAddress string  `json:"userAddress"`
}

func (s *Server) processIntent(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "intent must be a string")
		return
	}
	if req.Intent == nil || strings.TrimSpace(*req.Intent) == "" {
		respondInvalid(c, "intent is required")
		return
	}
	if strings.TrimSpace(req.UserAddress) == "" {
		respondInvalid(c, "userAddress is required")
		return
	}
	plan, err := s.deps.Processor.Process(c.Request.Context(), intent.Intent{
		RawText:     *req.Intent,
		ChainID:     req.ChainID,
		UserAddress: req.UserAddress,
	})
	if err != nil {
		s.logger.Warn("process intent failed", zap.Error(err))
		s.respondError(c, "failed to process intent", err)
		return
	}
	respondOK(c, plan)
}

type submitRequest struct {
	WalletAddress  string      `json:"walletAddress"`
	IntentPlan     intent.Plan `json:"intentPlan"`
	OriginalIntent string      `json:"originalIntent"`
}

func (s *Server) submitIntent(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" {
		respondInvalid(c, "walletAddress is required")
		return
	}
	id, err := s.deps.History.Record(c.Request.Context(), intent.RecordRequest{
		UserAddress: req.WalletAddress,
		Description: req.OriginalIntent,
		Steps:       req.IntentPlan.Steps,
	})
	if err != nil {
		s.respondError(c, "failed to store intent", err)
		return
	}
	respondOK(c, gin.H{"intentId": id})
}

type storeRequest struct {
	UserAddress string        `json:"userAddress"`
	Description string        `json:"description"`
	Chain       string        `json:"chain"`
	Type        string        `json:"type"`
	Steps       []intent.Step `json:"steps"`
}

func (s *Server) storeIntent(c *gin.Context) {
	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserAddress) == "" {
		respondInvalid(c, "userAddress is required")
		return
	}
	id, err := s.deps.History.Record(c.Request.Context(), intent.RecordRequest{
		UserAddress: req.UserAddress,
		Description: req.Description,
		Chain:       req.Chain,
		Type:        intent.IntentType(req.Type),
		Steps:       req.Steps,
	})
	if err != nil {
		s.respondError(c, "failed to store intent", err)
		return
	}
	respondOK(c, gin.H{"intentId": id})
}

func (s *Server) intentHistory(c *gin.Context) {
	user := strings.TrimSpace(c.Query("userAddress"))
	if user == "" {
		respondInvalid(c, "userAddress is required")
		return
	}
	limit := s.opts.HistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondInvalid(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.deps.History.Fetch(c.Request.Context(), user, limit)
	if err != nil {
		s.respondError(c, "failed to fetch intent history", err)
		return
	}
	if records == nil {
		records = []intent.StoredIntent{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": records})
}
