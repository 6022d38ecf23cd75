package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradegate/internal/auth"
	"tradegate/internal/domain"
	"tradegate/internal/execution"
	"tradegate/internal/repository"
)

// ExecutionHandler is the executor's HTTP surface.
type ExecutionHandler struct {
	Engine *execution.Engine
	Guard  auth.Guard
	Logger *zap.Logger
}

func (h *ExecutionHandler) Register(r gin.IRouter) {
	r.POST("/execute-trade", h.Guard.Allow(auth.ServiceTrader), h.executeTrade)
	r.GET("/trade/:id", h.Guard.Allow(auth.ServiceTrader, auth.ServiceAdmin), h.getTrade)
	r.POST("/cancel/:id", h.Guard.Allow(auth.ServiceTrader, auth.ServiceAdmin), h.cancel)
	r.GET("/wallet", h.Guard.Allow(auth.ServiceAdmin, auth.ServiceTrader), h.wallet)
	r.GET("/trades", h.Guard.Allow(auth.ServiceAdmin, auth.ServiceTrader), h.listTrades)
}

// @Summary Execute a trade
// @Description Runs the trade to a terminal state. A FAILED or CANCELLED trade is returned with 200 and success=false.
// @Tags execution
// @Accept json
// @Produce json
// @Param body body domain.TradeExecutionRequest true "trade"
// @Success 200 {object} domain.TradeExecutionResult
// @Failure 400 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Security BearerAuth
// @Router /execute-trade [post]
func (h *ExecutionHandler) executeTrade(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "executor unavailable", nil)
		return
	}
	var req domain.TradeExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	res, err := h.Engine.ExecuteTrade(c.Request.Context(), req)
	switch {
	case errors.Is(err, execution.ErrInvalidRequest):
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	case errors.Is(err, execution.ErrNotConfigured):
		Error(c, http.StatusServiceUnavailable, err.Error(), nil)
		return
	case err != nil:
		h.logger().Error("executor: execute trade failed", zap.String("market_id", req.MarketID), zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, res, nil)
}

// @Summary Get a trade
// @Tags execution
// @Produce json
// @Param id path string true "trade id"
// @Success 200 {object} domain.TradeRecord
// @Failure 404 {object} map[string]any
// @Security BearerAuth
// @Router /trade/{id} [get]
func (h *ExecutionHandler) getTrade(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "executor unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	rec, err := h.Engine.GetTrade(c.Request.Context(), id)
	if errors.Is(err, execution.ErrTradeNotFound) {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, rec, nil)
}

// @Summary Cancel a pending trade
// @Description Only PENDING trades can be cancelled; cancelled=false means the trade had already moved on.
// @Tags execution
// @Produce json
// @Param id path string true "trade id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Security BearerAuth
// @Router /cancel/{id} [post]
func (h *ExecutionHandler) cancel(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "executor unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	cancelled, err := h.Engine.CancelOrder(c.Request.Context(), id)
	if errors.Is(err, execution.ErrTradeNotFound) {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	rec, err := h.Engine.GetTrade(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"cancelled": cancelled, "trade": rec}, nil)
}

// @Summary Wallet address and balances
// @Tags execution
// @Produce json
// @Success 200 {object} domain.WalletInfo
// @Security BearerAuth
// @Router /wallet [get]
func (h *ExecutionHandler) wallet(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "executor unavailable", nil)
		return
	}
	info, err := h.Engine.Wallet(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, info, nil)
}

// @Summary List trades
// @Tags execution
// @Produce json
// @Param status query string false "PENDING, SUBMITTED, FILLED, FAILED or CANCELLED"
// @Param market_id query string false "market id"
// @Param since query string false "RFC3339 or unix seconds"
// @Param limit query int false "max rows (default 50)"
// @Param offset query int false "offset"
// @Success 200 {array} domain.TradeRecord
// @Security BearerAuth
// @Router /trades [get]
func (h *ExecutionHandler) listTrades(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "executor unavailable", nil)
		return
	}
	since, ok := timeQueryPtr(c, "since")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid since", nil)
		return
	}
	limit := clampLimit(intQuery(c, "limit", 50), 50, 500)
	offset := intQuery(c, "offset", 0)
	status := strQueryPtr(c, "status")
	if status != nil {
		v := strings.ToUpper(*status)
		status = &v
	}
	items, err := h.Engine.ListTrades(c.Request.Context(), repository.ListTradesParams{
		Limit:    limit,
		Offset:   offset,
		Status:   status,
		MarketID: strQueryPtr(c, "market_id"),
		Since:    since,
		OrderBy:  "created_at",
		Asc:      boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, pageMeta(limit, offset, len(items)))
}

func (h *ExecutionHandler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}
