package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradegate/internal/auth"
	"tradegate/internal/domain"
	"tradegate/internal/repository"
	"tradegate/internal/risk"
	"tradegate/internal/service"
)

// RiskHandler is the risk gate's HTTP surface.
type RiskHandler struct {
	Gate       *risk.Gate
	MonteCarlo *risk.MonteCarlo
	Portfolio  *service.PortfolioService
	Events     repository.RiskEventRepository
	Guard      auth.Guard
	Logger     *zap.Logger
}

func (h *RiskHandler) Register(r gin.IRouter) {
	r.POST("/validate-trade", h.Guard.Allow(auth.ServiceTrader, auth.ServiceExecutor), h.validateTrade)
	r.GET("/portfolio-risk", h.Guard.Allow(auth.ServiceTrader, auth.ServiceExecutor, auth.ServiceAdmin), h.portfolioRisk)
	r.POST("/monte-carlo", h.Guard.Allow(auth.ServiceTrader, auth.ServiceAdmin), h.monteCarlo)
	r.POST("/kill-switch", h.Guard.Allow(auth.ServiceAdmin), h.killSwitch)
	r.GET("/risk-events", h.Guard.Allow(auth.ServiceAdmin, auth.ServiceTrader), h.riskEvents)
}

// @Summary Validate and size a proposed trade
// @Tags risk
// @Accept json
// @Produce json
// @Param body body domain.RiskCheckRequest true "signal and portfolio snapshot"
// @Success 200 {object} domain.RiskCheckResult
// @Failure 400 {object} map[string]any
// @Security BearerAuth
// @Router /validate-trade [post]
func (h *RiskHandler) validateTrade(c *gin.Context) {
	if h.Gate == nil {
		Error(c, http.StatusServiceUnavailable, "risk gate unavailable", nil)
		return
	}
	var req domain.RiskCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.Signal.MarketID) == "" {
		Error(c, http.StatusBadRequest, "signal.marketId is required", nil)
		return
	}
	// A caller without its own snapshot is sized against the stored portfolio.
	if req.Portfolio.TotalCapital.IsZero() && h.Portfolio != nil {
		state, err := h.Portfolio.State(c.Request.Context())
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		req.Portfolio = state
	}
	res, err := h.Gate.ValidateTrade(c.Request.Context(), req)
	if err != nil {
		h.logger().Error("risk: validate trade failed", zap.String("market_id", req.Signal.MarketID), zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, res, nil)
}

// @Summary Portfolio risk view
// @Tags risk
// @Produce json
// @Success 200 {object} risk.PortfolioRisk
// @Security BearerAuth
// @Router /portfolio-risk [get]
func (h *RiskHandler) portfolioRisk(c *gin.Context) {
	if h.Gate == nil || h.Portfolio == nil {
		Error(c, http.StatusServiceUnavailable, "risk gate unavailable", nil)
		return
	}
	state, err := h.Portfolio.State(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	view, err := h.Gate.PortfolioRisk(c.Request.Context(), state)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, view, nil)
}

// @Summary Monte Carlo value at risk
// @Tags risk
// @Accept json
// @Produce json
// @Param body body domain.MonteCarloRequest true "portfolio value and simulation config"
// @Success 200 {object} domain.MonteCarloResult
// @Security BearerAuth
// @Router /monte-carlo [post]
func (h *RiskHandler) monteCarlo(c *gin.Context) {
	if h.MonteCarlo == nil {
		Error(c, http.StatusServiceUnavailable, "monte carlo unavailable", nil)
		return
	}
	var req domain.MonteCarloRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	value := req.PortfolioValue
	if value == nil {
		if h.Portfolio == nil {
			Error(c, http.StatusBadRequest, "portfolioValue is required", nil)
			return
		}
		v, _, err := h.Portfolio.Value(c.Request.Context())
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		value = &v
	}
	if !value.IsPositive() {
		Error(c, http.StatusBadRequest, "portfolioValue must be positive", nil)
		return
	}
	res, err := h.MonteCarlo.Run(c.Request.Context(), *value, req.Config)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, res, nil)
}

// @Summary Activate or reset the kill switch
// @Tags risk
// @Accept json
// @Produce json
// @Param body body domain.KillSwitchRequest true "activate or reset"
// @Success 200 {object} risk.KillSwitchState
// @Security BearerAuth
// @Router /kill-switch [post]
func (h *RiskHandler) killSwitch(c *gin.Context) {
	if h.Gate == nil || h.Gate.Drawdown == nil {
		Error(c, http.StatusServiceUnavailable, "risk gate unavailable", nil)
		return
	}
	var req domain.KillSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	actor := auth.ServiceAdmin
	if claims, ok := auth.ClaimsFromContext(c); ok {
		actor = claims.Service
	}
	var (
		state risk.KillSwitchState
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case domain.KillSwitchActivate:
		state, err = h.Gate.Drawdown.Activate(c.Request.Context(), actor, req.Reason)
	case domain.KillSwitchReset:
		state, err = h.Gate.Drawdown.Reset(c.Request.Context(), actor, req.Reason)
	default:
		Error(c, http.StatusBadRequest, "action must be activate or reset", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, state, nil)
}

// @Summary List risk events
// @Tags risk
// @Produce json
// @Param limit query int false "max rows (default 50)"
// @Param offset query int false "offset"
// @Param severity query string false "INFO, WARNING or CRITICAL"
// @Param event_type query string false "event type"
// @Param market_id query string false "market id"
// @Param since query string false "RFC3339 or unix seconds"
// @Success 200 {array} models.RiskEvent
// @Security BearerAuth
// @Router /risk-events [get]
func (h *RiskHandler) riskEvents(c *gin.Context) {
	if h.Events == nil {
		Error(c, http.StatusServiceUnavailable, "repo unavailable", nil)
		return
	}
	since, ok := timeQueryPtr(c, "since")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid since", nil)
		return
	}
	limit := clampLimit(intQuery(c, "limit", 50), 50, 500)
	offset := intQuery(c, "offset", 0)
	items, err := h.Events.ListRiskEvents(c.Request.Context(), repository.ListRiskEventsParams{
		Limit:     limit,
		Offset:    offset,
		Severity:  strQueryPtr(c, "severity"),
		EventType: strQueryPtr(c, "event_type"),
		MarketID:  strQueryPtr(c, "market_id"),
		Since:     since,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, pageMeta(limit, offset, len(items)))
}

func (h *RiskHandler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}
