package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/risk"
)

type RiskGateClient struct {
	c client
}

func NewRiskGateClient(baseURL string, httpClient *http.Client, tokens TokenSource) *RiskGateClient {
	return &RiskGateClient{c: newClient(baseURL, httpClient, tokens)}
}

func (r *RiskGateClient) ValidateTrade(ctx context.Context, req domain.RiskCheckRequest) (domain.RiskCheckResult, error) {
	var out domain.RiskCheckResult
	err := r.c.do(ctx, http.MethodPost, "/validate-trade", nil, req, &out)
	return out, err
}

func (r *RiskGateClient) PortfolioRisk(ctx context.Context) (risk.PortfolioRisk, error) {
	var out risk.PortfolioRisk
	err := r.c.do(ctx, http.MethodGet, "/portfolio-risk", nil, nil, &out)
	return out, err
}

func (r *RiskGateClient) MonteCarlo(ctx context.Context, req domain.MonteCarloRequest) (domain.MonteCarloResult, error) {
	var out domain.MonteCarloResult
	err := r.c.do(ctx, http.MethodPost, "/monte-carlo", nil, req, &out)
	return out, err
}

func (r *RiskGateClient) KillSwitch(ctx context.Context, action, reason string) (risk.KillSwitchState, error) {
	var out risk.KillSwitchState
	err := r.c.do(ctx, http.MethodPost, "/kill-switch", nil, domain.KillSwitchRequest{Action: action, Reason: reason}, &out)
	return out, err
}

type RiskEventsQuery struct {
	Limit     int
	Severity  string
	EventType string
	Since     *time.Time
}

func (r *RiskGateClient) RiskEvents(ctx context.Context, q RiskEventsQuery) ([]models.RiskEvent, error) {
	query := url.Values{}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Severity != "" {
		query.Set("severity", q.Severity)
	}
	if q.EventType != "" {
		query.Set("event_type", q.EventType)
	}
	if q.Since != nil {
		query.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	var out []models.RiskEvent
	err := r.c.do(ctx, http.MethodGet, "/risk-events", query, nil, &out)
	return out, err
}
