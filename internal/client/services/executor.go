package services

import (
	"context"
	"net/http"
	"net/url"

	"tradegate/internal/domain"
)

type ExecutorClient struct {
	c client
}

func NewExecutorClient(baseURL string, httpClient *http.Client, tokens TokenSource) *ExecutorClient {
	return &ExecutorClient{c: newClient(baseURL, httpClient, tokens)}
}

// ExecuteTrade returns the terminal result. A FAILED trade is a result, not
// an error.
func (e *ExecutorClient) ExecuteTrade(ctx context.Context, req domain.TradeExecutionRequest) (domain.TradeExecutionResult, error) {
	var out domain.TradeExecutionResult
	err := e.c.do(ctx, http.MethodPost, "/execute-trade", nil, req, &out)
	return out, err
}

func (e *ExecutorClient) GetTrade(ctx context.Context, tradeID string) (domain.TradeRecord, error) {
	var out domain.TradeRecord
	err := e.c.do(ctx, http.MethodGet, "/trade/"+url.PathEscape(tradeID), nil, nil, &out)
	return out, err
}

type CancelResult struct {
	Cancelled bool               `json:"cancelled"`
	Trade     domain.TradeRecord `json:"trade"`
}

func (e *ExecutorClient) CancelOrder(ctx context.Context, tradeID string) (CancelResult, error) {
	var out CancelResult
	err := e.c.do(ctx, http.MethodPost, "/cancel/"+url.PathEscape(tradeID), nil, nil, &out)
	return out, err
}

func (e *ExecutorClient) Wallet(ctx context.Context) (domain.WalletInfo, error) {
	var out domain.WalletInfo
	err := e.c.do(ctx, http.MethodGet, "/wallet", nil, nil, &out)
	return out, err
}
