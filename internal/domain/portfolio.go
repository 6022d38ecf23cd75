package domain

import (
	"github.com/shopspring/decimal"
)

// PortfolioState is the capital snapshot a decision is sized against.
// AvailableCapital + DeployedCapital is kept equal to TotalCapital by
// settlement.
type PortfolioState struct {
	TotalCapital        decimal.Decimal `json:"totalCapital"`
	AvailableCapital    decimal.Decimal `json:"availableCapital"`
	DeployedCapital     decimal.Decimal `json:"deployedCapital"`
	RealizedPnL         decimal.Decimal `json:"realizedPnl"`
	DailyPnL            decimal.Decimal `json:"dailyPnl"`
	DailyPnLPercent     float64         `json:"dailyPnlPercent"`
	HighWaterMark       decimal.Decimal `json:"highWaterMark"`
	MaxDrawdown         float64         `json:"maxDrawdown"`
	KillSwitchActive    bool            `json:"killSwitchActive"`
	CapitalPreservation bool            `json:"capitalPreservation"`
	Positions           []PositionState `json:"positions"`
}

type PositionState struct {
	MarketID      string          `json:"marketId"`
	TokenID       string          `json:"tokenId"`
	Side          Side            `json:"side"`
	SizeUSD       decimal.Decimal `json:"sizeUsd"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avgEntryPrice"`
	MarkPrice     decimal.Decimal `json:"markPrice"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	StrategyID    string          `json:"strategyId,omitempty"`
}

// PositionsInMarket returns the open positions held in marketID.
func (p PortfolioState) PositionsInMarket(marketID string) []PositionState {
	var out []PositionState
	for _, pos := range p.Positions {
		if pos.MarketID == marketID {
			out = append(out, pos)
		}
	}
	return out
}
