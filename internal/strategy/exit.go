package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

// Exit closes open positions that hit a stop loss or take profit. It is the
// only strategy that emits SELL.
type Exit struct {
	weighted

	StopLossPct   float64
	TakeProfitPct float64
}

func (s *Exit) ID() string { return "exit" }

func (s *Exit) Analyze(ctx context.Context, market Market, portfolio domain.PortfolioState, external External) (*domain.TradeSignal, error) {
	stopLoss := s.StopLossPct
	if stopLoss <= 0 {
		stopLoss = 0.15
	}
	takeProfit := s.TakeProfitPct
	if takeProfit <= 0 {
		takeProfit = 0.25
	}

	var best *domain.TradeSignal
	for _, pos := range portfolio.PositionsInMarket(market.ID) {
		if !pos.Quantity.IsPositive() || !pos.AvgEntryPrice.IsPositive() {
			continue
		}
		mark := decimal.NewFromFloat(market.PriceOf(pos.Side))
		if market.YesPrice <= 0 && pos.MarkPrice.IsPositive() {
			mark = pos.MarkPrice
		}
		change := mark.Sub(pos.AvgEntryPrice).Div(pos.AvgEntryPrice).InexactFloat64()

		var confidence float64
		var why string
		switch {
		case change <= -stopLoss:
			confidence, why = 0.9, "stop loss"
		case change >= takeProfit:
			confidence, why = 0.8, "take profit"
		default:
			continue
		}
		sig := &domain.TradeSignal{
			MarketID:        market.ID,
			Side:            pos.Side,
			Direction:       domain.DirectionSell,
			Confidence:      confidence,
			PositionSizeUSD: pos.Quantity.Mul(mark).Round(2),
			Reasoning:       fmt.Sprintf("%s on %s: entry %s mark %s (%.1f%%)", why, pos.Side, pos.AvgEntryPrice.StringFixed(4), mark.StringFixed(4), change*100),
			StrategyID:      s.ID(),
		}
		if best == nil || sig.Confidence > best.Confidence {
			best = sig
		}
	}
	return best, nil
}
