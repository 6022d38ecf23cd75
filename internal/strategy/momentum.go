package strategy

import (
	"context"
	"fmt"
	"math"

	"tradegate/internal/domain"
)

// Momentum buys the side the YES price has been moving toward over the last
// Lookback points.
type Momentum struct {
	weighted

	Lookback    int
	MinMovePct  float64
	BaseSizePct float64
}

func (s *Momentum) ID() string { return "momentum" }

func (s *Momentum) Analyze(ctx context.Context, market Market, portfolio domain.PortfolioState, external External) (*domain.TradeSignal, error) {
	lookback := s.Lookback
	if lookback <= 0 {
		lookback = 12
	}
	minMove := s.MinMovePct
	if minMove <= 0 {
		minMove = 0.03
	}
	if len(market.History) <= lookback {
		return nil, nil
	}
	last := market.History[len(market.History)-1]
	start := market.History[len(market.History)-1-lookback]
	if start <= 0 || last <= 0 {
		return nil, nil
	}
	move := (last - start) / start
	if math.Abs(move) < minMove {
		return nil, nil
	}

	side := domain.SideYes
	if move < 0 {
		side = domain.SideNo
	}
	confidence := clamp(0.5+math.Abs(move), 0, 0.95)
	// A sentiment reading that disagrees with the trend halves conviction.
	if v, ok := external["sentiment"]; ok && v*move < 0 {
		confidence *= 0.5
	}
	size := sizeFor(portfolio, s.BaseSizePct, confidence)
	if size.IsZero() {
		return nil, nil
	}
	return &domain.TradeSignal{
		MarketID:        market.ID,
		Side:            side,
		Direction:       domain.DirectionBuy,
		Confidence:      confidence,
		PositionSizeUSD: size,
		Reasoning:       fmt.Sprintf("yes moved %.2f%% over %d points", move*100, lookback),
		StrategyID:      s.ID(),
	}, nil
}
