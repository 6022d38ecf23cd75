package strategy

import (
	"context"
	"fmt"
	"math"

	"tradegate/internal/domain"
)

// MeanReversion fades a YES price that sits EntryZ standard deviations away
// from its rolling mean.
type MeanReversion struct {
	weighted

	Window      int
	EntryZ      float64
	BaseSizePct float64
}

func (s *MeanReversion) ID() string { return "mean_reversion" }

func (s *MeanReversion) Analyze(ctx context.Context, market Market, portfolio domain.PortfolioState, external External) (*domain.TradeSignal, error) {
	window := s.Window
	if window <= 1 {
		window = 24
	}
	entryZ := s.EntryZ
	if entryZ <= 0 {
		entryZ = 1.5
	}
	if len(market.History) < window {
		return nil, nil
	}
	points := market.History[len(market.History)-window:]
	mean, std := meanStd(points)
	if std <= 0 {
		return nil, nil
	}
	last := points[len(points)-1]
	z := (last - mean) / std
	if math.Abs(z) < entryZ {
		return nil, nil
	}

	side := domain.SideYes
	if z > 0 {
		side = domain.SideNo
	}
	confidence := clamp(0.5+0.1*math.Abs(z), 0, 0.9)
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
		Reasoning:       fmt.Sprintf("yes z-score %.2f vs mean %.4f", z, mean),
		StrategyID:      s.ID(),
	}, nil
}

func meanStd(points []float64) (float64, float64) {
	if len(points) == 0 {
		return 0, 0
	}
	var sum float64
	for _, p := range points {
		sum += p
	}
	mean := sum / float64(len(points))
	var ss float64
	for _, p := range points {
		d := p - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(points)))
}
