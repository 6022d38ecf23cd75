package risk

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
	"tradegate/internal/repository"
)

// ExposureTracker measures open exposure. Positions listed on the request
// snapshot win; the repository is consulted only when the snapshot has none,
// so a decision is always sized against one consistent view.
type ExposureTracker struct {
	Positions repository.PositionRepository
}

func (t *ExposureTracker) MarketExposure(ctx context.Context, portfolio domain.PortfolioState, marketID string) (decimal.Decimal, error) {
	marketID = strings.TrimSpace(marketID)
	if len(portfolio.Positions) > 0 || t == nil || t.Positions == nil {
		total := decimal.Zero
		for _, pos := range portfolio.PositionsInMarket(marketID) {
			total = total.Add(positionUSD(pos))
		}
		return total, nil
	}
	return t.Positions.SumOpenCostBasisByMarket(ctx, marketID)
}

func (t *ExposureTracker) OpenPositions(ctx context.Context, portfolio domain.PortfolioState) (int, error) {
	if len(portfolio.Positions) > 0 || t == nil || t.Positions == nil {
		return len(portfolio.Positions), nil
	}
	n, err := t.Positions.CountOpenPositions(ctx)
	return int(n), err
}

// ByMarket groups open exposure per market.
func (t *ExposureTracker) ByMarket(ctx context.Context, portfolio domain.PortfolioState) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	if len(portfolio.Positions) > 0 || t == nil || t.Positions == nil {
		for _, pos := range portfolio.Positions {
			out[pos.MarketID] = out[pos.MarketID].Add(positionUSD(pos))
		}
		return out, nil
	}
	items, err := t.Positions.ListOpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.MarketID] = out[it.MarketID].Add(it.CostBasis)
	}
	return out, nil
}

func positionUSD(pos domain.PositionState) decimal.Decimal {
	if pos.SizeUSD.IsPositive() {
		return pos.SizeUSD
	}
	return pos.Quantity.Mul(pos.AvgEntryPrice)
}
