package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository"
)

// PriceSource quotes the current price of an outcome token.
type PriceSource interface {
	GetPrice(ctx context.Context, tokenID, side string) (decimal.Decimal, error)
}

// PortfolioService reads and values the single portfolio row and its open
// positions.
type PortfolioService struct {
	Repo           repository.Repository
	InitialCapital decimal.Decimal
	Flags          *SystemSettingsService
	Logger         *zap.Logger

	Now func() time.Time
}

// Ensure returns the portfolio row, seeding it with the initial capital the
// first time.
func (s *PortfolioService) Ensure(ctx context.Context) (*models.Portfolio, error) {
	return ensurePortfolio(ctx, s.Repo, s.InitialCapital)
}

func ensurePortfolio(ctx context.Context, repo repository.PortfolioRepository, initial decimal.Decimal) (*models.Portfolio, error) {
	item, err := repo.GetPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}
	if item != nil {
		return item, nil
	}
	item = &models.Portfolio{
		ID:               models.PortfolioID,
		TotalCapital:     initial,
		AvailableCapital: initial,
		DeployedCapital:  decimal.Zero,
		RealizedPnL:      decimal.Zero,
		HighWaterMark:    initial,
		MaxDrawdown:      decimal.Zero,
	}
	if err := repo.SavePortfolio(ctx, item); err != nil {
		return nil, fmt.Errorf("seed portfolio: %w", err)
	}
	return item, nil
}

// State builds the snapshot decisions are sized against.
func (s *PortfolioService) State(ctx context.Context) (domain.PortfolioState, error) {
	row, err := s.Ensure(ctx)
	if err != nil {
		return domain.PortfolioState{}, err
	}
	daily, err := s.Repo.SumRealizedPnLSince(ctx, dayStart(s.now()))
	if err != nil {
		return domain.PortfolioState{}, fmt.Errorf("daily pnl: %w", err)
	}
	positions, err := s.Repo.ListOpenPositions(ctx)
	if err != nil {
		return domain.PortfolioState{}, fmt.Errorf("open positions: %w", err)
	}

	state := domain.PortfolioState{
		TotalCapital:     row.TotalCapital,
		AvailableCapital: row.AvailableCapital,
		DeployedCapital:  row.DeployedCapital,
		RealizedPnL:      row.RealizedPnL,
		DailyPnL:         daily,
		HighWaterMark:    row.HighWaterMark,
		MaxDrawdown:      row.MaxDrawdown.InexactFloat64(),
		Positions:        make([]domain.PositionState, 0, len(positions)),
	}
	if row.TotalCapital.IsPositive() {
		state.DailyPnLPercent = daily.Div(row.TotalCapital).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	for _, pos := range positions {
		state.Positions = append(state.Positions, positionState(pos))
	}
	return state, nil
}

// RefreshMarks reprices open positions and their unrealized P&L. A token
// whose quote fails keeps its previous mark.
func (s *PortfolioService) RefreshMarks(ctx context.Context, prices PriceSource) error {
	if s == nil || s.Repo == nil || prices == nil {
		return nil
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureMarkRefresh, true) {
		return nil
	}
	items, err := s.Repo.ListOpenPositions(ctx)
	if err != nil || len(items) == 0 {
		return err
	}
	for i := range items {
		pos := items[i]
		tokenID := strings.TrimSpace(pos.TokenID)
		if tokenID == "" {
			continue
		}
		// The bid is what closing the position would fetch.
		price, err := prices.GetPrice(ctx, tokenID, string(domain.DirectionSell))
		if err != nil {
			s.logger().Debug("portfolio: mark lookup failed", zap.String("token_id", tokenID), zap.Error(err))
			continue
		}
		if !price.IsPositive() {
			continue
		}
		pos.MarkPrice = price
		pos.UnrealizedPnL = price.Sub(pos.AvgEntryPrice).Mul(pos.Quantity)
		pos.UpdatedAt = s.now()
		if err := s.Repo.UpsertPosition(ctx, &pos); err != nil {
			return err
		}
	}
	return nil
}

// Value is free capital plus open positions at their marks, falling back to
// cost basis for positions never marked.
func (s *PortfolioService) Value(ctx context.Context) (decimal.Decimal, int, error) {
	row, err := s.Ensure(ctx)
	if err != nil {
		return decimal.Zero, 0, err
	}
	positions, err := s.Repo.ListOpenPositions(ctx)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("open positions: %w", err)
	}
	total := row.AvailableCapital
	for _, pos := range positions {
		total = total.Add(marketValue(pos))
	}
	return total, len(positions), nil
}

// Snapshot writes today's valuation row. DailyPnL is the change against the
// previous snapshot, or today's realized P&L when there is none.
func (s *PortfolioService) Snapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeaturePortfolioSnapshot, true) {
		return nil, nil
	}
	now := s.now()
	today := dayStart(now)
	value, open, err := s.Value(ctx)
	if err != nil {
		return nil, err
	}

	prev, err := s.Repo.ListPortfolioSnapshots(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("previous snapshot: %w", err)
	}
	var base *models.PortfolioSnapshot
	for i := len(prev) - 1; i >= 0; i-- {
		if prev[i].SnapshotDate.Before(today) {
			base = &prev[i]
			break
		}
	}
	var daily decimal.Decimal
	if base != nil {
		daily = value.Sub(base.TotalValue)
	} else {
		daily, err = s.Repo.SumRealizedPnLSince(ctx, today)
		if err != nil {
			return nil, fmt.Errorf("daily pnl: %w", err)
		}
	}

	item := &models.PortfolioSnapshot{
		SnapshotDate:  today,
		TotalValue:    value.Round(6),
		DailyPnL:      daily.Round(6),
		OpenPositions: open,
		CreatedAt:     now,
	}
	if err := s.Repo.UpsertPortfolioSnapshot(ctx, item); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	s.logger().Info("portfolio: snapshot written",
		zap.String("date", today.Format("2006-01-02")),
		zap.String("total_value", item.TotalValue.String()),
		zap.String("daily_pnl", item.DailyPnL.String()),
		zap.Int("open_positions", open))
	return item, nil
}

func (s *PortfolioService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *PortfolioService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func positionState(pos models.Position) domain.PositionState {
	return domain.PositionState{
		MarketID:      pos.MarketID,
		TokenID:       pos.TokenID,
		Side:          domain.Side(pos.Side),
		SizeUSD:       pos.CostBasis,
		Quantity:      pos.Quantity,
		AvgEntryPrice: pos.AvgEntryPrice,
		MarkPrice:     pos.MarkPrice,
		UnrealizedPnL: pos.UnrealizedPnL,
		RealizedPnL:   pos.RealizedPnL,
		StrategyID:    pos.StrategyID,
	}
}

func marketValue(pos models.Position) decimal.Decimal {
	if pos.MarkPrice.IsPositive() {
		return pos.MarkPrice.Mul(pos.Quantity)
	}
	return pos.CostBasis
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
