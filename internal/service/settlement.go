package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository"
)

// Positions below this many shares count as closed.
var dustQuantity = decimal.New(1, -6)

// OutcomeRecorder resolves a strategy's prior once its position is closed.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, strategyID string, realizedPnL decimal.Decimal) error
}

// Settlement books filled trades into positions and the portfolio row.
type Settlement struct {
	Repo           repository.Repository
	Outcomes       OutcomeRecorder
	InitialCapital decimal.Decimal
	Logger         *zap.Logger

	Now func() time.Time
}

// Booking is what one fill changed.
type Booking struct {
	TradeID     string
	Quantity    decimal.Decimal
	RealizedPnL decimal.Decimal
	Closed      bool
	// Strategies backed the position and have their outcome recorded when
	// it closes.
	Strategies []string
	// PositionPnL is the cumulative realized P&L of a position that closed.
	PositionPnL decimal.Decimal
}

// Settle implements the executor's post-fill hook.
func (s *Settlement) Settle(ctx context.Context, trade models.Trade) error {
	_, err := s.Book(ctx, trade)
	return err
}

// Book applies one FILLED trade. Buys add to the position at the fill price;
// sells release cost basis at the average entry and realize the difference.
// When a sell closes a position, the outcome is recorded for every strategy
// that backed it.
func (s *Settlement) Book(ctx context.Context, trade models.Trade) (Booking, error) {
	out := Booking{TradeID: trade.ID}
	if s == nil || s.Repo == nil {
		return out, nil
	}
	if trade.Status != models.TradeStatusFilled || trade.FilledPrice == nil || trade.FilledSizeUSD == nil {
		return out, fmt.Errorf("settle %s: trade is not filled", trade.ID)
	}
	price := *trade.FilledPrice
	filledUSD := *trade.FilledSizeUSD
	if !price.IsPositive() || !filledUSD.IsPositive() {
		return out, fmt.Errorf("settle %s: non-positive fill", trade.ID)
	}
	tokenID := strings.TrimSpace(trade.TokenID)
	if tokenID == "" {
		return out, fmt.Errorf("settle %s: missing token id", trade.ID)
	}

	err := s.Repo.WithTx(ctx, func(tx repository.Repository) error {
		portfolio, err := ensurePortfolio(ctx, tx, s.InitialCapital)
		if err != nil {
			return err
		}
		pos, err := tx.GetPositionByTokenID(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("load position: %w", err)
		}
		now := s.now()

		switch domain.Direction(strings.ToUpper(trade.Direction)) {
		case domain.DirectionBuy:
			pos = s.buy(pos, trade, price, filledUSD, now)
			out.Quantity = filledUSD.Div(price)
			portfolio.AvailableCapital = portfolio.AvailableCapital.Sub(filledUSD)
			portfolio.DeployedCapital = portfolio.DeployedCapital.Add(filledUSD)
		case domain.DirectionSell:
			if pos == nil || pos.Status != models.PositionStatusOpen || !pos.Quantity.IsPositive() {
				s.logger().Warn("settlement: sell without open position",
					zap.String("trade_id", trade.ID),
					zap.String("token_id", tokenID))
				return nil
			}
			sellQty := decimal.Min(filledUSD.Div(price), pos.Quantity)
			proceeds := sellQty.Mul(price)
			released := pos.AvgEntryPrice.Mul(sellQty)
			realized := proceeds.Sub(released).Round(6)

			pos.RealizedPnL = pos.RealizedPnL.Add(realized)
			pos.Quantity = pos.Quantity.Sub(sellQty)
			if pos.Quantity.LessThan(dustQuantity) {
				released = pos.CostBasis
				pos.Quantity = decimal.Zero
				pos.CostBasis = decimal.Zero
				pos.UnrealizedPnL = decimal.Zero
				pos.Status = models.PositionStatusClosed
				pos.ClosedAt = &now
				out.Closed = true
				out.Strategies = pos.Strategies()
				out.PositionPnL = pos.RealizedPnL
			} else {
				pos.CostBasis = pos.AvgEntryPrice.Mul(pos.Quantity)
				pos.UnrealizedPnL = pos.MarkPrice.Sub(pos.AvgEntryPrice).Mul(pos.Quantity)
			}
			pos.UpdatedAt = now

			out.Quantity = sellQty
			out.RealizedPnL = realized
			portfolio.DeployedCapital = decimal.Max(decimal.Zero, portfolio.DeployedCapital.Sub(released))
			portfolio.AvailableCapital = portfolio.AvailableCapital.Add(proceeds)
			portfolio.RealizedPnL = portfolio.RealizedPnL.Add(realized)
			portfolio.TotalCapital = portfolio.TotalCapital.Add(realized)
			if err := tx.SetTradeRealizedPnL(ctx, trade.ID, realized); err != nil {
				return fmt.Errorf("record realized pnl: %w", err)
			}
		default:
			return fmt.Errorf("settle %s: unknown direction %q", trade.ID, trade.Direction)
		}

		markDrawdown(portfolio)
		if err := tx.UpsertPosition(ctx, pos); err != nil {
			return fmt.Errorf("save position: %w", err)
		}
		if err := tx.SavePortfolio(ctx, portfolio); err != nil {
			return fmt.Errorf("save portfolio: %w", err)
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	s.logger().Info("settlement: booked fill",
		zap.String("trade_id", trade.ID),
		zap.String("direction", trade.Direction),
		zap.String("token_id", tokenID),
		zap.String("quantity", out.Quantity.StringFixed(6)),
		zap.String("realized_pnl", out.RealizedPnL.String()),
		zap.Bool("closed", out.Closed))

	if out.Closed && s.Outcomes != nil {
		var errs []error
		for _, id := range out.Strategies {
			if err := s.Outcomes.RecordOutcome(ctx, id, out.PositionPnL); err != nil {
				errs = append(errs, fmt.Errorf("record outcome for %s: %w", id, err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Settlement) buy(pos *models.Position, trade models.Trade, price, filledUSD decimal.Decimal, now time.Time) *models.Position {
	if pos == nil || pos.Status != models.PositionStatusOpen {
		// A closed row for the same token is reopened from zero but keeps its
		// id so the token stays unique.
		fresh := &models.Position{
			TokenID:       strings.TrimSpace(trade.TokenID),
			MarketID:      trade.MarketID,
			Side:          trade.Side,
			Quantity:      decimal.Zero,
			AvgEntryPrice: decimal.Zero,
			CostBasis:     decimal.Zero,
			UnrealizedPnL: decimal.Zero,
			RealizedPnL:   decimal.Zero,
			Status:        models.PositionStatusOpen,
			StrategyID:    trade.StrategyID,
			OpenedAt:      now,
		}
		if pos != nil {
			fresh.ID = pos.ID
		}
		pos = fresh
	}
	qty := filledUSD.Div(price)
	pos.Quantity = pos.Quantity.Add(qty)
	pos.CostBasis = pos.CostBasis.Add(filledUSD)
	if pos.Quantity.IsPositive() {
		pos.AvgEntryPrice = pos.CostBasis.Div(pos.Quantity).Round(10)
	}
	pos.MarkPrice = price
	pos.UnrealizedPnL = pos.MarkPrice.Sub(pos.AvgEntryPrice).Mul(pos.Quantity)
	backers := models.MergeStrategyIDs(pos.Strategies(), tradeStrategies(trade))
	pos.StrategyIDs = models.EncodeStrategyIDs(backers)
	if pos.StrategyID == "" && len(backers) > 0 {
		pos.StrategyID = backers[0]
	}
	pos.UpdatedAt = now
	return pos
}

func tradeStrategies(trade models.Trade) []string {
	return models.MergeStrategyIDs([]string{trade.StrategyID}, models.DecodeStrategyIDs(trade.StrategyIDs))
}

// markDrawdown raises the high-water mark and records the deepest fall from
// it as a fraction.
func markDrawdown(p *models.Portfolio) {
	if p.TotalCapital.GreaterThan(p.HighWaterMark) {
		p.HighWaterMark = p.TotalCapital
	}
	if !p.HighWaterMark.IsPositive() {
		return
	}
	dd := p.HighWaterMark.Sub(p.TotalCapital).Div(p.HighWaterMark)
	if dd.GreaterThan(p.MaxDrawdown) {
		p.MaxDrawdown = dd.Round(10)
	}
}

func (s *Settlement) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Settlement) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
