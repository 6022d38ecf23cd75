package execution

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository"
)

// Simulated fills land between this fraction and all of the requested size.
const minSimFillRatio = 0.95

var (
	minSimPrice = decimal.RequireFromString("0.001")
	maxSimPrice = decimal.RequireFromString("0.999")
)

// simulate fills the trade without touching the chain or the venue's order
// endpoint. The price still comes from the venue when one is wired.
func (e *Engine) simulate(ctx context.Context, tradeID string, req domain.TradeExecutionRequest, log *zap.Logger) (domain.TradeExecutionResult, error) {
	final := context.WithoutCancel(ctx)
	price := e.simPrice(ctx, req, log)
	slip, ratio := e.drawFill()

	fill := price.Mul(decimal.NewFromFloat(1 + slip))
	if req.Direction == domain.DirectionSell {
		fill = price.Mul(decimal.NewFromFloat(1 - slip))
	}
	fill = decimal.Min(maxSimPrice, decimal.Max(minSimPrice, fill)).Round(6)
	filled := req.SizeUSD.Mul(decimal.NewFromFloat(ratio)).Round(6)
	slippage := fill.Sub(price).Abs().Div(price).Round(6)
	txHash := "sim-" + uuid.NewString()
	now := e.clock().Now()

	ok, err := e.Trades.TransitionTrade(final, tradeID, []string{models.TradeStatusPending}, repository.TradeUpdate{
		Status:        models.TradeStatusFilled,
		Price:         &price,
		TxHash:        &txHash,
		FilledPrice:   &fill,
		FilledSizeUSD: &filled,
		Slippage:      &slippage,
		FilledAt:      &now,
	})
	if err != nil {
		return domain.TradeExecutionResult{}, fmt.Errorf("execution: record simulated fill: %w", err)
	}
	if !ok {
		return e.current(final, tradeID)
	}
	log.Info("executor: simulated fill",
		zap.String("price", fill.String()),
		zap.String("filled_usd", filled.String()))
	return e.settle(final, tradeID, log)
}

func (e *Engine) simPrice(ctx context.Context, req domain.TradeExecutionRequest, log *zap.Logger) decimal.Decimal {
	if req.LimitPrice != nil {
		return *req.LimitPrice
	}
	if e.Venue != nil {
		p, err := e.Venue.GetPrice(ctx, req.TokenID, string(req.Direction))
		if err == nil && p.IsPositive() && p.LessThan(decimal.NewFromInt(1)) {
			return p
		}
		if err != nil {
			log.Debug("executor: simulation price lookup failed, using default", zap.Error(err))
		}
	}
	return decimal.NewFromFloat(e.config().SimDefaultPrice)
}

// drawFill returns a slippage fraction and a fill ratio in [0.95, 1).
func (e *Engine) drawFill() (float64, float64) {
	maxSlip := float64(e.config().SimMaxSlippageBps) / 10_000
	if maxSlip < 0 {
		maxSlip = 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(1, 1^0x9e3779b97f4a7c15))
	}
	return e.rng.Float64() * maxSlip, minSimFillRatio + e.rng.Float64()*(1-minSimFillRatio)
}
