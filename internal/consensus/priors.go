package consensus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/models"
)

// EnsureStrategies creates default score rows for strategies that have none.
func (e *Engine) EnsureStrategies(ctx context.Context, strategyIDs []string) error {
	if e.Scores == nil {
		return nil
	}
	for _, id := range strategyIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		row, err := e.Scores.GetStrategyScore(ctx, id)
		if err != nil {
			return err
		}
		if row != nil {
			continue
		}
		if err := e.Scores.UpsertStrategyScore(ctx, e.defaultScore(id)); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePriors records one resolved trade against the strategy's
// Beta(alpha, beta): a win adds to alpha, a loss to beta.
func (e *Engine) UpdatePriors(ctx context.Context, strategyID string, success bool) error {
	row, err := e.scoreRow(ctx, strategyID)
	if err != nil || row == nil {
		return err
	}
	applyOutcome(row, success)
	return e.Scores.UpsertStrategyScore(ctx, row)
}

// RecordOutcome updates the prior and the outcome statistics for a closed
// position. A trade wins iff its realized P&L is positive.
func (e *Engine) RecordOutcome(ctx context.Context, strategyID string, realizedPnL decimal.Decimal) error {
	row, err := e.scoreRow(ctx, strategyID)
	if err != nil || row == nil {
		return err
	}
	success := realizedPnL.IsPositive()
	applyOutcome(row, success)
	row.TotalTrades++
	if success {
		row.Wins++
	} else {
		row.Losses++
	}
	row.TotalPnL += realizedPnL.InexactFloat64()
	row.WinRate = float64(row.Wins) / float64(row.TotalTrades)
	if err := e.Scores.UpsertStrategyScore(ctx, row); err != nil {
		return err
	}
	if e.Logger != nil {
		e.Logger.Info("consensus: outcome recorded",
			zap.String("strategy_id", row.StrategyID),
			zap.Bool("win", success),
			zap.Float64("alpha", row.Alpha),
			zap.Float64("beta", row.Beta),
			zap.Float64("win_rate", row.WinRate),
		)
	}
	return nil
}

// SelfReflect blends each active strategy's weight toward its realized
// accuracy and nudges the prior mean the same way while keeping its evidence
// count. Strategies with too few resolved trades are left alone.
func (e *Engine) SelfReflect(ctx context.Context) ([]models.StrategyScore, error) {
	if e.Scores == nil {
		return nil, nil
	}
	cfg := e.config()
	rows, err := e.Scores.ListStrategyScores(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	updated := make([]models.StrategyScore, 0, len(rows))
	for i := range rows {
		row := rows[i]
		if !row.Active || row.TotalTrades < cfg.MinReflectTrades {
			continue
		}
		lambda := cfg.ReflectAlpha
		prev := row.Weight
		row.Weight = clamp((1-lambda)*row.Weight+lambda*(2*row.WinRate), cfg.MinWeight, cfg.MaxWeight)

		n := row.Alpha + row.Beta
		if n > 0 {
			mean := (1-lambda)*(row.Alpha/n) + lambda*clamp01(row.WinRate)
			row.Alpha = mean * n
			row.Beta = (1 - mean) * n
		}
		row.LastReflectedAt = &now
		if err := e.Scores.UpsertStrategyScore(ctx, &row); err != nil {
			return updated, fmt.Errorf("save score %s: %w", row.StrategyID, err)
		}
		updated = append(updated, row)
		if e.Logger != nil {
			e.Logger.Info("consensus: weight reflected",
				zap.String("strategy_id", row.StrategyID),
				zap.Float64("weight_before", prev),
				zap.Float64("weight_after", row.Weight),
				zap.Float64("win_rate", row.WinRate),
				zap.Int("trades", row.TotalTrades),
			)
		}
	}
	return updated, nil
}

func (e *Engine) scoreRow(ctx context.Context, strategyID string) (*models.StrategyScore, error) {
	strategyID = strings.TrimSpace(strategyID)
	if e.Scores == nil || strategyID == "" {
		return nil, nil
	}
	row, err := e.Scores.GetStrategyScore(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = e.defaultScore(strategyID)
	}
	return row, nil
}

func (e *Engine) defaultScore(strategyID string) *models.StrategyScore {
	cfg := e.config()
	return &models.StrategyScore{
		StrategyID: strategyID,
		Weight:     1.0,
		Alpha:      cfg.PriorAlpha,
		Beta:       cfg.PriorBeta,
		Active:     true,
	}
}

func applyOutcome(row *models.StrategyScore, success bool) {
	if success {
		row.Alpha++
	} else {
		row.Beta++
	}
}
