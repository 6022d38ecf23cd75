package service

import (
	"context"

	"go.uber.org/zap"

	"tradegate/internal/models"
	"tradegate/internal/repository"
	"tradegate/internal/strategy"
)

type Reflector interface {
	SelfReflect(ctx context.Context) ([]models.StrategyScore, error)
}

// ReflectJob reweights strategies from their resolved outcomes and pushes
// the new weights into the running strategy set.
type ReflectJob struct {
	Consensus  Reflector
	Strategies []strategy.Strategy
	Flags      *SystemSettingsService
	Logger     *zap.Logger
}

func (j *ReflectJob) Run(ctx context.Context) {
	log := j.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if j.Consensus == nil {
		return
	}
	if j.Flags != nil && !j.Flags.IsEnabled(ctx, FeatureSelfReflect, true) {
		return
	}
	rows, err := j.Consensus.SelfReflect(ctx)
	if err != nil {
		log.Error("trader: self reflection failed", zap.Error(err))
		return
	}
	applyWeights(rows, j.Strategies)
	log.Info("trader: self reflection done", zap.Int("updated", len(rows)))
}

// LoadWeights copies persisted weights onto the running strategies without
// reflecting.
func LoadWeights(ctx context.Context, scores repository.StrategyScoreRepository, strategies []strategy.Strategy) error {
	rows, err := scores.ListStrategyScores(ctx)
	if err != nil {
		return err
	}
	applyWeights(rows, strategies)
	return nil
}

func applyWeights(rows []models.StrategyScore, strategies []strategy.Strategy) {
	byID := make(map[string]float64, len(rows))
	for _, r := range rows {
		byID[r.StrategyID] = r.Weight
	}
	for _, s := range strategies {
		if w, ok := byID[s.ID()]; ok && w > 0 {
			s.SetWeight(w)
		}
	}
}

// SnapshotJob is the risk gate's end-of-day valuation.
func SnapshotJob(p *PortfolioService, logger *zap.Logger) func(context.Context) {
	return func(ctx context.Context) {
		if _, err := p.Snapshot(ctx); err != nil && logger != nil {
			logger.Error("risk: portfolio snapshot failed", zap.Error(err))
		}
	}
}
