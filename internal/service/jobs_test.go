package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/models"
	"tradegate/internal/repository/memory"
	"tradegate/internal/strategy"
)

type stubReflector struct {
	rows  []models.StrategyScore
	calls int
}

func (r *stubReflector) SelfReflect(ctx context.Context) ([]models.StrategyScore, error) {
	r.calls++
	return r.rows, nil
}

func TestLoadWeights_AppliesPersistedWeight(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.UpsertStrategyScore(ctx, &models.StrategyScore{StrategyID: "always", Weight: 1.4, Active: true}))

	s := &alwaysBuy{w: 1}
	require.NoError(t, LoadWeights(ctx, store, []strategy.Strategy{s}))
	assert.InDelta(t, 1.4, s.Weight(), 1e-9)
}

func TestReflectJob_RespectsSwitch(t *testing.T) {
	ctx := context.Background()
	s := &alwaysBuy{w: 1}
	r := &stubReflector{rows: []models.StrategyScore{{StrategyID: "always", Weight: 0.6}}}
	flags := &SystemSettingsService{Repo: memory.New()}
	job := &ReflectJob{Consensus: r, Strategies: []strategy.Strategy{s}, Flags: flags}

	require.NoError(t, flags.SetEnabled(ctx, FeatureSelfReflect, false))
	job.Run(ctx)
	assert.Zero(t, r.calls)
	assert.InDelta(t, 1.0, s.Weight(), 1e-9)

	require.NoError(t, flags.SetEnabled(ctx, FeatureSelfReflect, true))
	job.Run(ctx)
	assert.Equal(t, 1, r.calls)
	assert.InDelta(t, 0.6, s.Weight(), 1e-9)
}
