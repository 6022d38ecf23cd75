package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository/memory"
)

func history(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		// Alternating small gains and losses with a slight positive drift.
		if i%2 == 0 {
			out[i] = 0.012
		} else {
			out[i] = -0.008
		}
	}
	return out
}

func TestSimulate_FallbackWithShortHistory(t *testing.T) {
	res := Simulate(decimal.NewFromInt(10000), history(9), domain.MonteCarloConfig{})
	assert.True(t, res.Fallback)
	assert.Equal(t, 9, res.Samples)
	assert.True(t, res.VaR.Equal(decimal.NewFromInt(1000)))
	assert.True(t, res.Percentiles.P50.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, defaultSimulations, res.Simulations)
	assert.Equal(t, defaultHorizonDays, res.HorizonDays)
}

func TestSimulate_DeterministicWithSeed(t *testing.T) {
	cfg := domain.MonteCarloConfig{Simulations: 2000, HorizonDays: 20, ConfidenceLevel: 0.95, Seed: 42}
	a := Simulate(decimal.NewFromInt(10000), history(60), cfg)
	b := Simulate(decimal.NewFromInt(10000), history(60), cfg)

	assert.False(t, a.Fallback)
	assert.Equal(t, a, b)

	p := a.Percentiles
	assert.True(t, a.WorstCase.LessThanOrEqual(p.P5))
	assert.True(t, p.P5.LessThanOrEqual(p.P25))
	assert.True(t, p.P25.LessThanOrEqual(p.P50))
	assert.True(t, p.P50.LessThanOrEqual(p.P75))
	assert.True(t, p.P75.LessThanOrEqual(p.P95))
	assert.True(t, p.P95.LessThanOrEqual(a.BestCase))
	assert.True(t, a.CVaR.GreaterThanOrEqual(a.VaR))
	assert.False(t, a.VaR.IsNegative())
	assert.InDelta(t, 0.002, a.MeanDailyReturn, 1e-12)
}

func TestSimulate_ClampsConfig(t *testing.T) {
	res := Simulate(decimal.NewFromInt(100), history(20), domain.MonteCarloConfig{Simulations: 10_000_000, HorizonDays: 5000, ConfidenceLevel: 1.5, Seed: 1})
	assert.Equal(t, maxSimulations, res.Simulations)
	assert.Equal(t, maxHorizonDays, res.HorizonDays)
	assert.Equal(t, defaultConfidence, res.ConfidenceLevel)
}

func TestMonteCarloRun_UsesSnapshots(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, r := range history(15) {
		require.NoError(t, store.UpsertPortfolioSnapshot(ctx, &models.PortfolioSnapshot{
			SnapshotDate: day.AddDate(0, 0, i),
			TotalValue:   decimal.NewFromInt(1000),
			DailyPnL:     decimal.NewFromFloat(r * 1000),
		}))
	}
	mc := &MonteCarlo{Snapshots: store}
	res, err := mc.Run(ctx, decimal.NewFromInt(1000), domain.MonteCarloConfig{Simulations: 500, HorizonDays: 5, Seed: 7})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, 15, res.Samples)
}
