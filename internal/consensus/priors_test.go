package consensus

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/models"
	"tradegate/internal/repository/memory"
)

func TestUpdatePriors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	e := &Engine{Scores: store}
	require.NoError(t, e.EnsureStrategies(ctx, []string{"momentum"}))

	require.NoError(t, e.UpdatePriors(ctx, "momentum", true))
	require.NoError(t, e.UpdatePriors(ctx, "momentum", true))
	require.NoError(t, e.UpdatePriors(ctx, "momentum", false))

	row, err := store.GetStrategyScore(ctx, "momentum")
	require.NoError(t, err)
	assert.Equal(t, 4.0, row.Alpha)
	assert.Equal(t, 3.0, row.Beta)
}

func TestRecordOutcome_Stats(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	e := &Engine{Scores: store}

	require.NoError(t, e.RecordOutcome(ctx, "exit", decimal.NewFromInt(12)))
	require.NoError(t, e.RecordOutcome(ctx, "exit", decimal.NewFromInt(-4)))
	require.NoError(t, e.RecordOutcome(ctx, "exit", decimal.Zero))

	row, err := store.GetStrategyScore(ctx, "exit")
	require.NoError(t, err)
	assert.Equal(t, 3, row.TotalTrades)
	assert.Equal(t, 1, row.Wins)
	assert.Equal(t, 2, row.Losses)
	assert.InDelta(t, 1.0/3.0, row.WinRate, 1e-9)
	assert.InDelta(t, 8.0, row.TotalPnL, 1e-9)
	assert.Equal(t, 3.0, row.Alpha)
	assert.Equal(t, 4.0, row.Beta)
}

func TestSelfReflect(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	rows := []models.StrategyScore{
		{StrategyID: "good", Weight: 1.0, WinRate: 0.8, TotalTrades: 10, Alpha: 10, Beta: 4, Active: true},
		{StrategyID: "capped", Weight: 2.0, WinRate: 1.0, TotalTrades: 20, Alpha: 22, Beta: 2, Active: true},
		{StrategyID: "floored", Weight: 0.1, WinRate: 0.0, TotalTrades: 8, Alpha: 2, Beta: 10, Active: true},
		{StrategyID: "young", Weight: 1.0, WinRate: 1.0, TotalTrades: 3, Alpha: 5, Beta: 2, Active: true},
	}
	for i := range rows {
		require.NoError(t, store.UpsertStrategyScore(ctx, &rows[i]))
	}
	e := &Engine{Scores: store}

	updated, err := e.SelfReflect(ctx)
	require.NoError(t, err)
	assert.Len(t, updated, 3)

	good, _ := store.GetStrategyScore(ctx, "good")
	assert.InDelta(t, 0.7*1.0+0.3*1.6, good.Weight, 1e-9)
	assert.InDelta(t, 14.0, good.Alpha+good.Beta, 1e-9)
	assert.NotNil(t, good.LastReflectedAt)

	capped, _ := store.GetStrategyScore(ctx, "capped")
	assert.InDelta(t, 2.0, capped.Weight, 1e-9)

	floored, _ := store.GetStrategyScore(ctx, "floored")
	assert.Equal(t, 0.1, floored.Weight)

	young, _ := store.GetStrategyScore(ctx, "young")
	assert.Equal(t, 1.0, young.Weight)
	assert.Nil(t, young.LastReflectedAt)
}
