package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/models"
	"tradegate/internal/repository"
)

func TestTransitionTrade_OnlyFromAllowedStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertTrade(ctx, &models.Trade{ID: "t1", Status: models.TradeStatusPending}))

	ok, err := s.TransitionTrade(ctx, "t1", []string{models.TradeStatusPending}, repository.TradeUpdate{Status: models.TradeStatusCancelled})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionTrade(ctx, "t1", []string{models.TradeStatusPending, models.TradeStatusSubmitted}, repository.TradeUpdate{Status: models.TradeStatusFilled})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetTradeByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusCancelled, got.Status)
}

func TestIncrementTradeRetry(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertTrade(ctx, &models.Trade{ID: "t1", Status: models.TradeStatusPending}))
	for i := 1; i <= 3; i++ {
		n, err := s.IncrementTradeRetry(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}

func TestSumRealizedPnLSince_OnlyFilledSameWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	yesterday := now.Add(-30 * time.Hour)
	loss := decimal.NewFromInt(-120)
	old := decimal.NewFromInt(-500)
	require.NoError(t, s.InsertTrade(ctx, &models.Trade{ID: "a", Status: models.TradeStatusFilled, FilledAt: &now, RealizedPnL: &loss}))
	require.NoError(t, s.InsertTrade(ctx, &models.Trade{ID: "b", Status: models.TradeStatusFilled, FilledAt: &yesterday, RealizedPnL: &old}))
	require.NoError(t, s.InsertTrade(ctx, &models.Trade{ID: "c", Status: models.TradeStatusFailed, FilledAt: &now, RealizedPnL: &old}))

	sum, err := s.SumRealizedPnLSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, sum.Equal(loss), "sum=%s", sum)
}

func TestListPortfolioSnapshots_OldestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpsertPortfolioSnapshot(ctx, &models.PortfolioSnapshot{
			SnapshotDate: base.AddDate(0, 0, i),
			TotalValue:   decimal.NewFromInt(int64(1000 + i)),
		}))
	}
	items, err := s.ListPortfolioSnapshots(ctx, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, base.AddDate(0, 0, 2), items[0].SnapshotDate)
	assert.Equal(t, base.AddDate(0, 0, 4), items[2].SnapshotDate)
}
