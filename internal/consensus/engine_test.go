package consensus

import (
	"context"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository/memory"
)

func seedScores(t *testing.T, store *memory.Store, rows ...models.StrategyScore) {
	t.Helper()
	for i := range rows {
		row := rows[i]
		if row.Alpha == 0 {
			row.Alpha = 2
		}
		if row.Beta == 0 {
			row.Beta = 2
		}
		row.Active = true
		require.NoError(t, store.UpsertStrategyScore(context.Background(), &row))
	}
}

func signal(strategy string, side domain.Side, dir domain.Direction, conf float64, size int64) domain.TradeSignal {
	return domain.TradeSignal{
		MarketID:        "m1",
		Side:            side,
		Direction:       dir,
		Confidence:      conf,
		PositionSizeUSD: decimal.NewFromInt(size),
		StrategyID:      strategy,
	}
}

func TestBuildConsensus_NoSignals(t *testing.T) {
	e := &Engine{Scores: memory.New()}
	res, err := e.BuildConsensus(context.Background(), nil, "m1", domain.PortfolioState{})
	require.NoError(t, err)
	assert.False(t, res.ShouldTrade)
	assert.Equal(t, domain.MethodWeightedAverage, res.Method)
	assert.Equal(t, 0.0, res.AggregateConfidence)
	assert.True(t, res.PositionSizeUSD.IsZero())
}

func TestBuildConsensus_WeightedVote(t *testing.T) {
	store := memory.New()
	seedScores(t, store,
		models.StrategyScore{StrategyID: "momentum", Weight: 1.0},
		models.StrategyScore{StrategyID: "reversion", Weight: 0.5},
	)
	e := &Engine{Scores: store}

	res, err := e.BuildConsensus(context.Background(), []domain.TradeSignal{
		signal("momentum", domain.SideYes, domain.DirectionBuy, 0.8, 100),
		signal("reversion", domain.SideNo, domain.DirectionBuy, 0.6, 100),
	}, "m1", domain.PortfolioState{})
	require.NoError(t, err)

	assert.Equal(t, domain.SideYes, res.Side)
	assert.InDelta(t, 0.8/1.5, res.RawConfidence, 1e-9)
	assert.InDelta(t, (0.8-0.3)/1.5, res.ConsensusGap, 1e-9)
	// Pooled prior of 8 pseudo-observations keeps the blend weight at 1.
	assert.InDelta(t, 0.8/1.5, res.AggregateConfidence, 1e-9)
	assert.False(t, res.ShouldTrade)
	assert.True(t, res.PositionSizeUSD.IsZero())
	assert.Len(t, res.Votes, 2)
}

func TestBuildConsensus_ShouldTradeUsesWeightedSize(t *testing.T) {
	store := memory.New()
	seedScores(t, store,
		models.StrategyScore{StrategyID: "a", Weight: 1.0},
		models.StrategyScore{StrategyID: "b", Weight: 0.5},
	)
	e := &Engine{Scores: store}

	res, err := e.BuildConsensus(context.Background(), []domain.TradeSignal{
		signal("a", domain.SideYes, domain.DirectionBuy, 0.9, 100),
		signal("b", domain.SideYes, domain.DirectionBuy, 0.7, 40),
	}, "m1", domain.PortfolioState{})
	require.NoError(t, err)

	assert.True(t, res.ShouldTrade)
	assert.Equal(t, domain.DirectionBuy, res.Direction)
	assert.InDelta(t, (0.9+0.35)/1.5, res.AggregateConfidence, 1e-9)
	assert.True(t, res.PositionSizeUSD.Equal(decimal.NewFromInt(80)), "size=%s", res.PositionSizeUSD)
	assert.Empty(t, res.StrategyID)
	assert.Equal(t, []string{"a", "b"}, res.Contributors)
}

func TestBuildConsensus_ContributorsAreWinningSideOnly(t *testing.T) {
	e := &Engine{Scores: memory.New()}
	res, err := e.BuildConsensus(context.Background(), []domain.TradeSignal{
		signal("a", domain.SideYes, domain.DirectionBuy, 0.9, 100),
		signal("c", domain.SideNo, domain.DirectionBuy, 0.2, 100),
		signal("b", domain.SideYes, domain.DirectionBuy, 0.9, 60),
	}, "m1", domain.PortfolioState{})
	require.NoError(t, err)

	require.True(t, res.ShouldTrade, res.Reasoning)
	assert.Equal(t, domain.SideYes, res.Side)
	assert.Equal(t, []string{"a", "b"}, res.Contributors)
	assert.True(t, res.PositionSizeUSD.Equal(decimal.NewFromInt(80)), "size=%s", res.PositionSizeUSD)
}

type weightTable map[string]float64

func (w weightTable) WeightOf(id string) (float64, bool) {
	v, ok := w[id]
	return v, ok
}

func TestBuildConsensus_InProcessWeightWithoutScoreRow(t *testing.T) {
	store := memory.New()
	seedScores(t, store, models.StrategyScore{StrategyID: "b", Weight: 1.0})
	e := &Engine{Scores: store, Weights: weightTable{"a": 0.5, "b": 3.0}}

	res, err := e.BuildConsensus(context.Background(), []domain.TradeSignal{
		signal("a", domain.SideYes, domain.DirectionBuy, 0.8, 50),
		signal("b", domain.SideNo, domain.DirectionBuy, 0.6, 50),
	}, "m1", domain.PortfolioState{})
	require.NoError(t, err)

	require.Len(t, res.Votes, 2)
	assert.InDelta(t, 0.5, res.Votes[0].Weight, 1e-9)
	// The score row wins over the in-process weight.
	assert.InDelta(t, 1.0, res.Votes[1].Weight, 1e-9)
	assert.Equal(t, domain.SideNo, res.Side)
}

func TestBuildConsensus_WeakGapHalvesConfidence(t *testing.T) {
	e := &Engine{Scores: memory.New()}
	res, err := e.BuildConsensus(context.Background(), []domain.TradeSignal{
		signal("a", domain.SideYes, domain.DirectionBuy, 0.8, 50),
		signal("b", domain.SideNo, domain.DirectionBuy, 0.75, 50),
	}, "m1", domain.PortfolioState{})
	require.NoError(t, err)

	assert.InDelta(t, 0.025, res.ConsensusGap, 1e-9)
	assert.InDelta(t, 0.4/2, res.AggregateConfidence, 1e-9)
	assert.False(t, res.ShouldTrade)
}

func TestBuildConsensus_SellOverridesBuys(t *testing.T) {
	e := &Engine{Scores: memory.New()}
	res, err := e.BuildConsensus(context.Background(), []domain.TradeSignal{
		signal("a", domain.SideYes, domain.DirectionBuy, 0.95, 200),
		signal("exit", domain.SideNo, domain.DirectionSell, 0.3, 37),
		signal("b", domain.SideYes, domain.DirectionBuy, 0.9, 200),
	}, "m1", domain.PortfolioState{})
	require.NoError(t, err)

	assert.Equal(t, domain.MethodPriorityOverride, res.Method)
	assert.True(t, res.ShouldTrade)
	assert.Equal(t, domain.SideNo, res.Side)
	assert.Equal(t, domain.DirectionSell, res.Direction)
	assert.Equal(t, 0.3, res.AggregateConfidence)
	assert.True(t, res.PositionSizeUSD.Equal(decimal.NewFromInt(37)))
	assert.Equal(t, "exit", res.StrategyID)
	assert.Equal(t, []string{"exit"}, res.Contributors)
}

func TestBuildConsensus_SellTieBreak(t *testing.T) {
	signals := []domain.TradeSignal{
		signal("stop", domain.SideYes, domain.DirectionSell, 0.6, 10),
		signal("take", domain.SideNo, domain.DirectionSell, 0.9, 20),
	}

	byConfidence := &Engine{Scores: memory.New()}
	res, err := byConfidence.BuildConsensus(context.Background(), signals, "m1", domain.PortfolioState{})
	require.NoError(t, err)
	assert.Equal(t, "take", res.StrategyID)

	first := &Engine{Scores: memory.New()}
	first.Config.SellTieBreak = TieBreakFirst
	res, err = first.BuildConsensus(context.Background(), signals, "m1", domain.PortfolioState{})
	require.NoError(t, err)
	assert.Equal(t, "stop", res.StrategyID)
}

func TestBuildConsensus_RandomMixesAlwaysPickASell(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e := &Engine{Scores: memory.New()}
	sides := []domain.Side{domain.SideYes, domain.SideNo}
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		var signals []domain.TradeSignal
		var sells []domain.TradeSignal
		for j := 0; j < n; j++ {
			dir := domain.DirectionBuy
			if rng.Intn(3) == 0 {
				dir = domain.DirectionSell
			}
			s := signal("s"+string(rune('a'+j)), sides[rng.Intn(2)], dir, rng.Float64()*1.4-0.2, int64(rng.Intn(500)))
			signals = append(signals, s)
			if dir == domain.DirectionSell {
				sells = append(sells, s)
			}
		}
		res, err := e.BuildConsensus(context.Background(), signals, "m1", domain.PortfolioState{})
		require.NoError(t, err)

		assert.GreaterOrEqual(t, res.AggregateConfidence, 0.0)
		assert.LessOrEqual(t, res.AggregateConfidence, 1.0)
		if !res.ShouldTrade {
			assert.True(t, res.PositionSizeUSD.IsZero())
		}
		if len(sells) == 0 {
			continue
		}
		matched := false
		for _, s := range sells {
			if s.StrategyID == res.StrategyID && s.Side == res.Side && s.PositionSizeUSD.Equal(res.PositionSizeUSD) {
				matched = true
			}
		}
		assert.True(t, matched, "case %d: result %+v not from a sell signal", i, res)
	}
}

func TestBuildConsensus_InactiveStrategyIgnored(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.UpsertStrategyScore(context.Background(), &models.StrategyScore{
		StrategyID: "muted", Weight: 1, Alpha: 2, Beta: 2, Active: false,
	}))
	e := &Engine{Scores: store}
	res, err := e.BuildConsensus(context.Background(), []domain.TradeSignal{
		signal("muted", domain.SideYes, domain.DirectionSell, 0.9, 10),
	}, "m1", domain.PortfolioState{})
	require.NoError(t, err)
	assert.False(t, res.ShouldTrade)
	assert.Empty(t, res.Votes)
}

func TestBayesianBlend(t *testing.T) {
	assert.InDelta(t, 0.9, bayesianBlend(0.9, 2, 2, 10), 1e-9)
	// 40 pooled observations: 25% weight on the new evidence.
	assert.InDelta(t, 0.25*0.9+0.75*0.75, bayesianBlend(0.9, 30, 10, 10), 1e-9)
	assert.Equal(t, 1.0, bayesianBlend(3, 0, 0, 10))
	assert.Equal(t, 0.0, bayesianBlend(-1, 2, 2, 10))
}
