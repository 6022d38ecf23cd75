package risk

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/cache"
	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository"
	"tradegate/internal/repository/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.RiskEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, ev models.RiskEvent) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func newTestGate(t *testing.T) (*Gate, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.New()
	notifier := &recordingNotifier{}
	cfg := config.RiskConfig{MaxOpenPositions: 3}
	return NewGate(cfg, store, cache.NewMemoryStore(), notifier, nil), store, notifier
}

func buy(size int64, conf float64) domain.TradeSignal {
	return domain.TradeSignal{
		MarketID:        "m1",
		Side:            domain.SideYes,
		Direction:       domain.DirectionBuy,
		Confidence:      conf,
		PositionSizeUSD: decimal.NewFromInt(size),
		StrategyID:      "momentum",
	}
}

func capital(total int64) domain.PortfolioState {
	return domain.PortfolioState{
		TotalCapital:     decimal.NewFromInt(total),
		AvailableCapital: decimal.NewFromInt(total),
		DeployedCapital:  decimal.Zero,
	}
}

func TestValidateTrade_CapsToTwoPercent(t *testing.T) {
	g, _, _ := newTestGate(t)
	res, err := g.ValidateTrade(context.Background(), domain.RiskCheckRequest{Signal: buy(300, 0.8), Portfolio: capital(10000)})
	require.NoError(t, err)

	assert.True(t, res.Approved)
	assert.Empty(t, res.Rejections)
	assert.True(t, res.AdjustedSizeUSD.Equal(decimal.NewFromInt(200)), "adjusted=%s", res.AdjustedSizeUSD)
	assert.True(t, res.HasWarning(domain.ReasonTradeSizeCapped))
	assert.Equal(t, domain.DrawdownNormal, res.Ratios.DrawdownState)
}

func TestValidateTrade_DrawdownTripsStickyKillSwitch(t *testing.T) {
	g, store, notifier := newTestGate(t)
	ctx := context.Background()
	p := capital(10000)
	p.DailyPnL = decimal.NewFromInt(-300)
	p.DailyPnLPercent = -3.0

	first, err := g.ValidateTrade(ctx, domain.RiskCheckRequest{Signal: buy(100, 0.8), Portfolio: p})
	require.NoError(t, err)
	assert.False(t, first.Approved)
	assert.True(t, first.HasRejection(domain.ReasonDailyDrawdownBreach))
	assert.Equal(t, domain.DrawdownKillSwitch, first.Ratios.DrawdownState)

	second, err := g.ValidateTrade(ctx, domain.RiskCheckRequest{Signal: buy(100, 0.8), Portfolio: p})
	require.NoError(t, err)
	assert.False(t, second.Approved)
	assert.Equal(t, domain.ReasonKillSwitchActive, second.Rejections[0].Code)
	assert.True(t, second.AdjustedSizeUSD.IsZero())

	// P&L recovers; the switch stays.
	recovered := capital(10000)
	third, err := g.ValidateTrade(ctx, domain.RiskCheckRequest{Signal: buy(100, 0.8), Portfolio: recovered})
	require.NoError(t, err)
	assert.True(t, third.HasRejection(domain.ReasonKillSwitchActive))

	tripped, err := store.ListRiskEvents(ctx, repository.ListRiskEventsParams{EventType: strPtr(models.RiskEventKillSwitchTripped)})
	require.NoError(t, err)
	require.Len(t, tripped, 1)
	assert.Equal(t, models.SeverityCritical, tripped[0].Severity)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.RiskEventKillSwitchTripped, notifier.events[0].EventType)

	_, err = g.Drawdown.Reset(ctx, "admin", "reviewed")
	require.NoError(t, err)
	after, err := g.ValidateTrade(ctx, domain.RiskCheckRequest{Signal: buy(100, 0.8), Portfolio: recovered})
	require.NoError(t, err)
	assert.True(t, after.Approved)
}

func TestValidateTrade_Idempotent(t *testing.T) {
	g, _, _ := newTestGate(t)
	p := capital(5000)
	p.DailyPnLPercent = -1.6
	p.Positions = []domain.PositionState{{MarketID: "m1", Side: domain.SideYes, SizeUSD: decimal.NewFromInt(450)}}
	req := domain.RiskCheckRequest{Signal: buy(400, 0.6), Portfolio: p}

	a, err := g.ValidateTrade(context.Background(), req)
	require.NoError(t, err)
	b, err := g.ValidateTrade(context.Background(), req)
	require.NoError(t, err)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	assert.JSONEq(t, string(ja), string(jb))
	assert.True(t, a.HasWarning(domain.ReasonCapitalPreservation))
	assert.True(t, a.HasWarning(domain.ReasonMarketExposureCapped))
}

func TestValidateTrade_OversizeNeverExceedsCap(t *testing.T) {
	g, _, _ := newTestGate(t)
	for _, size := range []int64{200, 201, 450, 10000, 5000000} {
		res, err := g.ValidateTrade(context.Background(), domain.RiskCheckRequest{Signal: buy(size, 0.9), Portfolio: capital(10000)})
		require.NoError(t, err)
		assert.True(t, res.AdjustedSizeUSD.Equal(decimal.NewFromInt(200)), "size=%d adjusted=%s", size, res.AdjustedSizeUSD)
	}
}

func TestValidateTrade_CollectsAllRejections(t *testing.T) {
	g, store, _ := newTestGate(t)
	p := capital(10000)
	p.AvailableCapital = decimal.Zero
	res, err := g.ValidateTrade(context.Background(), domain.RiskCheckRequest{Signal: buy(300, 0.4), Portfolio: p})
	require.NoError(t, err)

	assert.False(t, res.Approved)
	assert.True(t, res.HasRejection(domain.ReasonLowConfidence))
	assert.True(t, res.HasRejection(domain.ReasonInsufficientCapital))
	assert.True(t, res.HasRejection(domain.ReasonBelowMinimumSize))
	assert.True(t, res.HasWarning(domain.ReasonTradeSizeCapped))

	events, err := store.ListRiskEvents(context.Background(), repository.ListRiskEventsParams{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.RiskEventTradeRejected, events[0].EventType)
	var codes []string
	require.NoError(t, json.Unmarshal(events[0].Reasons, &codes))
	assert.Contains(t, codes, string(domain.ReasonLowConfidence))
}

func TestValidateTrade_MarketExposureAndPositionLimits(t *testing.T) {
	g, _, _ := newTestGate(t)
	p := capital(10000)
	p.Positions = []domain.PositionState{
		{MarketID: "m1", Side: domain.SideYes, SizeUSD: decimal.NewFromInt(1000)},
		{MarketID: "m2", Side: domain.SideNo, SizeUSD: decimal.NewFromInt(50)},
		{MarketID: "m3", Side: domain.SideNo, SizeUSD: decimal.NewFromInt(50)},
	}
	res, err := g.ValidateTrade(context.Background(), domain.RiskCheckRequest{Signal: buy(100, 0.9), Portfolio: p})
	require.NoError(t, err)
	assert.True(t, res.HasRejection(domain.ReasonMarketExposureLimit))
	assert.True(t, res.HasRejection(domain.ReasonMaxPositionsReached))
	assert.Equal(t, 3, res.Ratios.OpenPositions)

	// Exits are not blocked by exposure or position caps.
	exit := buy(100, 0.9)
	exit.Direction = domain.DirectionSell
	res, err = g.ValidateTrade(context.Background(), domain.RiskCheckRequest{Signal: exit, Portfolio: p})
	require.NoError(t, err)
	assert.True(t, res.Approved, "rejections=%v", res.Rejections)
}

func TestValidateTrade_ManualKillSwitch(t *testing.T) {
	g, _, notifier := newTestGate(t)
	ctx := context.Background()
	_, err := g.Drawdown.Activate(ctx, "admin", "")
	require.NoError(t, err)

	res, err := g.ValidateTrade(ctx, domain.RiskCheckRequest{Signal: buy(10, 0.9), Portfolio: capital(10000)})
	require.NoError(t, err)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, domain.ReasonKillSwitchActive, res.Rejections[0].Code)
	assert.Len(t, notifier.events, 1)

	state, err := g.Drawdown.KillSwitch(ctx)
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.Equal(t, "manual activation", state.Reason)
}

func TestDrawdownClassify(t *testing.T) {
	d := &DrawdownMonitor{}
	assert.Equal(t, domain.DrawdownNormal, d.Classify(-1.49))
	assert.Equal(t, domain.DrawdownCapitalPreservation, d.Classify(-1.5))
	assert.Equal(t, domain.DrawdownCapitalPreservation, d.Classify(2.99))
	assert.Equal(t, domain.DrawdownKillSwitch, d.Classify(-3.0))
	assert.Equal(t, domain.DrawdownKillSwitch, d.Classify(3.4))
}

func TestDrawdownMeasure_FromFilledTrades(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	loss := decimal.NewFromInt(-200)
	old := decimal.NewFromInt(-5000)
	require.NoError(t, store.InsertTrade(ctx, &models.Trade{ID: "t1", MarketID: "m1", Status: models.TradeStatusFilled, FilledAt: &now, RealizedPnL: &loss}))
	require.NoError(t, store.InsertTrade(ctx, &models.Trade{ID: "t0", MarketID: "m1", Status: models.TradeStatusFilled, FilledAt: &yesterday, RealizedPnL: &old}))

	d := &DrawdownMonitor{Trades: store, Now: func() time.Time { return now }}
	reading, err := d.Measure(ctx, capital(10000))
	require.NoError(t, err)
	assert.InDelta(t, -2.0, reading.Percent, 1e-9)
	assert.Equal(t, domain.DrawdownCapitalPreservation, reading.State)
}

func strPtr(s string) *string { return &s }
