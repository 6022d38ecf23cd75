package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/client/venue"
	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/repository/memory"
	"tradegate/internal/risk"
	"tradegate/internal/strategy"
)

type fakeGate struct {
	mu         sync.Mutex
	killSwitch bool
	approve    bool
	adjusted   decimal.Decimal
	riskCalls  int
	validated  []domain.RiskCheckRequest
}

func (g *fakeGate) PortfolioRisk(ctx context.Context) (risk.PortfolioRisk, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.riskCalls++
	return risk.PortfolioRisk{
		Portfolio:  domain.PortfolioState{TotalCapital: dec("10000"), AvailableCapital: dec("10000")},
		KillSwitch: risk.KillSwitchState{Active: g.killSwitch, Reason: "drawdown"},
	}, nil
}

func (g *fakeGate) ValidateTrade(ctx context.Context, req domain.RiskCheckRequest) (domain.RiskCheckResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.validated = append(g.validated, req)
	res := domain.RiskCheckResult{Approved: g.approve, RequestedSize: req.Signal.PositionSizeUSD, AdjustedSizeUSD: g.adjusted}
	if !g.approve {
		res.AdjustedSizeUSD = decimal.Zero
		res.Rejections = []domain.Reason{{Code: domain.ReasonLowConfidence}}
	}
	return res, nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	requests []domain.TradeExecutionRequest
	entered  chan struct{}
	release  chan struct{}
}

func (e *fakeExecutor) ExecuteTrade(ctx context.Context, req domain.TradeExecutionRequest) (domain.TradeExecutionResult, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.entered != nil {
		e.entered <- struct{}{}
		<-e.release
	}
	return domain.TradeExecutionResult{Success: true, TradeID: "tr-1", Status: "FILLED", FilledSizeUSD: req.SizeUSD}, nil
}

type fakeMarketData struct {
	price   decimal.Decimal
	history []float64
	// quotes overrides price per "token/side".
	quotes map[string]decimal.Decimal
}

func (m fakeMarketData) GetPrice(ctx context.Context, tokenID, side string) (decimal.Decimal, error) {
	if q, ok := m.quotes[tokenID+"/"+side]; ok {
		return q, nil
	}
	return m.price, nil
}

func (m fakeMarketData) GetPriceHistory(ctx context.Context, tokenID, interval string, startTs, endTs *int64) ([]venue.PricePoint, error) {
	out := make([]venue.PricePoint, 0, len(m.history))
	for i, p := range m.history {
		out = append(out, venue.PricePoint{TS: time.Unix(int64(i)*3600, 0), Price: decimal.NewFromFloat(p)})
	}
	return out, nil
}

// fixedConsensus always decides YES at 300 for any market with signals. The
// direction defaults to BUY.
type fixedConsensus struct {
	markets      atomic.Int32
	direction    domain.Direction
	contributors []string
}

func (c *fixedConsensus) BuildConsensus(ctx context.Context, signals []domain.TradeSignal, marketID string, portfolio domain.PortfolioState) (domain.ConsensusResult, error) {
	c.markets.Add(1)
	if len(signals) == 0 {
		return domain.ConsensusResult{MarketID: marketID, Reasoning: "no signals"}, nil
	}
	direction := c.direction
	if direction == "" {
		direction = domain.DirectionBuy
	}
	result := domain.ConsensusResult{
		MarketID:            marketID,
		ShouldTrade:         true,
		Side:                domain.SideYes,
		Direction:           direction,
		AggregateConfidence: 0.7,
		PositionSizeUSD:     dec("300"),
		Contributors:        c.contributors,
	}
	if len(c.contributors) == 0 {
		result.StrategyID = "always"
		result.Contributors = []string{"always"}
	}
	return result, nil
}

type alwaysBuy struct{ w float64 }

func (s *alwaysBuy) ID() string { return "always" }
func (s *alwaysBuy) Weight() float64 { return s.w }
func (s *alwaysBuy) SetWeight(w float64) { s.w = w }
func (s *alwaysBuy) Analyze(ctx context.Context, m strategy.Market, p domain.PortfolioState, ext strategy.External) (*domain.TradeSignal, error) {
	return &domain.TradeSignal{Side: domain.SideYes, Direction: domain.DirectionBuy, Confidence: 0.7, PositionSizeUSD: dec("300")}, nil
}

func newCycle(gate *fakeGate, exec *fakeExecutor, markets ...string) *TradingCycle {
	var mcs []config.MarketConfig
	for _, id := range markets {
		mcs = append(mcs, config.MarketConfig{ID: id, YesTokenID: id + "-yes", NoTokenID: id + "-no"})
	}
	return &TradingCycle{
		Markets:    mcs,
		Strategies: []strategy.Strategy{&alwaysBuy{w: 1}},
		Consensus:  &fixedConsensus{},
		Risk:       gate,
		Executor:   exec,
		Prices:     fakeMarketData{price: dec("0.62"), history: []float64{0.5, 0.55, 0.6}},
	}
}

func TestTradingCycle_ExecutesWithAdjustedSize(t *testing.T) {
	gate := &fakeGate{approve: true, adjusted: dec("200")}
	exec := &fakeExecutor{}
	c := newCycle(gate, exec, "m1", "m2")

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Markets, 2)
	assert.Equal(t, 2, report.Executed())
	assert.Equal(t, 2, gate.riskCalls, "portfolio is re-read per market")

	require.Len(t, exec.requests, 2)
	req := exec.requests[0]
	assert.Equal(t, "m1", req.MarketID)
	assert.Equal(t, "m1-yes", req.TokenID)
	assert.True(t, req.SizeUSD.Equal(dec("200")), "size %s", req.SizeUSD)
	assert.Equal(t, domain.OrderTypeMarket, req.OrderType)
	require.NotNil(t, req.LimitPrice)
	assert.True(t, req.LimitPrice.Equal(dec("0.62")))

	require.Len(t, gate.validated, 2)
	assert.True(t, gate.validated[0].Signal.PositionSizeUSD.Equal(dec("300")))
	assert.Equal(t, "always", gate.validated[0].Signal.StrategyID)
}

func TestTradingCycle_ForwardsAllContributors(t *testing.T) {
	gate := &fakeGate{approve: true, adjusted: dec("100")}
	exec := &fakeExecutor{}
	c := newCycle(gate, exec, "m1")
	c.Consensus = &fixedConsensus{contributors: []string{"momentum", "mean_reversion"}}

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, exec.requests, 1)
	assert.Empty(t, exec.requests[0].StrategyID)
	assert.Equal(t, []string{"momentum", "mean_reversion"}, exec.requests[0].StrategyIDs)
}

func TestTradingCycle_SellReferenceUsesSellQuote(t *testing.T) {
	gate := &fakeGate{approve: true, adjusted: dec("100")}
	exec := &fakeExecutor{}
	c := newCycle(gate, exec, "m1")
	c.Consensus = &fixedConsensus{direction: domain.DirectionSell}
	c.Prices = fakeMarketData{
		price:   dec("0.62"),
		history: []float64{0.6, 0.61},
		quotes:  map[string]decimal.Decimal{"m1-yes/SELL": dec("0.55")},
	}

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, exec.requests, 1)
	req := exec.requests[0]
	assert.Equal(t, domain.DirectionSell, req.Direction)
	require.NotNil(t, req.LimitPrice)
	assert.True(t, req.LimitPrice.Equal(dec("0.55")), "reference %s", req.LimitPrice)
}

func TestTradingCycle_NoReferenceWithoutSellQuote(t *testing.T) {
	gate := &fakeGate{approve: true, adjusted: dec("100")}
	exec := &fakeExecutor{}
	c := newCycle(gate, exec, "m1")
	c.Consensus = &fixedConsensus{direction: domain.DirectionSell}
	c.Prices = fakeMarketData{
		price:   dec("0.62"),
		history: []float64{0.6, 0.61},
		quotes:  map[string]decimal.Decimal{"m1-yes/SELL": decimal.Zero},
	}

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, exec.requests, 1)
	assert.Nil(t, exec.requests[0].LimitPrice)
}

func TestTradingCycle_RejectionSkipsExecution(t *testing.T) {
	gate := &fakeGate{approve: false}
	exec := &fakeExecutor{}
	c := newCycle(gate, exec, "m1")

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Markets, 1)
	assert.Empty(t, exec.requests)
	assert.Contains(t, report.Markets[0].Skipped, string(domain.ReasonLowConfidence))
}

func TestTradingCycle_KillSwitchStopsCycle(t *testing.T) {
	gate := &fakeGate{killSwitch: true, approve: true, adjusted: dec("10")}
	exec := &fakeExecutor{}
	c := newCycle(gate, exec, "m1", "m2", "m3")

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Markets, 1)
	assert.Equal(t, skipKillSwitch, report.Markets[0].Skipped)
	assert.Empty(t, exec.requests)
	assert.Empty(t, gate.validated)
}

func TestTradingCycle_SingleFlight(t *testing.T) {
	gate := &fakeGate{approve: true, adjusted: dec("50")}
	exec := &fakeExecutor{entered: make(chan struct{}), release: make(chan struct{})}
	c := newCycle(gate, exec, "m1")

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background())
		done <- err
	}()
	<-exec.entered

	_, err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrCycleInFlight)

	close(exec.release)
	require.NoError(t, <-done)

	// The guard is released once the first cycle returns.
	exec.entered = nil
	_, err = c.Run(context.Background())
	require.NoError(t, err)
}

func TestTradingCycle_DisabledBySwitch(t *testing.T) {
	gate := &fakeGate{approve: true, adjusted: dec("50")}
	exec := &fakeExecutor{}
	c := newCycle(gate, exec, "m1")
	flags := &SystemSettingsService{Repo: memory.New()}
	require.NoError(t, flags.SetEnabled(context.Background(), FeatureTradingCycle, false))
	c.Flags = flags

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Markets)
	assert.Zero(t, gate.riskCalls)
}
