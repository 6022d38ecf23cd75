package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/chain"
	"tradegate/internal/client/venue"
	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository"
	"tradegate/internal/repository/memory"
	"tradegate/internal/wallet"
)

const testTx = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type fakeVenue struct {
	mu      sync.Mutex
	price   decimal.Decimal
	errs    []error
	places  int
	onPlace func()
}

func (v *fakeVenue) GetPrice(ctx context.Context, tokenID, side string) (decimal.Decimal, error) {
	return v.price, nil
}

func (v *fakeVenue) PlaceOrder(ctx context.Context, req venue.PlaceOrderRequest) (*venue.OrderResult, error) {
	v.mu.Lock()
	v.places++
	n := v.places
	hook := v.onPlace
	v.mu.Unlock()
	if hook != nil {
		hook()
	}
	if n <= len(v.errs) && v.errs[n-1] != nil {
		return nil, v.errs[n-1]
	}
	return &venue.OrderResult{OrderID: "order-1", Status: "matched", TxHashes: []string{testTx}}, nil
}

type fakeChain struct {
	native  decimal.Decimal
	stable  decimal.Decimal
	confirm []error
	calls   int
}

func (c *fakeChain) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	return c.native, nil
}

func (c *fakeChain) StableBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	return c.stable, nil
}

func (c *fakeChain) WaitForConfirmation(ctx context.Context, txHash string, minConfirmations uint64, timeout, interval time.Duration) (chain.Receipt, error) {
	c.calls++
	if c.calls <= len(c.confirm) && c.confirm[c.calls-1] != nil {
		return chain.Receipt{}, c.confirm[c.calls-1]
	}
	return chain.Receipt{TxHash: txHash, GasUsed: 120000, BlockNumber: 10, Confirmations: minConfirmations}, nil
}

// alwaysFail returns n copies of err.
func alwaysFail(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

type fakeSigner struct{}

func (fakeSigner) Address() string { return "0x1111111111111111111111111111111111111111" }

func (fakeSigner) SignOrder(p wallet.OrderParams) (wallet.SignedOrder, error) {
	return wallet.SignedOrder{Order: wallet.Order{TokenID: p.TokenID, Side: p.Side}, Signature: "0xsig"}, nil
}

type recordingSettler struct {
	mu      sync.Mutex
	settled []models.Trade
}

func (s *recordingSettler) Settle(ctx context.Context, trade models.Trade) error {
	s.mu.Lock()
	s.settled = append(s.settled, trade)
	s.mu.Unlock()
	return nil
}

type liveFixture struct {
	engine  *Engine
	store   *memory.Store
	venue   *fakeVenue
	chain   *fakeChain
	clock   *fakeClock
	settler *recordingSettler
}

func newLive(t *testing.T) *liveFixture {
	t.Helper()
	f := &liveFixture{
		store:   memory.New(),
		venue:   &fakeVenue{price: decimal.RequireFromString("0.5")},
		chain:   &fakeChain{native: decimal.NewFromInt(1), stable: decimal.NewFromInt(1000)},
		clock:   &fakeClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)},
		settler: &recordingSettler{},
	}
	cfg := config.ExecutorConfig{
		MaxRetries:            3,
		BaseDelay:             100 * time.Millisecond,
		MinGasBalance:         0.05,
		DefaultMaxSlippageBps: 200,
		MinConfirmations:      1,
	}
	f.engine = NewEngine(cfg, f.store, nil)
	f.engine.Signer = fakeSigner{}
	f.engine.Chain = f.chain
	f.engine.Venue = f.venue
	f.engine.Clock = f.clock
	f.engine.Settler = f.settler
	return f
}

func buyRequest(size int64) domain.TradeExecutionRequest {
	return domain.TradeExecutionRequest{
		MarketID:   "m1",
		TokenID:    "tok-yes",
		Side:       domain.SideYes,
		Direction:  domain.DirectionBuy,
		SizeUSD:    decimal.NewFromInt(size),
		StrategyID: "momentum",
		Confidence: 0.7,
	}
}

func TestExecuteTrade_SimulationFillsWithinBand(t *testing.T) {
	store := memory.New()
	settler := &recordingSettler{}
	e := NewEngine(config.ExecutorConfig{Simulation: true, SimMaxSlippageBps: 50}, store, nil)
	e.Settler = settler
	e.Seed(11)

	for _, size := range []int64{1, 7, 100, 250, 10000} {
		for i := 0; i < 20; i++ {
			req := buyRequest(size)
			if i%2 == 1 {
				req.Direction = domain.DirectionSell
			}
			res, err := e.ExecuteTrade(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, models.TradeStatusFilled, res.Status)
			assert.True(t, res.Success)
			assert.True(t, res.Simulated)
			lo := req.SizeUSD.Mul(decimal.RequireFromString("0.95"))
			assert.True(t, res.FilledSizeUSD.GreaterThanOrEqual(lo), "filled %s below %s", res.FilledSizeUSD, lo)
			assert.True(t, res.FilledSizeUSD.LessThanOrEqual(req.SizeUSD), "filled %s above %s", res.FilledSizeUSD, req.SizeUSD)
			assert.True(t, res.Slippage.LessThanOrEqual(decimal.RequireFromString("0.005")))

			stored, err := store.GetTradeByID(context.Background(), res.TradeID)
			require.NoError(t, err)
			assert.Equal(t, models.TradeStatusFilled, stored.Status)
		}
	}
	assert.Len(t, settler.settled, 100)
}

func TestExecuteTrade_PersistsBackingStrategies(t *testing.T) {
	store := memory.New()
	settler := &recordingSettler{}
	e := NewEngine(config.ExecutorConfig{Simulation: true, SimMaxSlippageBps: 50}, store, nil)
	e.Settler = settler
	e.Seed(3)

	req := buyRequest(40)
	req.StrategyID = ""
	req.StrategyIDs = []string{"momentum", "mean_reversion", "momentum"}
	res, err := e.ExecuteTrade(context.Background(), req)
	require.NoError(t, err)

	rec, err := e.GetTrade(context.Background(), res.TradeID)
	require.NoError(t, err)
	assert.Equal(t, []string{"momentum", "mean_reversion"}, rec.StrategyIDs)
	require.Len(t, settler.settled, 1)
	assert.Equal(t, []string{"momentum", "mean_reversion"}, models.DecodeStrategyIDs(settler.settled[0].StrategyIDs))
}

func TestExecuteTrade_LiveFill(t *testing.T) {
	f := newLive(t)
	res, err := f.engine.ExecuteTrade(context.Background(), buyRequest(50))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.TradeStatusFilled, res.Status)
	assert.Equal(t, testTx, res.TxHash)
	assert.Equal(t, uint64(120000), res.GasUsed)
	assert.True(t, res.FilledPrice.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, res.Slippage.IsZero())
	assert.Equal(t, 0, res.RetryCount)
	assert.Empty(t, f.clock.sleeps)
	require.Len(t, f.settler.settled, 1)
	assert.Equal(t, "order-1", f.settler.settled[0].VenueOrderID)
}

func TestExecuteTrade_RetryBoundAndBackoff(t *testing.T) {
	f := newLive(t)
	f.chain.confirm = alwaysFail(chain.ErrUnconfirmed, 10)

	res, err := f.engine.ExecuteTrade(context.Background(), buyRequest(50))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.TradeStatusFailed, res.Status)
	assert.Equal(t, domain.ErrCodeExecutionFailed, res.ErrorCode)
	assert.Contains(t, res.Error, "not confirmed")
	assert.Equal(t, 3, res.RetryCount)
	assert.Equal(t, 4, f.venue.places)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, f.clock.sleeps)
	assert.Empty(t, f.settler.settled)
}

func TestExecuteTrade_RecoversAfterRevert(t *testing.T) {
	f := newLive(t)
	f.chain.confirm = []error{chain.ErrReverted}
	f.venue.errs = []error{nil, &venue.APIError{Status: 503, Body: "busy"}}

	res, err := f.engine.ExecuteTrade(context.Background(), buyRequest(50))
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFilled, res.Status)
	assert.Equal(t, 2, res.RetryCount)
	assert.Equal(t, 3, f.venue.places)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, f.clock.sleeps)
}

func TestExecuteTrade_VenueRejectionIsFatal(t *testing.T) {
	f := newLive(t)
	f.venue.errs = []error{&venue.RejectedError{Reason: "not enough balance"}}

	res, err := f.engine.ExecuteTrade(context.Background(), buyRequest(50))
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFailed, res.Status)
	assert.Equal(t, 1, f.venue.places)
	assert.Empty(t, f.clock.sleeps)
	assert.Contains(t, res.Error, "not enough balance")
}

func TestExecuteTrade_PreflightFailures(t *testing.T) {
	f := newLive(t)
	f.chain.native = decimal.RequireFromString("0.01")
	res, err := f.engine.ExecuteTrade(context.Background(), buyRequest(50))
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFailed, res.Status)
	assert.Equal(t, domain.ErrCodeInsufficientGas, res.ErrorCode)
	assert.Equal(t, 0, f.venue.places)

	f = newLive(t)
	f.chain.stable = decimal.NewFromInt(10)
	res, err = f.engine.ExecuteTrade(context.Background(), buyRequest(50))
	require.NoError(t, err)
	assert.Equal(t, domain.ErrCodeInsufficientBalance, res.ErrorCode)

	// Sells do not need the stable asset.
	sell := buyRequest(50)
	sell.Direction = domain.DirectionSell
	res, err = f.engine.ExecuteTrade(context.Background(), sell)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFilled, res.Status)
}

func TestExecuteTrade_SlippageGuard(t *testing.T) {
	f := newLive(t)
	f.venue.price = decimal.RequireFromString("0.52")
	req := buyRequest(50)
	ref := decimal.RequireFromString("0.50")
	req.LimitPrice = &ref

	res, err := f.engine.ExecuteTrade(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrCodeSlippageExceeded, res.ErrorCode)
	assert.Equal(t, 0, f.venue.places)

	req.MaxSlippageBps = 500
	res, err = f.engine.ExecuteTrade(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFilled, res.Status)
	assert.True(t, res.Slippage.Equal(decimal.RequireFromString("0.04")), "slippage=%s", res.Slippage)
}

func TestExecuteTrade_CancelDuringExecutionDiscardsResult(t *testing.T) {
	f := newLive(t)
	f.venue.onPlace = func() {
		trades, err := f.store.ListTrades(context.Background(), repository.ListTradesParams{})
		require.NoError(t, err)
		require.Len(t, trades, 1)
		ok, err := f.engine.CancelOrder(context.Background(), trades[0].ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	res, err := f.engine.ExecuteTrade(context.Background(), buyRequest(50))
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusCancelled, res.Status)
	assert.Equal(t, domain.ErrCodeCancelled, res.ErrorCode)
	assert.False(t, res.Success)
	assert.Empty(t, f.settler.settled)

	stored, err := f.engine.GetTrade(context.Background(), res.TradeID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusCancelled, stored.Status)
	assert.Empty(t, stored.VenueOrderID)
}

func TestCancelOrder(t *testing.T) {
	f := newLive(t)
	ctx := context.Background()
	require.NoError(t, f.store.InsertTrade(ctx, &models.Trade{ID: "p1", MarketID: "m1", Status: models.TradeStatusPending}))
	require.NoError(t, f.store.InsertTrade(ctx, &models.Trade{ID: "f1", MarketID: "m1", Status: models.TradeStatusFilled}))

	ok, err := f.engine.CancelOrder(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.engine.CancelOrder(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.engine.CancelOrder(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, ok)
	rec, err := f.engine.GetTrade(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusFilled, rec.Status)

	_, err = f.engine.CancelOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestExecuteTrade_InvalidRequests(t *testing.T) {
	f := newLive(t)
	bad := []func(*domain.TradeExecutionRequest){
		func(r *domain.TradeExecutionRequest) { r.MarketID = "" },
		func(r *domain.TradeExecutionRequest) { r.Side = "MAYBE" },
		func(r *domain.TradeExecutionRequest) { r.Direction = "HOLD" },
		func(r *domain.TradeExecutionRequest) { r.SizeUSD = decimal.Zero },
		func(r *domain.TradeExecutionRequest) { r.OrderType = domain.OrderTypeLimit },
		func(r *domain.TradeExecutionRequest) { r.MaxSlippageBps = -1 },
	}
	for i, mutate := range bad {
		req := buyRequest(10)
		mutate(&req)
		_, err := f.engine.ExecuteTrade(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "case %d", i)
	}
	trades, err := f.store.ListTrades(context.Background(), repository.ListTradesParams{})
	require.NoError(t, err)
	assert.Empty(t, trades)

	e := NewEngine(config.ExecutorConfig{}, f.store, nil)
	_, err = e.ExecuteTrade(context.Background(), buyRequest(10))
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestWallet(t *testing.T) {
	f := newLive(t)
	info, err := f.engine.Wallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fakeSigner{}.Address(), info.Address)
	assert.True(t, info.StableBalance.Equal(decimal.NewFromInt(1000)))
	assert.False(t, info.Simulation)

	sim := NewEngine(config.ExecutorConfig{Simulation: true}, f.store, nil)
	info, err = sim.Wallet(context.Background())
	require.NoError(t, err)
	assert.Empty(t, info.Address)
	assert.True(t, info.Simulation)
}
