package strategy

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"tradegate/internal/config"
	"tradegate/internal/domain"
)

func portfolioWith(capital int64, positions ...domain.PositionState) domain.PortfolioState {
	return domain.PortfolioState{
		TotalCapital:     decimal.NewFromInt(capital),
		AvailableCapital: decimal.NewFromInt(capital),
		Positions:        positions,
	}
}

func flatHistory(n int, p float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func TestMomentum_FollowsTrend(t *testing.T) {
	history := flatHistory(13, 0.40)
	history[12] = 0.50
	s := &Momentum{Lookback: 12, MinMovePct: 0.03, BaseSizePct: 0.015}

	sig, err := s.Analyze(context.Background(), Market{ID: "m1", YesPrice: 0.5, History: history}, portfolioWith(1000), nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig == nil {
		t.Fatalf("expected signal")
	}
	if sig.Side != domain.SideYes || sig.Direction != domain.DirectionBuy {
		t.Fatalf("side=%s dir=%s", sig.Side, sig.Direction)
	}
	if math.Abs(sig.Confidence-0.75) > 1e-9 {
		t.Fatalf("confidence=%v want=0.75", sig.Confidence)
	}
	if got := sig.PositionSizeUSD.InexactFloat64(); math.Abs(got-11.25) > 0.011 {
		t.Fatalf("size=%v want~11.25", got)
	}

	history[12] = 0.30
	sig, _ = s.Analyze(context.Background(), Market{ID: "m1", YesPrice: 0.3, History: history}, portfolioWith(1000), External{"sentiment": 1})
	if sig == nil || sig.Side != domain.SideNo {
		t.Fatalf("expected NO signal, got %+v", sig)
	}
	if math.Abs(sig.Confidence-0.375) > 1e-9 {
		t.Fatalf("confidence=%v want=0.375 after disagreeing sentiment", sig.Confidence)
	}
}

func TestMomentum_QuietMarket(t *testing.T) {
	s := &Momentum{Lookback: 12, MinMovePct: 0.03, BaseSizePct: 0.015}
	sig, err := s.Analyze(context.Background(), Market{ID: "m1", History: flatHistory(20, 0.5)}, portfolioWith(1000), nil)
	if err != nil || sig != nil {
		t.Fatalf("sig=%+v err=%v want nil", sig, err)
	}
	sig, _ = s.Analyze(context.Background(), Market{ID: "m1", History: flatHistory(5, 0.5)}, portfolioWith(1000), nil)
	if sig != nil {
		t.Fatalf("short history should not signal")
	}
}

func TestMeanReversion_FadesStretch(t *testing.T) {
	s := &MeanReversion{Window: 5, EntryZ: 1.5, BaseSizePct: 0.01}
	history := []float64{0.5, 0.5, 0.5, 0.5, 0.8}

	sig, err := s.Analyze(context.Background(), Market{ID: "m1", YesPrice: 0.8, History: history}, portfolioWith(1000), nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig == nil || sig.Side != domain.SideNo {
		t.Fatalf("expected BUY NO, got %+v", sig)
	}
	if math.Abs(sig.Confidence-0.7) > 1e-9 {
		t.Fatalf("confidence=%v want=0.7", sig.Confidence)
	}

	sig, _ = s.Analyze(context.Background(), Market{ID: "m1", History: flatHistory(5, 0.5)}, portfolioWith(1000), nil)
	if sig != nil {
		t.Fatalf("flat window should not signal")
	}
}

func TestExit_StopLossAndTakeProfit(t *testing.T) {
	s := &Exit{StopLossPct: 0.15, TakeProfitPct: 0.25}
	losing := domain.PositionState{MarketID: "m1", Side: domain.SideYes, Quantity: decimal.NewFromInt(100), AvgEntryPrice: decimal.RequireFromString("0.5")}

	sig, err := s.Analyze(context.Background(), Market{ID: "m1", YesPrice: 0.4}, portfolioWith(1000, losing), nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sig == nil || sig.Direction != domain.DirectionSell || sig.Side != domain.SideYes {
		t.Fatalf("expected SELL YES, got %+v", sig)
	}
	if !sig.PositionSizeUSD.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("size=%s want=40", sig.PositionSizeUSD)
	}

	winning := domain.PositionState{MarketID: "m1", Side: domain.SideNo, Quantity: decimal.NewFromInt(10), AvgEntryPrice: decimal.RequireFromString("0.4")}
	sig, _ = s.Analyze(context.Background(), Market{ID: "m1", YesPrice: 0.45}, portfolioWith(1000, winning), nil)
	if sig == nil || sig.Side != domain.SideNo || sig.Confidence != 0.8 {
		t.Fatalf("expected take profit on NO, got %+v", sig)
	}

	sig, _ = s.Analyze(context.Background(), Market{ID: "m2", YesPrice: 0.1}, portfolioWith(1000, losing), nil)
	if sig != nil {
		t.Fatalf("positions in other markets must be ignored")
	}
}

type failing struct{ weighted }

func (f *failing) ID() string { return "failing" }

func (f *failing) Analyze(context.Context, Market, domain.PortfolioState, External) (*domain.TradeSignal, error) {
	return nil, errors.New("feed down")
}

func TestCollect_SkipsFailures(t *testing.T) {
	history := flatHistory(13, 0.40)
	history[12] = 0.50
	strategies := []Strategy{&failing{}, &Momentum{Lookback: 12, BaseSizePct: 0.02}}

	got := Collect(context.Background(), strategies, Market{ID: "m1", YesPrice: 0.5, History: history}, portfolioWith(1000), nil, nil)
	if len(got) != 1 {
		t.Fatalf("signals=%d want=1", len(got))
	}
	if got[0].StrategyID != "momentum" || got[0].MarketID != "m1" || got[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected signal %+v", got[0])
	}
}

func TestFromConfig(t *testing.T) {
	all := FromConfig(config.StrategyConfig{
		Momentum:      config.MomentumConfig{Enabled: true},
		MeanReversion: config.MeanReversionConfig{Enabled: false},
		Exit:          config.ExitConfig{Enabled: true},
	})
	ids := IDs(all)
	if len(ids) != 2 || ids[0] != "momentum" || ids[1] != "exit" {
		t.Fatalf("ids=%v", ids)
	}
	all[0].SetWeight(1.4)
	if all[0].Weight() != 1.4 {
		t.Fatalf("weight=%v want=1.4", all[0].Weight())
	}
	if all[1].Weight() != 1.0 {
		t.Fatalf("default weight=%v want=1", all[1].Weight())
	}
}

func TestSet_WeightOf(t *testing.T) {
	all := Set(FromConfig(config.StrategyConfig{
		Momentum: config.MomentumConfig{Enabled: true},
		Exit:     config.ExitConfig{Enabled: true},
	}))
	all[1].SetWeight(0.4)
	if w, ok := all.WeightOf("exit"); !ok || w != 0.4 {
		t.Fatalf("exit weight=%v ok=%v want=0.4", w, ok)
	}
	if _, ok := all.WeightOf("mean_reversion"); ok {
		t.Fatalf("disabled strategy should not resolve")
	}
}
