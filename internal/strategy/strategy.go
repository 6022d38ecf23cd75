package strategy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/config"
	"tradegate/internal/domain"
)

// Strategy is the capability the consensus engine depends on. Analyze returns
// nil when the strategy has no opinion on the market this cycle.
type Strategy interface {
	ID() string
	Analyze(ctx context.Context, market Market, portfolio domain.PortfolioState, external External) (*domain.TradeSignal, error)
	Weight() float64
	SetWeight(w float64)
}

// Market is the per-cycle view of one binary market.
type Market struct {
	ID         string
	YesTokenID string
	NoTokenID  string
	// YesPrice is the latest YES mid; the NO price is its complement.
	YesPrice float64
	// History holds YES prices, oldest first.
	History []float64
}

func (m Market) PriceOf(side domain.Side) float64 {
	if side == domain.SideNo {
		return 1 - m.YesPrice
	}
	return m.YesPrice
}

func (m Market) TokenFor(side domain.Side) string {
	if side == domain.SideNo {
		return m.NoTokenID
	}
	return m.YesTokenID
}

// External carries optional named inputs from outside the price feed.
type External map[string]float64

type weighted struct {
	mu     sync.RWMutex
	weight float64
}

func (w *weighted) Weight() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.weight <= 0 {
		return 1.0
	}
	return w.weight
}

func (w *weighted) SetWeight(v float64) {
	w.mu.Lock()
	w.weight = v
	w.mu.Unlock()
}

// FromConfig builds the enabled strategies.
func FromConfig(cfg config.StrategyConfig) []Strategy {
	var out []Strategy
	if cfg.Momentum.Enabled {
		out = append(out, &Momentum{Lookback: cfg.Momentum.Lookback, MinMovePct: cfg.Momentum.MinMovePct, BaseSizePct: cfg.Momentum.BaseSizePct})
	}
	if cfg.MeanReversion.Enabled {
		out = append(out, &MeanReversion{Window: cfg.MeanReversion.Window, EntryZ: cfg.MeanReversion.EntryZ, BaseSizePct: cfg.MeanReversion.BaseSizePct})
	}
	if cfg.Exit.Enabled {
		out = append(out, &Exit{StopLossPct: cfg.Exit.StopLossPct, TakeProfitPct: cfg.Exit.TakeProfitPct})
	}
	return out
}

// IDs lists the strategy ids in order.
func IDs(strategies []Strategy) []string {
	out := make([]string, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			out = append(out, s.ID())
		}
	}
	return out
}

// Set looks up in-process weights by strategy id.
type Set []Strategy

func (s Set) WeightOf(strategyID string) (float64, bool) {
	for _, st := range s {
		if st != nil && st.ID() == strategyID {
			return st.Weight(), true
		}
	}
	return 0, false
}

// Collect runs every strategy against one market. A failing strategy is
// logged and skipped so the others still vote.
func Collect(ctx context.Context, strategies []Strategy, market Market, portfolio domain.PortfolioState, external External, logger *zap.Logger) []domain.TradeSignal {
	now := time.Now().UTC()
	out := make([]domain.TradeSignal, 0, len(strategies))
	for _, s := range strategies {
		if s == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		sig, err := s.Analyze(ctx, market, portfolio, external)
		if err != nil {
			if logger != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("strategy: analyze failed", zap.String("strategy", s.ID()), zap.String("market_id", market.ID), zap.Error(err))
			}
			continue
		}
		if sig == nil {
			continue
		}
		if sig.MarketID == "" {
			sig.MarketID = market.ID
		}
		if sig.StrategyID == "" {
			sig.StrategyID = s.ID()
		}
		if sig.CreatedAt.IsZero() {
			sig.CreatedAt = now
		}
		out = append(out, *sig)
	}
	return out
}

func sizeFor(portfolio domain.PortfolioState, pct, confidence float64) decimal.Decimal {
	if pct <= 0 || portfolio.AvailableCapital.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return portfolio.AvailableCapital.Mul(decimal.NewFromFloat(pct * confidence)).Round(2)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
