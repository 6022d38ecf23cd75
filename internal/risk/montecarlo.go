package risk

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/domain"
	"tradegate/internal/repository"
)

const (
	maxSimulations      = 100000
	maxHorizonDays      = 365
	minHistorySamples   = 10
	defaultSimulations  = 10000
	defaultHorizonDays  = 30
	defaultConfidence   = 0.95
	defaultHistoryDays  = 365
	fallbackVaRFraction = 0.10
)

// MonteCarlo projects portfolio value paths from the daily return history in
// the portfolio snapshots.
type MonteCarlo struct {
	Snapshots   repository.PortfolioRepository
	HistoryDays int
	Logger      *zap.Logger
}

func (m *MonteCarlo) Run(ctx context.Context, value decimal.Decimal, cfg domain.MonteCarloConfig) (domain.MonteCarloResult, error) {
	var returns []float64
	if m.Snapshots != nil {
		days := m.HistoryDays
		if days <= 0 {
			days = defaultHistoryDays
		}
		snaps, err := m.Snapshots.ListPortfolioSnapshots(ctx, days)
		if err != nil {
			return domain.MonteCarloResult{}, fmt.Errorf("load snapshots: %w", err)
		}
		for _, s := range snaps {
			if !s.TotalValue.IsPositive() {
				continue
			}
			returns = append(returns, s.DailyPnL.Div(s.TotalValue).InexactFloat64())
		}
	}
	res := Simulate(value, returns, cfg)
	if m.Logger != nil {
		m.Logger.Info("risk: monte carlo",
			zap.Int("simulations", res.Simulations),
			zap.Int("horizon_days", res.HorizonDays),
			zap.Int("samples", res.Samples),
			zap.Bool("fallback", res.Fallback),
			zap.String("var", res.VaR.StringFixed(2)),
		)
	}
	return res, nil
}

// Simulate draws daily returns from a normal fit of history and compounds
// them per path. With too little history it reports fixed illustrative bands.
func Simulate(value decimal.Decimal, history []float64, cfg domain.MonteCarloConfig) domain.MonteCarloResult {
	cfg = normalizeMonteCarlo(cfg)
	res := domain.MonteCarloResult{
		PortfolioValue:  value,
		Simulations:     cfg.Simulations,
		HorizonDays:     cfg.HorizonDays,
		ConfidenceLevel: cfg.ConfidenceLevel,
		Samples:         len(history),
	}
	if len(history) < minHistorySamples {
		return fallbackMonteCarlo(res)
	}

	mu, sigma := mean(history), stddev(history)
	res.MeanDailyReturn = mu
	res.StdDailyReturn = sigma

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	start := value.InexactFloat64()
	finals := make([]float64, cfg.Simulations)
	for i := range finals {
		v := start
		for d := 0; d < cfg.HorizonDays; d++ {
			v *= 1 + mu + sigma*boxMuller(rng)
			if v <= 0 {
				v = 0
				break
			}
		}
		finals[i] = v
	}
	sort.Float64s(finals)

	cutoff := percentile(finals, 1-cfg.ConfidenceLevel)
	var tailLoss float64
	var tailN int
	for _, f := range finals {
		if f > cutoff {
			break
		}
		tailLoss += start - f
		tailN++
	}
	varLoss := math.Max(0, start-cutoff)
	cvar := varLoss
	if tailN > 0 {
		cvar = math.Max(varLoss, tailLoss/float64(tailN))
	}

	res.VaR = money(varLoss)
	res.CVaR = money(cvar)
	res.Percentiles = domain.Percentiles{
		P5:  money(percentile(finals, 0.05)),
		P25: money(percentile(finals, 0.25)),
		P50: money(percentile(finals, 0.50)),
		P75: money(percentile(finals, 0.75)),
		P95: money(percentile(finals, 0.95)),
	}
	res.WorstCase = money(finals[0])
	res.BestCase = money(finals[len(finals)-1])
	return res
}

func fallbackMonteCarlo(res domain.MonteCarloResult) domain.MonteCarloResult {
	v := res.PortfolioValue
	at := func(f float64) decimal.Decimal { return v.Mul(decimal.NewFromFloat(f)).Round(2) }
	res.Fallback = true
	res.VaR = at(fallbackVaRFraction)
	res.CVaR = at(0.15)
	res.Percentiles = domain.Percentiles{P5: at(0.90), P25: at(0.96), P50: at(1.00), P75: at(1.04), P95: at(1.10)}
	res.WorstCase = at(0.80)
	res.BestCase = at(1.20)
	return res
}

func normalizeMonteCarlo(cfg domain.MonteCarloConfig) domain.MonteCarloConfig {
	if cfg.Simulations <= 0 {
		cfg.Simulations = defaultSimulations
	}
	if cfg.Simulations > maxSimulations {
		cfg.Simulations = maxSimulations
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = defaultHorizonDays
	}
	if cfg.HorizonDays > maxHorizonDays {
		cfg.HorizonDays = maxHorizonDays
	}
	if cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel >= 1 {
		cfg.ConfidenceLevel = defaultConfidence
	}
	return cfg
}

// boxMuller returns one standard normal draw.
func boxMuller(rng *rand.Rand) float64 {
	u1 := 1 - rng.Float64() // (0, 1]
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// percentile reads q from sorted xs by nearest lower rank.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(q * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
