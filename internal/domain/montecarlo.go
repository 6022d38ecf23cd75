package domain

import (
	"github.com/shopspring/decimal"
)

type MonteCarloConfig struct {
	Simulations     int     `json:"simulations"`
	HorizonDays     int     `json:"horizonDays"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
	// Seed makes a run reproducible; zero draws a random seed.
	Seed uint64 `json:"seed,omitempty"`
}

type Percentiles struct {
	P5  decimal.Decimal `json:"p5"`
	P25 decimal.Decimal `json:"p25"`
	P50 decimal.Decimal `json:"p50"`
	P75 decimal.Decimal `json:"p75"`
	P95 decimal.Decimal `json:"p95"`
}

type MonteCarloResult struct {
	PortfolioValue  decimal.Decimal `json:"portfolioValue"`
	Simulations     int             `json:"simulations"`
	HorizonDays     int             `json:"horizonDays"`
	ConfidenceLevel float64         `json:"confidenceLevel"`
	VaR             decimal.Decimal `json:"var"`
	CVaR            decimal.Decimal `json:"cvar"`
	Percentiles     Percentiles     `json:"percentiles"`
	BestCase        decimal.Decimal `json:"bestCase"`
	WorstCase       decimal.Decimal `json:"worstCase"`
	MeanDailyReturn float64         `json:"meanDailyReturn"`
	StdDailyReturn  float64         `json:"stdDailyReturn"`
	Samples         int             `json:"samples"`
	// Fallback is true when history was too short and fixed percentages were used.
	Fallback bool `json:"fallback"`
}

// MonteCarloRequest values PortfolioValue, or the current portfolio when it
// is omitted.
type MonteCarloRequest struct {
	PortfolioValue *decimal.Decimal `json:"portfolioValue,omitempty"`
	Config         MonteCarloConfig `json:"config"`
}
