package risk

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

type MarketRisk struct {
	MarketID             string          `json:"marketId"`
	ExposureUSD          decimal.Decimal `json:"exposureUsd"`
	ExposureRatio        float64         `json:"exposureRatio"`
	HeadroomUSD          decimal.Decimal `json:"headroomUsd"`
	Volatility           float64         `json:"volatility"`
	VolatilityMultiplier float64         `json:"volatilityMultiplier"`
}

type PortfolioRisk struct {
	Portfolio          domain.PortfolioState `json:"portfolio"`
	KillSwitch         KillSwitchState       `json:"killSwitch"`
	Drawdown           DrawdownReading       `json:"drawdown"`
	CapitalUtilization float64               `json:"capitalUtilization"`
	OpenPositions      int                   `json:"openPositions"`
	Markets            []MarketRisk          `json:"markets"`
}

// PortfolioRisk assembles the read-only risk view of a portfolio. It never
// trips the kill switch; only ValidateTrade does.
func (g *Gate) PortfolioRisk(ctx context.Context, portfolio domain.PortfolioState) (PortfolioRisk, error) {
	cfg := withDefaults(g.Config)
	ks, err := g.Drawdown.KillSwitch(ctx)
	if err != nil {
		return PortfolioRisk{}, err
	}
	portfolio.KillSwitchActive = portfolio.KillSwitchActive || ks.Active

	reading, err := g.Drawdown.Measure(ctx, portfolio)
	if err != nil {
		return PortfolioRisk{}, err
	}
	portfolio.CapitalPreservation = portfolio.CapitalPreservation || reading.State == domain.DrawdownCapitalPreservation

	out := PortfolioRisk{KillSwitch: ks, Drawdown: reading}
	total := portfolio.TotalCapital
	if total.IsPositive() {
		out.CapitalUtilization = portfolio.DeployedCapital.Div(total).InexactFloat64()
	}
	out.OpenPositions, err = g.Exposure.OpenPositions(ctx, portfolio)
	if err != nil {
		return PortfolioRisk{}, err
	}

	byMarket, err := g.Exposure.ByMarket(ctx, portfolio)
	if err != nil {
		return PortfolioRisk{}, err
	}
	limit := total.Mul(decimal.NewFromFloat(cfg.MaxMarketExposurePct))
	for marketID, exposure := range byMarket {
		vol, err := g.Volatility.Adjust(ctx, marketID)
		if err != nil {
			return PortfolioRisk{}, err
		}
		mr := MarketRisk{
			MarketID:             marketID,
			ExposureUSD:          exposure,
			HeadroomUSD:          decimal.Max(decimal.Zero, limit.Sub(exposure)),
			Volatility:           vol.Volatility,
			VolatilityMultiplier: vol.Multiplier,
		}
		if total.IsPositive() {
			mr.ExposureRatio = exposure.Div(total).InexactFloat64()
		}
		out.Markets = append(out.Markets, mr)
	}
	sort.Slice(out.Markets, func(i, j int) bool { return out.Markets[i].MarketID < out.Markets[j].MarketID })
	out.Portfolio = portfolio
	return out, nil
}
