package risk

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradegate/internal/cache"
	"tradegate/internal/repository"
)

type VolatilityReading struct {
	Volatility float64 `json:"volatility"`
	Multiplier float64 `json:"multiplier"`
	Samples    int     `json:"samples"`
	Fallback   bool    `json:"fallback"`
}

// VolatilityAdjuster maps recent fill-price volatility of a market to a size
// multiplier. Readings are cached per market; concurrent refreshes may race
// and the last write wins.
type VolatilityAdjuster struct {
	Trades repository.TradeRepository
	Cache  cache.Store
	Logger *zap.Logger

	TTL        time.Duration
	Window     int
	MinSamples int
	Default    float64
}

// VolatilityMultiplier is the step function from volatility to size factor.
func VolatilityMultiplier(vol float64) float64 {
	switch {
	case vol >= 0.20:
		return 0.3
	case vol >= 0.10:
		return 0.5
	case vol >= 0.05:
		return 0.75
	case vol >= 0.02:
		return 0.9
	default:
		return 1.0
	}
}

func (v *VolatilityAdjuster) Adjust(ctx context.Context, marketID string) (VolatilityReading, error) {
	marketID = strings.TrimSpace(marketID)
	key := "risk:volatility:" + marketID
	if v.Cache != nil {
		var cached VolatilityReading
		found, err := cache.GetJSON(ctx, v.Cache, key, &cached)
		if err != nil && v.Logger != nil {
			v.Logger.Warn("risk: volatility cache read failed", zap.String("market_id", marketID), zap.Error(err))
		}
		if found {
			return cached, nil
		}
	}

	reading, err := v.compute(ctx, marketID)
	if err != nil {
		return reading, err
	}
	if v.Cache != nil {
		if err := cache.SetJSON(ctx, v.Cache, key, reading, v.ttl()); err != nil && v.Logger != nil {
			v.Logger.Warn("risk: volatility cache write failed", zap.String("market_id", marketID), zap.Error(err))
		}
	}
	return reading, nil
}

func (v *VolatilityAdjuster) compute(ctx context.Context, marketID string) (VolatilityReading, error) {
	window := v.Window
	if window <= 1 {
		window = 50
	}
	minSamples := v.MinSamples
	if minSamples <= 0 {
		minSamples = 5
	}
	fallback := v.Default
	if fallback <= 0 {
		fallback = 0.05
	}

	var prices []float64
	if v.Trades != nil {
		// One extra fill yields window returns.
		trades, err := v.Trades.ListFilledTradesByMarket(ctx, marketID, window+1)
		if err != nil {
			return VolatilityReading{}, err
		}
		// Newest first from the repository; walk oldest to newest.
		for i := len(trades) - 1; i >= 0; i-- {
			p := trades[i].FilledPrice
			if p == nil || !p.IsPositive() {
				continue
			}
			prices = append(prices, p.InexactFloat64())
		}
	}
	if len(prices) < minSamples {
		// Too little history: report the assumed volatility but do not resize.
		return VolatilityReading{Volatility: fallback, Multiplier: 1.0, Samples: len(prices), Fallback: true}, nil
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	vol := stddev(returns)
	return VolatilityReading{Volatility: vol, Multiplier: VolatilityMultiplier(vol), Samples: len(prices)}, nil
}

func (v *VolatilityAdjuster) ttl() time.Duration {
	if v.TTL <= 0 {
		return 5 * time.Minute
	}
	return v.TTL
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
