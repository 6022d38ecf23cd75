package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/cache"
	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository"
)

// Gate is the position sizer. Checks run in a fixed order; most of them
// shrink the size instead of stopping, so one response lists every problem.
type Gate struct {
	Config     config.RiskConfig
	Exposure   *ExposureTracker
	Drawdown   *DrawdownMonitor
	Volatility *VolatilityAdjuster
	Events     repository.RiskEventRepository
	Notifier   Notifier
	Logger     *zap.Logger
}

func NewGate(cfg config.RiskConfig, repo repository.Repository, store cache.Store, notifier Notifier, logger *zap.Logger) *Gate {
	cfg = withDefaults(cfg)
	return &Gate{
		Config:   cfg,
		Exposure: &ExposureTracker{Positions: repo},
		Drawdown: &DrawdownMonitor{
			Config:   cfg,
			Trades:   repo,
			Settings: repo,
			Events:   repo,
			Notifier: notifier,
			Logger:   logger,
		},
		Volatility: &VolatilityAdjuster{
			Trades:     repo,
			Cache:      store,
			Logger:     logger,
			TTL:        cfg.VolatilityCacheTTL,
			Window:     cfg.VolatilityWindow,
			MinSamples: cfg.VolatilityMinSamples,
			Default:    cfg.DefaultVolatility,
		},
		Events:   repo,
		Notifier: notifier,
		Logger:   logger,
	}
}

type decision struct {
	size       decimal.Decimal
	rejections []domain.Reason
	warnings   []domain.Reason
}

func (d *decision) reject(code domain.ReasonCode, format string, args ...any) {
	d.rejections = append(d.rejections, domain.Reason{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (d *decision) warn(code domain.ReasonCode, format string, args ...any) {
	d.warnings = append(d.warnings, domain.Reason{Code: code, Message: fmt.Sprintf(format, args...)})
}

// capAt lowers the size to limit and reports whether it did.
func (d *decision) capAt(limit decimal.Decimal) bool {
	if limit.IsNegative() {
		limit = decimal.Zero
	}
	if d.size.GreaterThan(limit) {
		d.size = limit
		return true
	}
	return false
}

func (g *Gate) ValidateTrade(ctx context.Context, req domain.RiskCheckRequest) (domain.RiskCheckResult, error) {
	cfg := withDefaults(g.Config)
	sig := req.Signal
	portfolio := req.Portfolio
	total := portfolio.TotalCapital

	d := &decision{size: sig.PositionSizeUSD}
	result := domain.RiskCheckResult{RequestedSize: sig.PositionSizeUSD}
	if total.IsPositive() {
		result.Ratios.CapitalUtilization = portfolio.DeployedCapital.Div(total).InexactFloat64()
	}

	// 1. Kill switch.
	ks, err := g.Drawdown.KillSwitch(ctx)
	if err != nil {
		return result, err
	}
	if ks.Active || portfolio.KillSwitchActive {
		d.size = decimal.Zero
		d.reject(domain.ReasonKillSwitchActive, "kill switch active: %s", ks.Reason)
		result.Ratios.DrawdownState = domain.DrawdownKillSwitch
		return g.finish(ctx, req, d, result), nil
	}

	if !sig.Side.Valid() || !sig.Direction.Valid() || sig.PositionSizeUSD.IsNegative() || !total.IsPositive() {
		d.size = decimal.Zero
		d.reject(domain.ReasonInvalidSignal, "invalid signal or portfolio (side=%q direction=%q total=%s)", sig.Side, sig.Direction, total.StringFixed(2))
	}
	opening := sig.Direction != domain.DirectionSell

	// 2. Confidence.
	if sig.Confidence < cfg.MinConfidence {
		d.reject(domain.ReasonLowConfidence, "confidence %.3f below %.2f", sig.Confidence, cfg.MinConfidence)
	}

	// 3. Single trade cap.
	tradeCap := total.Mul(decimal.NewFromFloat(cfg.MaxTradePct))
	if d.capAt(tradeCap) {
		d.warn(domain.ReasonTradeSizeCapped, "size capped to %s (%.1f%% of capital)", tradeCap.StringFixed(2), cfg.MaxTradePct*100)
	}

	// 4. Per-market exposure headroom. Exits reduce exposure and skip it.
	exposure, err := g.Exposure.MarketExposure(ctx, portfolio, sig.MarketID)
	if err != nil {
		return result, fmt.Errorf("market exposure: %w", err)
	}
	result.Ratios.MarketExposureUSD = exposure
	if total.IsPositive() {
		result.Ratios.MarketExposureRatio = exposure.Div(total).InexactFloat64()
	}
	if opening {
		headroom := total.Mul(decimal.NewFromFloat(cfg.MaxMarketExposurePct)).Sub(exposure)
		if headroom.LessThanOrEqual(decimal.Zero) {
			d.size = decimal.Zero
			d.reject(domain.ReasonMarketExposureLimit, "market exposure %s at limit", exposure.StringFixed(2))
		} else if d.capAt(headroom) {
			d.warn(domain.ReasonMarketExposureCapped, "size capped to market headroom %s", headroom.StringFixed(2))
		}
	}

	// 5. Daily drawdown; a breach trips the persisted kill switch.
	reading, err := g.Drawdown.Measure(ctx, portfolio)
	if err != nil {
		return result, err
	}
	result.Ratios.DailyPnLPercent = reading.Percent
	result.Ratios.DrawdownState = reading.State
	if reading.State == domain.DrawdownKillSwitch {
		d.reject(domain.ReasonDailyDrawdownBreach, "daily drawdown %.2f%% reached %.2f%%", reading.Percent, cfg.KillSwitchDrawdownPct)
		if _, err := g.Drawdown.Trip(ctx, reading, sig.MarketID); err != nil {
			return result, err
		}
	}

	// 6. Capital preservation band.
	if reading.State != domain.DrawdownNormal || portfolio.CapitalPreservation {
		d.size = d.size.Mul(decimal.NewFromFloat(cfg.PreservationFactor))
		d.warn(domain.ReasonCapitalPreservation, "capital preservation: size x%.2f", cfg.PreservationFactor)
	}

	// 7. Volatility.
	vol, err := g.Volatility.Adjust(ctx, sig.MarketID)
	if err != nil {
		return result, fmt.Errorf("volatility: %w", err)
	}
	result.Ratios.Volatility = vol.Volatility
	result.Ratios.VolatilityMultiplier = vol.Multiplier
	if vol.Multiplier < 1 {
		d.size = d.size.Mul(decimal.NewFromFloat(vol.Multiplier))
		d.warn(domain.ReasonVolatilityAdjusted, "volatility %.4f: size x%.2f", vol.Volatility, vol.Multiplier)
	}

	// 8. Available capital less buffer.
	if opening {
		if !portfolio.AvailableCapital.IsPositive() {
			d.size = decimal.Zero
			d.reject(domain.ReasonInsufficientCapital, "no available capital")
		} else {
			usable := portfolio.AvailableCapital.Mul(decimal.NewFromFloat(1 - cfg.CapitalBufferPct))
			if d.capAt(usable) {
				d.warn(domain.ReasonCapitalBufferCapped, "size capped to available capital less %.0f%% buffer (%s)", cfg.CapitalBufferPct*100, usable.StringFixed(2))
			}
		}
	}

	// 9. Minimum size.
	d.size = d.size.RoundFloor(2)
	if d.size.LessThan(decimal.NewFromFloat(cfg.MinTradeUSD)) {
		d.reject(domain.ReasonBelowMinimumSize, "size %s below minimum %.2f", d.size.StringFixed(2), cfg.MinTradeUSD)
	}

	// 10. Open position cap.
	open, err := g.Exposure.OpenPositions(ctx, portfolio)
	if err != nil {
		return result, fmt.Errorf("open positions: %w", err)
	}
	result.Ratios.OpenPositions = open
	if opening && cfg.MaxOpenPositions > 0 && open >= cfg.MaxOpenPositions {
		d.reject(domain.ReasonMaxPositionsReached, "%d open positions (max %d)", open, cfg.MaxOpenPositions)
	}

	return g.finish(ctx, req, d, result), nil
}

func (g *Gate) finish(ctx context.Context, req domain.RiskCheckRequest, d *decision, result domain.RiskCheckResult) domain.RiskCheckResult {
	result.AdjustedSizeUSD = d.size.RoundFloor(2)
	result.Rejections = d.rejections
	result.Warnings = d.warnings
	if result.Rejections == nil {
		result.Rejections = []domain.Reason{}
	}
	if result.Warnings == nil {
		result.Warnings = []domain.Reason{}
	}
	result.Approved = len(result.Rejections) == 0

	if !result.Approved {
		recordEvent(ctx, g.Events, g.Notifier, g.Logger, models.RiskEvent{
			EventType:  models.RiskEventTradeRejected,
			Severity:   models.SeverityWarning,
			MarketID:   req.Signal.MarketID,
			StrategyID: req.Signal.StrategyID,
			Reasons:    jsonValue(domain.ReasonCodes(result.Rejections)),
			Context: jsonValue(map[string]any{
				"requested_size_usd": result.RequestedSize.StringFixed(2),
				"adjusted_size_usd":  result.AdjustedSizeUSD.StringFixed(2),
				"confidence":         req.Signal.Confidence,
				"side":               req.Signal.Side,
				"direction":          req.Signal.Direction,
				"warnings":           domain.ReasonCodes(result.Warnings),
				"ratios":             result.Ratios,
			}),
		})
	}
	if g.Logger != nil {
		g.Logger.Info("risk: trade validated",
			zap.String("market_id", req.Signal.MarketID),
			zap.String("strategy_id", req.Signal.StrategyID),
			zap.Bool("approved", result.Approved),
			zap.String("requested", result.RequestedSize.StringFixed(2)),
			zap.String("adjusted", result.AdjustedSizeUSD.StringFixed(2)),
			zap.Strings("rejections", domain.ReasonCodes(result.Rejections)),
			zap.Strings("warnings", domain.ReasonCodes(result.Warnings)),
		)
	}
	return result
}

func withDefaults(cfg config.RiskConfig) config.RiskConfig {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.55
	}
	if cfg.MaxTradePct <= 0 {
		cfg.MaxTradePct = 0.02
	}
	if cfg.MaxMarketExposurePct <= 0 {
		cfg.MaxMarketExposurePct = 0.10
	}
	if cfg.KillSwitchDrawdownPct <= 0 {
		cfg.KillSwitchDrawdownPct = 3.0
	}
	if cfg.PreservationDrawdownPct <= 0 {
		cfg.PreservationDrawdownPct = 1.5
	}
	if cfg.PreservationFactor <= 0 || cfg.PreservationFactor >= 1 {
		cfg.PreservationFactor = 0.5
	}
	if cfg.CapitalBufferPct <= 0 || cfg.CapitalBufferPct >= 1 {
		cfg.CapitalBufferPct = 0.05
	}
	if cfg.MinTradeUSD <= 0 {
		cfg.MinTradeUSD = 1
	}
	return cfg
}
