package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/client/venue"
	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/risk"
	"tradegate/internal/strategy"
)

// ErrCycleInFlight is returned when a trigger arrives while a cycle runs.
// The trigger is dropped, not queued.
var ErrCycleInFlight = errors.New("trading cycle already in flight")

type RiskGate interface {
	PortfolioRisk(ctx context.Context) (risk.PortfolioRisk, error)
	ValidateTrade(ctx context.Context, req domain.RiskCheckRequest) (domain.RiskCheckResult, error)
}

type Executor interface {
	ExecuteTrade(ctx context.Context, req domain.TradeExecutionRequest) (domain.TradeExecutionResult, error)
}

type MarketData interface {
	GetPrice(ctx context.Context, tokenID, side string) (decimal.Decimal, error)
	GetPriceHistory(ctx context.Context, tokenID, interval string, startTs, endTs *int64) ([]venue.PricePoint, error)
}

type ConsensusBuilder interface {
	BuildConsensus(ctx context.Context, signals []domain.TradeSignal, marketID string, portfolio domain.PortfolioState) (domain.ConsensusResult, error)
}

// MarketOutcome records how far one market got through the pipeline.
type MarketOutcome struct {
	MarketID  string                       `json:"marketId"`
	Signals   int                          `json:"signals"`
	Consensus *domain.ConsensusResult      `json:"consensus,omitempty"`
	Risk      *domain.RiskCheckResult      `json:"risk,omitempty"`
	Execution *domain.TradeExecutionResult `json:"execution,omitempty"`
	Skipped   string                       `json:"skipped,omitempty"`
	Error     string                       `json:"error,omitempty"`
}

type CycleReport struct {
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Markets    []MarketOutcome `json:"markets"`
}

// Executed counts markets that reached the executor.
func (r CycleReport) Executed() int {
	n := 0
	for _, m := range r.Markets {
		if m.Execution != nil {
			n++
		}
	}
	return n
}

// TradingCycle runs strategies -> consensus -> risk gate -> executor for each
// configured market. Markets are handled one at a time and the portfolio is
// re-read for every decision.
type TradingCycle struct {
	Markets    []config.MarketConfig
	Strategies []strategy.Strategy
	Consensus  ConsensusBuilder
	Risk       RiskGate
	Executor   Executor
	Prices     MarketData
	Portfolio  *PortfolioService
	Flags      *SystemSettingsService
	Interval   string
	Timeout    time.Duration
	Logger     *zap.Logger

	Now func() time.Time

	running atomic.Bool
}

// Trigger is the cron entry point.
func (c *TradingCycle) Trigger(ctx context.Context) {
	report, err := c.Run(ctx)
	if errors.Is(err, ErrCycleInFlight) {
		c.logger().Warn("trader: cycle still in flight, trigger dropped")
		return
	}
	if err != nil {
		c.logger().Error("trader: cycle failed", zap.Error(err))
		return
	}
	c.logger().Info("trader: cycle finished",
		zap.Int("markets", len(report.Markets)),
		zap.Int("executed", report.Executed()),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
}

// Run executes one cycle unless another is already running.
func (c *TradingCycle) Run(ctx context.Context) (CycleReport, error) {
	if !c.running.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleInFlight
	}
	defer c.running.Store(false)

	report := CycleReport{StartedAt: c.now()}
	if c.Flags != nil && !c.Flags.IsEnabled(ctx, FeatureTradingCycle, true) {
		report.FinishedAt = c.now()
		return report, nil
	}
	if c.Risk == nil || c.Consensus == nil || c.Executor == nil {
		return report, errors.New("trading cycle not configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if c.Portfolio != nil && c.Prices != nil {
		if err := c.Portfolio.RefreshMarks(ctx, c.Prices); err != nil {
			c.logger().Warn("trader: mark refresh failed", zap.Error(err))
		}
	}

	for _, mc := range c.Markets {
		if ctx.Err() != nil {
			break
		}
		outcome := c.runMarket(ctx, mc)
		report.Markets = append(report.Markets, outcome)
		if outcome.Skipped == skipKillSwitch {
			break
		}
	}
	report.FinishedAt = c.now()
	return report, ctx.Err()
}

const skipKillSwitch = "kill switch active"

func (c *TradingCycle) runMarket(ctx context.Context, mc config.MarketConfig) MarketOutcome {
	out := MarketOutcome{MarketID: mc.ID}
	log := c.logger().With(zap.String("market_id", mc.ID))

	pr, err := c.Risk.PortfolioRisk(ctx)
	if err != nil {
		out.Error = fmt.Sprintf("portfolio risk: %v", err)
		log.Warn("trader: portfolio risk failed", zap.Error(err))
		return out
	}
	if pr.KillSwitch.Active || pr.Portfolio.KillSwitchActive {
		out.Skipped = skipKillSwitch
		log.Warn("trader: kill switch active, skipping cycle", zap.String("reason", pr.KillSwitch.Reason))
		return out
	}
	portfolio := pr.Portfolio

	market, err := c.loadMarket(ctx, mc)
	if err != nil {
		out.Error = err.Error()
		log.Warn("trader: market data unavailable", zap.Error(err))
		return out
	}

	signals := strategy.Collect(ctx, c.Strategies, market, portfolio, nil, log)
	out.Signals = len(signals)
	decision, err := c.Consensus.BuildConsensus(ctx, signals, market.ID, portfolio)
	if err != nil {
		out.Error = fmt.Sprintf("consensus: %v", err)
		log.Warn("trader: consensus failed", zap.Error(err))
		return out
	}
	out.Consensus = &decision
	if !decision.ShouldTrade {
		out.Skipped = decision.Reasoning
		return out
	}

	check, err := c.Risk.ValidateTrade(ctx, domain.RiskCheckRequest{Signal: decision.Signal(c.now()), Portfolio: portfolio})
	if err != nil {
		out.Error = fmt.Sprintf("validate trade: %v", err)
		log.Warn("trader: risk gate failed", zap.Error(err))
		return out
	}
	out.Risk = &check
	if !check.Approved {
		out.Skipped = "rejected: " + strings.Join(domain.ReasonCodes(check.Rejections), ",")
		log.Info("trader: trade rejected", zap.Strings("reasons", domain.ReasonCodes(check.Rejections)))
		return out
	}

	req := domain.TradeExecutionRequest{
		MarketID:    market.ID,
		TokenID:     market.TokenFor(decision.Side),
		Side:        decision.Side,
		Direction:   decision.Direction,
		SizeUSD:     check.AdjustedSizeUSD,
		OrderType:   domain.OrderTypeMarket,
		StrategyID:  decision.StrategyID,
		StrategyIDs: decision.Contributors,
		Confidence:  decision.AggregateConfidence,
	}
	req.LimitPrice = c.referencePrice(ctx, market, req, log)
	res, err := c.Executor.ExecuteTrade(ctx, req)
	if err != nil {
		out.Error = fmt.Sprintf("execute trade: %v", err)
		log.Warn("trader: execution failed", zap.Error(err))
		return out
	}
	out.Execution = &res
	log.Info("trader: trade executed",
		zap.String("trade_id", res.TradeID),
		zap.String("status", res.Status),
		zap.String("side", string(req.Side)),
		zap.String("direction", string(req.Direction)),
		zap.String("size_usd", req.SizeUSD.String()),
		zap.String("filled_usd", res.FilledSizeUSD.String()))
	return out
}

// referencePrice is the price the executor's slippage guard measures against.
// It is quoted for the order's own token and direction so the spread is not
// counted as slippage. Buys fall back to the cycle's mid; sells go without a
// reference rather than compare a bid with an ask.
func (c *TradingCycle) referencePrice(ctx context.Context, market strategy.Market, req domain.TradeExecutionRequest, log *zap.Logger) *decimal.Decimal {
	one := decimal.NewFromInt(1)
	quote, err := c.Prices.GetPrice(ctx, req.TokenID, string(req.Direction))
	if err == nil && quote.IsPositive() && quote.LessThan(one) {
		p := quote.Round(4)
		return &p
	}
	log.Debug("trader: reference quote unavailable",
		zap.String("token_id", req.TokenID),
		zap.String("direction", string(req.Direction)),
		zap.Error(err))
	if req.Direction != domain.DirectionBuy {
		return nil
	}
	if ref := market.PriceOf(req.Side); ref > 0 && ref < 1 {
		p := decimal.NewFromFloat(ref).Round(4)
		return &p
	}
	return nil
}

// loadMarket reads the YES price history and the latest YES quote. The last
// history point stands in for the quote when the quote fails.
func (c *TradingCycle) loadMarket(ctx context.Context, mc config.MarketConfig) (strategy.Market, error) {
	market := strategy.Market{ID: mc.ID, YesTokenID: mc.YesTokenID, NoTokenID: mc.NoTokenID}
	if c.Prices == nil {
		return market, errors.New("no price source")
	}
	interval := c.Interval
	if interval == "" {
		interval = "1h"
	}
	points, err := c.Prices.GetPriceHistory(ctx, mc.YesTokenID, interval, nil, nil)
	if err != nil {
		c.logger().Debug("trader: price history failed", zap.String("market_id", mc.ID), zap.Error(err))
	}
	for _, p := range points {
		market.History = append(market.History, p.Price.InexactFloat64())
	}

	price, qerr := c.Prices.GetPrice(ctx, mc.YesTokenID, string(domain.DirectionBuy))
	switch {
	case qerr == nil && price.IsPositive():
		market.YesPrice = price.InexactFloat64()
	case len(market.History) > 0:
		market.YesPrice = market.History[len(market.History)-1]
	default:
		if qerr == nil {
			qerr = errors.New("empty quote")
		}
		return market, fmt.Errorf("price for %s: %w", mc.ID, qerr)
	}
	return market, nil
}

func (c *TradingCycle) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *TradingCycle) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
