package consensus

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository"
)

const (
	TieBreakHighestConfidence = "highest_confidence"
	TieBreakFirst             = "first"
)

// WeightSource supplies the vote weight of a strategy that has no score row.
type WeightSource interface {
	WeightOf(strategyID string) (float64, bool)
}

// Engine turns per-strategy signals for one market into a single decision.
// Its only durable memory is the strategy score table; weights and priors are
// re-read on every call. Weights covers strategies the table does not know.
type Engine struct {
	Config  config.ConsensusConfig
	Scores  repository.StrategyScoreRepository
	Weights WeightSource
	Logger  *zap.Logger
}

func (e *Engine) BuildConsensus(ctx context.Context, signals []domain.TradeSignal, marketID string, portfolio domain.PortfolioState) (domain.ConsensusResult, error) {
	cfg := e.config()
	result := domain.ConsensusResult{
		MarketID:        marketID,
		Method:          domain.MethodWeightedAverage,
		PositionSizeUSD: decimal.Zero,
	}

	usable := filterSignals(signals, marketID)
	if len(usable) == 0 {
		result.Reasoning = "no signals"
		return result, nil
	}

	table, err := e.loadScores(ctx)
	if err != nil {
		return result, fmt.Errorf("load strategy scores: %w", err)
	}

	votes := make([]domain.StrategyVote, 0, len(usable))
	for _, sig := range usable {
		vote, ok := e.vote(sig, table, cfg)
		if !ok {
			continue
		}
		votes = append(votes, vote)
	}
	result.Votes = votes
	if len(votes) == 0 {
		result.Reasoning = "no active strategy voted"
		return result, nil
	}

	var sells []domain.StrategyVote
	var buys []domain.StrategyVote
	for _, v := range votes {
		if v.Signal.Direction == domain.DirectionSell {
			sells = append(sells, v)
		} else {
			buys = append(buys, v)
		}
	}

	if len(sells) > 0 {
		exit := pickSell(sells, cfg.SellTieBreak)
		result.Method = domain.MethodPriorityOverride
		result.ShouldTrade = true
		result.Side = exit.Signal.Side
		result.Direction = domain.DirectionSell
		result.AggregateConfidence = clamp01(exit.Signal.Confidence)
		result.RawConfidence = result.AggregateConfidence
		result.PositionSizeUSD = exit.Signal.PositionSizeUSD
		result.StrategyID = exit.Signal.StrategyID
		result.Contributors = []string{exit.Signal.StrategyID}
		result.Reasoning = fmt.Sprintf("exit from %s overrides %d buy vote(s): %s", exit.Signal.StrategyID, len(buys), exit.Signal.Reasoning)
		e.logDecision(result, portfolio)
		return result, nil
	}

	e.aggregateBuys(&result, buys, cfg)
	e.logDecision(result, portfolio)
	return result, nil
}

func (e *Engine) aggregateBuys(result *domain.ConsensusResult, buys []domain.StrategyVote, cfg config.ConsensusConfig) {
	result.Method = domain.MethodBayesianWeighted
	result.Direction = domain.DirectionBuy

	var yesScore, noScore, totalWeight, sumAlpha, sumBeta float64
	for _, v := range buys {
		contribution := v.Signal.Confidence * v.Weight
		if v.Signal.Side == domain.SideYes {
			yesScore += contribution
		} else {
			noScore += contribution
		}
		totalWeight += v.Weight
		sumAlpha += v.Alpha
		sumBeta += v.Beta
	}
	if totalWeight <= 0 {
		result.Reasoning = "total vote weight is zero"
		return
	}

	winner, winScore, loseScore := domain.SideYes, yesScore, noScore
	if noScore > yesScore {
		winner, winScore, loseScore = domain.SideNo, noScore, yesScore
	}
	result.Side = winner
	result.ConsensusGap = (winScore - loseScore) / totalWeight
	result.RawConfidence = clamp01(winScore / totalWeight)

	confidence := bayesianBlend(result.RawConfidence, sumAlpha, sumBeta, cfg.EvidenceScale)
	weak := result.ConsensusGap < cfg.WeakGap
	if weak {
		confidence *= cfg.GapPenalty
	}
	result.AggregateConfidence = clamp01(confidence)

	sizeNum := decimal.Zero
	sizeDen := decimal.Zero
	var contributors []string
	for _, v := range buys {
		if v.Signal.Side != winner {
			continue
		}
		w := decimal.NewFromFloat(v.Weight)
		sizeNum = sizeNum.Add(v.Signal.PositionSizeUSD.Mul(w))
		sizeDen = sizeDen.Add(w)
		contributors = append(contributors, v.Signal.StrategyID)
	}
	size := decimal.Zero
	if sizeDen.IsPositive() {
		size = sizeNum.Div(sizeDen)
	}

	result.ShouldTrade = result.AggregateConfidence >= cfg.MinConfidence &&
		size.GreaterThanOrEqual(decimal.NewFromFloat(cfg.MinSizeUSD))
	if result.ShouldTrade {
		result.PositionSizeUSD = size
		result.Contributors = contributors
		if len(contributors) == 1 {
			result.StrategyID = contributors[0]
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s wins %d/%d buy votes, raw=%.3f posterior=%.3f gap=%.3f",
		winner, len(contributors), len(buys), result.RawConfidence, result.AggregateConfidence, result.ConsensusGap)
	if weak {
		b.WriteString(", weak agreement")
	}
	if !result.ShouldTrade {
		fmt.Fprintf(&b, ", below threshold (size %s)", size.StringFixed(2))
	}
	result.Reasoning = b.String()
}

func (e *Engine) vote(sig domain.TradeSignal, table map[string]models.StrategyScore, cfg config.ConsensusConfig) (domain.StrategyVote, bool) {
	alpha, beta := cfg.PriorAlpha, cfg.PriorBeta
	weight := 1.0
	if row, ok := table[sig.StrategyID]; ok {
		if !row.Active {
			return domain.StrategyVote{}, false
		}
		weight = row.Weight
		if row.Alpha > 0 {
			alpha = row.Alpha
		}
		if row.Beta > 0 {
			beta = row.Beta
		}
	} else if e.Weights != nil {
		if w, ok := e.Weights.WeightOf(sig.StrategyID); ok {
			weight = w
		}
	}
	sig.Confidence = clamp01(sig.Confidence)
	return domain.StrategyVote{
		Signal:        sig,
		Weight:        math.Max(0, weight),
		PosteriorMean: posteriorMean(alpha, beta),
		Alpha:         alpha,
		Beta:          beta,
	}, true
}

func (e *Engine) loadScores(ctx context.Context) (map[string]models.StrategyScore, error) {
	out := map[string]models.StrategyScore{}
	if e.Scores == nil {
		return out, nil
	}
	rows, err := e.Scores.ListStrategyScores(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.StrategyID] = row
	}
	return out, nil
}

func (e *Engine) logDecision(r domain.ConsensusResult, portfolio domain.PortfolioState) {
	if e.Logger == nil {
		return
	}
	e.Logger.Info("consensus: decision",
		zap.String("market_id", r.MarketID),
		zap.String("method", string(r.Method)),
		zap.Bool("should_trade", r.ShouldTrade),
		zap.String("side", string(r.Side)),
		zap.String("direction", string(r.Direction)),
		zap.Float64("confidence", r.AggregateConfidence),
		zap.String("size_usd", r.PositionSizeUSD.StringFixed(2)),
		zap.Int("votes", len(r.Votes)),
		zap.String("available_capital", portfolio.AvailableCapital.StringFixed(2)),
	)
}

func (e *Engine) config() config.ConsensusConfig {
	cfg := e.Config
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.55
	}
	if cfg.MinSizeUSD <= 0 {
		cfg.MinSizeUSD = 1
	}
	if cfg.WeakGap <= 0 {
		cfg.WeakGap = 0.1
	}
	if cfg.GapPenalty <= 0 || cfg.GapPenalty > 1 {
		cfg.GapPenalty = 0.5
	}
	if cfg.EvidenceScale <= 0 {
		cfg.EvidenceScale = 10
	}
	if cfg.PriorAlpha <= 0 {
		cfg.PriorAlpha = 2
	}
	if cfg.PriorBeta <= 0 {
		cfg.PriorBeta = 2
	}
	if cfg.ReflectAlpha <= 0 || cfg.ReflectAlpha > 1 {
		cfg.ReflectAlpha = 0.3
	}
	if cfg.MinWeight <= 0 {
		cfg.MinWeight = 0.1
	}
	if cfg.MaxWeight <= 0 {
		cfg.MaxWeight = 2.0
	}
	if cfg.MinReflectTrades <= 0 {
		cfg.MinReflectTrades = 5
	}
	if cfg.SellTieBreak == "" {
		cfg.SellTieBreak = TieBreakHighestConfidence
	}
	return cfg
}

func filterSignals(signals []domain.TradeSignal, marketID string) []domain.TradeSignal {
	out := make([]domain.TradeSignal, 0, len(signals))
	for _, s := range signals {
		if marketID != "" && s.MarketID != "" && s.MarketID != marketID {
			continue
		}
		if !s.Side.Valid() || !s.Direction.Valid() {
			continue
		}
		if s.PositionSizeUSD.IsNegative() {
			s.PositionSizeUSD = decimal.Zero
		}
		out = append(out, s)
	}
	return out
}

// pickSell selects the authoritative exit among competing SELL votes.
func pickSell(sells []domain.StrategyVote, tieBreak string) domain.StrategyVote {
	best := sells[0]
	if tieBreak == TieBreakFirst {
		return best
	}
	for _, v := range sells[1:] {
		if v.Signal.Confidence > best.Signal.Confidence {
			best = v
		}
	}
	return best
}
