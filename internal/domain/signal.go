// Package domain holds the value types exchanged between the consensus
// engine, the risk gate and the execution engine, in process and over HTTP.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

func (s Side) Valid() bool { return s == SideYes || s == SideNo }

// Opposite returns the other outcome of a binary market.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

func (d Direction) Valid() bool { return d == DirectionBuy || d == DirectionSell }

// TradeSignal is one strategy's opinion on one market for one cycle.
type TradeSignal struct {
	MarketID        string          `json:"marketId"`
	Side            Side            `json:"side"`
	Direction       Direction       `json:"direction"`
	Confidence      float64         `json:"confidence"`
	PositionSizeUSD decimal.Decimal `json:"positionSizeUsd"`
	Reasoning       string          `json:"reasoning,omitempty"`
	StrategyID      string          `json:"strategyId"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type StrategyVote struct {
	Signal        TradeSignal `json:"signal"`
	Weight        float64     `json:"weight"`
	PosteriorMean float64     `json:"posteriorMean"`
	Alpha         float64     `json:"alpha"`
	Beta          float64     `json:"beta"`
}

type ConsensusMethod string

const (
	MethodWeightedAverage  ConsensusMethod = "WEIGHTED_AVERAGE"
	MethodPriorityOverride ConsensusMethod = "PRIORITY_OVERRIDE"
	MethodBayesianWeighted ConsensusMethod = "BAYESIAN_WEIGHTED"
)

// ConsensusResult is the single decision for one market. PositionSizeUSD is
// zero whenever ShouldTrade is false.
type ConsensusResult struct {
	MarketID            string          `json:"marketId"`
	ShouldTrade         bool            `json:"shouldTrade"`
	Side                Side            `json:"side,omitempty"`
	Direction           Direction       `json:"direction,omitempty"`
	AggregateConfidence float64         `json:"aggregateConfidence"`
	RawConfidence       float64         `json:"rawConfidence"`
	ConsensusGap        float64         `json:"consensusGap"`
	PositionSizeUSD     decimal.Decimal `json:"positionSizeUsd"`
	Reasoning           string          `json:"reasoning"`
	Votes               []StrategyVote  `json:"votes"`
	Method              ConsensusMethod `json:"consensusMethod"`
	// StrategyID is set when a single signal decided the outcome.
	StrategyID string `json:"strategyId,omitempty"`
	// Contributors lists every strategy on the winning side.
	Contributors []string `json:"contributors,omitempty"`
}

// Signal converts an actionable consensus into the signal the risk gate
// validates.
func (r ConsensusResult) Signal(now time.Time) TradeSignal {
	strategyID := r.StrategyID
	if strategyID == "" {
		strategyID = "consensus"
	}
	return TradeSignal{
		MarketID:        r.MarketID,
		Side:            r.Side,
		Direction:       r.Direction,
		Confidence:      r.AggregateConfidence,
		PositionSizeUSD: r.PositionSizeUSD,
		Reasoning:       r.Reasoning,
		StrategyID:      strategyID,
		CreatedAt:       now,
	}
}
