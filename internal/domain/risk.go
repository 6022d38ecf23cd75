package domain

import (
	"github.com/shopspring/decimal"
)

// ReasonCode is a machine-readable rejection or warning identifier.
type ReasonCode string

const (
	ReasonKillSwitchActive     ReasonCode = "KILL_SWITCH_ACTIVE"
	ReasonLowConfidence        ReasonCode = "LOW_CONFIDENCE"
	ReasonTradeSizeCapped      ReasonCode = "TRADE_SIZE_CAPPED"
	ReasonMarketExposureLimit  ReasonCode = "MARKET_EXPOSURE_LIMIT"
	ReasonMarketExposureCapped ReasonCode = "MARKET_EXPOSURE_CAPPED"
	ReasonDailyDrawdownBreach  ReasonCode = "DAILY_DRAWDOWN_BREACH"
	ReasonCapitalPreservation  ReasonCode = "CAPITAL_PRESERVATION"
	ReasonVolatilityAdjusted   ReasonCode = "VOLATILITY_ADJUSTED"
	ReasonInsufficientCapital  ReasonCode = "INSUFFICIENT_CAPITAL"
	ReasonCapitalBufferCapped  ReasonCode = "CAPITAL_BUFFER_CAPPED"
	ReasonBelowMinimumSize     ReasonCode = "BELOW_MINIMUM_SIZE"
	ReasonMaxPositionsReached  ReasonCode = "MAX_POSITIONS_REACHED"
	ReasonInvalidSignal        ReasonCode = "INVALID_SIGNAL"
)

// Reason pairs a code with a human-readable message.
type Reason struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
}

type DrawdownState string

const (
	DrawdownNormal              DrawdownState = "NORMAL"
	DrawdownCapitalPreservation DrawdownState = "CAPITAL_PRESERVATION"
	DrawdownKillSwitch          DrawdownState = "KILL_SWITCH"
)

type RiskCheckRequest struct {
	Signal    TradeSignal    `json:"signal"`
	Portfolio PortfolioState `json:"portfolio"`
}

// RiskRatios are the measurements a decision was based on.
type RiskRatios struct {
	MarketExposureUSD    decimal.Decimal `json:"marketExposureUsd"`
	MarketExposureRatio  float64         `json:"marketExposureRatio"`
	DailyPnLPercent      float64         `json:"dailyPnlPercent"`
	DrawdownState        DrawdownState   `json:"drawdownState"`
	Volatility           float64         `json:"volatility"`
	VolatilityMultiplier float64         `json:"volatilityMultiplier"`
	CapitalUtilization   float64         `json:"capitalUtilization"`
	OpenPositions        int             `json:"openPositions"`
}

// RiskCheckResult is approved iff Rejections is empty.
type RiskCheckResult struct {
	Approved        bool            `json:"approved"`
	RequestedSize   decimal.Decimal `json:"requestedSizeUsd"`
	AdjustedSizeUSD decimal.Decimal `json:"adjustedSizeUsd"`
	Rejections      []Reason        `json:"rejections"`
	Warnings        []Reason        `json:"warnings"`
	Ratios          RiskRatios      `json:"ratios"`
}

// HasRejection reports whether code is among the rejections.
func (r RiskCheckResult) HasRejection(code ReasonCode) bool {
	for _, it := range r.Rejections {
		if it.Code == code {
			return true
		}
	}
	return false
}

// HasWarning reports whether code is among the warnings.
func (r RiskCheckResult) HasWarning(code ReasonCode) bool {
	for _, it := range r.Warnings {
		if it.Code == code {
			return true
		}
	}
	return false
}

// ReasonCodes flattens reasons for persistence.
func ReasonCodes(items []Reason) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, string(it.Code))
	}
	return out
}

const (
	KillSwitchActivate = "activate"
	KillSwitchReset    = "reset"
)

type KillSwitchRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}
