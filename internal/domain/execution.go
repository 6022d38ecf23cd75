package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ExecutionErrorCode classifies why a trade ended FAILED or CANCELLED.
type ExecutionErrorCode string

const (
	ErrCodeInsufficientGas     ExecutionErrorCode = "INSUFFICIENT_GAS"
	ErrCodeInsufficientBalance ExecutionErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeSlippageExceeded    ExecutionErrorCode = "SLIPPAGE_EXCEEDED"
	ErrCodePriceUnavailable    ExecutionErrorCode = "PRICE_UNAVAILABLE"
	ErrCodeExecutionFailed     ExecutionErrorCode = "EXECUTION_FAILED"
	ErrCodeCancelled           ExecutionErrorCode = "CANCELLED"
)

type TradeExecutionRequest struct {
	MarketID       string           `json:"marketId" binding:"required"`
	TokenID        string           `json:"tokenId" binding:"required"`
	Side           Side             `json:"side" binding:"required"`
	Direction      Direction        `json:"direction" binding:"required"`
	SizeUSD        decimal.Decimal  `json:"sizeUsd"`
	OrderType      OrderType        `json:"orderType"`
	LimitPrice     *decimal.Decimal `json:"limitPrice,omitempty"`
	MaxSlippageBps int              `json:"maxSlippageBps"`
	StrategyID     string           `json:"strategyId"`
	StrategyIDs    []string         `json:"strategyIds,omitempty"`
	Confidence     float64          `json:"confidence"`
}

type TradeExecutionResult struct {
	Success       bool               `json:"success"`
	TradeID       string             `json:"tradeId"`
	Status        string             `json:"status"`
	TxHash        string             `json:"txHash,omitempty"`
	FilledPrice   decimal.Decimal    `json:"filledPrice"`
	FilledSizeUSD decimal.Decimal    `json:"filledSizeUsd"`
	Slippage      decimal.Decimal    `json:"slippage"`
	GasUsed       uint64             `json:"gasUsed"`
	RetryCount    int                `json:"retryCount"`
	Simulated     bool               `json:"simulated"`
	ErrorCode     ExecutionErrorCode `json:"errorCode,omitempty"`
	Error         string             `json:"error,omitempty"`
	CompletedAt   time.Time          `json:"completedAt"`
}

// WalletInfo is the public view of the execution wallet.
type WalletInfo struct {
	Address       string          `json:"address"`
	NativeBalance decimal.Decimal `json:"nativeBalance"`
	NativeSymbol  string          `json:"nativeSymbol"`
	StableBalance decimal.Decimal `json:"stableBalance"`
	Simulation    bool            `json:"simulation"`
}

// TradeRecord is the operator view of one persisted trade.
type TradeRecord struct {
	TradeExecutionResult
	MarketID       string           `json:"marketId"`
	TokenID        string           `json:"tokenId"`
	Side           Side             `json:"side"`
	Direction      Direction        `json:"direction"`
	OrderType      OrderType        `json:"orderType"`
	SizeUSD        decimal.Decimal  `json:"sizeUsd"`
	Price          decimal.Decimal  `json:"price"`
	LimitPrice     *decimal.Decimal `json:"limitPrice,omitempty"`
	MaxSlippageBps int              `json:"maxSlippageBps"`
	StrategyID     string           `json:"strategyId,omitempty"`
	StrategyIDs    []string         `json:"strategyIds,omitempty"`
	Confidence     float64          `json:"confidence"`
	VenueOrderID   string           `json:"venueOrderId,omitempty"`
	RealizedPnL    *decimal.Decimal `json:"realizedPnl,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	SubmittedAt    *time.Time       `json:"submittedAt,omitempty"`
}
