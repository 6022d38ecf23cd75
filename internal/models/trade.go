package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Trade is the execution record. It is inserted as PENDING before any
// external call and ends in exactly one of FILLED, FAILED or CANCELLED.
type Trade struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	MarketID  string `gorm:"type:varchar(100);not null;index"`
	TokenID   string `gorm:"type:varchar(100);not null"`
	Side      string `gorm:"type:varchar(10);not null"`
	Direction string `gorm:"type:varchar(10);not null"`
	OrderType string `gorm:"type:varchar(10);not null;default:'MARKET'"`

	SizeUSD        decimal.Decimal  `gorm:"column:size_usd;type:numeric(30,10);not null"`
	Price          decimal.Decimal  `gorm:"type:numeric(20,10);not null;default:0"`
	LimitPrice     *decimal.Decimal `gorm:"type:numeric(20,10)"`
	MaxSlippageBps int              `gorm:"not null;default:0"`

	StrategyID  string         `gorm:"type:varchar(50);index"`
	StrategyIDs datatypes.JSON `gorm:"column:strategy_ids;type:jsonb"`
	Confidence  float64        `gorm:"not null;default:0"`

	Status       string `gorm:"type:varchar(12);not null;index"`
	RetryCount   int    `gorm:"not null;default:0"`
	Simulated    bool   `gorm:"not null;default:false"`
	VenueOrderID string `gorm:"type:varchar(120)"`

	TxHash        string           `gorm:"type:varchar(80);index"`
	FilledPrice   *decimal.Decimal `gorm:"type:numeric(20,10)"`
	FilledSizeUSD *decimal.Decimal `gorm:"column:filled_size_usd;type:numeric(30,10)"`
	Slippage      *decimal.Decimal `gorm:"type:numeric(20,10)"`
	GasUsed       uint64           `gorm:"not null;default:0"`
	RealizedPnL   *decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10)"`
	ErrorCode     string           `gorm:"type:varchar(40)"`
	ErrorMessage  string           `gorm:"type:text"`

	SubmittedAt *time.Time `gorm:"type:timestamptz"`
	FilledAt    *time.Time `gorm:"type:timestamptz;index"`
	CancelledAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trades"
}

const (
	TradeStatusPending   = "PENDING"
	TradeStatusSubmitted = "SUBMITTED"
	TradeStatusFilled    = "FILLED"
	TradeStatusFailed    = "FAILED"
	TradeStatusCancelled = "CANCELLED"
)

// IsTerminalTradeStatus reports whether no further transition is allowed.
func IsTerminalTradeStatus(status string) bool {
	switch status {
	case TradeStatusFilled, TradeStatusFailed, TradeStatusCancelled:
		return true
	default:
		return false
	}
}

// EncodeStrategyIDs stores a set of strategy ids as a JSON array, trimmed and
// de-duplicated in first-seen order. An empty set encodes as nil.
func EncodeStrategyIDs(ids []string) datatypes.JSON {
	clean := MergeStrategyIDs(nil, ids)
	if len(clean) == 0 {
		return nil
	}
	raw, _ := json.Marshal(clean)
	return datatypes.JSON(raw)
}

// DecodeStrategyIDs reads a set written by EncodeStrategyIDs. Empty or
// malformed input yields nil.
func DecodeStrategyIDs(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	return MergeStrategyIDs(nil, ids)
}

// MergeStrategyIDs appends the ids in add that base does not hold yet.
func MergeStrategyIDs(base []string, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, group := range [][]string{base, add} {
		for _, id := range group {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
