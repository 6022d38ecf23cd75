package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Position is one outcome-token exposure. CostBasis is the USD still at risk
// and is what exposure limits are measured against.
type Position struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	TokenID  string `gorm:"type:varchar(100);not null;uniqueIndex"`
	MarketID string `gorm:"type:varchar(100);not null;index"`
	Side     string `gorm:"type:varchar(10);not null"`

	Quantity      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	AvgEntryPrice decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	MarkPrice     decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	CostBasis     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null;default:0"`
	RealizedPnL   decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	Status      string         `gorm:"type:varchar(20);not null;default:'open';index"`
	StrategyID  string         `gorm:"type:varchar(50);index"`
	StrategyIDs datatypes.JSON `gorm:"column:strategy_ids;type:jsonb"`
	OpenedAt    time.Time      `gorm:"type:timestamptz;not null"`
	ClosedAt    *time.Time     `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Strategies returns every strategy that backed a buy into the position.
// Their priors resolve when it closes.
func (p Position) Strategies() []string {
	ids := DecodeStrategyIDs(p.StrategyIDs)
	if len(ids) == 0 && p.StrategyID != "" {
		return []string{p.StrategyID}
	}
	return ids
}
