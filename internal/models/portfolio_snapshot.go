package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the end-of-day valuation used as the Monte Carlo
// return history.
type PortfolioSnapshot struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	SnapshotDate time.Time `gorm:"type:date;not null;uniqueIndex"`

	TotalValue    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	DailyPnL      decimal.Decimal `gorm:"column:daily_pnl;type:numeric(30,10);not null"`
	OpenPositions int             `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
