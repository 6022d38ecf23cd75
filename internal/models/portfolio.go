package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioID is the primary key of the single portfolio row.
const PortfolioID uint64 = 1

type Portfolio struct {
	ID uint64 `gorm:"primaryKey"`

	TotalCapital     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	AvailableCapital decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	DeployedCapital  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	RealizedPnL      decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`
	HighWaterMark    decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	MaxDrawdown      decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Portfolio) TableName() string {
	return "portfolio"
}
