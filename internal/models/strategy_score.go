package models

import (
	"time"
)

// StrategyScore is the durable memory of the consensus engine: the vote
// weight, outcome statistics and the Beta(alpha, beta) prior per strategy.
type StrategyScore struct {
	StrategyID string `gorm:"primaryKey;type:varchar(50)"`

	Weight      float64 `gorm:"not null;default:1"`
	WinRate     float64 `gorm:"not null;default:0"`
	TotalTrades int     `gorm:"not null;default:0"`
	Wins        int     `gorm:"not null;default:0"`
	Losses      int     `gorm:"not null;default:0"`
	TotalPnL    float64 `gorm:"column:total_pnl;not null;default:0"`
	Alpha       float64 `gorm:"not null;default:2"`
	Beta        float64 `gorm:"not null;default:2"`
	Active      bool    `gorm:"not null;default:true;index"`

	LastReflectedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt       time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (StrategyScore) TableName() string {
	return "strategy_scores"
}
