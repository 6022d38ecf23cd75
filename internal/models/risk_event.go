package models

import (
	"time"

	"gorm.io/datatypes"
)

type RiskEvent struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	EventType  string `gorm:"type:varchar(40);not null;index"`
	Severity   string `gorm:"type:varchar(10);not null;index"`
	MarketID   string `gorm:"type:varchar(100);index"`
	StrategyID string `gorm:"type:varchar(50)"`

	// Reasons is a JSON array of reason codes; Context holds the numbers the
	// decision was based on.
	Reasons datatypes.JSON `gorm:"type:jsonb"`
	Context datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (RiskEvent) TableName() string {
	return "risk_events"
}

const (
	RiskEventTradeRejected     = "TRADE_REJECTED"
	RiskEventKillSwitchTripped = "KILL_SWITCH_TRIGGERED"
	RiskEventKillSwitchManual  = "KILL_SWITCH_ACTIVATED"
	RiskEventKillSwitchReset   = "KILL_SWITCH_RESET"

	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)
