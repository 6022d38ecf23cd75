package db

import (
	"tradegate/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Trade{},
		&models.Position{},
		&models.Portfolio{},
		&models.PortfolioSnapshot{},
		&models.StrategyScore{},
		&models.RiskEvent{},
		&models.SystemSetting{},
	)
}
