package db

import (
	"kyde/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Participant{},
		&models.Policy{},
		&models.BillingCycle{},
		&models.TradingDay{},
		&models.LedgerEntry{},
		&models.DayNet{},
		&models.InternalTransfer{},
		&models.SettlementRun{},
		&models.PayoutInstruction{},
		&models.ExplainTrace{},
	)
}
