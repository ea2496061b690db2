package models

import (
	"time"
)

// TradingDay is one day-scoped sub-period of a billing cycle. Once closed its
// day nets are the fixed month-aggregation input; closed is terminal.
type TradingDay struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	CycleID   uint64 `gorm:"not null;index;uniqueIndex:ux_trading_days_cycle_date"`
	DateStr   string `gorm:"type:varchar(10);not null;uniqueIndex:ux_trading_days_cycle_date"`
	Status    string `gorm:"type:varchar(16);not null;default:'open';index"`
	AuditHash string `gorm:"type:varchar(128)"`

	ClosedAt  *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradingDay) TableName() string {
	return "trading_days"
}
