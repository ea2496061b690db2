package models

import (
	"time"
)

// BillingCycle is a month-scoped settlement period, e.g. "2025-08".
type BillingCycle struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Label  string `gorm:"type:varchar(32);not null;uniqueIndex"`
	Status string `gorm:"type:varchar(16);not null;default:'open';index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (BillingCycle) TableName() string {
	return "billing_cycles"
}
