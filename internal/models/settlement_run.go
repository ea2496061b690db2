package models

import (
	"time"

	"gorm.io/datatypes"
)

// SettlementRun is the persisted summary of one cycle close: participant and
// payout counts, audit hash, and the cost model parameters used.
type SettlementRun struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement"`
	RunUID        string         `gorm:"column:run_uid;type:varchar(36);not null;uniqueIndex"`
	CycleID       uint64         `gorm:"not null;index"`
	PolicyVersion string         `gorm:"type:varchar(64);not null"`
	Summary       datatypes.JSON `gorm:"type:jsonb;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (SettlementRun) TableName() string {
	return "settlement_runs"
}
