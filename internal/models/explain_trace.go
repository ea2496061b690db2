package models

import (
	"time"

	"gorm.io/datatypes"
)

// ExplainTrace is the append-only record of one policy evaluation: every rule
// in evaluation order with inputs, formula, result and beneficiary.
type ExplainTrace struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement"`
	PolicyVersion string         `gorm:"type:varchar(64);not null;index"`
	ParticipantID uint64         `gorm:"not null;index"`
	CycleID       uint64         `gorm:"not null;index"`
	Trace         datatypes.JSON `gorm:"type:jsonb;not null"`
	TraceHash     string         `gorm:"type:varchar(128);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ExplainTrace) TableName() string {
	return "explain_traces"
}
