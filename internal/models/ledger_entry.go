package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// LedgerEntry is one signed posting: positive credits the participant,
// negative debits it. Intermediate amounts keep 4 fraction digits.
type LedgerEntry struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	CycleID       uint64          `gorm:"not null;index;index:ix_ledger_cycle_participant"`
	ParticipantID uint64          `gorm:"not null;index;index:ix_ledger_cycle_participant"`
	AmountEUR     decimal.Decimal `gorm:"column:amount_eur;type:numeric(18,4);not null"`
	Source        string          `gorm:"type:varchar(32);not null"`
	Account       string          `gorm:"type:varchar(64)"`
	RuleID        string          `gorm:"type:varchar(64)"`
	Meta          datatypes.JSON  `gorm:"type:jsonb"`

	EventTS   time.Time `gorm:"column:event_ts;type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
