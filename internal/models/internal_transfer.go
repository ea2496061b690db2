package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InternalTransfer is one optimizer edge persisted at day close. Transparency
// record only; no money moves on the payout rail for these.
type InternalTransfer struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement"`
	DayID             uint64          `gorm:"not null;index"`
	FromParticipantID uint64          `gorm:"not null;index"`
	ToParticipantID   uint64          `gorm:"not null;index"`
	AmountEUR         decimal.Decimal `gorm:"column:amount_eur;type:numeric(18,2);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (InternalTransfer) TableName() string {
	return "internal_transfers"
}
