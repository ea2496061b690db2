package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PayoutInstruction is one external transfer produced by a cycle close,
// addressed to the creditor participant's IBAN.
type PayoutInstruction struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement"`
	RunID             uint64          `gorm:"not null;index"`
	ParticipantID     uint64          `gorm:"not null;index"`
	FromParticipantID uint64          `gorm:"not null;index"`
	IBAN              string          `gorm:"type:varchar(64);not null"`
	AmountEUR         decimal.Decimal `gorm:"column:amount_eur;type:numeric(18,2);not null"`
	RemittanceInfo    string          `gorm:"type:varchar(140);not null"`
	Meta              datatypes.JSON  `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PayoutInstruction) TableName() string {
	return "payout_instructions"
}
