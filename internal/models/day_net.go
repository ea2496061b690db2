package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayNet is a participant's fee-adjusted net balance for one closed trading
// day. Month aggregation reads these rows, never the raw ledger.
type DayNet struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	DayID         uint64          `gorm:"not null;index;uniqueIndex:ux_day_nets_day_participant"`
	ParticipantID uint64          `gorm:"not null;index;uniqueIndex:ux_day_nets_day_participant"`
	NetEUR        decimal.Decimal `gorm:"column:net_eur;type:numeric(18,2);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (DayNet) TableName() string {
	return "day_nets"
}
