package models

import (
	"time"
)

// Participant is one member of the settlement scheme. Role decides fee
// treatment: the OPERATOR collects the operator fee and never pays it.
type Participant struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ExternalID string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Name       string `gorm:"type:varchar(200);not null"`
	Role       string `gorm:"type:varchar(16);not null;index"`
	IBAN       string `gorm:"type:varchar(64)"`
	APIKey     string `gorm:"type:varchar(64);not null;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Participant) TableName() string {
	return "participants"
}
