package models

import (
	"time"

	"gorm.io/datatypes"
)

// Policy is one immutable fee/tariff policy version. HashHex is the canonical
// content hash of Data; a version collision on insert is rejected.
type Policy struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	Version   string         `gorm:"type:varchar(64);not null;uniqueIndex"`
	HashHex   string         `gorm:"type:varchar(128);not null;uniqueIndex"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null"`
	Signature string         `gorm:"type:varchar(256)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Policy) TableName() string {
	return "policies"
}
