// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormSettlement 结算记录，只追加，不会用于恢复房间
type GormSettlement struct {
	gorm.Model
	RoomCode   string    `gorm:"index;not null"`
	Round      int       `gorm:"not null"`
	WinnerID   string    `gorm:"not null"`
	WinnerName string    `gorm:"not null"`
	Amount     int64     `gorm:"not null"`
	Auto       bool      `gorm:"default:false"`
	SettledAt  time.Time `gorm:"index"`
}

func (GormSettlement) TableName() string {
	return "settlements"
}

// SettlementRecord is the in-process form of a settlement handed to the ledger.
type SettlementRecord struct {
	RoomCode   string
	Round      int
	WinnerID   string
	WinnerName string
	Amount     int64
	Auto       bool
	SettledAt  time.Time
}
