package model

import (
	"time"
)

// Plan is a mobile service plan. DiscountPrice is the monthly fee actually
// charged; SetupFee is billed once on activation.
type Plan struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Name          string    `gorm:"type:varchar(64);not null" json:"name"`
	MonthlyPrice  int64     `gorm:"not null" json:"monthly_price"`
	DiscountPrice int64     `gorm:"not null" json:"discount_price"`
	SetupFee      int64     `gorm:"not null;default:0" json:"setup_fee"`
	DataLimitMB   int64     `gorm:"not null;default:0" json:"data_limit_mb"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}

// Device is a handset sold with an activation. Stock is committed at order
// creation time through a conditional decrement, so it can never go
// negative and pending-payment orders cannot oversell it.
type Device struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Name          string    `gorm:"type:varchar(64);not null" json:"name"`
	Price         int64     `gorm:"not null" json:"price"`
	DiscountPrice int64     `gorm:"not null" json:"discount_price"`
	Stock         int       `gorm:"not null;default:0" json:"stock"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Device) TableName() string {
	return "device"
}
