package model

import (
	"time"
)

const (
	NumberStatusAvailable = "available"
	NumberStatusReserved  = "reserved"
	NumberStatusAssigned  = "assigned"
)

// PhoneNumber is one entry of the number pool. A row is reserved when
// status is "reserved" AND reserved_until is in the future; an expired
// reservation is treated as available on read and reclaimed by the sweep.
// At most one order holds a non-expired reservation on a number, enforced
// by the conditional update in the repository, never by a prior read.
type PhoneNumber struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Number        string     `gorm:"type:varchar(20);uniqueIndex;not null" json:"number"`
	Status        string     `gorm:"type:varchar(20);index;not null;default:available" json:"status"`
	ReservedUntil *time.Time `gorm:"index" json:"reserved_until"`
	ReservedBy    *int64     `json:"reserved_by"`
	Premium       bool       `gorm:"not null;default:false" json:"premium"`
	Pattern       string     `gorm:"type:varchar(32)" json:"pattern"`
	AdditionalFee int64      `gorm:"not null;default:0" json:"additional_fee"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PhoneNumber) TableName() string {
	return "phone_number"
}

// ReservationExpired reports whether the row carries a reservation whose
// TTL has already passed.
func (n *PhoneNumber) ReservationExpired(now time.Time) bool {
	return n.Status == NumberStatusReserved &&
		n.ReservedUntil != nil &&
		n.ReservedUntil.Before(now)
}
