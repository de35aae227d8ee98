package model

import (
	"time"
)

// ActorSystem marks transitions driven by the system itself (payment
// auto-advance, reservation expiry) rather than a user or admin.
const ActorSystem = "automatic"

// OrderStatusHistory is the append-only audit trail. Rows are written in the
// same transaction as the status change they record and are never updated
// or deleted.
type OrderStatusHistory struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    int64     `gorm:"index;not null" json:"order_id"`
	FromStatus string    `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus   string    `gorm:"type:varchar(20);not null" json:"to_status"`
	ChangedBy  string    `gorm:"type:varchar(64);not null" json:"changed_by"`
	Note       string    `gorm:"type:varchar(256)" json:"note"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
