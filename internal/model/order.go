package model

import (
	"time"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// ValidOrderTransitions is the complete order state machine. Anything not
// listed here is rejected; completed and cancelled are terminal.
var ValidOrderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidOrderTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Order is one activation purchase: a plan, optionally a device and a phone
// number, and the money charged for each.
//
// TotalAmount always equals PlanFee+DeviceFee+SetupFee+NumberFee; it is
// recomputed on every price-affecting mutation, never patched directly.
type Order struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo  string `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID   int64  `gorm:"index;not null" json:"user_id"`
	PlanID   int64  `gorm:"not null" json:"plan_id"`
	DeviceID *int64 `json:"device_id"`
	NumberID *int64 `json:"number_id"`
	Status   string `gorm:"type:varchar(20);index;not null" json:"status"`

	PlanFee     int64 `gorm:"not null" json:"plan_fee"`
	DeviceFee   int64 `gorm:"not null;default:0" json:"device_fee"`
	SetupFee    int64 `gorm:"not null;default:0" json:"setup_fee"`
	NumberFee   int64 `gorm:"not null;default:0" json:"number_fee"`
	TotalAmount int64 `gorm:"not null" json:"total_amount"`

	RecipientName    string `gorm:"type:varchar(64)" json:"recipient_name"`
	DeliveryAddress  string `gorm:"type:varchar(256)" json:"delivery_address"`
	ContactPhone     string `gorm:"type:varchar(32)" json:"contact_phone"`
	TermsAgreed      bool   `gorm:"not null;default:false" json:"terms_agreed"`
	MarketingConsent bool   `gorm:"not null;default:false" json:"marketing_consent"`

	CompletedAt *time.Time `json:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "activation_order"
}

// FeeTotal is the invariant sum; callers set TotalAmount from it.
func (o *Order) FeeTotal() int64 {
	return o.PlanFee + o.DeviceFee + o.SetupFee + o.NumberFee
}
