package model

import (
	"time"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusRefunded   = "refunded"
)

const (
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodKakaoPay     = "kakao_pay"
	PaymentMethodNaverPay     = "naver_pay"
	PaymentMethodTossPay      = "toss_pay"
)

var paymentMethods = map[string]struct{}{
	PaymentMethodCard:         {},
	PaymentMethodBankTransfer: {},
	PaymentMethodKakaoPay:     {},
	PaymentMethodNaverPay:     {},
	PaymentMethodTossPay:      {},
}

func IsValidPaymentMethod(method string) bool {
	_, ok := paymentMethods[method]
	return ok
}

// PaymentTerminal reports whether a payment status may never be downgraded.
// Webhook replays and the reconciliation job both check this before writing.
func PaymentTerminal(status string) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

// Payment is the single capture attempt record for an order (order_id is
// unique). Amount is locked to the order total at creation time and never
// recomputed. TransactionID is the idempotency key shared with the provider;
// webhooks resolve by it exclusively.
type Payment struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo     string `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`
	OrderID       int64  `gorm:"uniqueIndex;not null" json:"order_id"`
	TransactionID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_id"`
	Method        string `gorm:"type:varchar(20);not null" json:"method"`
	Status        string `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	Amount        int64  `gorm:"not null" json:"amount"`
	RefundAmount  int64  `gorm:"not null;default:0" json:"refund_amount"`

	ProviderTxnID string `gorm:"type:varchar(128)" json:"provider_txn_id"`
	ReceiptURL    string `gorm:"type:varchar(256)" json:"receipt_url"`
	FailureReason string `gorm:"type:varchar(256)" json:"failure_reason"`

	PaidAt      *time.Time `json:"paid_at"`
	FailedAt    *time.Time `json:"failed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	RefundedAt  *time.Time `json:"refunded_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}
