package repository

import (
	"context"
	"errors"
	"time"

	"mobileshop/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrPaymentStatusConflict = errors.New("payment status transition not allowed")
	ErrRefundExceedsAmount   = errors.New("refund exceeds captured amount")
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// GetByOrderID returns (nil, nil) when the order has no payment yet.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByTransactionID resolves webhooks and reconciliation. It returns
// (nil, nil) on an unknown id; providers replay webhooks for payments we
// may never have created.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// MarkProcessing moves a pending payment into processing before the
// gateway call. Zero rows affected means another capture attempt got
// there first.
func (r *PaymentRepository) MarkProcessing(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentStatusPending).
		Update("status", model.PaymentStatusProcessing)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentStatusConflict
	}
	return nil
}

// Complete records a successful capture. The status guard only admits
// non-terminal states, so a webhook replay against a completed payment is
// a no-op at the SQL level.
func (r *PaymentRepository) Complete(ctx context.Context, tx *gorm.DB, id int64, providerTxnID, receiptURL string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status IN ?", id,
			[]string{model.PaymentStatusPending, model.PaymentStatusProcessing}).
		Updates(map[string]interface{}{
			"status":          model.PaymentStatusCompleted,
			"provider_txn_id": providerTxnID,
			"receipt_url":     receiptURL,
			"paid_at":         &now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentStatusConflict
	}
	return nil
}

func (r *PaymentRepository) Fail(ctx context.Context, tx *gorm.DB, id int64, reason string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status IN ?", id,
			[]string{model.PaymentStatusPending, model.PaymentStatusProcessing}).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusFailed,
			"failure_reason": reason,
			"failed_at":      &now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentStatusConflict
	}
	return nil
}

func (r *PaymentRepository) Cancel(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status IN ?", id,
			[]string{model.PaymentStatusPending, model.PaymentStatusProcessing}).
		Updates(map[string]interface{}{
			"status":       model.PaymentStatusCancelled,
			"cancelled_at": &now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentStatusConflict
	}
	return nil
}

// AddRefund accumulates a partial refund. The bound check and the flip to
// refunded both live in this one statement: the WHERE clause rejects a
// refund that would exceed the captured amount, and the CASE promotes the
// status exactly when the running total reaches it.
func (r *PaymentRepository) AddRefund(ctx context.Context, tx *gorm.DB, id, amount int64) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status = ? AND refund_amount + ? <= amount",
			id, model.PaymentStatusCompleted, amount).
		Updates(map[string]interface{}{
			"refund_amount": gorm.Expr("refund_amount + ?", amount),
			"status": gorm.Expr("CASE WHEN refund_amount + ? >= amount THEN ? ELSE status END",
				amount, model.PaymentStatusRefunded),
			"refunded_at": gorm.Expr("CASE WHEN refund_amount + ? >= amount THEN ? ELSE refunded_at END",
				amount, &now),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var payment model.Payment
		if err := tx.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		if payment.Status != model.PaymentStatusCompleted {
			return ErrPaymentStatusConflict
		}
		return ErrRefundExceedsAmount
	}

	return nil
}

// ReleaseRefund gives a claimed refund amount back after the provider
// definitively declined it, un-flipping refunded if the claim had flipped
// it. Only a recorded claim can be released.
func (r *PaymentRepository) ReleaseRefund(ctx context.Context, tx *gorm.DB, id, amount int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status IN ? AND refund_amount >= ?",
			id, []string{model.PaymentStatusCompleted, model.PaymentStatusRefunded}, amount).
		Updates(map[string]interface{}{
			"refund_amount": gorm.Expr("refund_amount - ?", amount),
			"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
				model.PaymentStatusRefunded, model.PaymentStatusCompleted),
			"refunded_at": gorm.Expr("CASE WHEN status = ? THEN NULL ELSE refunded_at END",
				model.PaymentStatusRefunded),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentStatusConflict
	}
	return nil
}

// Recycle rearms a failed or cancelled payment for a fresh capture attempt
// under a new idempotency key. The 1:1 order_id constraint stays intact.
func (r *PaymentRepository) Recycle(ctx context.Context, id int64, transactionID, method string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status IN ?", id,
			[]string{model.PaymentStatusFailed, model.PaymentStatusCancelled}).
		Updates(map[string]interface{}{
			"status":          model.PaymentStatusPending,
			"transaction_id":  transactionID,
			"method":          method,
			"failure_reason":  "",
			"provider_txn_id": "",
			"receipt_url":     "",
			"failed_at":       nil,
			"cancelled_at":    nil,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentStatusConflict
	}
	return nil
}

// FindProcessingBefore lists captures stuck in processing, for the
// reconciliation job.
func (r *PaymentRepository) FindProcessingBefore(ctx context.Context, before time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.PaymentStatusProcessing, before).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
