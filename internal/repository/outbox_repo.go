package repository

import (
	"context"

	"mobileshop/internal/model"

	"gorm.io/gorm"
)

// OutboxRepository stores domain events in the same transaction as the
// state change that produced them. A background sender drains PENDING
// rows; only the sender mutates status after insert.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(msg).Error
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// MarkSent finalizes a delivered message. Scoped to PENDING so a row a
// concurrent sweep already parked as FAILED is not resurrected.
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure bumps the retry count and, once it reaches maxRetries,
// parks the message as FAILED in the same update.
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, maxRetries int) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"status": gorm.Expr("CASE WHEN retry_count + 1 >= ? THEN ? ELSE status END",
				maxRetries, model.OutboxStatusFailed),
		}).Error
}
