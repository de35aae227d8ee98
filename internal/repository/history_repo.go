package repository

import (
	"context"

	"mobileshop/internal/model"

	"gorm.io/gorm"
)

// HistoryRepository appends to the order audit trail. There is no update or
// delete on purpose.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Create(ctx context.Context, tx *gorm.DB, row *model.OrderStatusHistory) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(row).Error
}

func (r *HistoryRepository) ListByOrderID(ctx context.Context, orderID int64) ([]*model.OrderStatusHistory, error) {
	var rows []*model.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
