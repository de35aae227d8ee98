package repository

import (
	"context"
	"errors"

	"mobileshop/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPlanNotFound   = errors.New("plan not found")
	ErrDeviceNotFound = errors.New("device not found")
	ErrOutOfStock     = errors.New("device out of stock")
	ErrDeviceInactive = errors.New("device not active")
)

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetPlan(ctx context.Context, id int64) (*model.Plan, error) {
	var plan model.Plan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *CatalogRepository) ListActivePlans(ctx context.Context) ([]*model.Plan, error) {
	var plans []*model.Plan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("monthly_price ASC").
		Find(&plans).Error
	return plans, err
}

func (r *CatalogRepository) CreatePlan(ctx context.Context, plan *model.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *CatalogRepository) SavePlan(ctx context.Context, plan *model.Plan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *CatalogRepository) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	var device model.Device
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return &device, nil
}

func (r *CatalogRepository) CreateDevice(ctx context.Context, device *model.Device) error {
	return r.db.WithContext(ctx).Create(device).Error
}

func (r *CatalogRepository) SaveDevice(ctx context.Context, device *model.Device) error {
	return r.db.WithContext(ctx).Save(device).Error
}

// DecrementStock takes one unit if any remains. The stock check lives in
// the WHERE clause so concurrent orders cannot oversell.
func (r *CatalogRepository) DecrementStock(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Device{}).
		Where("id = ? AND is_active = ? AND stock > 0", id, true).
		Update("stock", gorm.Expr("stock - 1"))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var device model.Device
		if err := tx.WithContext(ctx).Where("id = ?", id).First(&device).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDeviceNotFound
			}
			return err
		}
		if !device.IsActive {
			return ErrDeviceInactive
		}
		return ErrOutOfStock
	}

	return nil
}

// RestoreStock puts one unit back when an order that decremented it is
// cancelled.
func (r *CatalogRepository) RestoreStock(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Device{}).
		Where("id = ?", id).
		Update("stock", gorm.Expr("stock + 1"))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}
