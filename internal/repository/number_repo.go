package repository

import (
	"context"
	"errors"
	"time"

	"mobileshop/internal/model"

	"gorm.io/gorm"
)

var (
	ErrNumberNotFound      = errors.New("number not found")
	ErrNumberUnavailable   = errors.New("number unavailable")
	ErrNumberAssigned      = errors.New("number already assigned")
	ErrReservationNotOwned = errors.New("reservation held by another order")
)

type NumberRepository struct {
	db *gorm.DB
}

func NewNumberRepository(db *gorm.DB) *NumberRepository {
	return &NumberRepository{db: db}
}

func (r *NumberRepository) Create(ctx context.Context, number *model.PhoneNumber) error {
	return r.db.WithContext(ctx).Create(number).Error
}

func (r *NumberRepository) GetByID(ctx context.Context, id int64) (*model.PhoneNumber, error) {
	var number model.PhoneNumber
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNumberNotFound
		}
		return nil, err
	}
	return &number, nil
}

func (r *NumberRepository) GetByNumber(ctx context.Context, number string) (*model.PhoneNumber, error) {
	var row model.PhoneNumber
	err := r.db.WithContext(ctx).Where("number = ?", number).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNumberNotFound
		}
		return nil, err
	}
	return &row, nil
}

// ListAvailable includes rows whose reservation TTL has lapsed: they are
// available for the next caller even before the sweep reclaims them.
func (r *NumberRepository) ListAvailable(ctx context.Context, limit int) ([]*model.PhoneNumber, error) {
	var numbers []*model.PhoneNumber
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND reserved_until < ?)",
			model.NumberStatusAvailable, model.NumberStatusReserved, time.Now()).
		Order("number ASC").
		Limit(limit).
		Find(&numbers).Error
	return numbers, err
}

// Reserve is the single atomic conditional write that resolves the
// reservation race. The WHERE clause, not any prior read, decides the
// winner; an expired reservation counts as available. Zero rows affected
// means somebody else holds the number.
func (r *NumberRepository) Reserve(ctx context.Context, tx *gorm.DB, id, orderID int64, until time.Time) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.PhoneNumber{}).
		Where("id = ? AND (status = ? OR (status = ? AND reserved_until < ?))",
			id, model.NumberStatusAvailable, model.NumberStatusReserved, time.Now()).
		Updates(map[string]interface{}{
			"status":         model.NumberStatusReserved,
			"reserved_until": until,
			"reserved_by":    orderID,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := getNumberTx(ctx, tx, id); err != nil {
			return err
		}
		return ErrNumberUnavailable
	}

	return nil
}

// Release frees a reservation held by orderID. Releasing a number that is
// already available is an idempotent no-op; the sweep and an explicit
// cancellation may race and both must succeed.
func (r *NumberRepository) Release(ctx context.Context, tx *gorm.DB, id, orderID int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.PhoneNumber{}).
		Where("id = ? AND status = ? AND reserved_by = ?",
			id, model.NumberStatusReserved, orderID).
		Updates(map[string]interface{}{
			"status":         model.NumberStatusAvailable,
			"reserved_until": nil,
			"reserved_by":    nil,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		number, err := getNumberTx(ctx, tx, id)
		if err != nil {
			return err
		}
		switch number.Status {
		case model.NumberStatusAvailable:
			return nil
		case model.NumberStatusAssigned:
			return ErrNumberAssigned
		default:
			return ErrReservationNotOwned
		}
	}

	return nil
}

// Assign is the terminal transition taken when an order completes. The
// number must still be reserved by the completing order.
func (r *NumberRepository) Assign(ctx context.Context, tx *gorm.DB, id, orderID int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.PhoneNumber{}).
		Where("id = ? AND status = ? AND reserved_by = ?",
			id, model.NumberStatusReserved, orderID).
		Updates(map[string]interface{}{
			"status":         model.NumberStatusAssigned,
			"reserved_until": nil,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		number, err := getNumberTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if number.Status == model.NumberStatusAssigned &&
			number.ReservedBy != nil && *number.ReservedBy == orderID {
			return nil
		}
		return ErrReservationNotOwned
	}

	return nil
}

// ResetIfExpired lazily reclaims a lapsed reservation. Safe to call from
// any instance at any time; the WHERE clause makes it a no-op unless the
// row still carries the expired hold.
func (r *NumberRepository) ResetIfExpired(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.PhoneNumber{}).
		Where("id = ? AND status = ? AND reserved_until < ?",
			id, model.NumberStatusReserved, time.Now()).
		Updates(map[string]interface{}{
			"status":         model.NumberStatusAvailable,
			"reserved_until": nil,
			"reserved_by":    nil,
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindExpired lists reservations past their TTL for the sweep job.
func (r *NumberRepository) FindExpired(ctx context.Context, limit int) ([]*model.PhoneNumber, error) {
	var numbers []*model.PhoneNumber
	err := r.db.WithContext(ctx).
		Where("status = ? AND reserved_until < ?", model.NumberStatusReserved, time.Now()).
		Limit(limit).
		Find(&numbers).Error
	return numbers, err
}

// getNumberTx reads through the caller's transaction so a zero-rows
// fallback never grabs a second connection mid-transaction.
func getNumberTx(ctx context.Context, tx *gorm.DB, id int64) (*model.PhoneNumber, error) {
	var number model.PhoneNumber
	err := tx.WithContext(ctx).Where("id = ?", id).First(&number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNumberNotFound
		}
		return nil, err
	}
	return &number, nil
}
