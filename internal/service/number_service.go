package service

import (
	"context"
	"errors"
	"time"

	"mobileshop/internal/config"
	"mobileshop/internal/infrastructure/cache"
	"mobileshop/internal/metrics"
	"mobileshop/internal/model"
	"mobileshop/internal/repository"
	"mobileshop/pkg/apperr"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NumberService owns the exclusive, TTL-bound reservation over the number
// pool. The only arbiter of a reservation race is the conditional update
// inside the repository; this layer adds error mapping, lazy expiry and
// cache invalidation.
type NumberService struct {
	db         *gorm.DB
	numberRepo *repository.NumberRepository
	cache      cache.Service
	cfg        *config.Config
	logger     *zap.Logger
}

func NewNumberService(db *gorm.DB, cacheSvc cache.Service, cfg *config.Config, logger *zap.Logger) *NumberService {
	return &NumberService{
		db:         db,
		numberRepo: repository.NewNumberRepository(db),
		cache:      cacheSvc,
		cfg:        cfg,
		logger:     logger,
	}
}

// Reserve holds numberID for orderID until now+ttl. Exactly one of N
// concurrent callers wins; the rest get a conflict, regardless of what any
// earlier read showed them.
func (s *NumberService) Reserve(ctx context.Context, numberID, orderID int64, ttl time.Duration) (*model.PhoneNumber, error) {
	if ttl <= 0 {
		ttl = s.cfg.Business.ReservationTTL()
	}
	until := time.Now().Add(ttl)

	err := s.numberRepo.Reserve(ctx, nil, numberID, orderID, until)
	if err != nil {
		if errors.Is(err, repository.ErrNumberNotFound) {
			return nil, apperr.NotFoundf("number %d not found", numberID)
		}
		if errors.Is(err, repository.ErrNumberUnavailable) {
			metrics.ReservationResults.WithLabelValues("lost").Inc()
			return nil, apperr.Conflictf("number %d is not available", numberID)
		}
		return nil, err
	}

	metrics.ReservationResults.WithLabelValues("won").Inc()
	s.invalidate(ctx, numberID)

	number, err := s.numberRepo.GetByID(ctx, numberID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("number reserved",
		zap.Int64("number_id", numberID),
		zap.Int64("order_id", orderID),
		zap.Time("reserved_until", until))
	return number, nil
}

// Release frees the hold owned by orderID. Releasing a number that is
// already free succeeds; a hold owned by a different order is refused.
func (s *NumberService) Release(ctx context.Context, numberID, orderID int64) error {
	err := s.numberRepo.Release(ctx, nil, numberID, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNumberNotFound) {
			return apperr.NotFoundf("number %d not found", numberID)
		}
		if errors.Is(err, repository.ErrReservationNotOwned) || errors.Is(err, repository.ErrNumberAssigned) {
			return apperr.Conflictf("number %d is not reserved by order %d", numberID, orderID)
		}
		return err
	}

	s.invalidate(ctx, numberID)
	s.logger.Info("number released",
		zap.Int64("number_id", numberID),
		zap.Int64("order_id", orderID))
	return nil
}

// Assign makes the reservation permanent when the order completes.
func (s *NumberService) Assign(ctx context.Context, numberID, orderID int64) error {
	err := s.numberRepo.Assign(ctx, nil, numberID, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNumberNotFound) {
			return apperr.NotFoundf("number %d not found", numberID)
		}
		if errors.Is(err, repository.ErrReservationNotOwned) {
			return apperr.Conflictf("number %d is not reserved by order %d", numberID, orderID)
		}
		return err
	}

	s.invalidate(ctx, numberID)
	return nil
}

// Get reads a number, lazily reclaiming a lapsed reservation so callers
// never observe an expired hold as reserved.
func (s *NumberService) Get(ctx context.Context, numberID int64) (*model.PhoneNumber, error) {
	number, err := s.numberRepo.GetByID(ctx, numberID)
	if err != nil {
		if errors.Is(err, repository.ErrNumberNotFound) {
			return nil, apperr.NotFoundf("number %d not found", numberID)
		}
		return nil, err
	}

	if number.ReservationExpired(time.Now()) {
		reset, err := s.numberRepo.ResetIfExpired(ctx, numberID)
		if err != nil {
			return nil, err
		}
		if reset {
			metrics.ReservationsExpired.Inc()
			s.invalidate(ctx, numberID)
		}
		return s.numberRepo.GetByID(ctx, numberID)
	}

	return number, nil
}

// GetByNumber looks a number up by its dial string, with the same lazy
// reclaim as Get.
func (s *NumberService) GetByNumber(ctx context.Context, number string) (*model.PhoneNumber, error) {
	found, err := s.numberRepo.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrNumberNotFound) {
			return nil, apperr.NotFoundf("number %s not found", number)
		}
		return nil, err
	}
	if found.ReservationExpired(time.Now()) {
		return s.Get(ctx, found.ID)
	}
	return found, nil
}

// ReclaimExpired is the sweep entry point: it reclaims up to limit lapsed
// reservations. Each release is its own conditional update, so concurrent
// sweeps from multiple instances cannot double-free.
func (s *NumberService) ReclaimExpired(ctx context.Context, limit int) (int, error) {
	expired, err := s.numberRepo.FindExpired(ctx, limit)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, number := range expired {
		reset, err := s.numberRepo.ResetIfExpired(ctx, number.ID)
		if err != nil {
			s.logger.Warn("failed to reclaim expired reservation",
				zap.Int64("number_id", number.ID), zap.Error(err))
			continue
		}
		if reset {
			reclaimed++
			metrics.ReservationsExpired.Inc()
			s.invalidate(ctx, number.ID)
		}
	}

	return reclaimed, nil
}

func (s *NumberService) invalidate(ctx context.Context, numberID int64) {
	if err := s.cache.Delete(ctx, cache.NumberKey(numberID), cache.AvailableNumbersKey()); err != nil {
		s.logger.Warn("number cache invalidation failed",
			zap.Int64("number_id", numberID), zap.Error(err))
	}
}
