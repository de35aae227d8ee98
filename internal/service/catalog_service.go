package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mobileshop/internal/config"
	"mobileshop/internal/infrastructure/cache"
	"mobileshop/internal/model"
	"mobileshop/internal/repository"
	"mobileshop/pkg/apperr"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CatalogService is the read-mostly lookup over plans, devices and the
// number pool listing. Reads go through the injected cache; every mutation
// invalidates the affected keys before returning, because stale stock or
// availability data is not tolerated.
type CatalogService struct {
	catalogRepo *repository.CatalogRepository
	numberRepo  *repository.NumberRepository
	cache       cache.Service
	cfg         *config.Config
	logger      *zap.Logger
}

func NewCatalogService(db *gorm.DB, cacheSvc cache.Service, cfg *config.Config, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		catalogRepo: repository.NewCatalogRepository(db),
		numberRepo:  repository.NewNumberRepository(db),
		cache:       cacheSvc,
		cfg:         cfg,
		logger:      logger,
	}
}

func (s *CatalogService) GetPlan(ctx context.Context, id int64) (*model.Plan, error) {
	var plan model.Plan
	if s.cacheGet(ctx, cache.PlanKey(id), &plan) {
		return &plan, nil
	}

	found, err := s.catalogRepo.GetPlan(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, apperr.NotFoundf("plan %d not found", id)
		}
		return nil, err
	}

	s.cacheSet(ctx, cache.PlanKey(id), found, s.cfg.Business.CatalogCacheTTL())
	return found, nil
}

func (s *CatalogService) ListActivePlans(ctx context.Context) ([]*model.Plan, error) {
	return s.catalogRepo.ListActivePlans(ctx)
}

func (s *CatalogService) CreatePlan(ctx context.Context, plan *model.Plan) error {
	if err := s.catalogRepo.CreatePlan(ctx, plan); err != nil {
		return err
	}
	s.cacheDelete(ctx, cache.PlanKey(plan.ID))
	return nil
}

func (s *CatalogService) UpdatePlan(ctx context.Context, plan *model.Plan) error {
	if err := s.catalogRepo.SavePlan(ctx, plan); err != nil {
		return err
	}
	s.cacheDelete(ctx, cache.PlanKey(plan.ID))
	return nil
}

func (s *CatalogService) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	var device model.Device
	if s.cacheGet(ctx, cache.DeviceKey(id), &device) {
		return &device, nil
	}

	found, err := s.catalogRepo.GetDevice(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return nil, apperr.NotFoundf("device %d not found", id)
		}
		return nil, err
	}

	s.cacheSet(ctx, cache.DeviceKey(id), found, s.cfg.Business.CatalogCacheTTL())
	return found, nil
}

func (s *CatalogService) CreateDevice(ctx context.Context, device *model.Device) error {
	if err := s.catalogRepo.CreateDevice(ctx, device); err != nil {
		return err
	}
	s.cacheDelete(ctx, cache.DeviceKey(device.ID))
	return nil
}

func (s *CatalogService) UpdateDevice(ctx context.Context, device *model.Device) error {
	if err := s.catalogRepo.SaveDevice(ctx, device); err != nil {
		return err
	}
	s.cacheDelete(ctx, cache.DeviceKey(device.ID))
	return nil
}

func (s *CatalogService) CreateNumber(ctx context.Context, number *model.PhoneNumber) error {
	if number.Status == "" {
		number.Status = model.NumberStatusAvailable
	}
	if err := s.numberRepo.Create(ctx, number); err != nil {
		return err
	}
	s.cacheDelete(ctx, cache.NumberKey(number.ID), cache.AvailableNumbersKey())
	return nil
}

// ListAvailableNumbers caches the listing under a short TTL; reservation
// and release invalidate it, so the cache only papers over read bursts.
func (s *CatalogService) ListAvailableNumbers(ctx context.Context, limit int) ([]*model.PhoneNumber, error) {
	var numbers []*model.PhoneNumber
	if s.cacheGet(ctx, cache.AvailableNumbersKey(), &numbers) {
		return numbers, nil
	}

	numbers, err := s.numberRepo.ListAvailable(ctx, limit)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, cache.AvailableNumbersKey(), numbers, s.cfg.Business.NumberCacheTTL())
	return numbers, nil
}

func (s *CatalogService) cacheGet(ctx context.Context, key string, out interface{}) bool {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		s.cacheDelete(ctx, key)
		return false
	}
	return true
}

func (s *CatalogService) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *CatalogService) cacheDelete(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
