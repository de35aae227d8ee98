package job

import (
	"context"
	"time"

	"mobileshop/internal/config"
	"mobileshop/internal/service"

	"go.uber.org/zap"
)

// ReservationSweep returns numbers whose reservation expired to the
// available pool. The reserve path already treats expired holds as free,
// so the sweep only keeps listings and counters honest; running it late
// or twice is harmless.
type ReservationSweep struct {
	numbers  *service.NumberService
	logger   *zap.Logger
	stopCh   chan struct{}
	interval time.Duration
	batch    int
}

func NewReservationSweep(numbers *service.NumberService, cfg *config.Config, logger *zap.Logger) *ReservationSweep {
	interval := time.Duration(cfg.Business.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReservationSweep{
		numbers:  numbers,
		logger:   logger,
		stopCh:   make(chan struct{}),
		interval: interval,
		batch:    200,
	}
}

func (s *ReservationSweep) Start(ctx context.Context) {
	s.logger.Info("reservation sweep started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reservation sweep stopped")
			return
		case <-s.stopCh:
			s.logger.Info("reservation sweep stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ReservationSweep) Stop() {
	close(s.stopCh)
}

func (s *ReservationSweep) sweep(ctx context.Context) {
	reclaimed, err := s.numbers.ReclaimExpired(ctx, s.batch)
	if err != nil {
		s.logger.Error("reservation sweep", zap.Error(err))
		return
	}
	if reclaimed > 0 {
		s.logger.Info("expired reservations reclaimed", zap.Int("count", reclaimed))
	}
}
