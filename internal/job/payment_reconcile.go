package job

import (
	"context"
	"time"

	"mobileshop/internal/config"
	"mobileshop/internal/service"

	"go.uber.org/zap"
)

// PaymentReconcile resolves payments stuck in processing after an
// ambiguous gateway call by asking the provider for the final word.
type PaymentReconcile struct {
	payments *service.PaymentService
	logger   *zap.Logger
	stopCh   chan struct{}
	interval time.Duration
	batch    int
}

func NewPaymentReconcile(payments *service.PaymentService, cfg *config.Config, logger *zap.Logger) *PaymentReconcile {
	interval := time.Duration(cfg.Business.ReconcileIntervalSecond) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &PaymentReconcile{
		payments: payments,
		logger:   logger,
		stopCh:   make(chan struct{}),
		interval: interval,
		batch:    50,
	}
}

func (r *PaymentReconcile) Start(ctx context.Context) {
	r.logger.Info("payment reconciliation started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("payment reconciliation stopped")
			return
		case <-r.stopCh:
			r.logger.Info("payment reconciliation stopped")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

func (r *PaymentReconcile) Stop() {
	close(r.stopCh)
}

func (r *PaymentReconcile) reconcile(ctx context.Context) {
	reconciled, err := r.payments.ReconcileProcessing(ctx, r.batch)
	if err != nil {
		r.logger.Error("payment reconciliation", zap.Error(err))
		return
	}
	if reconciled > 0 {
		r.logger.Info("payments reconciled", zap.Int("count", reconciled))
	}
}
