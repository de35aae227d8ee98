package job

import (
	"context"
	"time"

	"mobileshop/internal/config"
	"mobileshop/internal/infrastructure/mq"
	"mobileshop/internal/metrics"
	"mobileshop/internal/model"
	"mobileshop/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxSender drains the transactional outbox to Kafka. Delivery is
// at-least-once: a row is marked SENT only after the broker acks, and a
// row that keeps failing past the retry budget is parked as FAILED.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	producer   mq.Producer
	cfg        *config.Config
	logger     *zap.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, producer mq.Producer, cfg *config.Config, logger *zap.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		producer:   producer,
		cfg:        cfg,
		logger:     logger,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("outbox sender stopped")
			return
		case <-s.stopCh:
			s.logger.Info("outbox sender stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("query pending outbox messages", zap.Error(err))
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.producer.Send(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if markErr := s.outboxRepo.MarkSent(ctx, msg.ID); markErr != nil {
			s.logger.Error("mark outbox message sent",
				zap.Int64("id", msg.ID), zap.Error(markErr))
		}
		metrics.OutboxSends.WithLabelValues("sent").Inc()
		return
	}

	s.logger.Warn("outbox send failed",
		zap.Int64("id", msg.ID),
		zap.String("event_type", msg.EventType),
		zap.Int("retry_count", msg.RetryCount),
		zap.Error(err))

	if failErr := s.outboxRepo.RecordFailure(ctx, msg.ID, s.cfg.Business.MaxRetryCount); failErr != nil {
		s.logger.Error("record outbox send failure",
			zap.Int64("id", msg.ID), zap.Error(failErr))
	}

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		metrics.OutboxSends.WithLabelValues("failed").Inc()
	} else {
		metrics.OutboxSends.WithLabelValues("retried").Inc()
	}
}
