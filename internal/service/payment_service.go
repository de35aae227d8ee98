package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mobileshop/internal/config"
	"mobileshop/internal/gateway"
	"mobileshop/internal/infrastructure/lock"
	"mobileshop/internal/metrics"
	"mobileshop/internal/model"
	"mobileshop/internal/repository"
	"mobileshop/pkg/apperr"
	"mobileshop/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentService captures, refunds and reconciles payments. Everything is
// keyed by transaction_id: the provider sees it as the idempotency key,
// webhooks resolve by it exclusively, and a payment already in a terminal
// state is never downgraded by a replay or a late provider answer.
type PaymentService struct {
	db          *gorm.DB
	redisClient *redis.Client
	gateway     gateway.Gateway
	cfg         *config.Config
	paymentRepo *repository.PaymentRepository
	orderRepo   *repository.OrderRepository
	historyRepo *repository.HistoryRepository
	outboxRepo  *repository.OutboxRepository
	logger      *zap.Logger
}

func NewPaymentService(db *gorm.DB, redisClient *redis.Client, gw gateway.Gateway, cfg *config.Config, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		db:          db,
		redisClient: redisClient,
		gateway:     gw,
		cfg:         cfg,
		paymentRepo: repository.NewPaymentRepository(db),
		orderRepo:   repository.NewOrderRepository(db),
		historyRepo: repository.NewHistoryRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		logger:      logger,
	}
}

// Create opens the single payment slot for an order. The amount is locked
// to the order total now and never recomputed. A failed or cancelled
// earlier attempt is rearmed under a fresh transaction id; a live one is a
// conflict.
func (s *PaymentService) Create(ctx context.Context, orderID int64, method string) (*model.Payment, error) {
	if !model.IsValidPaymentMethod(method) {
		return nil, apperr.Validationf("unsupported payment method %q", method)
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperr.NotFoundf("order %d not found", orderID)
		}
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return nil, apperr.Conflictf("order %s is not awaiting payment", order.OrderNo)
	}

	existing, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case model.PaymentStatusFailed, model.PaymentStatusCancelled:
			if err := s.paymentRepo.Recycle(ctx, existing.ID, uuid.NewString(), method); err != nil {
				if errors.Is(err, repository.ErrPaymentStatusConflict) {
					return nil, apperr.Conflictf("order %s already has a payment", order.OrderNo)
				}
				return nil, err
			}
			return s.paymentRepo.GetByID(ctx, existing.ID)
		default:
			return nil, apperr.Conflictf("order %s already has a payment", order.OrderNo)
		}
	}

	payment := &model.Payment{
		PaymentNo:     idgen.GeneratePaymentNo(),
		OrderID:       orderID,
		TransactionID: uuid.NewString(),
		Method:        method,
		Status:        model.PaymentStatusPending,
		Amount:        order.TotalAmount,
	}

	if err := s.paymentRepo.Create(ctx, nil, payment); err != nil {
		// The unique order_id index backs the pre-check under races.
		return nil, apperr.New(apperr.KindConflict, fmt.Sprintf("order %s already has a payment", order.OrderNo), err)
	}

	s.logger.Info("payment created",
		zap.String("payment_no", payment.PaymentNo),
		zap.String("order_no", order.OrderNo),
		zap.Int64("amount", payment.Amount))
	return payment, nil
}

func (s *PaymentService) Get(ctx context.Context, paymentID int64) (*model.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperr.NotFoundf("payment %d not found", paymentID)
		}
		return nil, err
	}
	return payment, nil
}

// Process executes one capture attempt. A provider timeout is NOT a
// failure: the payment stays in processing for the reconciliation job, and
// the caller is told to check back. Only a definitive provider decline
// marks the payment failed.
func (s *PaymentService) Process(ctx context.Context, paymentID int64, extra map[string]string) (*model.Payment, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == model.PaymentStatusCompleted {
		return payment, nil
	}
	if model.PaymentTerminal(payment.Status) {
		return nil, apperr.Conflictf("payment %s is %s", payment.PaymentNo, payment.Status)
	}

	// Serialize capture attempts per payment; the conditional DB updates
	// below stay correct without it, the lock just avoids duplicate
	// gateway calls from concurrent retries.
	if s.redisClient != nil {
		payLock := lock.NewPaymentLock(s.redisClient, paymentID, uuid.NewString())
		if err := payLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, apperr.External("payment is being processed, try again later", err)
		}
		defer payLock.Unlock(ctx)
	}

	payment, err = s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == model.PaymentStatusCompleted {
		return payment, nil
	}
	if model.PaymentTerminal(payment.Status) {
		return nil, apperr.Conflictf("payment %s is %s", payment.PaymentNo, payment.Status)
	}

	if payment.Status == model.PaymentStatusPending {
		if err := s.paymentRepo.MarkProcessing(ctx, paymentID); err != nil {
			if errors.Is(err, repository.ErrPaymentStatusConflict) {
				return s.Get(ctx, paymentID)
			}
			return nil, err
		}
	}

	order, err := s.orderRepo.GetByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.Gateway.Timeout())
	defer cancel()

	start := time.Now()
	result, err := s.gateway.Process(gwCtx, &gateway.ProcessRequest{
		TransactionID: payment.TransactionID,
		Method:        payment.Method,
		Amount:        payment.Amount,
		OrderNo:       order.OrderNo,
		Extra:         extra,
	})
	metrics.GatewayLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		// Ambiguous outcome: the provider may or may not have captured.
		// Leave the payment in processing for reconciliation.
		metrics.PaymentResults.WithLabelValues("pending").Inc()
		s.logger.Warn("gateway call did not complete, payment left processing",
			zap.String("payment_no", payment.PaymentNo),
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err))
		payment, _ = s.Get(ctx, paymentID)
		return payment, apperr.External("payment pending, check status later", err)
	}

	if result.Success {
		if err := s.completeAndAdvance(ctx, payment, order, result.ProviderTxnID, result.ReceiptURL); err != nil {
			return nil, err
		}
		metrics.PaymentResults.WithLabelValues("completed").Inc()
	} else {
		if err := s.failPayment(ctx, payment, result.Reason); err != nil {
			return nil, err
		}
		metrics.PaymentResults.WithLabelValues("failed").Inc()
	}

	return s.Get(ctx, paymentID)
}

// completeAndAdvance commits the capture and auto-advances the owning
// order pending→confirmed in one transaction. Losing the completion race
// to a webhook is fine; losing the order advance (for example the order
// was cancelled meanwhile) completes the payment anyway and leaves the
// mismatch for a refund.
func (s *PaymentService) completeAndAdvance(ctx context.Context, payment *model.Payment, order *model.Order, providerTxnID, receiptURL string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.Complete(ctx, tx, payment.ID, providerTxnID, receiptURL); err != nil {
			if errors.Is(err, repository.ErrPaymentStatusConflict) {
				return nil
			}
			return err
		}

		if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPending, model.OrderStatusConfirmed); err != nil {
			if errors.Is(err, repository.ErrOrderStatusConflict) {
				s.logger.Warn("payment completed but order not advanced",
					zap.String("order_no", order.OrderNo),
					zap.String("payment_no", payment.PaymentNo))
			} else {
				return err
			}
		} else {
			history := &model.OrderStatusHistory{
				OrderID:    order.ID,
				FromStatus: model.OrderStatusPending,
				ToStatus:   model.OrderStatusConfirmed,
				ChangedBy:  model.ActorSystem,
				Note:       "payment completed",
			}
			if err := s.historyRepo.Create(ctx, tx, history); err != nil {
				return err
			}
		}

		return s.enqueuePaymentEvent(ctx, tx, model.EventPaymentCompleted, payment, map[string]interface{}{
			"order_no":        order.OrderNo,
			"provider_txn_id": providerTxnID,
			"receipt_url":     receiptURL,
		})
	})
}

func (s *PaymentService) failPayment(ctx context.Context, payment *model.Payment, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.Fail(ctx, tx, payment.ID, reason); err != nil {
			if errors.Is(err, repository.ErrPaymentStatusConflict) {
				return nil
			}
			return err
		}
		s.logger.Info("payment failed",
			zap.String("payment_no", payment.PaymentNo),
			zap.String("reason", reason))
		return s.enqueuePaymentEvent(ctx, tx, model.EventPaymentFailed, payment, map[string]interface{}{
			"reason": reason,
		})
	})
}

// Refund captures a partial or full refund. The running total may never
// exceed the captured amount; the status flips to refunded exactly once,
// when the total reaches it. The amount is claimed in the ledger BEFORE
// the provider hears about the refund: the conditional claim is the bound,
// so concurrent refunds whose sum exceeds the capture can never both
// instruct the provider.
func (s *PaymentService) Refund(ctx context.Context, paymentID, amount int64, reason string) (*model.Payment, error) {
	if amount <= 0 {
		return nil, apperr.Validation("refund amount must be positive")
	}

	// Serialize refunds per payment across instances; state is read and
	// validated only after the lock is held.
	if s.redisClient != nil {
		refundLock := lock.NewRefundLock(s.redisClient, paymentID, uuid.NewString())
		if err := refundLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, apperr.External("refund in progress, try again later", err)
		}
		defer refundLock.Unlock(ctx)
	}

	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, apperr.Conflictf("payment %s cannot be refunded in status %s", payment.PaymentNo, payment.Status)
	}

	if err := s.paymentRepo.AddRefund(ctx, nil, paymentID, amount); err != nil {
		if errors.Is(err, repository.ErrRefundExceedsAmount) {
			return nil, apperr.Validationf("refund %d exceeds remaining captured amount %d",
				amount, payment.Amount-payment.RefundAmount)
		}
		if errors.Is(err, repository.ErrPaymentStatusConflict) {
			return nil, apperr.Conflictf("payment %s cannot be refunded", payment.PaymentNo)
		}
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.Gateway.Timeout())
	defer cancel()

	result, err := s.gateway.Refund(gwCtx, &gateway.RefundRequest{
		TransactionID: payment.TransactionID,
		ProviderTxnID: payment.ProviderTxnID,
		Amount:        amount,
		Reason:        reason,
	})
	if err != nil {
		// Ambiguous: the provider may have processed the refund. The claim
		// stays recorded so a retry can never instruct the provider past
		// the captured amount; resolving a phantom claim is a support
		// operation against the provider statement.
		s.logger.Warn("refund outcome unknown, claim retained",
			zap.String("payment_no", payment.PaymentNo),
			zap.Int64("amount", amount),
			zap.Error(err))
		return nil, apperr.External("refund result unknown, amount held against the payment", err)
	}
	if !result.Success {
		// Definitive decline: nothing moved at the provider, give the
		// claimed amount back.
		if relErr := s.paymentRepo.ReleaseRefund(ctx, nil, paymentID, amount); relErr != nil {
			return nil, apperr.Integrity("refund claim could not be released", relErr)
		}
		return nil, apperr.Conflictf("refund declined: %s", result.Reason)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.enqueuePaymentEvent(ctx, tx, model.EventPaymentRefunded, payment, map[string]interface{}{
			"refund_amount": amount,
			"reason":        reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund applied",
		zap.String("payment_no", payment.PaymentNo),
		zap.Int64("amount", amount))
	return s.Get(ctx, paymentID)
}

// WebhookPayload is the provider's asynchronous notification, already
// parsed by the handler.
type WebhookPayload struct {
	TransactionID string `json:"transaction_id"`
	State         string `json:"state"`
	ProviderTxnID string `json:"provider_txn_id"`
	ReceiptURL    string `json:"receipt_url"`
	Reason        string `json:"reason"`
}

// HandleWebhook reconciles a provider notification. Resolution is by
// transaction_id only. Unknown ids are acknowledged and logged (providers
// replay aggressively); a payment already terminal is never touched, so
// out-of-order and replayed deliveries are no-ops.
func (s *PaymentService) HandleWebhook(ctx context.Context, provider string, payload *WebhookPayload) error {
	if payload.TransactionID == "" {
		return apperr.Validation("transaction_id is required")
	}

	payment, err := s.paymentRepo.GetByTransactionID(ctx, payload.TransactionID)
	if err != nil {
		return err
	}
	if payment == nil {
		s.logger.Warn("webhook for unknown transaction",
			zap.String("provider", provider),
			zap.String("transaction_id", payload.TransactionID))
		return nil
	}

	return s.applyProviderState(ctx, payment, payload.State, payload.ProviderTxnID, payload.ReceiptURL, payload.Reason)
}

// applyProviderState is shared by the webhook path and the reconciliation
// job. Last-writer-wins applies only when the incoming state is terminal
// and the stored one is not.
func (s *PaymentService) applyProviderState(ctx context.Context, payment *model.Payment, state, providerTxnID, receiptURL, reason string) error {
	if model.PaymentTerminal(payment.Status) {
		return nil
	}

	switch state {
	case gateway.StateCompleted:
		order, err := s.orderRepo.GetByID(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		return s.completeAndAdvance(ctx, payment, order, providerTxnID, receiptURL)
	case gateway.StateFailed:
		return s.failPayment(ctx, payment, reason)
	default:
		// Still processing on the provider side; nothing to record.
		return nil
	}
}

// ReconcileProcessing polls the provider for payments stuck in processing
// longer than the grace period and applies the provider's answer. Safe to
// run concurrently with the synchronous path and from multiple instances.
func (s *PaymentService) ReconcileProcessing(ctx context.Context, limit int) (int, error) {
	grace := time.Duration(s.cfg.Business.ProcessingGraceMinutes) * time.Minute
	if grace <= 0 {
		grace = 5 * time.Minute
	}

	stuck, err := s.paymentRepo.FindProcessingBefore(ctx, time.Now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, payment := range stuck {
		status, err := s.gateway.Status(ctx, payment.TransactionID)
		if err != nil {
			s.logger.Warn("reconciliation query failed",
				zap.String("transaction_id", payment.TransactionID), zap.Error(err))
			continue
		}
		if err := s.applyProviderState(ctx, payment, status.State,
			status.Result.ProviderTxnID, status.Result.ReceiptURL, status.Result.Reason); err != nil {
			s.logger.Warn("reconciliation apply failed",
				zap.String("transaction_id", payment.TransactionID), zap.Error(err))
			continue
		}
		if status.State != gateway.StateProcessing {
			reconciled++
		}
	}

	return reconciled, nil
}

func (s *PaymentService) enqueuePaymentEvent(ctx context.Context, tx *gorm.DB, eventType string, payment *model.Payment, fields map[string]interface{}) error {
	payload := map[string]interface{}{
		"event_type":     eventType,
		"payment_no":     payment.PaymentNo,
		"transaction_id": payment.TransactionID,
		"amount":         payment.Amount,
		"occurred_at":    time.Now().Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: payment.PaymentNo,
		Topic:      s.cfg.Kafka.Topic.PaymentEvents,
		EventType:  eventType,
		Payload:    string(data),
		Status:     model.OutboxStatusPending,
	}
	return s.outboxRepo.Create(ctx, tx, msg)
}
