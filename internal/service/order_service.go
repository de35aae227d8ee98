package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mobileshop/internal/config"
	"mobileshop/internal/infrastructure/cache"
	"mobileshop/internal/metrics"
	"mobileshop/internal/model"
	"mobileshop/internal/repository"
	"mobileshop/pkg/apperr"
	"mobileshop/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserDirectory is the identity check consumed at order creation. It is
// owned by another subsystem; only existence is asked for.
type UserDirectory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

// OrderService drives the order state machine and coordinates the number
// reservation, device stock and audit trail around it. Every state change
// and its side effects commit in one transaction; notifications go through
// the outbox and never block or roll anything back.
type OrderService struct {
	db          *gorm.DB
	orderRepo   *repository.OrderRepository
	historyRepo *repository.HistoryRepository
	numberRepo  *repository.NumberRepository
	catalogRepo *repository.CatalogRepository
	paymentRepo *repository.PaymentRepository
	outboxRepo  *repository.OutboxRepository
	users       UserDirectory
	cache       cache.Service
	cfg         *config.Config
	logger      *zap.Logger
}

func NewOrderService(db *gorm.DB, cacheSvc cache.Service, users UserDirectory, cfg *config.Config, logger *zap.Logger) *OrderService {
	return &OrderService{
		db:          db,
		orderRepo:   repository.NewOrderRepository(db),
		historyRepo: repository.NewHistoryRepository(db),
		numberRepo:  repository.NewNumberRepository(db),
		catalogRepo: repository.NewCatalogRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		users:       users,
		cache:       cacheSvc,
		cfg:         cfg,
		logger:      logger,
	}
}

type CreateOrderRequest struct {
	UserID           int64
	PlanID           int64
	DeviceID         *int64
	NumberID         *int64
	RecipientName    string
	DeliveryAddress  string
	ContactPhone     string
	TermsAgreed      bool
	MarketingConsent bool
}

// Create validates the requested resources, prices the order and commits
// the order row, the first history row, the number reservation and the
// stock decrement together. Stock is taken at creation time, not at
// completion, so a pending-payment order can never oversell a device.
func (s *OrderService) Create(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	if req.UserID <= 0 {
		return nil, apperr.Validation("user_id is required")
	}
	if req.PlanID <= 0 {
		return nil, apperr.Validation("plan_id is required")
	}
	if !req.TermsAgreed {
		return nil, apperr.Validation("terms must be agreed")
	}

	exists, err := s.users.Exists(ctx, req.UserID)
	if err != nil {
		return nil, apperr.External("user directory unavailable", err)
	}
	if !exists {
		return nil, apperr.NotFoundf("user %d not found", req.UserID)
	}

	plan, err := s.catalogRepo.GetPlan(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, apperr.NotFoundf("plan %d not found", req.PlanID)
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, apperr.Conflictf("plan %d is not active", req.PlanID)
	}

	order := &model.Order{
		OrderNo:          idgen.GenerateOrderNo(),
		UserID:           req.UserID,
		PlanID:           req.PlanID,
		DeviceID:         req.DeviceID,
		NumberID:         req.NumberID,
		Status:           model.OrderStatusPending,
		PlanFee:          plan.DiscountPrice,
		SetupFee:         plan.SetupFee,
		RecipientName:    req.RecipientName,
		DeliveryAddress:  req.DeliveryAddress,
		ContactPhone:     req.ContactPhone,
		TermsAgreed:      req.TermsAgreed,
		MarketingConsent: req.MarketingConsent,
	}

	if req.DeviceID != nil {
		device, err := s.catalogRepo.GetDevice(ctx, *req.DeviceID)
		if err != nil {
			if errors.Is(err, repository.ErrDeviceNotFound) {
				return nil, apperr.NotFoundf("device %d not found", *req.DeviceID)
			}
			return nil, err
		}
		if !device.IsActive {
			return nil, apperr.Conflictf("device %d is not active", *req.DeviceID)
		}
		order.DeviceFee = device.DiscountPrice
	}

	if req.NumberID != nil {
		number, err := s.numberRepo.GetByID(ctx, *req.NumberID)
		if err != nil {
			if errors.Is(err, repository.ErrNumberNotFound) {
				return nil, apperr.NotFoundf("number %d not found", *req.NumberID)
			}
			return nil, err
		}
		order.NumberFee = number.AdditionalFee
	}

	order.TotalAmount = order.FeeTotal()
	reservedUntil := time.Now().Add(s.cfg.Business.ReservationTTL())

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		// The reservation and the stock decrement are conditional writes;
		// losing either race rolls back the whole order.
		if req.NumberID != nil {
			if err := s.numberRepo.Reserve(ctx, tx, *req.NumberID, order.ID, reservedUntil); err != nil {
				if errors.Is(err, repository.ErrNumberUnavailable) {
					metrics.ReservationResults.WithLabelValues("lost").Inc()
					return apperr.Conflictf("number %d is not available", *req.NumberID)
				}
				return err
			}
		}

		if req.DeviceID != nil {
			if err := s.catalogRepo.DecrementStock(ctx, tx, *req.DeviceID); err != nil {
				if errors.Is(err, repository.ErrOutOfStock) {
					return apperr.Conflictf("device %d is out of stock", *req.DeviceID)
				}
				if errors.Is(err, repository.ErrDeviceInactive) {
					return apperr.Conflictf("device %d is not active", *req.DeviceID)
				}
				return err
			}
		}

		history := &model.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: "",
			ToStatus:   model.OrderStatusPending,
			ChangedBy:  fmt.Sprintf("user:%d", req.UserID),
			Note:       "order created",
		}
		if err := s.historyRepo.Create(ctx, tx, history); err != nil {
			return fmt.Errorf("append status history: %w", err)
		}

		return s.enqueueEvent(ctx, tx, s.cfg.Kafka.Topic.OrderEvents, model.EventOrderCreated, order.OrderNo, map[string]interface{}{
			"order_no":     order.OrderNo,
			"user_id":      order.UserID,
			"total_amount": order.TotalAmount,
			"status":       order.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.invalidateAfterCommit(ctx, order)

	s.logger.Info("order created",
		zap.String("order_no", order.OrderNo),
		zap.Int64("user_id", order.UserID),
		zap.Int64("total_amount", order.TotalAmount))
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, id int64) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperr.NotFoundf("order %d not found", id)
		}
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperr.NotFoundf("order %s not found", orderNo)
		}
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
}

func (s *OrderService) History(ctx context.Context, orderID int64) ([]*model.OrderStatusHistory, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.historyRepo.ListByOrderID(ctx, orderID)
}

// UpdateStatus applies one transition of the state machine together with
// its side effects: completion assigns the held number permanently,
// cancellation releases it and restores any stock taken at creation.
// Exactly one history row is appended in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, newStatus, actor, note string) (*model.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !model.CanTransitionTo(order.Status, newStatus) {
		return nil, apperr.Conflictf("order %s cannot move from %s to %s", order.OrderNo, order.Status, newStatus)
	}

	if actor == "" {
		actor = model.ActorSystem
	}

	// Read outside the transaction; the conditional cancel below tolerates
	// the payment advancing in between.
	var payment *model.Payment
	if newStatus == model.OrderStatusCancelled {
		if payment, err = s.paymentRepo.GetByOrderID(ctx, orderID); err != nil {
			return nil, err
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, order.Status, newStatus); err != nil {
			if errors.Is(err, repository.ErrOrderStatusConflict) {
				return apperr.Conflictf("order %s cannot move from %s to %s", order.OrderNo, order.Status, newStatus)
			}
			return err
		}

		switch newStatus {
		case model.OrderStatusCompleted:
			if order.NumberID != nil {
				if err := s.numberRepo.Assign(ctx, tx, *order.NumberID, order.ID); err != nil {
					if errors.Is(err, repository.ErrReservationNotOwned) {
						// The hold lapsed and somebody else took the number;
						// the order cannot complete against it.
						return apperr.Conflictf("reservation on number %d was lost", *order.NumberID)
					}
					return err
				}
			}
		case model.OrderStatusCancelled:
			if order.NumberID != nil {
				if err := s.numberRepo.Release(ctx, tx, *order.NumberID, order.ID); err != nil {
					if errors.Is(err, repository.ErrReservationNotOwned) {
						// Hold already lapsed and moved on; nothing to free.
						s.logger.Warn("skip releasing number no longer held",
							zap.Int64("number_id", *order.NumberID),
							zap.Int64("order_id", order.ID))
					} else {
						return err
					}
				}
			}
			if order.DeviceID != nil {
				if err := s.catalogRepo.RestoreStock(ctx, tx, *order.DeviceID); err != nil {
					return err
				}
			}
			// A pending payment never reached the provider and dies with
			// the order. A processing one is left for reconciliation.
			if payment != nil && payment.Status == model.PaymentStatusPending {
				if err := s.paymentRepo.Cancel(ctx, tx, payment.ID); err != nil {
					if errors.Is(err, repository.ErrPaymentStatusConflict) {
						s.logger.Warn("payment advanced during order cancel, left as is",
							zap.String("order_no", order.OrderNo),
							zap.Int64("payment_id", payment.ID))
					} else {
						return err
					}
				}
			}
		}

		history := &model.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: order.Status,
			ToStatus:   newStatus,
			ChangedBy:  actor,
			Note:       note,
		}
		if err := s.historyRepo.Create(ctx, tx, history); err != nil {
			return fmt.Errorf("append status history: %w", err)
		}

		return s.enqueueEvent(ctx, tx, s.cfg.Kafka.Topic.OrderEvents, model.EventOrderStatus, order.OrderNo, map[string]interface{}{
			"order_no":    order.OrderNo,
			"from_status": order.Status,
			"to_status":   newStatus,
			"changed_by":  actor,
			"note":        note,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(newStatus).Inc()
	s.invalidateAfterCommit(ctx, order)

	s.logger.Info("order status changed",
		zap.String("order_no", order.OrderNo),
		zap.String("from", order.Status),
		zap.String("to", newStatus),
		zap.String("actor", actor))

	return s.Get(ctx, orderID)
}

// Cancel cancels an order that has not completed and has no captured
// payment. Compensation is symmetric: stock and the number hold are
// restored whatever non-terminal state the order was in.
func (s *OrderService) Cancel(ctx context.Context, orderID int64, reason, actor string) (*model.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case model.OrderStatusPending, model.OrderStatusConfirmed, model.OrderStatusProcessing:
	default:
		return nil, apperr.Conflictf("order %s cannot be cancelled in status %s", order.OrderNo, order.Status)
	}

	payment, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment != nil && payment.Status == model.PaymentStatusCompleted {
		return nil, apperr.Conflictf("order %s has a completed payment; refund it first", order.OrderNo)
	}

	if reason == "" {
		reason = "cancelled"
	}
	return s.UpdateStatus(ctx, orderID, model.OrderStatusCancelled, actor, reason)
}

func (s *OrderService) enqueueEvent(ctx context.Context, tx *gorm.DB, topic, eventType, key string, payload map[string]interface{}) error {
	payload["event_type"] = eventType
	payload["occurred_at"] = time.Now().Format(time.RFC3339)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  eventType,
		Payload:    string(data),
		Status:     model.OutboxStatusPending,
	}
	return s.outboxRepo.Create(ctx, tx, msg)
}

func (s *OrderService) invalidateAfterCommit(ctx context.Context, order *model.Order) {
	keys := []string{}
	if order.NumberID != nil {
		keys = append(keys, cache.NumberKey(*order.NumberID), cache.AvailableNumbersKey())
	}
	if order.DeviceID != nil {
		keys = append(keys, cache.DeviceKey(*order.DeviceID))
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("order_no", order.OrderNo), zap.Error(err))
	}
}
