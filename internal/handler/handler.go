package handler

import (
	"strconv"
	"time"

	"mobileshop/internal/model"
	"mobileshop/internal/service"
	"mobileshop/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler bundles the service dependencies behind the HTTP surface.
// Binding errors answer 400 directly; everything else goes through
// response.HandleError so the kind-to-status mapping lives in one place.
type Handler struct {
	catalogService *service.CatalogService
	numberService  *service.NumberService
	orderService   *service.OrderService
	paymentService *service.PaymentService
}

func NewHandler(catalog *service.CatalogService, numbers *service.NumberService, orders *service.OrderService, payments *service.PaymentService) *Handler {
	return &Handler{
		catalogService: catalog,
		numberService:  numbers,
		orderService:   orders,
		paymentService: payments,
	}
}

// ============================================================
// Catalog
// ============================================================

// ListPlans returns active plans.
// GET /api/v1/catalog/plans
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.catalogService.ListActivePlans(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"plans": plans})
}

// GetPlan returns one plan.
// GET /api/v1/catalog/plan?id=xxx
func (h *Handler) GetPlan(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid id")
		return
	}
	plan, err := h.catalogService.GetPlan(c.Request.Context(), id)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, plan)
}

// CreatePlan registers a plan.
// POST /api/v1/catalog/plan/create
func (h *Handler) CreatePlan(c *gin.Context) {
	var plan model.Plan
	if err := c.ShouldBindJSON(&plan); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if err := h.catalogService.CreatePlan(c.Request.Context(), &plan); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, plan)
}

// UpdatePlan overwrites a plan and invalidates its cache entry.
// POST /api/v1/catalog/plan/update
func (h *Handler) UpdatePlan(c *gin.Context) {
	var plan model.Plan
	if err := c.ShouldBindJSON(&plan); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if plan.ID == 0 {
		response.ParamError(c, "id is required")
		return
	}
	if err := h.catalogService.UpdatePlan(c.Request.Context(), &plan); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, plan)
}

// GetDevice returns one device.
// GET /api/v1/catalog/device?id=xxx
func (h *Handler) GetDevice(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid id")
		return
	}
	device, err := h.catalogService.GetDevice(c.Request.Context(), id)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, device)
}

// CreateDevice registers a device.
// POST /api/v1/catalog/device/create
func (h *Handler) CreateDevice(c *gin.Context) {
	var device model.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if err := h.catalogService.CreateDevice(c.Request.Context(), &device); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, device)
}

// UpdateDevice overwrites a device and invalidates its cache entry.
// POST /api/v1/catalog/device/update
func (h *Handler) UpdateDevice(c *gin.Context) {
	var device model.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if device.ID == 0 {
		response.ParamError(c, "id is required")
		return
	}
	if err := h.catalogService.UpdateDevice(c.Request.Context(), &device); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, device)
}

// CreateNumber adds a phone number to the pool.
// POST /api/v1/catalog/number/create
func (h *Handler) CreateNumber(c *gin.Context) {
	var number model.PhoneNumber
	if err := c.ShouldBindJSON(&number); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if err := h.catalogService.CreateNumber(c.Request.Context(), &number); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, number)
}

// ListAvailableNumbers returns reservable numbers.
// GET /api/v1/catalog/numbers/available?limit=xxx
func (h *Handler) ListAvailableNumbers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	numbers, err := h.catalogService.ListAvailableNumbers(c.Request.Context(), limit)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"numbers": numbers})
}

// ============================================================
// Numbers
// ============================================================

// ReserveNumberRequest holds an explicit reservation request.
type ReserveNumberRequest struct {
	NumberID   int64 `json:"number_id" binding:"required"`
	OrderID    int64 `json:"order_id" binding:"required"`
	TTLMinutes int   `json:"ttl_minutes"`
}

// ReserveNumber places an exclusive hold on a number for an order.
// POST /api/v1/number/reserve
func (h *Handler) ReserveNumber(c *gin.Context) {
	var req ReserveNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	ttl := time.Duration(req.TTLMinutes) * time.Minute
	number, err := h.numberService.Reserve(c.Request.Context(), req.NumberID, req.OrderID, ttl)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, number)
}

// ReleaseNumberRequest identifies the hold to give back.
type ReleaseNumberRequest struct {
	NumberID int64 `json:"number_id" binding:"required"`
	OrderID  int64 `json:"order_id" binding:"required"`
}

// ReleaseNumber returns a held number to the pool.
// POST /api/v1/number/release
func (h *Handler) ReleaseNumber(c *gin.Context) {
	var req ReleaseNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if err := h.numberService.Release(c.Request.Context(), req.NumberID, req.OrderID); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

// GetNumber returns one number with lazily refreshed reservation state.
// GET /api/v1/number/detail?id=xxx | ?number=010-xxxx-xxxx
func (h *Handler) GetNumber(c *gin.Context) {
	if dial := c.Query("number"); dial != "" {
		number, err := h.numberService.GetByNumber(c.Request.Context(), dial)
		if err != nil {
			response.HandleError(c, err)
			return
		}
		response.Success(c, number)
		return
	}

	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id or number is required")
		return
	}
	number, err := h.numberService.Get(c.Request.Context(), id)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, number)
}

// ============================================================
// Orders
// ============================================================

// CreateOrderRequest is the activation order intake payload.
type CreateOrderRequest struct {
	UserID           int64  `json:"user_id" binding:"required"`
	PlanID           int64  `json:"plan_id" binding:"required"`
	DeviceID         *int64 `json:"device_id"`
	NumberID         *int64 `json:"number_id"`
	RecipientName    string `json:"recipient_name"`
	DeliveryAddress  string `json:"delivery_address"`
	ContactPhone     string `json:"contact_phone"`
	TermsAgreed      bool   `json:"terms_agreed"`
	MarketingConsent bool   `json:"marketing_consent"`
}

// CreateOrder prices and books an activation order.
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	order, err := h.orderService.Create(c.Request.Context(), &service.CreateOrderRequest{
		UserID:           req.UserID,
		PlanID:           req.PlanID,
		DeviceID:         req.DeviceID,
		NumberID:         req.NumberID,
		RecipientName:    req.RecipientName,
		DeliveryAddress:  req.DeliveryAddress,
		ContactPhone:     req.ContactPhone,
		TermsAgreed:      req.TermsAgreed,
		MarketingConsent: req.MarketingConsent,
	})
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, order)
}

// GetOrder looks an order up by id or order_no.
// GET /api/v1/order/detail?id=xxx | ?order_no=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	if orderNo := c.Query("order_no"); orderNo != "" {
		order, err := h.orderService.GetByOrderNo(c.Request.Context(), orderNo)
		if err != nil {
			response.HandleError(c, err)
			return
		}
		response.Success(c, order)
		return
	}

	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id or order_no is required")
		return
	}
	order, err := h.orderService.Get(c.Request.Context(), id)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders pages through a user's orders, newest first.
// GET /api/v1/order/list?user_id=xxx&page=1&page_size=20
func (h *Handler) ListOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid user_id")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	orders, total, err := h.orderService.ListByUser(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"orders":    orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetOrderHistory returns the append-only status trail.
// GET /api/v1/order/history?id=xxx
func (h *Handler) GetOrderHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid id")
		return
	}
	history, err := h.orderService.History(c.Request.Context(), id)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"history": history})
}

// UpdateOrderStatusRequest drives a single state-machine transition.
type UpdateOrderStatusRequest struct {
	OrderID int64  `json:"order_id" binding:"required"`
	Status  string `json:"status" binding:"required"`
	Actor   string `json:"actor"`
	Note    string `json:"note"`
}

// UpdateOrderStatus moves an order along the state machine.
// POST /api/v1/order/status
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	order, err := h.orderService.UpdateStatus(c.Request.Context(), req.OrderID, req.Status, req.Actor, req.Note)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, order)
}

// CancelOrderRequest identifies the order to cancel.
type CancelOrderRequest struct {
	OrderID int64  `json:"order_id" binding:"required"`
	Reason  string `json:"reason"`
	Actor   string `json:"actor"`
}

// CancelOrder cancels an order and hands its resources back.
// POST /api/v1/order/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	order, err := h.orderService.Cancel(c.Request.Context(), req.OrderID, req.Reason, req.Actor)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, order)
}

// ============================================================
// Payments
// ============================================================

// CreatePaymentRequest opens the payment slot for an order.
type CreatePaymentRequest struct {
	OrderID int64  `json:"order_id" binding:"required"`
	Method  string `json:"method" binding:"required"`
}

// CreatePayment creates the payment for an order at the locked amount.
// POST /api/v1/payment/create
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	payment, err := h.paymentService.Create(c.Request.Context(), req.OrderID, req.Method)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, payment)
}

// ProcessPaymentRequest triggers a capture attempt.
type ProcessPaymentRequest struct {
	PaymentID int64             `json:"payment_id" binding:"required"`
	Extra     map[string]string `json:"extra"`
}

// ProcessPayment runs the capture against the provider.
// POST /api/v1/payment/process
func (h *Handler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	payment, err := h.paymentService.Process(c.Request.Context(), req.PaymentID, req.Extra)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, payment)
}

// GetPayment returns one payment.
// GET /api/v1/payment/detail?id=xxx
func (h *Handler) GetPayment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid id")
		return
	}
	payment, err := h.paymentService.Get(c.Request.Context(), id)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, payment)
}

// RefundPaymentRequest requests a partial or full refund.
type RefundPaymentRequest struct {
	PaymentID int64  `json:"payment_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
	Reason    string `json:"reason"`
}

// RefundPayment refunds part or all of a completed payment.
// POST /api/v1/payment/refund
func (h *Handler) RefundPayment(c *gin.Context) {
	var req RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	payment, err := h.paymentService.Refund(c.Request.Context(), req.PaymentID, req.Amount, req.Reason)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, payment)
}

// PaymentWebhook ingests provider notifications. Always 200 on handled
// payloads, known transaction or not, so the provider stops replaying.
// POST /api/v1/webhook/payment/:provider
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var payload service.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	provider := c.Param("provider")
	if err := h.paymentService.HandleWebhook(c.Request.Context(), provider, &payload); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}
