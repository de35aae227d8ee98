package service

import (
	"context"
	"testing"
	"time"

	"mobileshop/internal/gateway"
	"mobileshop/internal/model"
	"mobileshop/internal/repository"
	"mobileshop/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type paymentFixture struct {
	db     *gorm.DB
	gw     *fakeGateway
	svc    *PaymentService
	orders *OrderService
	order  *model.Order
	outbox *repository.OutboxRepository
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	f := newOrderFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, f.createRequest())
	require.NoError(t, err)

	gw := &fakeGateway{
		processResult: &gateway.Result{Success: true, ProviderTxnID: "prov-1", ReceiptURL: "https://receipt/1"},
		refundResult:  &gateway.Result{Success: true},
	}
	svc := NewPaymentService(f.db, nil, gw, testConfig(), zap.NewNop())

	return &paymentFixture{
		db:     f.db,
		gw:     gw,
		svc:    svc,
		orders: f.svc,
		order:  order,
		outbox: repository.NewOutboxRepository(f.db),
	}
}

func TestCreatePaymentLocksAmount(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.Equal(t, f.order.TotalAmount, payment.Amount)
	assert.NotEmpty(t, payment.TransactionID)

	// The slot is single-use while the payment is live.
	_, err = f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCreatePaymentValidations(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.order.ID, "bitcoin")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Create(ctx, 9999, model.PaymentMethodCard)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestProcessSuccessAdvancesOrder(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)

	got, err := f.svc.Process(ctx, payment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, got.Status)
	assert.Equal(t, "prov-1", got.ProviderTxnID)
	require.NotNil(t, got.PaidAt)

	// Payment completion confirmed the order.
	order, err := f.orders.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, order.Status)

	history, err := f.orders.History(ctx, f.order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ActorSystem, history[1].ChangedBy)

	// Processing again is an idempotent no-op: no second gateway call.
	again, err := f.svc.Process(ctx, payment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, again.Status)
	assert.Equal(t, 1, f.gw.processCalls)
}

func TestProcessDeclineFailsPayment(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	f.gw.processResult = &gateway.Result{Success: false, Reason: "insufficient funds"}

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)

	got, err := f.svc.Process(ctx, payment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, got.Status)
	assert.Equal(t, "insufficient funds", got.FailureReason)

	// The order is untouched by a declined capture.
	order, err := f.orders.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)

	// The customer can retry: the failed payment is rearmed under a new
	// transaction id.
	retry, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodKakaoPay)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, retry.ID)
	assert.Equal(t, model.PaymentStatusPending, retry.Status)
	assert.NotEqual(t, payment.TransactionID, retry.TransactionID)
	assert.Equal(t, model.PaymentMethodKakaoPay, retry.Method)
}

func TestProcessTransportErrorLeavesProcessing(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	f.gw.processErr = context.DeadlineExceeded
	f.gw.processResult = nil

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)

	got, err := f.svc.Process(ctx, payment.ID, nil)
	assert.Equal(t, apperr.KindExternal, apperr.KindOf(err))
	require.NotNil(t, got)
	assert.Equal(t, model.PaymentStatusProcessing, got.Status)

	// The provider later reports success through the webhook; the order
	// advances then.
	err = f.svc.HandleWebhook(ctx, "card", &WebhookPayload{
		TransactionID: payment.TransactionID,
		State:         gateway.StateCompleted,
		ProviderTxnID: "prov-9",
	})
	require.NoError(t, err)

	got, err = f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, got.Status)

	order, err := f.orders.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, order.Status)
}

func TestWebhookUnknownTransactionIsAcknowledged(t *testing.T) {
	f := newPaymentFixture(t)

	err := f.svc.HandleWebhook(context.Background(), "card", &WebhookPayload{
		TransactionID: "no-such-txn",
		State:         gateway.StateCompleted,
	})
	assert.NoError(t, err)
}

func TestWebhookNeverDowngradesTerminalState(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, payment.ID, nil)
	require.NoError(t, err)

	// A late, out-of-order failure notification changes nothing.
	err = f.svc.HandleWebhook(ctx, "card", &WebhookPayload{
		TransactionID: payment.TransactionID,
		State:         gateway.StateFailed,
		Reason:        "late decline",
	})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, got.Status)

	// Replaying the success is equally a no-op.
	err = f.svc.HandleWebhook(ctx, "card", &WebhookPayload{
		TransactionID: payment.TransactionID,
		State:         gateway.StateCompleted,
		ProviderTxnID: "prov-other",
	})
	require.NoError(t, err)
	got, err = f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, "prov-1", got.ProviderTxnID)
}

func TestRefundPartialThenFull(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, payment.ID, nil)
	require.NoError(t, err)

	got, err := f.svc.Refund(ctx, payment.ID, 100000, "device returned")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, got.Status)
	assert.Equal(t, int64(100000), got.RefundAmount)

	// Over-refunding the remainder is rejected.
	_, err = f.svc.Refund(ctx, payment.ID, got.Amount, "too much")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	got, err = f.svc.Refund(ctx, payment.ID, got.Amount-100000, "order cancelled")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, got.Status)
	assert.Equal(t, got.Amount, got.RefundAmount)

	// Fully refunded is terminal.
	_, err = f.svc.Refund(ctx, payment.ID, 1, "")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestConcurrentPartialRefundsNeverExceedCapture(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, payment.ID, nil)
	require.NoError(t, err)

	// Two racing refunds of 600,000 against the 1,100,000 capture: only
	// one may claim, and only the claimant may reach the provider.
	const half = 600000
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.svc.Refund(ctx, payment.ID, half, "partial return")
			errs <- err
		}()
	}

	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}

	require.Len(t, failures, 1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(failures[0]))
	assert.Equal(t, 1, f.gw.refundCalls)

	got, err := f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(half), got.RefundAmount)
	assert.Equal(t, model.PaymentStatusCompleted, got.Status)
}

func TestRefundDeclineReleasesClaim(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, payment.ID, nil)
	require.NoError(t, err)

	f.gw.refundResult = &gateway.Result{Success: false, Reason: "settlement window closed"}
	_, err = f.svc.Refund(ctx, payment.ID, 100000, "device returned")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// The decline gave the amount back; the full capture is refundable.
	got, err := f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.RefundAmount)

	f.gw.refundResult = &gateway.Result{Success: true}
	got, err = f.svc.Refund(ctx, payment.ID, payment.Amount, "order cancelled")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, got.Status)
}

func TestRefundTransportErrorRetainsClaim(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, payment.ID, nil)
	require.NoError(t, err)

	f.gw.refundErr = context.DeadlineExceeded
	f.gw.refundResult = nil
	_, err = f.svc.Refund(ctx, payment.ID, 600000, "partial return")
	assert.Equal(t, apperr.KindExternal, apperr.KindOf(err))

	// The provider may have refunded; the claim stays on the books so a
	// retry cannot instruct the provider past the captured amount.
	got, err := f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600000), got.RefundAmount)

	f.gw.refundErr = nil
	f.gw.refundResult = &gateway.Result{Success: true}
	_, err = f.svc.Refund(ctx, payment.ID, 600000, "retry")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 1, f.gw.refundCalls)
}

func TestRefundValidations(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, payment.ID, 0, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Only completed payments refund.
	_, err = f.svc.Refund(ctx, payment.ID, 1000, "")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestReconcileProcessing(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	f.gw.processErr = context.DeadlineExceeded
	f.gw.processResult = nil

	payment, err := f.svc.Create(ctx, f.order.ID, model.PaymentMethodCard)
	require.NoError(t, err)
	_, _ = f.svc.Process(ctx, payment.ID, nil)

	// Backdate the row past the grace period.
	require.NoError(t, f.db.Model(&model.Payment{}).
		Where("id = ?", payment.ID).
		UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	f.gw.statusResp = &gateway.Status{
		State:  gateway.StateCompleted,
		Result: gateway.Result{Success: true, ProviderTxnID: "prov-late", ReceiptURL: ""},
	}

	reconciled, err := f.svc.ReconcileProcessing(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)

	got, err := f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, got.Status)
	assert.Equal(t, "prov-late", got.ProviderTxnID)

	order, err := f.orders.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, order.Status)
}
