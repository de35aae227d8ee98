package repository

import (
	"context"
	"testing"

	"mobileshop/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, repo *OrderRepository, status string) *model.Order {
	t.Helper()
	o := &model.Order{
		OrderNo:     "ORD-test-1",
		UserID:      7,
		PlanID:      1,
		Status:      status,
		TotalAmount: 50000,
		TermsAgreed: true,
	}
	require.NoError(t, repo.Create(context.Background(), nil, o))
	return o
}

func TestUpdateStatusGuardsCurrentState(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()
	o := seedOrder(t, repo, model.OrderStatusPending)

	require.NoError(t, repo.UpdateStatus(ctx, nil, o.ID, model.OrderStatusPending, model.OrderStatusConfirmed))

	// The stated from-status no longer matches.
	err := repo.UpdateStatus(ctx, nil, o.ID, model.OrderStatusPending, model.OrderStatusConfirmed)
	assert.ErrorIs(t, err, ErrOrderStatusConflict)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, got.Status)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()
	o := seedOrder(t, repo, model.OrderStatusPending)

	err := repo.UpdateStatus(ctx, nil, o.ID, model.OrderStatusPending, model.OrderStatusCompleted)
	assert.ErrorIs(t, err, ErrOrderStatusConflict)
}

func TestUpdateStatusStampsTerminalStates(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()
	o := seedOrder(t, repo, model.OrderStatusProcessing)

	require.NoError(t, repo.UpdateStatus(ctx, nil, o.ID, model.OrderStatusProcessing, model.OrderStatusCompleted))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// Completed is final.
	err = repo.UpdateStatus(ctx, nil, o.ID, model.OrderStatusCompleted, model.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrOrderStatusConflict)
}

func TestHistoryIsAppendOnly(t *testing.T) {
	db := newTestDB(t)
	orders := NewOrderRepository(db)
	history := NewHistoryRepository(db)
	ctx := context.Background()
	o := seedOrder(t, orders, model.OrderStatusPending)

	rows := []*model.OrderStatusHistory{
		{OrderID: o.ID, FromStatus: "", ToStatus: model.OrderStatusPending, ChangedBy: "user:7", Note: "order created"},
		{OrderID: o.ID, FromStatus: model.OrderStatusPending, ToStatus: model.OrderStatusConfirmed, ChangedBy: model.ActorSystem, Note: "payment completed"},
	}
	for _, row := range rows {
		require.NoError(t, history.Create(ctx, nil, row))
	}

	got, err := history.ListByOrderID(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.OrderStatusPending, got[0].ToStatus)
	assert.Equal(t, model.OrderStatusConfirmed, got[1].ToStatus)
}
