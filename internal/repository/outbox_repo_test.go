package repository

import (
	"context"
	"testing"

	"mobileshop/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOutboxMessage(t *testing.T, repo *OutboxRepository) *model.OutboxMessage {
	t.Helper()
	msg := &model.OutboxMessage{
		MessageKey: "42",
		Topic:      "order_events",
		EventType:  "order.created",
		Payload:    `{"order_id":42}`,
		Status:     model.OutboxStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), nil, msg))
	return msg
}

func TestOutboxMarkSent(t *testing.T) {
	repo := NewOutboxRepository(newTestDB(t))
	ctx := context.Background()
	msg := seedOutboxMessage(t, repo)

	require.NoError(t, repo.MarkSent(ctx, msg.ID))

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A parked message stays parked; MarkSent only touches PENDING rows.
	parked := seedOutboxMessage(t, repo)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.RecordFailure(ctx, parked.ID, 3))
	}
	require.NoError(t, repo.MarkSent(ctx, parked.ID))

	var got model.OutboxMessage
	require.NoError(t, repo.db.First(&got, parked.ID).Error)
	assert.Equal(t, model.OutboxStatusFailed, got.Status)
}

func TestOutboxRecordFailureParksAtRetryBudget(t *testing.T) {
	repo := NewOutboxRepository(newTestDB(t))
	ctx := context.Background()
	msg := seedOutboxMessage(t, repo)

	require.NoError(t, repo.RecordFailure(ctx, msg.ID, 3))
	require.NoError(t, repo.RecordFailure(ctx, msg.ID, 3))

	var got model.OutboxMessage
	require.NoError(t, repo.db.First(&got, msg.ID).Error)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, model.OutboxStatusPending, got.Status)

	// third failure hits the budget and parks the row in the same update
	require.NoError(t, repo.RecordFailure(ctx, msg.ID, 3))
	require.NoError(t, repo.db.First(&got, msg.ID).Error)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, model.OutboxStatusFailed, got.Status)

	// parked rows are out of the retry loop for good
	require.NoError(t, repo.RecordFailure(ctx, msg.ID, 3))
	require.NoError(t, repo.db.First(&got, msg.ID).Error)
	assert.Equal(t, 3, got.RetryCount)
}
