package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderTransitions(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusProcessing, false},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusCompleted, false},
		{OrderStatusProcessing, OrderStatusCompleted, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusPending, false},
		{OrderStatusCompleted, OrderStatusProcessing, false},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransitionTo(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestFeeTotal(t *testing.T) {
	order := &Order{
		PlanFee:   50000,
		DeviceFee: 1000000,
		SetupFee:  0,
		NumberFee: 50000,
	}
	assert.Equal(t, int64(1100000), order.FeeTotal())
}

func TestPaymentTerminal(t *testing.T) {
	assert.True(t, PaymentTerminal(PaymentStatusCompleted))
	assert.True(t, PaymentTerminal(PaymentStatusFailed))
	assert.True(t, PaymentTerminal(PaymentStatusCancelled))
	assert.True(t, PaymentTerminal(PaymentStatusRefunded))
	assert.False(t, PaymentTerminal(PaymentStatusPending))
	assert.False(t, PaymentTerminal(PaymentStatusProcessing))
}

func TestReservationExpired(t *testing.T) {
	now := time.Now()

	free := &PhoneNumber{Status: NumberStatusAvailable}
	assert.False(t, free.ReservationExpired(now))

	past := now.Add(-time.Minute)
	expired := &PhoneNumber{Status: NumberStatusReserved, ReservedUntil: &past}
	assert.True(t, expired.ReservationExpired(now))

	future := now.Add(time.Minute)
	live := &PhoneNumber{Status: NumberStatusReserved, ReservedUntil: &future}
	assert.False(t, live.ReservationExpired(now))

	assigned := &PhoneNumber{Status: NumberStatusAssigned, ReservedUntil: &past}
	assert.False(t, assigned.ReservationExpired(now))
}
