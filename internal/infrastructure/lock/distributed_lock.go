package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrLockFailed = errors.New("failed to acquire distributed lock")

// DistributedLock is a Redis SETNX lock with an expiry so that a crashed
// holder cannot deadlock the key, and a token-checked Lua unlock so an
// expired holder cannot delete somebody else's lock.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts the lock once without blocking.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock retries TryLock until it wins, maxRetries is exhausted, or ctx ends.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock only if this instance still holds it. The
// check-and-delete must be one atomic step, hence the Lua script.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewPaymentLock serializes capture attempts per payment. The DB-level
// conditional status transitions are the real guarantee; the lock keeps
// concurrent retries from burning gateway calls.
func NewPaymentLock(client *redis.Client, paymentID int64, token string) *DistributedLock {
	key := fmt.Sprintf("payment:lock:%d", paymentID)
	return NewDistributedLock(client, key, token, 30*time.Second)
}

// NewRefundLock serializes refunds per payment so two partial refunds
// cannot interleave their bound checks.
func NewRefundLock(client *redis.Client, paymentID int64, token string) *DistributedLock {
	key := fmt.Sprintf("refund:lock:%d", paymentID)
	return NewDistributedLock(client, key, token, 30*time.Second)
}
