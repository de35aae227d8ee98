package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"mobileshop/internal/config"
	"mobileshop/internal/gateway"
	"mobileshop/internal/infrastructure/cache"
	"mobileshop/internal/infrastructure/database"
	"mobileshop/pkg/idgen"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	idgen.Init(1)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A fresh connection sees a fresh in-memory database, so pin the pool
	// to a single connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Kafka.Topic.OrderEvents = "order_events"
	cfg.Kafka.Topic.PaymentEvents = "payment_events"
	cfg.Business.ReservationTTLMinutes = 30
	return cfg
}

// fakeCache is an in-memory cache.Service that records invalidations.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return val, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

// fakeUsers recognizes every user id except the ones listed as missing.
type fakeUsers struct {
	missing map[int64]bool
}

func (u *fakeUsers) Exists(ctx context.Context, userID int64) (bool, error) {
	return !u.missing[userID], nil
}

// fakeGateway returns scripted provider answers and counts calls.
type fakeGateway struct {
	mu           sync.Mutex
	processCalls int
	refundCalls  int

	processResult *gateway.Result
	processErr    error
	refundResult  *gateway.Result
	refundErr     error
	statusResp    *gateway.Status
	statusErr     error
}

func (g *fakeGateway) Process(ctx context.Context, req *gateway.ProcessRequest) (*gateway.Result, error) {
	g.mu.Lock()
	g.processCalls++
	g.mu.Unlock()
	return g.processResult, g.processErr
}

func (g *fakeGateway) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.Result, error) {
	g.mu.Lock()
	g.refundCalls++
	g.mu.Unlock()
	return g.refundResult, g.refundErr
}

func (g *fakeGateway) Status(ctx context.Context, transactionID string) (*gateway.Status, error) {
	return g.statusResp, g.statusErr
}
