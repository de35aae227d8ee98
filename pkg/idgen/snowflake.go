package idgen

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Snowflake-style id generator backing the human-readable order and payment
// numbers. Layout: 41-bit millisecond timestamp, 10-bit worker id, 12-bit
// per-millisecond sequence. Ids stay unique across instances as long as each
// instance gets a distinct worker id.

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init fixes the worker id for this process. Must happen before the first
// NextID; later calls are no-ops.
func Init(workerID int64) {
	once.Do(func() {
		if workerID < 0 || workerID > maxWorkerID {
			log.Fatalf("worker id must be within 0-%d", maxWorkerID)
		}
		defaultGenerator = &Snowflake{workerID: workerID}
	})
}

func NextID() int64 {
	if defaultGenerator == nil {
		Init(1)
	}
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted for this millisecond, spin to the next one
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateOrderNo builds an order number like ORD20260115143052_12345678:
// prefix, wall-clock second, last 8 digits of a snowflake id.
func GenerateOrderNo() string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("ORD%s%08d", timestamp, id%100000000)
}

// GeneratePaymentNo builds a payment number with the same shape as order
// numbers.
func GeneratePaymentNo() string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("PAY%s%08d", timestamp, id%100000000)
}
