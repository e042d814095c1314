// Package idempotency tracks, per patient, which event ids the Gateway has
// already processed. The router consults it at the top of process_event
// (spec.md §4.2 step 2): an event id seen within the patient's last 100
// processed events is a duplicate delivery and short-circuits the pipeline
// with zero additional agent invocations.
//
// Unlike a generic request/response idempotency cache, this tracker is not
// TTL-based — membership is bounded purely by count (the 100 most recent
// event ids per patient), with FIFO eviction of the oldest entry once the
// bound is exceeded. There is deliberately no expiry: an event id seen
// 10 minutes ago is just as much a duplicate as one seen 10 seconds ago,
// as long as it is still within the 100-entry window.
package idempotency

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MaxTracked is the per-patient bound on remembered event ids (spec.md §4.2
// step 2, §8 property 2).
const MaxTracked = 100

// Tracker records event ids already processed for a patient and reports
// whether a given event id is a repeat.
type Tracker interface {
	// Seen records eventID for patientID and reports whether it had
	// already been recorded. A duplicate is NOT re-inserted (its position
	// in the FIFO is left where it was originally seen).
	Seen(ctx context.Context, patientID, eventID string) (bool, error)
}

// memoryTracker is an in-process, single-instance Tracker backed by a
// bounded slice-plus-set per patient. This is the default for a
// single-process Gateway deployment.
type memoryTracker struct {
	mu      sync.Mutex
	order   map[string][]string            // patientID -> event ids, oldest first
	members map[string]map[string]struct{} // patientID -> set of event ids
}

// NewMemoryTracker returns a process-local Tracker.
func NewMemoryTracker() Tracker {
	return &memoryTracker{
		order:   make(map[string][]string),
		members: make(map[string]map[string]struct{}),
	}
}

func (t *memoryTracker) Seen(_ context.Context, patientID, eventID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.members[patientID]
	if !ok {
		set = make(map[string]struct{})
		t.members[patientID] = set
	}
	if _, dup := set[eventID]; dup {
		return true, nil
	}

	set[eventID] = struct{}{}
	queue := append(t.order[patientID], eventID)
	if len(queue) > MaxTracked {
		evicted := queue[0]
		queue = queue[1:]
		delete(set, evicted)
	}
	t.order[patientID] = queue
	return false, nil
}

// redisTracker is a Redis-backed Tracker for multi-instance Gateway
// deployments, using a per-patient sorted set as the bounded FIFO: ZADD
// inserts with a monotonically increasing score, ZSCORE checks membership,
// and ZREMRANGEBYRANK trims everything below the 100 most recent entries.
type redisTracker struct {
	redis  *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisTracker returns a Tracker shared across Gateway instances.
func NewRedisTracker(client *redis.Client, prefix string, logger *zap.Logger) Tracker {
	if prefix == "" {
		prefix = "idemp:"
	}
	return &redisTracker{redis: client, prefix: prefix, logger: logger}
}

func (t *redisTracker) key(patientID string) string {
	return t.prefix + patientID
}

func (t *redisTracker) Seen(ctx context.Context, patientID, eventID string) (bool, error) {
	key := t.key(patientID)

	_, err := t.redis.ZScore(ctx, key, eventID).Result()
	if err == nil {
		return true, nil
	}
	if err != redis.Nil {
		return false, fmt.Errorf("idempotency: check membership: %w", err)
	}

	score, err := t.redis.Incr(ctx, key+":seq").Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: allocate sequence: %w", err)
	}

	pipe := t.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: eventID})
	pipe.ZRemRangeByRank(ctx, key, 0, -int64(MaxTracked)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("idempotency: record event id: %w", err)
	}
	return false, nil
}
