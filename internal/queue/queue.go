package queue

import (
	"context"
	"errors"
	"time"

	obsmetrics "github.com/adlift/trafficd/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
)

// Queue is a FIFO work queue. Enqueue prepends, DequeueBlocking pops from
// the tail, so items come out in the order they went in. A popped item is
// gone from the queue immediately; consumers compensate for crash-after-pop
// with the idempotency Ledger, not with acknowledgments.
type Queue interface {
	Enqueue(ctx context.Context, key, item string) error
	EnqueueBatch(ctx context.Context, key string, items []string) error
	// DequeueBlocking waits up to timeout for an item. A timeout is not an
	// error: it returns ("", nil) so callers can loop without busy-waiting.
	DequeueBlocking(ctx context.Context, key string, timeout time.Duration) (string, error)
	Len(ctx context.Context, key string) (int64, error)
}

// Ledger records work-item identifiers that have already been processed.
type Ledger interface {
	MarkProcessed(ctx context.Context, setKey, id string) error
	IsProcessed(ctx context.Context, setKey, id string) (bool, error)
}

type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, key, item string) error {
	if err := q.client.LPush(ctx, key, item).Err(); err != nil {
		return err
	}
	obsmetrics.Worker().IncQueueOp(key, "enqueue")
	return nil
}

func (q *RedisQueue) EnqueueBatch(ctx context.Context, key string, items []string) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]interface{}, len(items))
	for i, item := range items {
		values[i] = item
	}
	if err := q.client.LPush(ctx, key, values...).Err(); err != nil {
		return err
	}
	obsmetrics.Worker().IncQueueOp(key, "enqueue_batch")
	return nil
}

func (q *RedisQueue) DequeueBlocking(ctx context.Context, key string, timeout time.Duration) (string, error) {
	res, err := q.client.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BRPop returns [key, value].
	if len(res) < 2 {
		return "", nil
	}
	obsmetrics.Worker().IncQueueOp(key, "dequeue")
	return res[1], nil
}

func (q *RedisQueue) Len(ctx context.Context, key string) (int64, error) {
	return q.client.LLen(ctx, key).Result()
}

type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) MarkProcessed(ctx context.Context, setKey, id string) error {
	return l.client.SAdd(ctx, setKey, id).Err()
}

func (l *RedisLedger) IsProcessed(ctx context.Context, setKey, id string) (bool, error) {
	return l.client.SIsMember(ctx, setKey, id).Result()
}
