package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue with the same push/pop discipline as
// the redis implementation. It backs tests and local development without a
// redis server.
type MemoryQueue struct {
	mu     sync.Mutex
	lists  map[string][]string
	notify map[string]chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		lists:  make(map[string][]string),
		notify: make(map[string]chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, key, item string) error {
	_ = ctx
	q.mu.Lock()
	q.lists[key] = append([]string{item}, q.lists[key]...)
	ch := q.notifyLocked(key)
	q.mu.Unlock()
	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) EnqueueBatch(ctx context.Context, key string, items []string) error {
	for _, item := range items {
		if err := q.Enqueue(ctx, key, item); err != nil {
			return err
		}
	}
	return nil
}

func (q *MemoryQueue) DequeueBlocking(ctx context.Context, key string, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if item, ok := q.pop(key); ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", nil
		case <-q.wakeCh(key):
		}
	}
}

func (q *MemoryQueue) Len(ctx context.Context, key string) (int64, error) {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.lists[key])), nil
}

func (q *MemoryQueue) pop(key string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.lists[key]
	if len(list) == 0 {
		return "", false
	}
	item := list[len(list)-1]
	q.lists[key] = list[:len(list)-1]
	return item, true
}

// wake channels are per key so an enqueue on one queue cannot consume
// the wakeup a consumer of another queue is waiting for.
func (q *MemoryQueue) wakeCh(key string) chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.notifyLocked(key)
}

func (q *MemoryQueue) notifyLocked(key string) chan struct{} {
	ch, ok := q.notify[key]
	if !ok {
		ch = make(chan struct{}, 1)
		q.notify[key] = ch
	}
	return ch
}

// MemoryLedger is an in-process Ledger for tests.
type MemoryLedger struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{sets: make(map[string]map[string]struct{})}
}

func (l *MemoryLedger) MarkProcessed(ctx context.Context, setKey, id string) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sets[setKey] == nil {
		l.sets[setKey] = make(map[string]struct{})
	}
	l.sets[setKey][id] = struct{}{}
	return nil
}

func (l *MemoryLedger) IsProcessed(ctx context.Context, setKey, id string) (bool, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sets[setKey][id]
	return ok, nil
}
