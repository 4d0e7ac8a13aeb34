package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var want []string
	for i := 0; i < 20; i++ {
		item := fmt.Sprintf("campaign-%d", i)
		want = append(want, item)
		require.NoError(t, q.Enqueue(ctx, KeyRefundQueue, item))
	}

	for i := 0; i < 20; i++ {
		got, err := q.DequeueBlocking(ctx, KeyRefundQueue, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want[i], got)
	}
}

func TestMemoryQueueBatchPreservesOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.EnqueueBatch(ctx, KeyRefundQueue, []string{"1", "2", "3"}))

	for _, want := range []string{"1", "2", "3"} {
		got, err := q.DequeueBlocking(ctx, KeyRefundQueue, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMemoryQueueTimeoutReturnsEmpty(t *testing.T) {
	q := NewMemoryQueue()

	start := time.Now()
	got, err := q.DequeueBlocking(context.Background(), KeyEmailQueue, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestMemoryQueueWakesBlockedConsumer(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	done := make(chan string, 1)
	go func() {
		item, _ := q.DequeueBlocking(ctx, KeyEmailQueue, 5*time.Second)
		done <- item
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, KeyEmailQueue, "task"))

	select {
	case item := <-done:
		assert.Equal(t, "task", item)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestMemoryQueueWakeIsPerKey(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// park a consumer on an unrelated key first so a shared wakeup would
	// land there instead of on the key being enqueued
	go func() {
		_, _ = q.DequeueBlocking(ctx, KeyEmailRetryQueue, 5*time.Second)
	}()

	got := make(chan string, 1)
	go func() {
		item, err := q.DequeueBlocking(ctx, KeyEmailQueue, 5*time.Second)
		if err == nil {
			got <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, KeyEmailQueue, "task"))

	select {
	case item := <-got:
		assert.Equal(t, "task", item)
	case <-time.After(time.Second):
		t.Fatal("consumer on the enqueued key was not woken")
	}
}

func TestMemoryLedger(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	ok, err := l.IsProcessed(ctx, KeyRefundProcessed, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.MarkProcessed(ctx, KeyRefundProcessed, "42"))

	ok, err = l.IsProcessed(ctx, KeyRefundProcessed, "42")
	require.NoError(t, err)
	assert.True(t, ok)

	// marking twice is harmless
	require.NoError(t, l.MarkProcessed(ctx, KeyRefundProcessed, "42"))
}
