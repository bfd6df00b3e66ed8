package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int32
	done := make(chan struct{}, 3)
	q := NewQueue("notifications", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "notify"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job was not processed")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts int32
	var mu sync.Mutex
	var gaveUp []Job
	finished := make(chan struct{})
	q := NewQueue("notifications", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("smtp down")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnGiveUp: func(ctx context.Context, job Job, err error) {
			mu.Lock()
			gaveUp = append(gaveUp, job)
			mu.Unlock()
			close(finished)
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "n-1", Type: "notify"}))
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("job never gave up")
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, gaveUp, 1)
	assert.Equal(t, 3, gaveUp[0].Attempt)
}

func TestQueueEnqueueDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("notifications", func(ctx context.Context, job Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	assert.ErrorIs(t, q.Enqueue(Job{ID: "early"}), ErrQueueStopped)

	q.Start(context.Background())
	defer q.Stop()
	defer close(block)

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	var sawFull bool
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(Job{ID: "more"}); errors.Is(err, ErrQueueFull) {
			sawFull = true
		}
	}
	assert.True(t, sawFull)
}
