package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_PublishSubscribe(t *testing.T) {
	service := New()
	defer service.Shutdown()

	var mu sync.Mutex
	var seen []KernelEvent
	received := make(chan struct{}, 8)
	service.Subscribe(func(evt *Event[KernelEvent]) {
		mu.Lock()
		seen = append(seen, evt.Data)
		mu.Unlock()
		received <- struct{}{}
	})

	service.Publish(TypeProcessCreated, KernelEvent{PID: 1, Name: "init"})
	service.Publish(TypeProcessExited, KernelEvent{PID: 1, Name: "init"})

	for n := 0; n < 2; n++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, TypeProcessCreated, seen[0].Type)
	assert.EqualValues(t, 1, seen[0].PID)
	assert.Equal(t, TypeProcessExited, seen[1].Type)
}

func TestQueue_PublishConsume(t *testing.T) {
	queue := NewQueue[KernelEvent](QueueConfig{Buffer: 4})
	defer queue.Close()
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &KernelEvent{Type: TypeBoot}))
	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, TypeBoot, msg.T().Type)
	require.NoError(t, msg.Ack())
	assert.Error(t, msg.Ack(), "second ack must be refused")
}

func TestQueue_FullDropsOldest(t *testing.T) {
	queue := NewQueue[KernelEvent](QueueConfig{Buffer: 2})
	defer queue.Close()
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &KernelEvent{Detail: "a"}))
	require.NoError(t, queue.Publish(ctx, &KernelEvent{Detail: "b"}))
	require.NoError(t, queue.Publish(ctx, &KernelEvent{Detail: "c"}))

	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", msg.T().Detail)
}

func TestQueue_NackRequeues(t *testing.T) {
	queue := NewQueue[KernelEvent](QueueConfig{Buffer: 4, MaxRetries: 1})
	defer queue.Close()
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &KernelEvent{Detail: "flaky"}))
	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, msg.Nack(context.DeadlineExceeded))

	retried, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "flaky", retried.T().Detail)

	// retry budget spent, a second nack does not requeue
	require.NoError(t, retried.Nack(context.DeadlineExceeded))
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = queue.Consume(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_ConsumeCancelled(t *testing.T) {
	queue := NewQueue[KernelEvent](DefaultQueueConfig())
	defer queue.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := queue.Consume(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
