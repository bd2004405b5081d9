package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	handler := func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}
	q := NewQueue("test", handler, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "email.reset"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{Type: "noop"}))
}

func TestRouteDispatchesByType(t *testing.T) {
	var called string
	h := Route(map[string]Handler{
		"a": func(context.Context, Job) error { called = "a"; return nil },
	})
	require.NoError(t, h(context.Background(), Job{Type: "a"}))
	assert.Equal(t, "a", called)
	assert.Error(t, h(context.Background(), Job{Type: "b"}))
}

func TestObserverSeesOutcome(t *testing.T) {
	seen := make(chan error, 1)
	q := NewQueue("observed", func(context.Context, Job) error { return nil }, QueueConfig{
		Observer: func(queue, jobType string, err error, _ time.Duration) {
			assert.Equal(t, "observed", queue)
			assert.Equal(t, "certificate.generate", jobType)
			seen <- err
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "certificate.generate"}))
	select {
	case err := <-seen:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("observer not called")
	}
}
