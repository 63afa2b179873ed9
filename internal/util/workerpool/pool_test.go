package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(workers int) *Pool {
	return New(&Config{Name: "test", MaxWorkers: workers, Logger: zap.NewNop()})
}

func TestPool_ResultsKeepInputOrder(t *testing.T) {
	pool := newTestPool(4)

	errOdd := errors.New("odd task failed")
	tasks := make([]Task, 8)
	for i := range tasks {
		idx := i
		tasks[i] = Task{
			ID: fmt.Sprintf("task-%d", idx),
			Fn: func(ctx context.Context) error {
				if idx%2 == 1 {
					return errOdd
				}
				return nil
			},
		}
	}

	results := pool.RunAll(context.Background(), tasks)
	require.Len(t, results, 8)
	for i, err := range results {
		if i%2 == 1 {
			assert.ErrorIs(t, err, errOdd, "slot %d", i)
		} else {
			assert.NoError(t, err, "slot %d", i)
		}
	}
}

func TestPool_PanicIsIsolated(t *testing.T) {
	pool := newTestPool(2)

	var ran atomic.Int32
	results := pool.RunAll(context.Background(), []Task{
		{ID: "boom", Fn: func(ctx context.Context) error { panic("kaboom") }},
		{ID: "fine", Fn: func(ctx context.Context) error { ran.Add(1); return nil }},
	})

	require.Len(t, results, 2)
	require.Error(t, results[0])
	assert.Contains(t, results[0].Error(), "kaboom")
	assert.NoError(t, results[1])
	assert.Equal(t, int32(1), ran.Load())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := newTestPool(2)

	var current, peak atomic.Int32
	gate := make(chan struct{})
	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = Task{
			ID: fmt.Sprintf("task-%d", i),
			Fn: func(ctx context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-gate
				current.Add(-1)
				return nil
			},
		}
	}

	done := make(chan []error, 1)
	go func() { done <- pool.RunAll(context.Background(), tasks) }()
	close(gate)

	results := <-done
	require.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2), "no more than max_workers tasks run at once")
}

func TestPool_EmptyTaskList(t *testing.T) {
	pool := newTestPool(2)
	assert.Empty(t, pool.RunAll(context.Background(), nil))
}

func TestPool_DefaultsAppliedForZeroConfig(t *testing.T) {
	pool := New(&Config{Name: "defaults"})
	results := pool.RunAll(context.Background(), []Task{
		{ID: "one", Fn: func(ctx context.Context) error { return nil }},
	})
	require.Len(t, results, 1)
	assert.NoError(t, results[0])
}
