// Package workerpool provides a bounded goroutine pool used to run batch
// crypto operations concurrently while keeping per-item isolation.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Task is a unit of work executed by the pool
type Task struct {
	ID string
	Fn func(context.Context) error
}

// Pool runs tasks on a bounded set of worker goroutines
type Pool struct {
	name       string
	maxWorkers int
	logger     *zap.Logger
}

// Config holds pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	Logger     *zap.Logger
}

// New creates a worker pool
func New(cfg *Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		logger:     cfg.Logger,
	}
}

// RunAll executes every task and blocks until all complete, returning one
// error slot per task in input order. A failing or panicking task never
// affects its siblings.
func (p *Pool) RunAll(ctx context.Context, tasks []Task) []error {
	results := make([]error, len(tasks))
	sem := make(chan struct{}, p.maxWorkers)

	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = p.safeExecute(ctx, tasks[idx])
		}(i)
	}
	wg.Wait()

	return results
}

// safeExecute runs one task with panic recovery
func (p *Pool) safeExecute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("Task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()

	return task.Fn(ctx)
}
