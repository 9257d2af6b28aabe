// Package workerpool runs independent work items with bounded parallelism.
package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Config configures the pool.
type Config struct {
	MaxConcurrent int // Maximum concurrent items (default: 8)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 8,
	}
}

// Pool bounds how many work items run at once using a semaphore.
type Pool struct {
	config Config
	logger *zap.Logger
}

// New creates a pool.
func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Pool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// Item is a unit of work.
type Item[T any] struct {
	ID      string                               // For logging/tracking
	Execute func(ctx context.Context) (T, error) // The work to be executed
}

// Result is the outcome of one item.
type Result[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes all items and returns results in submission order.
// Every item runs to completion even if others fail; items that never
// acquired a slot before ctx was cancelled carry ctx.Err().
func Process[T any](
	ctx context.Context,
	pool *Pool,
	items []Item[T],
	onProgress func(completed, total int),
) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[T], len(items))
	done := make(chan int, len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item[T]) {
			defer wg.Done()
			defer func() { done <- i }()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = Result[T]{ID: item.ID, Err: ctx.Err()}
				return
			}

			value, err := item.Execute(ctx)
			if err != nil {
				pool.logger.Debug("Work item failed", zap.String("id", item.ID), zap.Error(err))
			}
			results[i] = Result[T]{ID: item.ID, Result: value, Err: err}
		}(i, item)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	for range done {
		completed++
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}

	return results
}
