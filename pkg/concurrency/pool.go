package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond"

	"dtfcapture/internal/logger"
)

// PoolConfig holds configuration for a worker pool
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	IdleTimeout time.Duration
}

// WorkerPool wraps alitto/pond with logging and standardized config
type WorkerPool struct {
	pool *pond.WorkerPool
}

func NewWorkerPool(cfg PoolConfig, log logger.Logger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 100
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	pool := pond.New(
		cfg.MaxWorkers,
		cfg.MaxCapacity,
		pond.MinWorkers(0),
		pond.IdleTimeout(cfg.IdleTimeout),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			log.Errorw("Worker pool panic recovered", "pool", cfg.Name, "panic", fmt.Sprint(p))
		}),
	)

	return &WorkerPool{pool: pool}
}

// Group returns a task group whose context is cancelled by the first failing task.
func (wp *WorkerPool) Group(ctx context.Context) (*pond.TaskGroupWithContext, context.Context) {
	return wp.pool.GroupContext(ctx)
}

// TrySubmit queues task unless the pool is at capacity.
func (wp *WorkerPool) TrySubmit(task func()) bool {
	return wp.pool.TrySubmit(task)
}

// Stop waits for queued tasks and releases the workers.
func (wp *WorkerPool) Stop() {
	wp.pool.StopAndWait()
}
