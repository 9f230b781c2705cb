package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dtfcapture/internal/logger"
	"dtfcapture/pkg/concurrency"
	"dtfcapture/pkg/metrics"
)

// Persister splits a flow's payloads into chunks of batchSize and inserts them
// on a bounded pool. Chunks are not atomic as a whole: a failed persist is
// retried by re-running the flow, which the insert-if-absent store tolerates.
type Persister struct {
	repo      Repository
	pool      *concurrency.WorkerPool
	batchSize int
	logger    logger.Logger
}

func NewPersister(repo Repository, batchSize, parallelism int, log logger.Logger) *Persister {
	if batchSize < 1 {
		batchSize = 1
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Persister{
		repo: repo,
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "price-persistence",
			MaxWorkers:  parallelism,
			MaxCapacity: parallelism * 4,
		}, log),
		batchSize: batchSize,
		logger:    log,
	}
}

func (p *Persister) Persist(ctx context.Context, flowID uuid.UUID, payloads []Payload) error {
	if len(payloads) == 0 {
		return nil
	}

	capturedAt := time.Now().UTC()
	group, groupCtx := p.pool.Group(ctx)

	chunks := 0
	for start := 0; start < len(payloads); start += p.batchSize {
		end := min(start+p.batchSize, len(payloads))
		chunk := payloads[start:end]
		chunks++

		group.Submit(func() error {
			began := time.Now()
			if err := p.repo.InsertBatch(groupCtx, flowID, capturedAt, chunk); err != nil {
				return err
			}
			metrics.ObservePersistChunk(len(chunk), time.Since(began))
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed to persist %d payloads: %w", len(payloads), err)
	}

	p.logger.DebugwCtx(ctx, "Payloads persisted",
		"method", "prices.Persist",
		"records", len(payloads),
		"chunks", chunks,
	)
	return nil
}

func (p *Persister) Close() {
	p.pool.Stop()
}
