package prices

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtfcapture/internal/logger"
)

type recordingRepository struct {
	mu       sync.Mutex
	chunks   [][]Payload
	inFlight atomic.Int32
	peak     atomic.Int32
	failOn   int
	calls    atomic.Int32
}

func (r *recordingRepository) Insert(ctx context.Context, flowID uuid.UUID, capturedAt time.Time, payload Payload) error {
	return r.InsertBatch(ctx, flowID, capturedAt, []Payload{payload})
}

func (r *recordingRepository) InsertBatch(ctx context.Context, _ uuid.UUID, _ time.Time, payloads []Payload) error {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	call := int(r.calls.Add(1))
	time.Sleep(5 * time.Millisecond)
	if r.failOn > 0 && call == r.failOn {
		return errors.New("insert failed")
	}

	r.mu.Lock()
	r.chunks = append(r.chunks, payloads)
	r.mu.Unlock()
	return nil
}

func (r *recordingRepository) GetPayloadsByFlowID(context.Context, uuid.UUID) ([]Payload, error) {
	return nil, nil
}

func payloads(n int) []Payload {
	out := make([]Payload, n)
	for i := range out {
		out[i] = samplePayload(1+i%28, "10.5")
	}
	return out
}

func TestPersist_ChunksByBatchSize(t *testing.T) {
	repo := &recordingRepository{}
	p := NewPersister(repo, 3, 2, logger.NopLogger())
	defer p.Close()

	require.NoError(t, p.Persist(context.Background(), uuid.New(), payloads(10)))

	total := 0
	sizes := map[int]int{}
	for _, c := range repo.chunks {
		total += len(c)
		sizes[len(c)]++
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, map[int]int{3: 3, 1: 1}, sizes)
}

func TestPersist_BoundsConcurrency(t *testing.T) {
	repo := &recordingRepository{}
	p := NewPersister(repo, 1, 2, logger.NopLogger())
	defer p.Close()

	require.NoError(t, p.Persist(context.Background(), uuid.New(), payloads(12)))
	assert.LessOrEqual(t, repo.peak.Load(), int32(2))
	assert.Len(t, repo.chunks, 12)
}

func TestPersist_ReturnsChunkFailure(t *testing.T) {
	repo := &recordingRepository{failOn: 2}
	p := NewPersister(repo, 2, 1, logger.NopLogger())
	defer p.Close()

	err := p.Persist(context.Background(), uuid.New(), payloads(6))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert failed")
}

func TestPersist_EmptyIsNoop(t *testing.T) {
	repo := &recordingRepository{}
	p := NewPersister(repo, 2, 1, logger.NopLogger())
	defer p.Close()

	require.NoError(t, p.Persist(context.Background(), uuid.New(), nil))
	assert.Zero(t, repo.calls.Load())
}
