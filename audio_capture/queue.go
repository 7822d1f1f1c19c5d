package audio_capture

import (
	"sync"

	"go.uber.org/zap"

	"voice-recliner/logging"
)

// Queue is the bounded hand-off between the audio callback and the
// recognition path. Push never blocks: when the consumer lags the oldest
// queued chunk is dropped.
type Queue struct {
	mu      sync.Mutex
	ch      chan Chunk
	seq     uint64
	dropped uint64
	closed  bool
	logger  *zap.Logger
}

func NewQueue(depth int, logger *zap.Logger) *Queue {
	if depth < 1 {
		depth = DefaultDepth
	}

	logger = logging.OrNop(logger)

	return &Queue{
		ch:     make(chan Chunk, depth),
		logger: logger,
	}
}

// Push copies samples into a new chunk and enqueues it.
func (q *Queue) Push(samples []int16) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.seq++
	chunk := Chunk{Seq: q.seq, Samples: make([]int16, len(samples))}
	copy(chunk.Samples, samples)

	for {
		select {
		case q.ch <- chunk:
			return
		default:
		}

		select {
		case old := <-q.ch:
			q.dropped++
			q.logger.Warn("audio queue full, dropping oldest chunk",
				zap.Uint64("seq", old.Seq),
				zap.Uint64("dropped_total", q.dropped),
			)
		default:
		}
	}
}

func (q *Queue) C() <-chan Chunk {
	return q.ch
}

func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dropped
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
