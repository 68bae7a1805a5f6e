package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/batchstream/internal/protocol"
)

var errQueueStopped = errors.New("stream: queue reader stopped")

type queueEntry struct {
	chunk       protocol.Chunk
	interrupted bool
}

// chunkQueue buffers records for one chunk index. The router never blocks on
// it; readers block in pop until a record arrives.
type chunkQueue struct {
	index protocol.ChunkIndex

	// claimed is guarded by Stream.mu.
	claimed bool

	mu     sync.Mutex
	items  []queueEntry
	signal chan struct{}
}

func newChunkQueue(index protocol.ChunkIndex) *chunkQueue {
	return &chunkQueue{
		index:  index,
		signal: make(chan struct{}, 1),
	}
}

func (q *chunkQueue) push(e queueEntry) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop waits for the next entry. A nil stop never fires; a closed stop
// returns errQueueStopped.
func (q *chunkQueue) pop(ctx context.Context, stop <-chan struct{}) (queueEntry, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = queueEntry{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return e, nil
		}
		q.mu.Unlock()
		select {
		case <-q.signal:
		case <-ctx.Done():
			return queueEntry{}, ctx.Err()
		case <-stop:
			return queueEntry{}, errQueueStopped
		}
	}
}

func (q *chunkQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
