package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/batchstream/internal/async"
	"github.com/danmuck/batchstream/internal/protocol"
)

// parseValue rebuilds one encoded node, replacing every placeholder with a
// live promise or iterable fed from the chunk's queue.
func (s *Stream) parseValue(v protocol.Value) (any, error) {
	data, err := s.opts.Transformer.Deserialize(v.Data)
	if err != nil {
		return nil, err
	}
	for _, def := range v.Defs {
		switch key := def.Key.(type) {
		case nil:
			return s.morphValue(def), nil
		case string:
			obj, ok := data.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: key %q on %T", protocol.ErrMalformedValue, key, data)
			}
			obj[key] = s.morphValue(def)
		case int:
			arr, ok := data.([]any)
			if !ok || key >= len(arr) {
				return nil, fmt.Errorf("%w: index %d on %T", protocol.ErrMalformedValue, key, data)
			}
			arr[key] = s.morphValue(def)
		default:
			return nil, fmt.Errorf("%w: %T", protocol.ErrInvalidKey, def.Key)
		}
	}
	return data, nil
}

func (s *Stream) morphValue(def protocol.ChunkDefinition) any {
	q := s.queue(def.Index, true)
	if def.Kind == protocol.KindIterable {
		return s.remoteIterable(q)
	}
	return s.remotePromise(q)
}

// remotePromise settles from exactly one record of q.
func (s *Stream) remotePromise(q *chunkQueue) async.Promise {
	d := async.NewDeferred()
	go func() {
		entry, err := q.pop(context.Background(), nil)
		s.discard(q)
		if err != nil {
			d.Reject(err)
			return
		}
		v, err := s.settlePromise(q.index, entry)
		if err != nil {
			d.Reject(err)
			return
		}
		d.Resolve(v)
	}()
	return d
}

func (s *Stream) settlePromise(idx protocol.ChunkIndex, entry queueEntry) (any, error) {
	if entry.interrupted {
		return nil, &StreamInterruptedError{Index: idx}
	}
	switch entry.chunk.Status {
	case protocol.StatusFulfilled:
		if entry.chunk.Value == nil {
			return nil, fmt.Errorf("%w: fulfilled chunk %d without value", protocol.ErrMalformedChunk, idx)
		}
		return s.parseValue(*entry.chunk.Value)
	case protocol.StatusRejected:
		return nil, &AsyncError{Index: idx}
	default:
		return nil, fmt.Errorf("%w: promise chunk %d status %d", protocol.ErrMalformedChunk, idx, entry.chunk.Status)
	}
}

// remoteIterator pulls records from its queue on demand. It is finite and
// cannot be restarted.
type remoteIterator struct {
	s *Stream
	q *chunkQueue

	stop      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	finished bool
	err      error
}

func (s *Stream) remoteIterable(q *chunkQueue) *remoteIterator {
	return &remoteIterator{s: s, q: q, stop: make(chan struct{})}
}

func (it *remoteIterator) Next(ctx context.Context) (any, bool, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.finished {
		return nil, false, it.err
	}
	select {
	case <-it.stop:
		it.finish(nil)
		return nil, false, nil
	default:
	}

	entry, err := it.q.pop(ctx, it.stop)
	if err == errQueueStopped {
		it.finish(nil)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.interrupted {
		it.finish(&StreamInterruptedError{Index: it.q.index})
		return nil, false, it.err
	}

	switch entry.chunk.Status {
	case protocol.StatusValue:
		if entry.chunk.Value == nil {
			it.finish(fmt.Errorf("%w: iterable chunk %d value record without value", protocol.ErrMalformedChunk, it.q.index))
			return nil, false, it.err
		}
		v, err := it.s.parseValue(*entry.chunk.Value)
		if err != nil {
			it.finish(err)
			return nil, false, err
		}
		return v, true, nil
	case protocol.StatusDone:
		it.finish(nil)
		return nil, false, nil
	case protocol.StatusErrored:
		it.finish(&AsyncError{Index: it.q.index})
		return nil, false, it.err
	default:
		it.finish(fmt.Errorf("%w: iterable chunk %d status %d", protocol.ErrMalformedChunk, it.q.index, entry.chunk.Status))
		return nil, false, it.err
	}
}

// finish requires it.mu.
func (it *remoteIterator) finish(err error) {
	it.finished = true
	it.err = err
	it.s.discard(it.q)
}

// Close stops iteration early and releases the chunk's queue. Buffered and
// later records are dropped; Next reports done from then on.
func (it *remoteIterator) Close() error {
	it.closeOnce.Do(func() {
		close(it.stop)
		it.s.discard(it.q)
	})
	return nil
}
