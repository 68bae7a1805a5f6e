package stream

import (
	"context"
	"io"
	"sync"

	"github.com/danmuck/batchstream/internal/async"
	"github.com/danmuck/batchstream/internal/observability"
	"github.com/danmuck/batchstream/internal/protocol"
	"github.com/rs/zerolog"
)

// record is one encoded chunk ready for framing.
type record struct {
	chunk protocol.Chunk
	line  []byte
}

// emitter is the chunk registry for one producer invocation. It allocates
// chunk indices, drives each registered value on its own goroutine and owns
// the single output channel, which it closes once nothing is pending.
type emitter struct {
	ctx  context.Context
	stop <-chan struct{}
	opts ProducerOptions
	log  zerolog.Logger
	out  chan record

	mu      sync.Mutex
	next    protocol.ChunkIndex
	pending map[protocol.ChunkIndex]struct{}
	guards  int
	closed  bool
}

func newEmitter(ctx context.Context, stop <-chan struct{}, opts ProducerOptions, logger zerolog.Logger) *emitter {
	return &emitter{
		ctx:     ctx,
		stop:    stop,
		opts:    opts,
		log:     logger,
		out:     make(chan record),
		pending: make(map[protocol.ChunkIndex]struct{}),
	}
}

// hold keeps the output open while the head is being classified.
func (e *emitter) hold() {
	e.mu.Lock()
	e.guards++
	e.mu.Unlock()
}

func (e *emitter) release() {
	e.mu.Lock()
	e.guards--
	done := e.drainedLocked()
	e.mu.Unlock()
	if done {
		close(e.out)
	}
}

func (e *emitter) register(kind protocol.Kind, path []any) protocol.ChunkIndex {
	e.mu.Lock()
	idx := e.next
	e.next++
	e.pending[idx] = struct{}{}
	e.mu.Unlock()
	observability.AddPending(1)
	e.log.Trace().
		Int("chunk", int(idx)).
		Str("kind", kind.String()).
		Interface("path", path).
		Msg("stream.producer registered")
	return idx
}

func (e *emitter) complete(idx protocol.ChunkIndex) {
	e.mu.Lock()
	delete(e.pending, idx)
	done := e.drainedLocked()
	e.mu.Unlock()
	observability.AddPending(-1)
	if done {
		close(e.out)
	}
}

// drainedLocked requires e.mu and flips closed at most once.
func (e *emitter) drainedLocked() bool {
	if e.closed || e.guards > 0 || len(e.pending) > 0 {
		return false
	}
	e.closed = true
	return true
}

// checkMaxDepth returns a failure when path is deeper than MaxDepth.
func (e *emitter) checkMaxDepth(path []any) error {
	if e.opts.MaxDepth > 0 && len(path) > e.opts.MaxDepth {
		return &MaxDepthError{Path: clonePath(path), MaxDepth: e.opts.MaxDepth}
	}
	return nil
}

// registerPromise allocates a chunk for p and settles it in the background.
func (e *emitter) registerPromise(p async.Promise, path []any) protocol.ChunkIndex {
	idx := e.register(protocol.KindPromise, path)
	go func() {
		defer e.complete(idx)
		rejected := protocol.Chunk{Index: idx, Kind: protocol.KindPromise, Status: protocol.StatusRejected}

		if err := e.checkMaxDepth(path); err != nil {
			e.opts.OnError(err, path)
			e.send(rejected, path)
			return
		}
		v, err := p.Await(e.ctx)
		if err != nil {
			e.opts.OnError(err, path)
			e.send(rejected, path)
			return
		}
		val, err := e.classify(v, path)
		if err != nil {
			e.opts.OnError(err, path)
			e.send(rejected, path)
			return
		}
		e.send(protocol.Chunk{Index: idx, Kind: protocol.KindPromise, Status: protocol.StatusFulfilled, Value: &val}, path)
	}()
	return idx
}

// registerIterable allocates a chunk for it and drains it in the background.
// Exactly one terminal record is sent.
func (e *emitter) registerIterable(it async.Iterable, path []any) protocol.ChunkIndex {
	idx := e.register(protocol.KindIterable, path)
	go func() {
		defer e.complete(idx)
		if c, ok := it.(io.Closer); ok {
			defer c.Close()
		}
		errored := protocol.Chunk{Index: idx, Kind: protocol.KindIterable, Status: protocol.StatusErrored}

		if err := e.checkMaxDepth(path); err != nil {
			e.opts.OnError(err, path)
			e.send(errored, path)
			return
		}
		for {
			v, ok, err := it.Next(e.ctx)
			if err != nil {
				e.opts.OnError(err, path)
				e.send(errored, path)
				return
			}
			if !ok {
				e.send(protocol.Chunk{Index: idx, Kind: protocol.KindIterable, Status: protocol.StatusDone}, path)
				return
			}
			val, err := e.classify(v, path)
			if err != nil {
				e.opts.OnError(err, path)
				e.send(errored, path)
				return
			}
			sent, err := e.trySend(protocol.Chunk{Index: idx, Kind: protocol.KindIterable, Status: protocol.StatusValue, Value: &val})
			if err != nil {
				e.opts.OnError(err, path)
				e.send(errored, path)
				return
			}
			if !sent {
				return
			}
		}
	}()
	return idx
}

// send delivers a terminal record. An unencodable value turns into the
// kind's failure record.
func (e *emitter) send(c protocol.Chunk, path []any) bool {
	sent, err := e.trySend(c)
	if err == nil {
		return sent
	}
	e.opts.OnError(err, path)
	failed := protocol.Chunk{Index: c.Index, Kind: c.Kind, Status: protocol.StatusRejected}
	if c.Kind == protocol.KindIterable {
		failed.Status = protocol.StatusErrored
	}
	sent, _ = e.trySend(failed)
	return sent
}

// trySend encodes c and hands it to the framing loop. It reports false when
// the writer has gone away.
func (e *emitter) trySend(c protocol.Chunk) (bool, error) {
	line, err := protocol.EncodeChunk(c)
	if err != nil {
		return false, err
	}
	select {
	case e.out <- record{chunk: c, line: line}:
		observability.RecordChunk(c.Kind.String(), protocol.StatusName(c.Kind, c.Status))
		return true, nil
	case <-e.stop:
		return false, nil
	}
}

func clonePath(path []any) []any {
	out := make([]any, len(path))
	copy(out, path)
	return out
}

func childPath(path []any, key any) []any {
	out := make([]any, len(path), len(path)+1)
	copy(out, path)
	return append(out, key)
}
