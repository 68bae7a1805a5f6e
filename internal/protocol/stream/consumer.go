package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/danmuck/batchstream/internal/observability"
	"github.com/danmuck/batchstream/internal/protocol"
	"github.com/danmuck/batchstream/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RouterState tracks how far the consumer has read into the stream.
type RouterState int

const (
	StateAwaitingOpenBracket RouterState = iota
	StateAwaitingHead
	StateStreaming
	StateClosed
)

func (s RouterState) String() string {
	switch s {
	case StateAwaitingOpenBracket:
		return "awaiting_open_bracket"
	case StateAwaitingHead:
		return "awaiting_head"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LineSource yields complete lines without their terminator and io.EOF
// after the last one. frame.LineReader is the usual implementation.
type LineSource interface {
	ReadLine() ([]byte, error)
}

// Stream is the consumer side of one batch stream. The head is available as
// soon as Consume returns; deferred values inside it settle as their records
// arrive.
type Stream struct {
	id     string
	opts   ConsumerOptions
	log    zerolog.Logger
	lines  LineSource
	closer io.Closer

	cancel     context.CancelFunc
	cancelOnce sync.Once
	head       map[int]any
	done       chan struct{}

	mu      sync.Mutex
	state   RouterState
	queues  map[protocol.ChunkIndex]*chunkQueue
	retired map[protocol.ChunkIndex]struct{}
	ended   bool
	aborted bool
	err     error
}

// Consume reads a batch stream from r. It blocks until the head has been
// parsed and rehydrated, then routes the remaining records in the
// background. When r is an io.Closer it is closed once the stream ends or is
// aborted.
func Consume(ctx context.Context, r io.Reader, opts ConsumerOptions) (*Stream, error) {
	opts = opts.withDefaults()
	closer, _ := r.(io.Closer)
	return ConsumeLines(ctx, frame.NewLineReader(r, opts.Limits), closer, opts)
}

// ConsumeLines is Consume over an already framed line source. closer may be
// nil.
func ConsumeLines(ctx context.Context, lines LineSource, closer io.Closer, opts ConsumerOptions) (*Stream, error) {
	opts = opts.withDefaults()
	runCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		id:      opts.StreamID,
		opts:    opts,
		log:     log.With().Str("stream_id", opts.StreamID).Logger(),
		lines:   lines,
		closer:  closer,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateAwaitingOpenBracket,
		queues:  make(map[protocol.ChunkIndex]*chunkQueue),
		retired: make(map[protocol.ChunkIndex]struct{}),
	}
	go s.watch(runCtx)

	head, err := s.readHead()
	if err != nil {
		s.kill()
		close(s.done)
		observability.RecordConsumerStream("head_error")
		s.log.Warn().Err(err).Msg("stream.consumer head failed")
		if cause := ctx.Err(); cause != nil {
			return nil, fmt.Errorf("%w: %v", ErrHeadParse, cause)
		}
		return nil, err
	}
	s.head = head
	s.setState(StateStreaming)
	s.log.Debug().Int("slots", len(head)).Msg("stream.consumer head parsed")

	go s.route()
	return s, nil
}

func (s *Stream) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.Close()
	case <-s.done:
	}
}

// readHead discards the opening line and rehydrates the head line.
func (s *Stream) readHead() (map[int]any, error) {
	if _, err := s.lines.ReadLine(); err != nil {
		return nil, fmt.Errorf("%w: opening line: %v", ErrHeadParse, err)
	}
	s.setState(StateAwaitingHead)

	line, err := s.lines.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("%w: head line: %v", ErrHeadParse, err)
	}
	raw, err := protocol.ParseHead(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeadParse, err)
	}

	slots := make([]int, 0, len(raw))
	for slot := range raw {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	head := make(map[int]any, len(raw))
	for _, slot := range slots {
		v, err := s.parseValue(raw[slot])
		if err != nil {
			return nil, fmt.Errorf("%w: slot %d: %v", ErrHeadParse, slot, err)
		}
		head[slot] = v
	}
	return head, nil
}

// route pushes every chunk record onto its queue until the closing bracket,
// end of input or a malformed line.
func (s *Stream) route() {
	defer close(s.done)
	defer s.finish()

	for {
		line, err := s.lines.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.fail(err)
			}
			return
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if bytes.Equal(trimmed, []byte("]")) {
			s.setState(StateClosed)
			return
		}
		chunk, err := protocol.ParseChunk(trimmed)
		if err != nil {
			s.fail(err)
			return
		}
		s.log.Trace().
			Int("chunk", int(chunk.Index)).
			Int("status", chunk.Status).
			Msg("stream.consumer routed")
		if q := s.queue(chunk.Index, false); q != nil {
			q.push(queueEntry{chunk: chunk})
		}
	}
}

func (s *Stream) finish() {
	s.mu.Lock()
	state := s.state
	aborted := s.aborted
	err := s.err
	s.mu.Unlock()

	s.kill()

	outcome := "interrupted"
	switch {
	case state == StateClosed:
		outcome = "closed"
	case aborted:
		outcome = "aborted"
	case err != nil:
		outcome = "error"
	}
	observability.RecordConsumerStream(outcome)
	ev := s.log.Debug()
	if outcome != "closed" {
		ev = s.log.Info()
	}
	ev.Str("outcome", outcome).Err(err).Msg("stream.consumer finished")
}

// queue returns the queue for idx, creating it on first use. Once the
// stream has ended a missing queue is returned pre-interrupted and is not
// retained. Records for a retired index are dropped, so the router gets nil.
func (s *Stream) queue(idx protocol.ChunkIndex, claim bool) *chunkQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[idx]
	if !ok {
		_, retired := s.retired[idx]
		if retired && !claim {
			return nil
		}
		q = newChunkQueue(idx)
		if s.ended || retired {
			q.claimed = claim
			q.push(queueEntry{interrupted: true})
			return q
		}
		s.queues[idx] = q
	}
	if claim {
		q.claimed = true
	}
	return q
}

// discard drops a queue its reader has finished with and retires its index.
func (s *Stream) discard(q *chunkQueue) {
	s.mu.Lock()
	if cur, ok := s.queues[q.index]; ok && cur == q {
		delete(s.queues, q.index)
		s.retired[q.index] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Stream) setState(state RouterState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	if !s.ended && s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// ID returns the stream id used in log lines.
func (s *Stream) ID() string { return s.id }

// Head returns the rehydrated head keyed by slot.
func (s *Stream) Head() map[int]any { return s.head }

// Done is closed once routing has stopped.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err reports a read or framing failure that ended routing early. It is nil
// for a cleanly closed stream and for an explicit Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) State() RouterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OpenQueues reports how many chunk queues are still addressable. It is
// zero after a clean drain. After an interruption, queues that already hold
// records nobody has claimed yet stay counted until their reader takes them.
func (s *Stream) OpenQueues() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}
