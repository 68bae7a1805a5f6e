package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/danmuck/batchstream/internal/observability"
	"github.com/danmuck/batchstream/internal/protocol"
	"github.com/danmuck/batchstream/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Produce encodes data as a batch stream onto w. Each key of data becomes a
// head slot. Deferred values are awaited concurrently and their records are
// written in completion order.
//
// Produce returns once the closing bracket is written or w fails. Cancelling
// ctx does not cut the stream short: every open chunk ends with a failure
// record, the stream is closed and the returned error wraps
// ErrProducerAborted.
func Produce(ctx context.Context, w io.Writer, data map[int]any, opts ProducerOptions) error {
	opts = opts.withDefaults()
	logger := log.With().Str("stream_id", opts.StreamID).Logger()
	started := time.Now()

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := make(chan struct{})
	abort := func() {
		close(stop)
		cancel()
	}

	e := newEmitter(workCtx, stop, opts, logger)
	e.hold()

	slots := make([]int, 0, len(data))
	for slot := range data {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	head := make(protocol.Head, len(data))
	for _, slot := range slots {
		val, err := e.classify(data[slot], []any{slot})
		if err != nil {
			abort()
			e.release()
			observability.RecordProducerStream("head_error", time.Since(started))
			logger.Error().Err(err).Int("slot", slot).Msg("stream.producer head failed")
			return fmt.Errorf("stream: head slot %d: %w", slot, err)
		}
		head[slot] = val
	}
	headLine, err := protocol.EncodeHead(head)
	if err != nil {
		abort()
		e.release()
		observability.RecordProducerStream("head_error", time.Since(started))
		logger.Error().Err(err).Msg("stream.producer head encode failed")
		return fmt.Errorf("stream: encode head: %w", err)
	}

	fw := frame.NewWriter(w)
	if err := fw.WriteHead(headLine); err != nil {
		abort()
		e.release()
		observability.RecordProducerStream("write_error", time.Since(started))
		logger.Warn().Err(err).Msg("stream.producer write failed")
		return err
	}
	logger.Debug().Int("slots", len(head)).Msg("stream.producer head written")
	e.release()

	chunks := 0
	for rec := range e.out {
		if err := fw.WriteChunk(rec.line); err != nil {
			abort()
			observability.RecordProducerStream("write_error", time.Since(started))
			logger.Warn().Err(err).Int("chunks", chunks).Msg("stream.producer write failed")
			return err
		}
		chunks++
	}
	if err := fw.Close(); err != nil {
		observability.RecordProducerStream("write_error", time.Since(started))
		logger.Warn().Err(err).Msg("stream.producer close failed")
		return err
	}

	if cause := ctx.Err(); cause != nil {
		observability.RecordProducerStream("aborted", time.Since(started))
		logger.Info().Int("chunks", chunks).Err(cause).Msg("stream.producer aborted")
		return fmt.Errorf("%w: %v", ErrProducerAborted, cause)
	}
	observability.RecordProducerStream("closed", time.Since(started))
	logger.Debug().
		Int("chunks", chunks).
		Dur("elapsed", time.Since(started)).
		Msg("stream.producer closed")
	return nil
}

// Encode buffers a complete stream. It is meant for tests and small batches.
func Encode(ctx context.Context, data map[int]any, opts ProducerOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Produce(ctx, &buf, data, opts); err != nil && !errors.Is(err, ErrProducerAborted) {
		return nil, err
	}
	return buf.Bytes(), ctx.Err()
}

// Producer binds a batch to its options so it can be handed to code that
// expects an io.WriterTo.
type Producer struct {
	ctx  context.Context
	data map[int]any
	opts ProducerOptions
}

func NewProducer(ctx context.Context, data map[int]any, opts ProducerOptions) *Producer {
	return &Producer{ctx: ctx, data: data, opts: opts}
}

// WriteTo runs Produce once against w.
func (p *Producer) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := Produce(p.ctx, cw, p.data, p.opts)
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) Flush() error {
	switch f := c.w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}
