package stream

import (
	"errors"
	"fmt"

	"github.com/danmuck/batchstream/internal/protocol"
)

var (
	ErrHeadParse         = errors.New("stream: head parse failed")
	ErrMaxDepth          = errors.New("stream: max depth exceeded")
	ErrNestedDeferred    = errors.New("stream: deferred value nested below a direct child")
	ErrAsync             = errors.New("stream: async value failed")
	ErrStreamInterrupted = errors.New("stream: interrupted")
	ErrProducerAborted   = errors.New("stream: producer aborted")
)

// MaxDepthError replaces a deferred value whose path is deeper than the
// configured limit. It is reported to OnError and never crosses the wire.
type MaxDepthError struct {
	Path     []any
	MaxDepth int
}

func (e *MaxDepthError) Error() string {
	return fmt.Sprintf("stream: max depth %d exceeded at path %v", e.MaxDepth, e.Path)
}

func (e *MaxDepthError) Is(target error) bool {
	return target == ErrMaxDepth
}

// AsyncError is the consumer-side failure for a rejected promise or an
// errored iterable. The producer never sends error details, so the message is
// fixed.
type AsyncError struct {
	Index protocol.ChunkIndex
}

func (e *AsyncError) Error() string {
	return "stream: async value failed"
}

func (e *AsyncError) Is(target error) bool {
	return target == ErrAsync
}

// StreamInterruptedError is raised to consumers of chunks that were still
// open when the transport ended or the stream was closed.
type StreamInterruptedError struct {
	Index protocol.ChunkIndex
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream: interrupted before chunk %d completed", e.Index)
}

func (e *StreamInterruptedError) Is(target error) bool {
	return target == ErrStreamInterrupted
}
