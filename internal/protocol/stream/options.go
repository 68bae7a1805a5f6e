package stream

import (
	"github.com/danmuck/batchstream/internal/protocol/frame"
	"github.com/danmuck/batchstream/internal/transform"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrorHook observes producer-side failures. path starts with the head slot.
type ErrorHook func(err error, path []any)

// ProducerOptions configures one producer invocation.
type ProducerOptions struct {
	// MaxDepth bounds the path length of deferred values. 0 disables the check.
	MaxDepth    int
	Transformer transform.Transformer
	OnError     ErrorHook
	// StreamID tags log lines; a random id is used when empty.
	StreamID string
}

func (o ProducerOptions) withDefaults() ProducerOptions {
	if o.Transformer == nil {
		o.Transformer = transform.Identity
	}
	if o.StreamID == "" {
		o.StreamID = uuid.NewString()
	}
	if o.OnError == nil {
		id := o.StreamID
		o.OnError = func(err error, path []any) {
			log.Warn().
				Str("stream_id", id).
				Interface("path", path).
				Err(err).
				Msg("stream.producer chunk failed")
		}
	}
	return o
}

// ConsumerOptions configures one consumer.
type ConsumerOptions struct {
	Transformer transform.Transformer
	Limits      frame.Limits
	StreamID    string
}

func (o ConsumerOptions) withDefaults() ConsumerOptions {
	if o.Transformer == nil {
		o.Transformer = transform.Identity
	}
	if o.Limits.MaxLineBytes <= 0 {
		o.Limits = frame.DefaultLimits()
	}
	if o.StreamID == "" {
		o.StreamID = uuid.NewString()
	}
	return o
}
