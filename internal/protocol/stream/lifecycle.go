package stream

import "github.com/danmuck/batchstream/internal/observability"

// kill ends the stream: every retained queue receives the interruption
// sentinel, queues with a reader or no data are evicted and the reader is
// cancelled. Queues still holding undelivered records stay until claimed,
// so OpenQueues may be non-zero afterwards. kill is a no-op once run.
func (s *Stream) kill() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	closed := s.state == StateClosed
	open := 0
	for idx, q := range s.queues {
		q.push(queueEntry{interrupted: true})
		open++
		if q.claimed || q.buffered() == 1 {
			delete(s.queues, idx)
		}
	}
	s.mu.Unlock()

	if !closed && open > 0 {
		observability.RecordInterrupted(open)
		s.log.Debug().Int("queues", open).Msg("stream.consumer interrupted open chunks")
	}
	s.cancelReader()
}

// cancelReader cancels the stream context and closes the underlying reader
// exactly once.
func (s *Stream) cancelReader() {
	s.cancelOnce.Do(func() {
		s.cancel()
		if s.closer == nil {
			return
		}
		if err := s.closer.Close(); err != nil {
			s.log.Debug().Err(err).Msg("stream.consumer reader close failed")
		}
	})
}

// Close aborts the stream. Pending promises reject and iterables end with
// a StreamInterruptedError. Close is idempotent and always returns nil.
func (s *Stream) Close() error {
	s.mu.Lock()
	if !s.ended && s.state != StateClosed {
		s.aborted = true
	}
	s.mu.Unlock()
	s.kill()
	return nil
}
