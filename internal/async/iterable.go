package async

import (
	"context"
	"fmt"
	"sync"
)

// Iterable is a finite sequence of values produced over time.
//
// Next returns (v, true, nil) for each item, (nil, false, nil) after normal
// completion and (nil, false, err) on failure. Once terminal, Next keeps
// returning the terminal result.
type Iterable interface {
	Next(ctx context.Context) (value any, ok bool, err error)
}

// GeneratorFunc produces items through yield. yield returns a non-nil error
// once the consumer has gone away; the function should return promptly then.
type GeneratorFunc func(ctx context.Context, yield func(value any) error) error

type genItem struct {
	value any
	done  bool
	err   error
}

// Generator is a pull-driven Iterable backed by a goroutine. The body does
// not start until the first Next and runs one step per Next call.
type Generator struct {
	fn GeneratorFunc

	mu       sync.Mutex
	started  bool
	awaiting bool
	finished bool
	err      error

	ctx       context.Context
	cancel    context.CancelFunc
	pull      chan struct{}
	items     chan genItem
	closed    chan struct{}
	closeOnce sync.Once
}

// Generate wraps fn as an Iterable. The generator context derives from the
// context of the first Next call, so cancelling it aborts the body.
func Generate(fn GeneratorFunc) *Generator {
	return &Generator{
		fn:     fn,
		pull:   make(chan struct{}),
		items:  make(chan genItem),
		closed: make(chan struct{}),
	}
}

func (g *Generator) Next(ctx context.Context) (any, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finished {
		return nil, false, g.err
	}
	select {
	case <-g.closed:
		g.finish(nil)
		return nil, false, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !g.started {
		g.started = true
		g.ctx, g.cancel = context.WithCancel(ctx)
		go g.run()
	}
	if !g.awaiting {
		select {
		case g.pull <- struct{}{}:
			g.awaiting = true
		case <-g.closed:
			g.finish(nil)
			return nil, false, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	select {
	case it := <-g.items:
		g.awaiting = false
		if it.done {
			g.finish(it.err)
			return nil, false, it.err
		}
		return it.value, true, nil
	case <-g.closed:
		g.finish(nil)
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close aborts the generator body. Pending and future Next calls report
// normal completion.
func (g *Generator) Close() error {
	g.closeOnce.Do(func() {
		close(g.closed)
	})
	return nil
}

// finish requires g.mu.
func (g *Generator) finish(err error) {
	if g.finished {
		return
	}
	g.finished = true
	g.err = err
	if g.cancel != nil {
		g.cancel()
	}
}

func (g *Generator) run() {
	select {
	case <-g.pull:
	case <-g.closed:
		g.cancel()
		return
	case <-g.ctx.Done():
		return
	}
	go func() {
		select {
		case <-g.closed:
			g.cancel()
		case <-g.ctx.Done():
		}
	}()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		err = g.fn(g.ctx, g.yield)
	}()
	select {
	case g.items <- genItem{done: true, err: err}:
	case <-g.ctx.Done():
	}
}

func (g *Generator) yield(value any) error {
	select {
	case g.items <- genItem{value: value}:
	case <-g.ctx.Done():
		return g.ctx.Err()
	}
	select {
	case <-g.pull:
		return nil
	case <-g.ctx.Done():
		return g.ctx.Err()
	}
}

type sliceIterable struct {
	mu    sync.Mutex
	items []any
	pos   int
}

// FromSlice returns an Iterable over values.
func FromSlice(values ...any) Iterable {
	items := make([]any, len(values))
	copy(items, values)
	return &sliceIterable{items: items}
}

func (s *sliceIterable) Next(ctx context.Context) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.items) {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v := s.items[s.pos]
	s.pos++
	return v, true, nil
}

type chanIterable struct {
	ch <-chan any
}

// FromChannel returns an Iterable that ends when ch is closed.
func FromChannel(ch <-chan any) Iterable {
	return chanIterable{ch: ch}
}

func (c chanIterable) Next(ctx context.Context) (any, bool, error) {
	select {
	case v, ok := <-c.ch:
		if !ok {
			return nil, false, nil
		}
		return v, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Collect drains it into a slice.
func Collect(ctx context.Context, it Iterable) ([]any, error) {
	out := make([]any, 0)
	for {
		v, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// IsDeferred reports whether v is a Promise or an Iterable.
func IsDeferred(v any) bool {
	switch v.(type) {
	case Promise, Iterable:
		return true
	}
	return false
}
