package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrPanic = errors.New("async: panic in deferred function")

// Promise is a value that settles exactly once.
type Promise interface {
	// Await blocks until the promise settles or ctx is done. A cancelled ctx
	// does not consume the settlement; later calls still observe it.
	Await(ctx context.Context) (any, error)
}

type promise struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newPromise() *promise {
	return &promise{done: make(chan struct{})}
}

func (p *promise) settle(value any, err error) bool {
	settled := false
	p.once.Do(func() {
		p.value = value
		p.err = err
		close(p.done)
		settled = true
	})
	return settled
}

func (p *promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	default:
	}
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the promise has settled.
func (p *promise) Done() <-chan struct{} {
	return p.done
}

// Resolve returns an already fulfilled promise.
func Resolve(value any) Promise {
	p := newPromise()
	p.settle(value, nil)
	return p
}

// Reject returns an already rejected promise.
func Reject(err error) Promise {
	if err == nil {
		err = errors.New("async: rejected")
	}
	p := newPromise()
	p.settle(nil, err)
	return p
}

// Go runs fn on its own goroutine and returns a promise for its result.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) Promise {
	p := newPromise()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.settle(nil, fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()
		v, err := fn(ctx)
		p.settle(v, err)
	}()
	return p
}

// Deferred is a promise settled from the outside.
type Deferred struct {
	*promise
}

func NewDeferred() *Deferred {
	return &Deferred{promise: newPromise()}
}

// Resolve fulfills d. It reports false when d was already settled.
func (d *Deferred) Resolve(value any) bool {
	return d.settle(value, nil)
}

// Reject rejects d. It reports false when d was already settled.
func (d *Deferred) Reject(err error) bool {
	if err == nil {
		err = errors.New("async: rejected")
	}
	return d.settle(nil, err)
}
