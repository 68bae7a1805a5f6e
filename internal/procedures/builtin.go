package procedures

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/danmuck/batchstream/internal/async"
)

var ErrBadArgument = errors.New("procedures: bad argument")

// NewBuiltinRegistry returns a registry holding clock, echo, countdown and
// fail.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, p := range []Procedure{Clock{}, Echo{}, Countdown{}, Fail{}} {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Clock streams count ticks spaced by interval.
type Clock struct{}

func (Clock) Metadata() Metadata {
	return Metadata{ID: "clock", Description: "iterable of timestamped ticks (count, interval)"}
}

func (Clock) Call(_ context.Context, args map[string]string) (any, error) {
	count, err := intArg(args, "count", 3)
	if err != nil {
		return nil, err
	}
	interval, err := durationArg(args, "interval", 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return async.Generate(func(ctx context.Context, yield func(any) error) error {
		for i := 0; i < count; i++ {
			if i > 0 {
				if err := sleep(ctx, interval); err != nil {
					return err
				}
			}
			tick := map[string]any{"tick": i, "at": time.Now().UTC()}
			if err := yield(tick); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

// Echo resolves to its arguments.
type Echo struct{}

func (Echo) Metadata() Metadata {
	return Metadata{ID: "echo", Description: "promise of the call arguments"}
}

func (Echo) Call(ctx context.Context, args map[string]string) (any, error) {
	return async.Go(ctx, func(context.Context) (any, error) {
		out := make(map[string]any, len(args))
		for k, v := range args {
			out[k] = v
		}
		return out, nil
	}), nil
}

// Countdown returns an object with a ticking iterable and a promise that
// settles when the countdown reaches zero.
type Countdown struct{}

func (Countdown) Metadata() Metadata {
	return Metadata{ID: "countdown", Description: "object with remaining ticks and a completion promise (from, interval)"}
}

func (Countdown) Call(ctx context.Context, args map[string]string) (any, error) {
	from, err := intArg(args, "from", 3)
	if err != nil {
		return nil, err
	}
	interval, err := durationArg(args, "interval", 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	done := async.NewDeferred()
	ticks := async.Generate(func(ctx context.Context, yield func(any) error) error {
		for n := from; n > 0; n-- {
			if err := yield(n); err != nil {
				done.Reject(err)
				return err
			}
			if err := sleep(ctx, interval); err != nil {
				done.Reject(err)
				return err
			}
		}
		done.Resolve("liftoff")
		return nil
	})
	return map[string]any{
		"from":      from,
		"remaining": ticks,
		"done":      done,
	}, nil
}

// Fail always rejects.
type Fail struct{}

func (Fail) Metadata() Metadata {
	return Metadata{ID: "fail", Description: "rejected promise (message)"}
}

func (Fail) Call(_ context.Context, args map[string]string) (any, error) {
	msg := args["message"]
	if msg == "" {
		msg = "procedure failed"
	}
	return async.Reject(errors.New(msg)), nil
}

func intArg(args map[string]string, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadArgument, key, raw)
	}
	return n, nil
}

func durationArg(args map[string]string, key string, def time.Duration) (time.Duration, error) {
	raw, ok := args[key]
	if !ok || raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadArgument, key, raw)
	}
	return d, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
