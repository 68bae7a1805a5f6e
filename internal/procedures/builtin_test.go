package procedures

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/batchstream/internal/async"
	"github.com/danmuck/batchstream/internal/protocol/stream"
	"github.com/danmuck/batchstream/internal/testutil/testlog"
)

func TestBuiltinsStreamThroughProducer(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := NewBuiltinRegistry()
	args := map[string]string{"count": "2", "from": "2", "interval": "1ms", "message": "boom"}
	batch := reg.Batch(ctx, []string{"echo", "clock", "countdown", "fail"}, args)

	wire, err := stream.Encode(ctx, batch, stream.ProducerOptions{OnError: func(error, []any) {}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s, err := stream.Consume(ctx, bytes.NewReader(wire), stream.ConsumerOptions{})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	echo, err := async.Settle(ctx, s.Head()[0])
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if echo.(map[string]any)["message"] != "boom" {
		t.Fatalf("unexpected echo: %#v", echo)
	}

	ticks, err := async.Settle(ctx, s.Head()[1])
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	if n := len(ticks.([]any)); n != 2 {
		t.Fatalf("clock ticks=%d, want 2", n)
	}

	countdown, err := async.Settle(ctx, s.Head()[2])
	if err != nil {
		t.Fatalf("countdown: %v", err)
	}
	cd := countdown.(map[string]any)
	if cd["done"] != "liftoff" || len(cd["remaining"].([]any)) != 2 {
		t.Fatalf("unexpected countdown: %#v", cd)
	}

	_, err = s.Head()[3].(async.Promise).Await(ctx)
	if !errors.Is(err, stream.ErrAsync) {
		t.Fatalf("fail should reject opaquely, got %v", err)
	}
}

func TestBuiltinBadArgumentRejectsSlot(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	batch := NewBuiltinRegistry().Batch(ctx, []string{"clock"}, map[string]string{"count": "many"})
	if _, err := batch[0].(async.Promise).Await(ctx); !errors.Is(err, ErrBadArgument) {
		t.Fatalf("expected ErrBadArgument, got %v", err)
	}
}
