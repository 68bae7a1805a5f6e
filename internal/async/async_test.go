package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/batchstream/internal/testutil/testlog"
)

func TestDeferredSettlesOnce(t *testing.T) {
	testlog.Start(t)
	d := NewDeferred()
	if !d.Resolve("first") {
		t.Fatalf("first resolve should settle")
	}
	if d.Reject(errors.New("late")) {
		t.Fatalf("second settle should be ignored")
	}
	for i := 0; i < 2; i++ {
		v, err := d.Await(context.Background())
		if err != nil || v != "first" {
			t.Fatalf("await[%d]=(%v,%v)", i, v, err)
		}
	}
}

func TestAwaitCancelledContextKeepsSettlement(t *testing.T) {
	testlog.Start(t)
	d := NewDeferred()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	d.Resolve(7)
	v, err := d.Await(context.Background())
	if err != nil || v != 7 {
		t.Fatalf("await after cancel=(%v,%v)", v, err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	testlog.Start(t)
	p := Go(context.Background(), func(context.Context) (any, error) {
		panic("kaput")
	})
	if _, err := p.Await(context.Background()); !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
}

func TestGeneratorIsLazyAndOrdered(t *testing.T) {
	testlog.Start(t)
	started := make(chan struct{}, 1)
	g := Generate(func(ctx context.Context, yield func(any) error) error {
		started <- struct{}{}
		for i := 1; i <= 3; i++ {
			if err := yield(i); err != nil {
				return err
			}
		}
		return nil
	})

	select {
	case <-started:
		t.Fatalf("generator body ran before first Next")
	case <-time.After(20 * time.Millisecond):
	}

	got, err := Collect(context.Background(), g)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("unexpected items: %v", got)
	}
	if _, ok, err := g.Next(context.Background()); ok || err != nil {
		t.Fatalf("terminal Next should stay done: ok=%v err=%v", ok, err)
	}
}

func TestGeneratorErrorIsTerminal(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	g := Generate(func(ctx context.Context, yield func(any) error) error {
		if err := yield("a"); err != nil {
			return err
		}
		return boom
	})
	got, err := Collect(context.Background(), g)
	if !errors.Is(err, boom) || len(got) != 1 {
		t.Fatalf("collect=(%v,%v)", got, err)
	}
	if _, _, err := g.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("terminal error should repeat, got %v", err)
	}
}

func TestGeneratorObservesCancellation(t *testing.T) {
	testlog.Start(t)
	stopped := make(chan error, 1)
	g := Generate(func(ctx context.Context, yield func(any) error) error {
		for i := 0; ; i++ {
			if err := yield(i); err != nil {
				stopped <- err
				return err
			}
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	if _, ok, err := g.Next(ctx); !ok || err != nil {
		t.Fatalf("first next: ok=%v err=%v", ok, err)
	}
	cancel()
	select {
	case err := <-stopped:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("generator did not observe cancellation")
	}
}

func TestGeneratorCloseUnblocksNext(t *testing.T) {
	testlog.Start(t)
	g := Generate(func(ctx context.Context, yield func(any) error) error {
		<-ctx.Done()
		return ctx.Err()
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok, err := g.Next(context.Background())
		if ok || err != nil {
			t.Errorf("closed generator should complete: ok=%v err=%v", ok, err)
		}
	}()
	time.Sleep(10 * time.Millisecond)
	_ = g.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Close did not unblock Next")
	}
}

func TestFromChannelAndSlice(t *testing.T) {
	testlog.Start(t)
	ch := make(chan any, 2)
	ch <- "x"
	ch <- "y"
	close(ch)
	got, err := Collect(context.Background(), FromChannel(ch))
	if err != nil || len(got) != 2 || got[1] != "y" {
		t.Fatalf("channel collect=(%v,%v)", got, err)
	}
	got, err = Collect(context.Background(), FromSlice(1, 2))
	if err != nil || len(got) != 2 {
		t.Fatalf("slice collect=(%v,%v)", got, err)
	}
	if !IsDeferred(FromSlice()) || !IsDeferred(Resolve(1)) || IsDeferred(map[string]any{}) {
		t.Fatalf("IsDeferred classification mismatch")
	}
}

func TestSettleWalksNestedDeferreds(t *testing.T) {
	testlog.Start(t)
	tree := map[string]any{
		"p":    Resolve(map[string]any{"inner": Resolve("deep")}),
		"list": []any{1, FromSlice("a", Resolve("b"))},
	}
	got, err := Settle(context.Background(), tree)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	m := got.(map[string]any)
	if m["p"].(map[string]any)["inner"] != "deep" {
		t.Fatalf("unexpected promise branch: %#v", m["p"])
	}
	items := m["list"].([]any)[1].([]any)
	if len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Fatalf("unexpected iterable branch: %#v", items)
	}
}

func TestSettleStopsOnFailure(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	_, err := Settle(context.Background(), []any{Resolve(1), Reject(boom)})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
