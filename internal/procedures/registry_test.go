package procedures

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/batchstream/internal/async"
	"github.com/danmuck/batchstream/internal/testutil/testlog"
)

type fakeProcedure struct {
	meta Metadata
}

func (f fakeProcedure) Metadata() Metadata {
	return f.meta
}

func (f fakeProcedure) Call(context.Context, map[string]string) (any, error) {
	return f.meta.ID, nil
}

func TestRegisterResolveAndDuplicate(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	p := fakeProcedure{meta: Metadata{ID: "proc.flow", Description: "flow"}}

	if err := r.Register(p); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(p); !errors.Is(err, ErrProcedureExists) {
		t.Fatalf("expected ErrProcedureExists, got %v", err)
	}
	got, ok := r.Resolve("proc.flow")
	if !ok || got.Metadata().ID != "proc.flow" {
		t.Fatalf("resolve failed: ok=%v", ok)
	}
	if _, ok := r.Resolve("proc.missing"); ok {
		t.Fatalf("expected missing procedure to return ok=false")
	}
}

func TestRegisterRejectsInvalidMetadata(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	if err := r.Register(nil); !errors.Is(err, ErrProcedureNil) {
		t.Fatalf("expected ErrProcedureNil, got %v", err)
	}
	for _, id := range []string{"", "Upper", ".lead", "trail-", "double..sep", "sp ace"} {
		err := r.Register(fakeProcedure{meta: Metadata{ID: id, Description: "x"}})
		if !errors.Is(err, ErrInvalidMetadata) {
			t.Fatalf("id %q: expected ErrInvalidMetadata, got %v", id, err)
		}
	}
}

func TestListSorted(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	_ = r.Register(fakeProcedure{meta: Metadata{ID: "z", Description: "z"}})
	_ = r.Register(fakeProcedure{meta: Metadata{ID: "a", Description: "a"}})
	_ = r.Register(fakeProcedure{meta: Metadata{ID: "m", Description: "m"}})

	var ids []string
	for _, m := range r.List() {
		ids = append(ids, m.ID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "m", "z"}) {
		t.Fatalf("unexpected order: %v", ids)
	}
}

func TestParseNames(t *testing.T) {
	testlog.Start(t)
	got := ParseNames(" echo, ,clock,")
	if !reflect.DeepEqual(got, []string{"echo", "clock"}) {
		t.Fatalf("unexpected names: %v", got)
	}
}

func TestBatchRejectsOnlyUnknownSlot(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	r := NewRegistry()
	_ = r.Register(fakeProcedure{meta: Metadata{ID: "known", Description: "k"}})

	batch := r.Batch(ctx, []string{"known", "unknown"}, nil)
	if batch[0] != "known" {
		t.Fatalf("slot 0=%v", batch[0])
	}
	p, ok := batch[1].(async.Promise)
	if !ok {
		t.Fatalf("slot 1 is %T, want promise", batch[1])
	}
	if _, err := p.Await(ctx); !errors.Is(err, ErrUnknownProcedure) {
		t.Fatalf("expected ErrUnknownProcedure, got %v", err)
	}
}
