package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo(t *testing.T) {
	ctx := context.Background()
	keepers := map[string]func() Keeper{
		"memory": func() Keeper { return NewMemoryStore(time.Hour) },
		"dynamo": func() Keeper { return NewStore(newSimpleMock(), "idempotency", time.Hour) },
	}
	for name, newKeeper := range keepers {
		t.Run(name, func(t *testing.T) {
			k := newKeeper()
			fp := Fingerprint([]byte(`{"customer_name":"Asha"}`))
			calls := 0
			create := func() (Response, error) {
				calls++
				return Response{Status: 201, Body: `{"order_id":"o-1"}`, OrderID: "o-1"}, nil
			}

			resp, replayed, err := Do(ctx, k, "key-1", fp, create)
			if err != nil || replayed || resp.OrderID != "o-1" {
				t.Fatalf("first call = %+v, %v, %v", resp, replayed, err)
			}
			resp, replayed, err = Do(ctx, k, "key-1", fp, create)
			if err != nil || !replayed || resp.Status != 201 || resp.Body != `{"order_id":"o-1"}` {
				t.Fatalf("retry = %+v, %v, %v", resp, replayed, err)
			}
			if calls != 1 {
				t.Fatalf("expected one execution, got %d", calls)
			}

			if _, _, err := Do(ctx, k, "key-1", Fingerprint([]byte(`{}`)), create); !errors.Is(err, ErrKeyReused) {
				t.Fatalf("expected ErrKeyReused, got %v", err)
			}
		})
	}
}

func TestDo_FailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	k := NewMemoryStore(time.Hour)
	boom := errors.New("boom")

	_, _, err := Do(ctx, k, "key", "fp", func() (Response, error) { return Response{}, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	rec, _ := k.Get(ctx, "key")
	if rec.Status != StatusFailed || rec.Note != "boom" {
		t.Fatalf("unexpected record %+v", rec)
	}

	resp, replayed, err := Do(ctx, k, "key", "fp", func() (Response, error) { return Response{Status: 201}, nil })
	if err != nil || replayed || resp.Status != 201 {
		t.Fatalf("retry after failure = %+v, %v, %v", resp, replayed, err)
	}
}

func TestDo_InProgress(t *testing.T) {
	ctx := context.Background()
	k := NewMemoryStore(time.Hour)
	if _, err := k.CreateIfNotExists(ctx, "key", "fp"); err != nil {
		t.Fatalf("CreateIfNotExists: %v", err)
	}
	_, _, err := Do(ctx, k, "key", "fp", func() (Response, error) {
		t.Fatalf("fn must not run while another request holds the key")
		return Response{}, nil
	})
	if !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress, got %v", err)
	}
}

func TestScope(t *testing.T) {
	if Scope("create_order", "a", "k") == Scope("create_order", "b", "k") {
		t.Fatalf("different actors must not share a key")
	}
	if Scope("create_order", "a", "k") == Scope("create_alteration", "a", "k") {
		t.Fatalf("different operations must not share a key")
	}
}
