package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func newTestStore(mock *simpleMock, now *time.Time) *Store {
	s := NewStore(mock, "idempotency-table", 48*time.Hour)
	s.nowFunc = func() time.Time { return *now }
	return s
}

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	mock := newSimpleMock()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s := newTestStore(mock, &now)

	ctx := context.Background()
	key := Scope("create_order", "staff-1", "test-key-1")

	created, err := s.CreateIfNotExists(ctx, key, "fp-1")
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key, "fp-1")
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress || rec.Fingerprint != "fp-1" {
		t.Fatalf("unexpected record %+v", rec)
	}

	err = s.MarkDone(ctx, key, Response{Status: 201, Body: `{"ok":true}`, OrderID: "order-123"})
	if err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	item := mock.table[key]
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != `{"ok":true}` {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}

	rec, err = s.Get(ctx, key)
	if err != nil || rec.ResponseStatus != 201 || rec.OrderID != "order-123" {
		t.Fatalf("Get after done = %+v, %v", rec, err)
	}

	// DONE is final
	if err := s.MarkFailed(ctx, key, "late failure"); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
}

func TestMarkFailedThenReopen(t *testing.T) {
	mock := newSimpleMock()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s := newTestStore(mock, &now)
	ctx := context.Background()

	if _, err := s.CreateIfNotExists(ctx, "k", "fp"); err != nil {
		t.Fatalf("CreateIfNotExists: %v", err)
	}
	if err := s.MarkFailed(ctx, "k", "failed-reason"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if n, ok := mock.table["k"]["note"].(*types.AttributeValueMemberS); !ok || n.Value != "failed-reason" {
		t.Fatalf("note not set, got %+v", mock.table["k"]["note"])
	}
	if err := s.Reopen(ctx, "k"); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if err := s.Reopen(ctx, "k"); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("second Reopen should lose, got %v", err)
	}
}

func TestExpiredEntryIsReplaced(t *testing.T) {
	mock := newSimpleMock()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s := newTestStore(mock, &now)
	ctx := context.Background()

	if _, err := s.CreateIfNotExists(ctx, "k", "fp-old"); err != nil {
		t.Fatalf("CreateIfNotExists: %v", err)
	}
	now = now.Add(49 * time.Hour)

	rec, err := s.Get(ctx, "k")
	if err != nil || rec != nil {
		t.Fatalf("expired entry should read as absent, got %+v, %v", rec, err)
	}
	created, err := s.CreateIfNotExists(ctx, "k", "fp-new")
	if err != nil || !created {
		t.Fatalf("expected expired entry to be replaced: %v, %v", created, err)
	}
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	mock := newSimpleMock()
	mock.failWith = errors.New("throttled")
	now := time.Now()
	s := newTestStore(mock, &now)

	if _, err := s.CreateIfNotExists(context.Background(), "k", "fp"); err == nil || errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected a plain store error, got %v", err)
	}
}
