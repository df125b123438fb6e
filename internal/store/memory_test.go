package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-router/internal/calls"
)

// SQLStore's row-level SQL is integration territory (it needs a real
// database); the upsert/merge contract itself is covered here through
// MemoryStore, which shares calls.Merge with the SQL path.

func TestMemoryStore_UpsertMergesNotOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Upsert(ctx, calls.CallRecord{CallID: "x", Status: calls.CallStatusInitiated}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := s.Upsert(ctx, calls.CallRecord{CallID: "x", Notes: calls.StringPtr("n")}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	rec, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rec.Status != calls.CallStatusInitiated {
		t.Fatalf("expected status initiated, got %q", rec.Status)
	}
	if rec.Notes == nil || *rec.Notes != "n" {
		t.Fatalf("expected notes n, got %v", rec.Notes)
	}

	rows, err := s.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single row for x, got %d", len(rows))
	}
}

func TestMemoryStore_ListNewestFirstWithTypeFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	for i, id := range []string{"a", "b", "c"} {
		ct := calls.CallTypeCustomerInquiry
		if id == "b" {
			ct = calls.CallTypeHumanRepresentative
		}
		_, err := s.Upsert(ctx, calls.CallRecord{
			CallID:    id,
			CallType:  ct,
			StartTime: calls.TimePtr(base.Add(time.Duration(i) * time.Minute)),
		})
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}

	rows, err := s.List(ctx, ListFilter{CallType: calls.CallTypeCustomerInquiry})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 customer_inquiry rows, got %d", len(rows))
	}
	if rows[0].CallID != "c" || rows[1].CallID != "a" {
		t.Fatalf("expected newest-first [c a], got [%s %s]", rows[0].CallID, rows[1].CallID)
	}
}

func TestMemoryStore_MarkNotifiedExactlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	if _, err := s.Upsert(ctx, calls.CallRecord{CallID: "x"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.MarkNotified(ctx, "x", now); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.MarkNotified(ctx, "x", now.Add(time.Minute)); !errors.Is(err, ErrAlreadyNotified) {
		t.Fatalf("expected ErrAlreadyNotified, got %v", err)
	}

	rec, _ := s.Get(ctx, "x")
	if rec.ZapierSentAt == nil || !rec.ZapierSentAt.Equal(now) {
		t.Fatalf("expected first mark timestamp kept, got %v", rec.ZapierSentAt)
	}
}
