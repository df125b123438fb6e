package reporting

import (
	"context"
	"testing"
	"time"

	"call-router/internal/calls"
	"call-router/internal/store"
)

func seed(t *testing.T, st *store.MemoryStore, rec calls.CallRecord) {
	t.Helper()
	if _, err := st.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestSummary_Aggregates(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()

	seed(t, st, calls.CallRecord{
		CallID:          "c1",
		Direction:       calls.DirectionInbound,
		Status:          calls.CallStatusCompleted,
		StartTime:       &now,
		CallType:        calls.CallTypeHumanConnected,
		DurationSeconds: calls.IntPtr(60),
		RecordingURL:    calls.StringPtr("https://cdn.example.com/c1.mp3"),
		ZapierSent:      true,
	})
	seed(t, st, calls.CallRecord{
		CallID:          "c2",
		Direction:       calls.DirectionInbound,
		Status:          calls.CallStatusCompleted,
		StartTime:       calls.TimePtr(now.Add(time.Minute)),
		CallType:        calls.CallTypeCustomerInquiry,
		DurationSeconds: calls.IntPtr(30),
	})
	seed(t, st, calls.CallRecord{
		CallID:    "h1",
		Direction: calls.DirectionOutbound,
		Status:    calls.CallStatusAnswered,
		StartTime: calls.TimePtr(now.Add(2 * time.Minute)),
		CallType:  calls.CallTypeHumanRepresentative,
	})

	out, err := NewService(st).Summary(context.Background(), SummaryRequest{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if out.TotalCalls != 3 || out.CompletedCalls != 2 || out.InFlightCalls != 1 {
		t.Fatalf("unexpected counts %+v", out)
	}
	if out.InboundCalls != 2 || out.OutboundCalls != 1 {
		t.Fatalf("unexpected directions %+v", out)
	}
	if out.BridgedCalls != 1 || out.RecordedCalls != 1 || out.NotifiedCalls != 1 {
		t.Fatalf("unexpected flags %+v", out)
	}
	if out.TotalDurationSeconds != 90 || out.AverageDurationSeconds != 30 {
		t.Fatalf("unexpected durations %+v", out)
	}
	if out.ByType["human_connected"] != 1 || out.ByType["customer_inquiry"] != 1 {
		t.Fatalf("unexpected type breakdown %v", out.ByType)
	}
}

func TestSummary_RangeFilter(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()

	seed(t, st, calls.CallRecord{CallID: "old", StartTime: calls.TimePtr(now.Add(-2 * time.Hour))})
	seed(t, st, calls.CallRecord{CallID: "new", StartTime: &now})

	out, err := NewService(st).Summary(context.Background(), SummaryRequest{
		Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected only the recent call, got %d", out.TotalCalls)
	}
}

func TestSummary_RejectsInvertedRange(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	_, err := NewService(store.NewMemoryStore()).Summary(context.Background(), SummaryRequest{
		Range: TimeRange{From: now, To: now.Add(-time.Hour)},
	})
	if err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
