package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"call-router/internal/calls"
	"call-router/internal/store"
)

type endpoint struct {
	mu       sync.Mutex
	bodies   []map[string]any
	statuses []int
}

func (e *endpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		e.mu.Lock()
		e.bodies = append(e.bodies, body)
		status := http.StatusOK
		if len(e.statuses) > 0 {
			status = e.statuses[0]
			e.statuses = e.statuses[1:]
		}
		e.mu.Unlock()

		w.WriteHeader(status)
	}
}

func (e *endpoint) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bodies)
}

func fastConfig(url string) Config {
	return Config{
		WebhookURL:        url,
		SettleDelay:       time.Millisecond,
		RetryDelay:        5 * time.Millisecond,
		NetworkRetryDelay: 5 * time.Millisecond,
		MaxAttempts:       3,
	}
}

func eligibleRecord(id string) calls.CallRecord {
	now := time.Unix(1700000000, 0).UTC()
	return calls.CallRecord{
		CallID:       id,
		Direction:    calls.DirectionInbound,
		FromNumber:   "+15551234567",
		Status:       calls.CallStatusCompleted,
		StartTime:    &now,
		CallType:     calls.CallTypeHumanConnected,
		RecordingURL: calls.StringPtr("https://cdn.example.com/r.mp3"),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition never met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEligible(t *testing.T) {
	base := eligibleRecord("x")
	if !eligible(base) {
		t.Fatalf("expected base record eligible")
	}

	r := base
	r.Status = calls.CallStatusAnswered
	if eligible(r) {
		t.Fatalf("expected in-flight call ineligible")
	}

	r = base
	r.RecordingURL = nil
	if eligible(r) {
		t.Fatalf("expected missing recording ineligible")
	}

	r = base
	r.ZapierSent = true
	if eligible(r) {
		t.Fatalf("expected already-sent record ineligible")
	}

	r = base
	r.CallType = calls.CallTypeHumanRepresentative
	if eligible(r) {
		t.Fatalf("expected representative leg ineligible")
	}
}

func TestEvaluate_DeliversOnceAndMarksSent(t *testing.T) {
	ep := &endpoint{}
	srv := httptest.NewServer(ep.handler())
	defer srv.Close()

	st := store.NewMemoryStore()
	ctx := context.Background()
	if _, err := st.Upsert(ctx, eligibleRecord("c1")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	s := New(fastConfig(srv.URL), st, nil, nil)
	s.Evaluate(ctx, "c1")
	waitFor(t, func() bool {
		rec, _ := st.Get(ctx, "c1")
		return rec.ZapierSent
	})

	// Already marked: a second evaluation must not POST again.
	s.Evaluate(ctx, "c1")
	time.Sleep(30 * time.Millisecond)
	if ep.count() != 1 {
		t.Fatalf("expected exactly one delivery, got %d", ep.count())
	}

	ep.mu.Lock()
	body := ep.bodies[0]
	ep.mu.Unlock()
	if body["call_id"] != "c1" || body["recording_url"] != "https://cdn.example.com/r.mp3" {
		t.Fatalf("unexpected payload %v", body)
	}
	if body["source"] != "call-router" {
		t.Fatalf("expected source tag, got %v", body["source"])
	}
}

func TestEvaluate_SkipsIneligibleRecords(t *testing.T) {
	ep := &endpoint{}
	srv := httptest.NewServer(ep.handler())
	defer srv.Close()

	st := store.NewMemoryStore()
	ctx := context.Background()
	rec := eligibleRecord("c1")
	rec.RecordingURL = nil
	if _, err := st.Upsert(ctx, rec); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	s := New(fastConfig(srv.URL), st, nil, nil)
	s.Evaluate(ctx, "c1")
	time.Sleep(30 * time.Millisecond)
	if ep.count() != 0 {
		t.Fatalf("expected no delivery, got %d", ep.count())
	}
}

func TestEvaluate_RetriesOnRejection(t *testing.T) {
	ep := &endpoint{statuses: []int{http.StatusInternalServerError}}
	srv := httptest.NewServer(ep.handler())
	defer srv.Close()

	st := store.NewMemoryStore()
	ctx := context.Background()
	if _, err := st.Upsert(ctx, eligibleRecord("c1")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	s := New(fastConfig(srv.URL), st, nil, nil)
	s.Evaluate(ctx, "c1")
	waitFor(t, func() bool {
		rec, _ := st.Get(ctx, "c1")
		return rec.ZapierSent
	})
	if ep.count() != 2 {
		t.Fatalf("expected failed then successful POST, got %d", ep.count())
	}
}

func TestEvaluate_GivesUpAfterMaxAttempts(t *testing.T) {
	ep := &endpoint{statuses: []int{500, 500, 500, 500, 500}}
	srv := httptest.NewServer(ep.handler())
	defer srv.Close()

	st := store.NewMemoryStore()
	ctx := context.Background()
	if _, err := st.Upsert(ctx, eligibleRecord("c1")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	cfg := fastConfig(srv.URL)
	cfg.MaxAttempts = 2
	s := New(cfg, st, nil, nil)
	s.Evaluate(ctx, "c1")

	waitFor(t, func() bool { return ep.count() == 2 })
	time.Sleep(30 * time.Millisecond)
	if ep.count() != 2 {
		t.Fatalf("expected delivery capped at 2 attempts, got %d", ep.count())
	}
	rec, _ := st.Get(ctx, "c1")
	if rec.ZapierSent {
		t.Fatalf("expected record left unsent after giving up")
	}
}

func TestEvaluate_PayloadReflectsFreshRead(t *testing.T) {
	ep := &endpoint{}
	srv := httptest.NewServer(ep.handler())
	defer srv.Close()

	st := store.NewMemoryStore()
	ctx := context.Background()
	if _, err := st.Upsert(ctx, eligibleRecord("c1")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	cfg := fastConfig(srv.URL)
	cfg.SettleDelay = 50 * time.Millisecond
	s := New(cfg, st, nil, nil)
	s.Evaluate(ctx, "c1")

	// Field set during the settle window must appear in the payload.
	if _, err := st.Upsert(ctx, calls.CallRecord{CallID: "c1", CustomerName: calls.StringPtr("Pat")}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	waitFor(t, func() bool { return ep.count() == 1 })
	ep.mu.Lock()
	body := ep.bodies[0]
	ep.mu.Unlock()
	if body["customer_name"] != "Pat" {
		t.Fatalf("expected fresh customer_name in payload, got %v", body["customer_name"])
	}
}
