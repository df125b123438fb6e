package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"call-router/internal/telnyx"
)

type recordingSink struct {
	mu     sync.Mutex
	events []telnyx.Event
	panics bool
}

func (s *recordingSink) add(ev telnyx.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if s.panics {
		panic("sink blew up")
	}
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) OnCallInitiated(ctx context.Context, ev telnyx.Event)  { s.add(ev) }
func (s *recordingSink) OnCallAnswered(ctx context.Context, ev telnyx.Event)   { s.add(ev) }
func (s *recordingSink) OnDTMF(ctx context.Context, ev telnyx.Event)           { s.add(ev) }
func (s *recordingSink) OnHangup(ctx context.Context, ev telnyx.Event)         { s.add(ev) }
func (s *recordingSink) OnRecordingSaved(ctx context.Context, ev telnyx.Event) { s.add(ev) }

func newWebhookRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/telnyx", h.Handle)
	return r
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
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

func TestHandle_DispatchesAndAlwaysAcknowledges(t *testing.T) {
	sink := &recordingSink{}
	r := newWebhookRouter(NewHandler(sink, NewMemoryDeduper(), nil, nil))

	w := post(r, `{"data":{"id":"e1","event_type":"call.answered","payload":{"call_control_id":"c1"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	waitFor(t, func() bool { return sink.count() == 1 })
}

func TestHandle_MalformedAndUnknownBodiesStillAcknowledged(t *testing.T) {
	sink := &recordingSink{}
	r := newWebhookRouter(NewHandler(sink, NewMemoryDeduper(), nil, nil))

	for _, body := range []string{
		"not json",
		`{"payload":{}}`,
		`{"data":{"id":"e2","event_type":"call.something.new","payload":{"call_control_id":"c1"}}}`,
	} {
		if w := post(r, body); w.Code != http.StatusOK {
			t.Fatalf("expected 200 for %q, got %d", body, w.Code)
		}
	}

	time.Sleep(20 * time.Millisecond)
	if sink.count() != 0 {
		t.Fatalf("expected no sink calls, got %d", sink.count())
	}
}

func TestHandle_DropsDuplicateDeliveries(t *testing.T) {
	sink := &recordingSink{}
	r := newWebhookRouter(NewHandler(sink, NewMemoryDeduper(), nil, nil))

	body := `{"data":{"id":"e3","event_type":"call.hangup","payload":{"call_control_id":"c1"}}}`
	post(r, body)
	post(r, body)

	waitFor(t, func() bool { return sink.count() == 1 })
	time.Sleep(20 * time.Millisecond)
	if sink.count() != 1 {
		t.Fatalf("expected duplicate dropped, got %d dispatches", sink.count())
	}
}

func TestHandle_SinkPanicDoesNotKillProcess(t *testing.T) {
	sink := &recordingSink{panics: true}
	r := newWebhookRouter(NewHandler(sink, NewMemoryDeduper(), nil, nil))

	w := post(r, `{"data":{"id":"e4","event_type":"call.initiated","payload":{"call_control_id":"c1","direction":"incoming"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	waitFor(t, func() bool { return sink.count() == 1 })
}

func TestMemoryDeduper_ExpiresOldEntries(t *testing.T) {
	d := NewMemoryDeduper()
	now := time.Unix(1700000000, 0)
	d.clock = func() time.Time { return now }
	ctx := context.Background()

	if d.Seen(ctx, "e1") {
		t.Fatalf("expected first sighting to pass")
	}
	if !d.Seen(ctx, "e1") {
		t.Fatalf("expected second sighting flagged")
	}

	now = now.Add(dedupTTL + time.Minute)
	if d.Seen(ctx, "e1") {
		t.Fatalf("expected expired entry forgotten")
	}
}
