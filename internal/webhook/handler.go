package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"call-router/internal/audit"
	"call-router/internal/telnyx"
	"call-router/pkg/logger"
)

const maxBodyBytes = 1 << 20

// EventSink receives decoded carrier events. The coordinator implements it.
type EventSink interface {
	OnCallInitiated(ctx context.Context, ev telnyx.Event)
	OnCallAnswered(ctx context.Context, ev telnyx.Event)
	OnDTMF(ctx context.Context, ev telnyx.Event)
	OnHangup(ctx context.Context, ev telnyx.Event)
	OnRecordingSaved(ctx context.Context, ev telnyx.Event)
}

// Handler is the carrier-facing webhook endpoint. It always acknowledges
// with 200: the carrier neither expects nor usefully retries on
// application-level errors, so handler failures are logged and swallowed
// here.
type Handler struct {
	sink  EventSink
	dedup Deduper
	trail *audit.Service
	log   *slog.Logger
}

func NewHandler(sink EventSink, dedup Deduper, trail *audit.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{sink: sink, dedup: dedup, trail: trail, log: log}
}

// Handle decodes, dedups and hands the event to the sink. Sink handlers may
// pause between carrier actions, so they run off the request goroutine; the
// carrier gets its 200 immediately.
func (h *Handler) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	defer c.String(http.StatusOK, "OK")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Warn("read webhook body", "err", err)
		return
	}

	ev, err := telnyx.ParseEvent(body)
	if err != nil {
		log.Warn("decode webhook", "err", err)
		return
	}

	if ev.ID != "" && h.dedup != nil && h.dedup.Seen(c.Request.Context(), ev.ID) {
		log.Debug("duplicate webhook delivery", "event_id", ev.ID, "event_type", ev.Type)
		return
	}

	h.trail.Log(c.Request.Context(), audit.EventTypeWebhookReceived, ev.CallControlID, ev.Type)
	go h.dispatch(ev)
}

func (h *Handler) dispatch(ev telnyx.Event) {
	log := h.log.With("event_type", ev.Type, "call_id", ev.CallControlID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("webhook handler panic", "panic", r)
		}
	}()

	// The request context dies with the 200 response; handlers get a fresh
	// one carrying the event-scoped logger.
	ctx := logger.With(context.Background(), log)

	switch ev.Type {
	case telnyx.EventCallInitiated:
		h.sink.OnCallInitiated(ctx, ev)
	case telnyx.EventCallAnswered:
		h.sink.OnCallAnswered(ctx, ev)
	case telnyx.EventCallDTMFReceived:
		h.sink.OnDTMF(ctx, ev)
	case telnyx.EventCallHangup:
		h.sink.OnHangup(ctx, ev)
	case telnyx.EventCallRecordingSaved:
		h.sink.OnRecordingSaved(ctx, ev)
	case telnyx.EventCallBridged:
		log.Info("legs bridged")
	default:
		log.Info("ignoring unrecognized event type")
	}
}
