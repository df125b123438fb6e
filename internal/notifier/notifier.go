package notifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"call-router/internal/audit"
	"call-router/internal/calls"
	"call-router/internal/store"
)

// Config carries the delivery tunables. Non-2xx responses and network
// failures back off differently; a misconfigured endpoint tends to answer
// fast with 4xx while an unreachable one burns a connect timeout first.
type Config struct {
	WebhookURL string

	// SettleDelay lets the recording mirror and transcript land before the
	// payload is built.
	SettleDelay       time.Duration
	RetryDelay        time.Duration
	NetworkRetryDelay time.Duration
	MaxAttempts       int
}

func (c Config) withDefaults() Config {
	out := c
	if out.SettleDelay <= 0 {
		out.SettleDelay = 10 * time.Second
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 30 * time.Second
	}
	if out.NetworkRetryDelay <= 0 {
		out.NetworkRetryDelay = 60 * time.Second
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 5
	}
	return out
}

// Service delivers completed-call summaries to the external automation
// endpoint, at most once per call.
type Service struct {
	cfg   Config
	store store.Store
	http  *resty.Client
	trail *audit.Service
	log   *slog.Logger
	clock func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(cfg Config, st store.Store, trail *audit.Service, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		store:    st,
		http:     resty.New().SetTimeout(15 * time.Second),
		trail:    trail,
		log:      log,
		clock:    time.Now,
		inflight: make(map[string]struct{}),
	}
}

// Evaluate schedules delivery for a call if it qualifies. Eligibility is
// re-checked from a fresh read on every attempt, never cached, so calling
// this any number of times yields at most one delivery.
func (s *Service) Evaluate(ctx context.Context, callID string) {
	if s.cfg.WebhookURL == "" {
		return
	}

	s.mu.Lock()
	if _, busy := s.inflight[callID]; busy {
		s.mu.Unlock()
		return
	}
	s.inflight[callID] = struct{}{}
	s.mu.Unlock()

	go s.deliver(callID)
}

func (s *Service) deliver(callID string) {
	defer func() {
		s.mu.Lock()
		delete(s.inflight, callID)
		s.mu.Unlock()
	}()

	ctx := context.Background()
	log := s.log.With("call_id", callID)
	time.Sleep(s.cfg.SettleDelay)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		rec, err := s.store.Get(ctx, callID)
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		if err != nil {
			log.Error("read record for notification", "err", err)
			return
		}
		if !eligible(rec) {
			return
		}

		resp, err := s.http.R().
			SetContext(ctx).
			SetBody(s.payload(rec)).
			Post(s.cfg.WebhookURL)
		if err != nil {
			log.Warn("notification network failure", "attempt", attempt, "err", err)
			time.Sleep(s.cfg.NetworkRetryDelay)
			continue
		}
		if resp.IsError() {
			log.Warn("notification rejected", "attempt", attempt, "status", resp.StatusCode())
			time.Sleep(s.cfg.RetryDelay)
			continue
		}

		if err := s.store.MarkNotified(ctx, callID, s.clock().UTC()); err != nil && !errors.Is(err, store.ErrAlreadyNotified) {
			log.Error("mark notified", "err", err)
		}
		s.trail.Log(ctx, audit.EventTypeNotificationSent, callID, "summary delivered")
		log.Info("notification delivered", "attempt", attempt)
		return
	}

	log.Error("notification abandoned", "attempts", s.cfg.MaxAttempts)
}

// eligible is the delivery gate: completed customer-facing calls with a
// recording that have not been sent yet.
func eligible(rec calls.CallRecord) bool {
	if rec.Status != calls.CallStatusCompleted {
		return false
	}
	if rec.RecordingURL == nil || *rec.RecordingURL == "" {
		return false
	}
	if rec.ZapierSent {
		return false
	}
	return rec.CallType.CustomerFacing()
}

// payload flattens the record for the automation endpoint. Values come from
// the fresh read, not from whatever state existed at scheduling time.
func (s *Service) payload(rec calls.CallRecord) map[string]any {
	p := map[string]any{
		"call_id":     rec.CallID,
		"direction":   string(rec.Direction),
		"from_number": rec.FromNumber,
		"to_number":   rec.ToNumber,
		"status":      string(rec.Status),
		"call_type":   string(rec.CallType),
		"source":      "call-router",
		"sent_at":     s.clock().UTC().Format(time.RFC3339),
	}
	if rec.StartTime != nil {
		p["start_time"] = rec.StartTime.UTC().Format(time.RFC3339)
	}
	if rec.EndTime != nil {
		p["end_time"] = rec.EndTime.UTC().Format(time.RFC3339)
	}
	if rec.DurationSeconds != nil {
		p["duration_seconds"] = *rec.DurationSeconds
	}
	if rec.RecordingURL != nil {
		p["recording_url"] = *rec.RecordingURL
	}
	if rec.Transcript != nil {
		p["transcript"] = *rec.Transcript
	}
	if rec.CustomerName != nil {
		p["customer_name"] = *rec.CustomerName
	}
	if rec.CustomerZipCode != nil {
		p["customer_zip_code"] = *rec.CustomerZipCode
	}
	if rec.LeadQuality != nil {
		p["lead_quality"] = *rec.LeadQuality
	}
	if rec.Notes != nil {
		p["notes"] = *rec.Notes
	}
	return p
}
