package reporting

import (
	"context"
	"errors"

	"call-router/internal/calls"
	"call-router/internal/store"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

const pageSize = 500

// Service aggregates call records into operator-facing metrics. Reads go
// through the same store lane as everything else, so a summary never races
// a write.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service { return &Service{store: st} }

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.store == nil {
		return Summary{}, errors.New("reporting: store not configured")
	}

	out := Summary{ByType: map[string]int{}}
	for offset := 0; ; offset += pageSize {
		rows, err := s.store.List(ctx, store.ListFilter{
			CallType: req.CallType,
			Limit:    pageSize,
			Offset:   offset,
		})
		if err != nil {
			return Summary{}, err
		}
		for _, rec := range rows {
			if !inRange(rec, req.Range) {
				continue
			}
			tally(&out, rec)
		}
		if len(rows) < pageSize {
			break
		}
	}

	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

func inRange(rec calls.CallRecord, r TimeRange) bool {
	if rec.StartTime == nil {
		return r.From.IsZero() && r.To.IsZero()
	}
	if !r.From.IsZero() && rec.StartTime.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !rec.StartTime.Before(r.To) {
		return false
	}
	return true
}

func tally(out *Summary, rec calls.CallRecord) {
	out.TotalCalls++
	if rec.CallType != "" {
		out.ByType[string(rec.CallType)]++
	}

	switch rec.Direction {
	case calls.DirectionInbound:
		out.InboundCalls++
	case calls.DirectionOutbound:
		out.OutboundCalls++
	}

	if rec.Status == calls.CallStatusCompleted {
		out.CompletedCalls++
	} else {
		out.InFlightCalls++
	}
	if rec.CallType == calls.CallTypeHumanConnected {
		out.BridgedCalls++
	}
	if rec.RecordingURL != nil && *rec.RecordingURL != "" {
		out.RecordedCalls++
	}
	if rec.ZapierSent {
		out.NotifiedCalls++
	}
	if rec.DurationSeconds != nil {
		out.TotalDurationSeconds += *rec.DurationSeconds
	}
}
