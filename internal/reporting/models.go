package reporting

import (
	"time"

	"call-router/internal/calls"
)

// TimeRange bounds a summary. Zero values leave that side unbounded.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest requests aggregated call metrics.
type SummaryRequest struct {
	Range    TimeRange      `json:"range"`
	CallType calls.CallType `json:"call_type,omitempty"`
}

type Summary struct {
	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	InFlightCalls  int `json:"in_flight_calls"`

	InboundCalls  int `json:"inbound_calls"`
	OutboundCalls int `json:"outbound_calls"`

	BridgedCalls  int `json:"bridged_calls"`
	RecordedCalls int `json:"recorded_calls"`
	NotifiedCalls int `json:"notified_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	ByType map[string]int `json:"by_type"`
}
