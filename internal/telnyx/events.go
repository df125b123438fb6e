package telnyx

import (
	"encoding/json"
	"fmt"
	"time"
)

// Webhook event types this router reacts to. Anything else is logged and
// ignored at the dispatch layer.
const (
	EventCallInitiated      = "call.initiated"
	EventCallAnswered       = "call.answered"
	EventCallHangup         = "call.hangup"
	EventCallBridged        = "call.bridged"
	EventCallDTMFReceived   = "call.dtmf.received"
	EventCallRecordingSaved = "call.recording.saved"
)

// Direction values as the carrier reports them on call.initiated.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Event is the decoded webhook payload. The raw body is parsed exactly once
// at the HTTP boundary; everything downstream works with this struct.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time

	CallControlID string
	Direction     string
	From          string
	To            string

	// Digit carries the pressed key on call.dtmf.received.
	Digit string

	// RecordingURL is the carrier-hosted mp3 on call.recording.saved.
	RecordingURL string

	// HangupCause is set on call.hangup (e.g. "normal_clearing", "timeout").
	HangupCause string
}

type rawEnvelope struct {
	Data *rawEvent `json:"data"`

	// Some delivery modes omit the data wrapper.
	rawEvent
}

type rawEvent struct {
	ID         string     `json:"id"`
	EventType  string     `json:"event_type"`
	OccurredAt string     `json:"occurred_at"`
	Payload    rawPayload `json:"payload"`
}

type rawPayload struct {
	CallControlID string `json:"call_control_id"`
	Direction     string `json:"direction"`
	From          string `json:"from"`
	To            string `json:"to"`
	Digit         string `json:"digit"`
	HangupCause   string `json:"hangup_cause"`

	RecordingURLs struct {
		MP3 string `json:"mp3"`
	} `json:"recording_urls"`
	PublicRecordingURLs struct {
		MP3 string `json:"mp3"`
	} `json:"public_recording_urls"`
}

// ParseEvent decodes a webhook body. Both the {"data":{...}} envelope and a
// bare top-level event are accepted.
func ParseEvent(body []byte) (Event, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("telnyx: decode webhook: %w", err)
	}

	src := raw.rawEvent
	if raw.Data != nil {
		src = *raw.Data
	}
	if src.EventType == "" {
		return Event{}, fmt.Errorf("telnyx: webhook missing event_type")
	}

	ev := Event{
		ID:            src.ID,
		Type:          src.EventType,
		CallControlID: src.Payload.CallControlID,
		Direction:     src.Payload.Direction,
		From:          src.Payload.From,
		To:            src.Payload.To,
		Digit:         src.Payload.Digit,
		HangupCause:   src.Payload.HangupCause,
	}

	// Prefer the public URL when the carrier provides one.
	ev.RecordingURL = src.Payload.PublicRecordingURLs.MP3
	if ev.RecordingURL == "" {
		ev.RecordingURL = src.Payload.RecordingURLs.MP3
	}

	if src.OccurredAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, src.OccurredAt); err == nil {
			ev.OccurredAt = ts
		}
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return ev, nil
}

// Inbound reports whether the event belongs to a leg the customer dialed in.
func (e Event) Inbound() bool { return e.Direction == DirectionIncoming }
