package audit

import "time"

// Event is an immutable, append-only trail record of what the router did to
// a call: webhook arrivals, bridge lifecycle steps, notification deliveries,
// operator actions.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording an event is best-effort; call flows never block on the trail.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the trail record.
	Type EventType `json:"type" db:"type"`

	// CallID is the carrier call leg the event belongs to, when applicable.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// Actor identifies the operator for operator-initiated events.
	Actor string `json:"actor,omitempty" db:"actor"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeWebhookReceived  EventType = "webhook_received"
	EventTypeCallPlaced       EventType = "call_placed"
	EventTypeBridgeRequested  EventType = "bridge_requested"
	EventTypeBridgeCompleted  EventType = "bridge_completed"
	EventTypeBridgeTimeout    EventType = "bridge_timeout"
	EventTypeBridgeAbandoned  EventType = "bridge_abandoned"
	EventTypeNotificationSent EventType = "notification_sent"
	EventTypeOperatorAction   EventType = "operator_action"
)
