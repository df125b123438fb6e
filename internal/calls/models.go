package calls

import (
	"errors"
	"time"
)

// CallRecord is one row per carrier call leg.
//
// Identity invariant: CallID is carrier-assigned and globally unique; the
// store must never create two rows for the same CallID.
//
// Nullable columns are pointers so that an upsert can distinguish "not
// supplied" (keep the stored value) from "supplied" (overwrite). See Merge.
//
// NOTE: Duration is computed from locally observed answer/hangup times, not
// from any carrier-reported duration, and is set exactly once at hangup.

type CallRecord struct {
	CallID    string    `json:"call_id" db:"call_id"`
	Direction Direction `json:"direction,omitempty" db:"direction"`

	FromNumber string `json:"from_number,omitempty" db:"from_number"`
	ToNumber   string `json:"to_number,omitempty" db:"to_number"`

	Status CallStatus `json:"status,omitempty" db:"status"`

	StartTime *time.Time `json:"start_time,omitempty" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`

	// DurationSeconds is nil until hangup.
	DurationSeconds *int `json:"duration,omitempty" db:"duration"`

	RecordingURL *string `json:"recording_url,omitempty" db:"recording_url"`
	Transcript   *string `json:"transcript,omitempty" db:"transcript"`

	CallType CallType `json:"call_type,omitempty" db:"call_type"`

	CustomerName    *string `json:"customer_name,omitempty" db:"customer_name"`
	CustomerZipCode *string `json:"customer_zip_code,omitempty" db:"customer_zip_code"`
	LeadQuality     *string `json:"lead_quality,omitempty" db:"lead_quality"`
	Notes           *string `json:"notes,omitempty" db:"notes"`

	// ZapierSent is the idempotency gate for outbound notification.
	// It transitions false -> true at most once.
	ZapierSent   bool       `json:"zapier_sent" db:"zapier_sent"`
	ZapierSentAt *time.Time `json:"zapier_sent_at,omitempty" db:"zapier_sent_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusCompleted CallStatus = "completed"
)

type CallType string

const (
	CallTypeCustomerInquiry     CallType = "customer_inquiry"
	CallTypeHumanRepresentative CallType = "human_representative"
	CallTypeHumanTransfer       CallType = "human_transfer"
	CallTypeHumanConnected      CallType = "human_connected"
	CallTypeCustomerFollowup    CallType = "customer_followup"
	CallTypeContractorOutreach  CallType = "contractor_outreach"
)

// Merge applies upd on top of existing and returns the result.
//
// Merge semantics: a zero/nil field of upd never erases previously stored
// data; a supplied field overwrites. This is the upsert contract expressed
// as an explicit function rather than engine-specific SQL, so it behaves
// identically on every database driver.
//
// ZapierSent only moves forward: once the stored record is marked sent, an
// update cannot unset it.
func Merge(existing, upd CallRecord) CallRecord {
	out := existing

	if upd.Direction != "" {
		out.Direction = upd.Direction
	}
	if upd.FromNumber != "" {
		out.FromNumber = upd.FromNumber
	}
	if upd.ToNumber != "" {
		out.ToNumber = upd.ToNumber
	}
	if upd.Status != "" {
		out.Status = upd.Status
	}
	if upd.StartTime != nil {
		out.StartTime = upd.StartTime
	}
	if upd.EndTime != nil {
		out.EndTime = upd.EndTime
	}
	if upd.DurationSeconds != nil {
		out.DurationSeconds = upd.DurationSeconds
	}
	if upd.RecordingURL != nil {
		out.RecordingURL = upd.RecordingURL
	}
	if upd.Transcript != nil {
		out.Transcript = upd.Transcript
	}
	if upd.CallType != "" {
		out.CallType = upd.CallType
	}
	if upd.CustomerName != nil {
		out.CustomerName = upd.CustomerName
	}
	if upd.CustomerZipCode != nil {
		out.CustomerZipCode = upd.CustomerZipCode
	}
	if upd.LeadQuality != nil {
		out.LeadQuality = upd.LeadQuality
	}
	if upd.Notes != nil {
		out.Notes = upd.Notes
	}
	if upd.ZapierSent {
		out.ZapierSent = true
	}
	if upd.ZapierSentAt != nil {
		out.ZapierSentAt = upd.ZapierSentAt
	}

	return out
}

// CustomerFacing reports whether this call type is eligible for outbound
// notification. human_transfer counts: a customer who asked for a human is a
// lead even if the bridge never completed.
func (t CallType) CustomerFacing() bool {
	switch t {
	case CallTypeCustomerInquiry, CallTypeHumanConnected, CallTypeHumanTransfer:
		return true
	}
	return false
}

// LeadQualities are the accepted operator-entered lead ratings.
var LeadQualities = []string{"hot", "warm", "cold"}

// ValidateOperatorUpdate checks the fields operators edit by hand. Nil
// fields are untouched by the merge and always pass.
func ValidateOperatorUpdate(zip, quality *string) error {
	if zip != nil && (len(*zip) < 3 || len(*zip) > 10) {
		return errors.New("customer_zip_code must be 3-10 characters")
	}
	if quality != nil {
		ok := false
		for _, q := range LeadQualities {
			if *quality == q {
				ok = true
				break
			}
		}
		if !ok {
			return errors.New("lead_quality must be one of hot, warm, cold")
		}
	}
	return nil
}

func StringPtr(s string) *string { return &s }

func IntPtr(n int) *int { return &n }

func TimePtr(t time.Time) *time.Time { return &t }
