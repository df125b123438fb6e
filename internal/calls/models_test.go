package calls

import (
	"testing"
	"time"
)

func TestMerge_PreservesUnsuppliedFields(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	existing := CallRecord{
		CallID:     "c1",
		Direction:  DirectionInbound,
		FromNumber: "+15551234567",
		ToNumber:   "+15557654321",
		Status:     CallStatusInitiated,
		StartTime:  &start,
		CallType:   CallTypeCustomerInquiry,
	}

	merged := Merge(existing, CallRecord{CallID: "c1", Notes: StringPtr("spoke to Dana")})

	if merged.Status != CallStatusInitiated {
		t.Fatalf("expected status preserved, got %q", merged.Status)
	}
	if merged.Notes == nil || *merged.Notes != "spoke to Dana" {
		t.Fatalf("expected notes set, got %v", merged.Notes)
	}
	if merged.FromNumber != "+15551234567" {
		t.Fatalf("expected from_number preserved, got %q", merged.FromNumber)
	}
	if merged.StartTime == nil || !merged.StartTime.Equal(start) {
		t.Fatalf("expected start_time preserved, got %v", merged.StartTime)
	}
}

func TestMerge_SuppliedFieldsOverwrite(t *testing.T) {
	existing := CallRecord{CallID: "c1", Status: CallStatusInitiated, CallType: CallTypeCustomerInquiry}

	end := time.Unix(1700000100, 0).UTC()
	merged := Merge(existing, CallRecord{
		CallID:          "c1",
		Status:          CallStatusCompleted,
		EndTime:         &end,
		DurationSeconds: IntPtr(42),
		CallType:        CallTypeHumanConnected,
	})

	if merged.Status != CallStatusCompleted {
		t.Fatalf("expected completed, got %q", merged.Status)
	}
	if merged.DurationSeconds == nil || *merged.DurationSeconds != 42 {
		t.Fatalf("expected duration 42, got %v", merged.DurationSeconds)
	}
	if merged.CallType != CallTypeHumanConnected {
		t.Fatalf("expected call_type human_connected, got %q", merged.CallType)
	}
}

func TestMerge_ZapierSentNeverUnset(t *testing.T) {
	sentAt := time.Unix(1700000200, 0).UTC()
	existing := CallRecord{CallID: "c1", ZapierSent: true, ZapierSentAt: &sentAt}

	merged := Merge(existing, CallRecord{CallID: "c1", Notes: StringPtr("n")})

	if !merged.ZapierSent {
		t.Fatalf("expected zapier_sent to stay true")
	}
	if merged.ZapierSentAt == nil || !merged.ZapierSentAt.Equal(sentAt) {
		t.Fatalf("expected zapier_sent_at preserved, got %v", merged.ZapierSentAt)
	}
}

func TestValidateOperatorUpdate(t *testing.T) {
	if err := ValidateOperatorUpdate(nil, nil); err != nil {
		t.Fatalf("expected nil fields to pass, got %v", err)
	}
	if err := ValidateOperatorUpdate(StringPtr("30301"), StringPtr("warm")); err != nil {
		t.Fatalf("expected valid fields to pass, got %v", err)
	}
	if err := ValidateOperatorUpdate(StringPtr("1"), nil); err == nil {
		t.Fatalf("expected short zip to fail")
	}
	if err := ValidateOperatorUpdate(nil, StringPtr("lukewarm")); err == nil {
		t.Fatalf("expected unknown lead quality to fail")
	}
}

func TestCallType_CustomerFacing(t *testing.T) {
	facing := []CallType{CallTypeCustomerInquiry, CallTypeHumanConnected, CallTypeHumanTransfer}
	for _, ct := range facing {
		if !ct.CustomerFacing() {
			t.Fatalf("expected %q to be customer facing", ct)
		}
	}
	notFacing := []CallType{CallTypeHumanRepresentative, CallTypeCustomerFollowup, CallTypeContractorOutreach}
	for _, ct := range notFacing {
		if ct.CustomerFacing() {
			t.Fatalf("expected %q not to be customer facing", ct)
		}
	}
}
