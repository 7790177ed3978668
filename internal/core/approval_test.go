package core

import (
	"testing"
)

func TestPlanTransition(t *testing.T) {
	tests := []struct {
		name       string
		current    ApprovalStatus
		event      ApprovalEvent
		comment    string
		wantStatus ApprovalStatus
		wantErr    bool
	}{
		// Submit
		{name: "submit from draft", current: StatusDraft, event: EventSubmit, wantStatus: StatusSubmitted},
		{name: "resubmit after rejection", current: StatusRejected, event: EventSubmit, wantStatus: StatusSubmitted},
		{name: "submit while submitted", current: StatusSubmitted, event: EventSubmit, wantErr: true},
		{name: "submit after approval", current: StatusApproved, event: EventSubmit, wantErr: true},

		// Approve
		{name: "approve submitted", current: StatusSubmitted, event: EventApprove, wantStatus: StatusApproved},
		{name: "approve draft", current: StatusDraft, event: EventApprove, wantErr: true},
		{name: "approve rejected", current: StatusRejected, event: EventApprove, wantErr: true},
		{name: "approve twice", current: StatusApproved, event: EventApprove, wantErr: true},

		// Reject
		{name: "reject submitted with comment", current: StatusSubmitted, event: EventReject, comment: "numbers look wrong", wantStatus: StatusRejected},
		{name: "reject without comment", current: StatusSubmitted, event: EventReject, comment: "", wantErr: true},
		{name: "reject with whitespace comment", current: StatusSubmitted, event: EventReject, comment: "   \t", wantErr: true},
		{name: "reject draft", current: StatusDraft, event: EventReject, comment: "nope", wantErr: true},
		{name: "reject approved", current: StatusApproved, event: EventReject, comment: "nope", wantErr: true},

		{name: "unknown event", current: StatusDraft, event: ApprovalEvent("publish"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := planTransition(tt.current, tt.event, tt.comment)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", next)
				}
				if !IsStateError(err) {
					t.Errorf("expected state error, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if next != tt.wantStatus {
				t.Errorf("status: got %s, want %s", next, tt.wantStatus)
			}
		})
	}
}

// Approved is terminal: no event may leave it.
func TestPlanTransitionApprovedIsTerminal(t *testing.T) {
	for _, event := range []ApprovalEvent{EventSubmit, EventApprove, EventReject} {
		if _, err := planTransition(StatusApproved, event, "comment"); err == nil {
			t.Errorf("event %s succeeded from approved", event)
		}
	}
}

func TestParseApprovalStatus(t *testing.T) {
	for _, valid := range []string{"draft", "submitted", "approved", "rejected"} {
		if _, err := ParseApprovalStatus(valid); err != nil {
			t.Errorf("%q rejected: %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "Draft", "pending", "APPROVED"} {
		if _, err := ParseApprovalStatus(invalid); err == nil {
			t.Errorf("%q accepted", invalid)
		}
	}
}
