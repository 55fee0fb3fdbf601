package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Phase
		to   Phase
		want bool
	}{
		{name: "submitted to job failed", from: PhaseSubmitted, to: PhaseJobFailed, want: true},
		{name: "submitted to result saved", from: PhaseSubmitted, to: PhaseResultSaved, want: true},
		{name: "submitted to failed", from: PhaseSubmitted, to: PhaseFailed, want: true},
		{name: "result saved to decided", from: PhaseResultSaved, to: PhaseDecided, want: true},
		{name: "decided to archived", from: PhaseDecided, to: PhaseArchived, want: true},
		{name: "decided to under review", from: PhaseDecided, to: PhaseUnderReview, want: true},
		{name: "no skipping decided", from: PhaseResultSaved, to: PhaseArchived, want: false},
		{name: "no skipping result saved", from: PhaseSubmitted, to: PhaseDecided, want: false},
		{name: "no phase regression", from: PhaseDecided, to: PhaseSubmitted, want: false},
		{name: "archived is absorbing", from: PhaseArchived, to: PhaseUnderReview, want: false},
		{name: "under review is absorbing", from: PhaseUnderReview, to: PhaseArchived, want: false},
		{name: "job failed is absorbing", from: PhaseJobFailed, to: PhaseResultSaved, want: false},
		{name: "failed is absorbing", from: PhaseFailed, to: PhaseSubmitted, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestTerminalPhasesHaveNoOutgoingTransitions(t *testing.T) {
	all := []Phase{
		PhaseSubmitted, PhaseJobFailed, PhaseResultSaved, PhaseDecided,
		PhaseArchived, PhaseUnderReview, PhaseFailed,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("terminal phase %s has outgoing transition to %s", from, to)
			}
		}
	}
}
