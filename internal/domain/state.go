package domain

// Phase is the persisted lifecycle state of a workflow instance.
type Phase string

const (
	PhaseSubmitted   Phase = "SUBMITTED"
	PhaseJobFailed   Phase = "JOB_FAILED"
	PhaseResultSaved Phase = "RESULT_SAVED"
	PhaseDecided     Phase = "DECIDED"
	PhaseArchived    Phase = "ARCHIVED"
	PhaseUnderReview Phase = "UNDER_REVIEW"
	PhaseFailed      Phase = "FAILED"
)

var terminalPhases = map[Phase]bool{
	PhaseJobFailed:   true,
	PhaseArchived:    true,
	PhaseUnderReview: true,
	PhaseFailed:      true,
}

// legalTransitions is the full transition table. Terminal phases have no
// outgoing edges. PhaseFailed is the dead-letter phase for infrastructure
// failures and is reachable from any non-terminal phase.
var legalTransitions = map[Phase][]Phase{
	PhaseSubmitted:   {PhaseJobFailed, PhaseResultSaved, PhaseFailed},
	PhaseResultSaved: {PhaseDecided, PhaseFailed},
	PhaseDecided:     {PhaseArchived, PhaseUnderReview, PhaseFailed},
}

func (p Phase) IsTerminal() bool {
	return terminalPhases[p]
}

func (p Phase) String() string {
	return string(p)
}

// CanTransition reports whether the transition table permits from -> to.
func CanTransition(from, to Phase) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobStatus is the analysis engine's view of a job. The orchestrator only
// observes it through completion events, it never sets SUCCEEDED or FAILED
// on its own.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "SUBMITTED"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

type ReviewDecisionType string

const (
	ReviewDecisionApprove ReviewDecisionType = "approve"
	ReviewDecisionReject  ReviewDecisionType = "reject"
)
