package workflow

// Transition is a named edge in the workflow state machine.
type Transition string

const (
	TransitionForwardForReview Transition = "forward_for_review"
	TransitionForwardToHop     Transition = "forward_to_hop"
	TransitionHopDecide        Transition = "hop_decide"
	TransitionReopen           Transition = "reopen"
)

// transitions maps each named transition to the statuses it may start from.
// Reviewer decisions are not listed here: they mutate an individual reviewer
// row and the aggregate status follows from AggregateReviewerStatus.
var transitions = map[Transition][]Status{
	TransitionForwardForReview: {StatusNotStarted, StatusReturnedForRevision},
	TransitionForwardToHop:     {StatusPendingReview, StatusReviewComplete},
	TransitionHopDecide:        {StatusPendingHopApproval},
	TransitionReopen:           {StatusRejected},
}

// CanTransition reports whether t is legal from the given status.
func CanTransition(t Transition, from Status) bool {
	for _, s := range transitions[t] {
		if s == from {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses a transition may start from. Repositories
// use this to build guarded UPDATE clauses.
func AllowedFrom(t Transition) []Status {
	from := transitions[t]
	out := make([]Status, len(from))
	copy(out, from)
	return out
}

// AggregateReviewerStatus computes the cycle status implied by the individual
// reviewer statuses. A single returned reviewer sends the cycle back for
// revision regardless of how many others validated; the cycle completes review
// only when every reviewer has validated.
func AggregateReviewerStatus(statuses []ReviewerStatus) Status {
	if len(statuses) == 0 {
		return StatusPendingReview
	}

	allValidated := true
	for _, s := range statuses {
		if s == ReviewerReturned {
			return StatusReturnedForRevision
		}
		if s != ReviewerValidated {
			allValidated = false
		}
	}

	if allValidated {
		return StatusReviewComplete
	}
	return StatusPendingReview
}
