package workflow

// Actions is the set of transition flags the server advertises to clients.
// Clients gate their UI on these flags and never re-derive permission logic;
// the service enforces the same rules again on every transition call.
type Actions struct {
	CanForwardForReview bool `json:"can_forward_for_review"`
	CanForwardToHop     bool `json:"can_forward_to_hop"`
	CanReview           bool `json:"can_review"`
	CanHopDecide        bool `json:"can_hop_decide"`
	CanReopen           bool `json:"can_reopen"`
}

// None reports whether no action is currently permitted.
func (a Actions) None() bool {
	return !a.CanForwardForReview && !a.CanForwardToHop &&
		!a.CanReview && !a.CanHopDecide && !a.CanReopen
}

// ResolveActions computes the permitted actions for a caller given the cycle
// status and whether the caller is an assigned reviewer still pending a
// decision. Admins hold officer and HoP powers plus the reopen gate on
// rejected cycles.
func ResolveActions(role Role, status Status, isPendingReviewer bool) Actions {
	officer := role == RoleOfficer || role == RoleAdmin
	hop := role == RoleHop || role == RoleAdmin

	return Actions{
		CanForwardForReview: officer && CanTransition(TransitionForwardForReview, status),
		CanForwardToHop:     officer && CanTransition(TransitionForwardToHop, status),
		CanReview:           isPendingReviewer && status == StatusPendingReview,
		CanHopDecide:        hop && CanTransition(TransitionHopDecide, status),
		CanReopen:           role == RoleAdmin && CanTransition(TransitionReopen, status),
	}
}
