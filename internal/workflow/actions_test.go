package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveActionsOfficer(t *testing.T) {
	a := ResolveActions(RoleOfficer, StatusNotStarted, false)
	assert.True(t, a.CanForwardForReview)
	assert.False(t, a.CanForwardToHop)
	assert.False(t, a.CanReview)
	assert.False(t, a.CanHopDecide)
	assert.False(t, a.CanReopen)

	a = ResolveActions(RoleOfficer, StatusPendingReview, false)
	assert.False(t, a.CanForwardForReview)
	assert.True(t, a.CanForwardToHop, "officer can bypass peer review")

	a = ResolveActions(RoleOfficer, StatusReviewComplete, false)
	assert.True(t, a.CanForwardToHop)

	a = ResolveActions(RoleOfficer, StatusReturnedForRevision, false)
	assert.True(t, a.CanForwardForReview, "officer can resubmit after return")
}

func TestResolveActionsReviewer(t *testing.T) {
	a := ResolveActions(RoleReviewer, StatusPendingReview, true)
	assert.True(t, a.CanReview)
	assert.False(t, a.CanForwardForReview)
	assert.False(t, a.CanForwardToHop)
	assert.False(t, a.CanHopDecide)

	// Reviewer who already decided gets nothing.
	a = ResolveActions(RoleReviewer, StatusPendingReview, false)
	assert.True(t, a.None())

	// Pending reviewer outside the review phase gets nothing.
	a = ResolveActions(RoleReviewer, StatusPendingHopApproval, true)
	assert.True(t, a.None())
}

func TestResolveActionsHop(t *testing.T) {
	a := ResolveActions(RoleHop, StatusPendingHopApproval, false)
	assert.True(t, a.CanHopDecide)
	assert.False(t, a.CanForwardForReview)
	assert.False(t, a.CanForwardToHop)

	a = ResolveActions(RoleHop, StatusPendingReview, false)
	assert.True(t, a.None())
}

func TestResolveActionsTerminal(t *testing.T) {
	// Approved is fully terminal for every role.
	for _, role := range []Role{RoleOfficer, RoleReviewer, RoleHop, RoleAdmin} {
		a := ResolveActions(role, StatusApproved, true)
		assert.True(t, a.None(), "role %s should have no actions on approved", role)
	}

	// Rejected offers nothing except the admin reopen gate.
	for _, role := range []Role{RoleOfficer, RoleReviewer, RoleHop} {
		a := ResolveActions(role, StatusRejected, true)
		assert.True(t, a.None(), "role %s should have no actions on rejected", role)
	}
	a := ResolveActions(RoleAdmin, StatusRejected, false)
	assert.True(t, a.CanReopen)
	assert.False(t, a.CanForwardForReview)
	assert.False(t, a.CanForwardToHop)
	assert.False(t, a.CanHopDecide)
}

func TestResolveActionsAdminHoldsOfficerAndHopPowers(t *testing.T) {
	a := ResolveActions(RoleAdmin, StatusNotStarted, false)
	assert.True(t, a.CanForwardForReview)

	a = ResolveActions(RoleAdmin, StatusPendingHopApproval, false)
	assert.True(t, a.CanHopDecide)
}
