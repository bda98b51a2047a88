// Package workflow defines the entity approval state machine: statuses,
// transitions, reviewer aggregation, and the action resolver. It is pure
// domain logic with no persistence or transport concerns.
package workflow

// EntityType identifies the kind of governed business object.
type EntityType string

const (
	EntityContract    EntityType = "contract"
	EntityPO          EntityType = "po"
	EntityResource    EntityType = "resource"
	EntityAsset       EntityType = "asset"
	EntityVendor      EntityType = "vendor"
	EntityDeliverable EntityType = "deliverable"
)

var validEntityTypes = map[EntityType]bool{
	EntityContract:    true,
	EntityPO:          true,
	EntityResource:    true,
	EntityAsset:       true,
	EntityVendor:      true,
	EntityDeliverable: true,
}

// ParseEntityType validates a path segment against the closed entity type set.
func ParseEntityType(s string) (EntityType, bool) {
	et := EntityType(s)
	return et, validEntityTypes[et]
}

func (t EntityType) String() string { return string(t) }

// Status is the aggregate workflow status of a cycle.
type Status string

const (
	// StatusNotStarted is virtual: it is reported when no cycle exists yet
	// and is never persisted.
	StatusNotStarted          Status = "not_started"
	StatusPendingReview       Status = "pending_review"
	StatusReviewComplete      Status = "review_complete"
	StatusPendingHopApproval  Status = "pending_hop_approval"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
	StatusReturnedForRevision Status = "returned_for_revision"
)

var validStatuses = map[Status]bool{
	StatusNotStarted:          true,
	StatusPendingReview:       true,
	StatusReviewComplete:      true,
	StatusPendingHopApproval:  true,
	StatusApproved:            true,
	StatusRejected:            true,
	StatusReturnedForRevision: true,
}

var terminalStatuses = map[Status]bool{
	StatusApproved: true,
	StatusRejected: true,
}

// IsValid reports whether s belongs to the closed status set.
func (s Status) IsValid() bool { return validStatuses[s] }

// IsTerminal reports whether the cycle is finished. Rejected cycles can only
// be revived through the explicit reopen transition.
func (s Status) IsTerminal() bool { return terminalStatuses[s] }

func (s Status) String() string { return string(s) }

// ReviewerStatus is the individual status of one assigned reviewer.
type ReviewerStatus string

const (
	ReviewerPending   ReviewerStatus = "pending"
	ReviewerValidated ReviewerStatus = "validated"
	ReviewerReturned  ReviewerStatus = "returned"
)

func (s ReviewerStatus) String() string { return string(s) }

// ReviewerDecision is the decision a reviewer submits.
type ReviewerDecision string

const (
	DecisionValidated ReviewerDecision = "validated"
	DecisionReturned  ReviewerDecision = "returned"
)

// ParseReviewerDecision validates a reviewer decision value.
func ParseReviewerDecision(s string) (ReviewerDecision, bool) {
	d := ReviewerDecision(s)
	return d, d == DecisionValidated || d == DecisionReturned
}

// HopDecision is the decision the Head of Procurement submits.
type HopDecision string

const (
	HopApproved HopDecision = "approved"
	HopRejected HopDecision = "rejected"
)

// ParseHopDecision validates a HoP decision value.
func ParseHopDecision(s string) (HopDecision, bool) {
	d := HopDecision(s)
	return d, d == HopApproved || d == HopRejected
}

// Role is a user's governance role.
type Role string

const (
	RoleOfficer  Role = "procurement_officer"
	RoleReviewer Role = "reviewer"
	RoleHop      Role = "head_of_procurement"
	RoleAdmin    Role = "admin"
)

// Action is an audit-trail action name. The set is closed; DescribeAction
// rejects anything outside it.
type Action string

const (
	ActionForwardedForReview Action = "forwarded_for_review"
	ActionReviewerValidated  Action = "reviewer_validated"
	ActionReviewerReturned   Action = "reviewer_returned"
	ActionForwardedToHop     Action = "forwarded_to_hop"
	ActionHopApproved        Action = "hop_approved"
	ActionHopRejected        Action = "hop_rejected"
	ActionReopened           Action = "reopened"
)

func (a Action) String() string { return string(a) }
